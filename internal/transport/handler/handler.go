package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/trunov/assethub/internal/config"
	"github.com/trunov/assethub/internal/entities"
	"github.com/trunov/assethub/internal/gateway"
	"github.com/trunov/assethub/internal/ingest"
	"github.com/trunov/assethub/internal/metrics"
)

type UseCase interface {
	IngestUpload(ctx context.Context, file io.Reader, filename string, params IngestParams) (entities.JobResult, error)
}

type Gateway interface {
	Challenge(token string) string
	HandleNotification(ctx context.Context, body []byte, signature string) (entities.BatchSummary, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	useCase   UseCase
	gateway   Gateway
	cfg       *config.Config
	validator *validator.Validate
	checks    map[string]HealthCheck
}

func New(useCase UseCase, gw Gateway, cfg *config.Config) *Handler {
	return &Handler{
		useCase:   useCase,
		gateway:   gw,
		cfg:       cfg,
		validator: validator.New(),
		checks:    map[string]HealthCheck{},
	}
}

func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// WebhookChallenge answers the provider's endpoint verification.
func (h *Handler) WebhookChallenge(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("challenge")
	if token == "" {
		writeJSONError(w, "missing challenge parameter", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, h.gateway.Challenge(token))
}

// WebhookNotify verifies a change notification and ingests the watch folder.
// Jobs keep running if the caller hangs up.
func (h *Handler) WebhookNotify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Webhook.MaxBodyKB<<10)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.WebhookRequests.WithLabelValues("bad_request").Inc()
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, "notification body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "failed to read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	summary, err := h.gateway.HandleNotification(ctx, body, r.Header.Get(h.cfg.Webhook.SignatureHeader))
	switch {
	case errors.Is(err, gateway.ErrAuthFailure):
		metrics.WebhookRequests.WithLabelValues("unauthorized").Inc()
		log.Warn().Str("component", "webhook").Str("remote", r.RemoteAddr).Msg("rejected notification with bad signature")
		writeJSONError(w, "invalid signature", http.StatusUnauthorized)
		return
	case errors.Is(err, ingest.ErrSourceUnavailable):
		metrics.WebhookRequests.WithLabelValues("source_unavailable").Inc()
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	case err != nil:
		metrics.WebhookRequests.WithLabelValues("error").Inc()
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	metrics.WebhookRequests.WithLabelValues("processed").Inc()
	if summary.Results == nil {
		summary.Results = []entities.JobResult{}
	}
	writeJSON(w, http.StatusOK, summary)
}

// Ingest accepts one admin upload with an explicit asset key and category.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	if err := r.ParseMultipartForm(h.cfg.Upload.MaxMultipartMemoryMB << 20); err != nil {
		writeMultipartError(w, err)
		return
	}

	file, fh, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeJSONError(w, `missing image file: form field key should be "image"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	params := IngestParams{
		AssetKey: strings.TrimSpace(r.Form.Get("assetKey")),
		Category: strings.TrimSpace(r.Form.Get("category")),
		Hero:     formBool(r.Form.Get("hero")),
	}
	if err := h.validator.Struct(params); err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrorsToMap(err))
		return
	}

	mime, err := mimetype.DetectReader(file)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := validateMimeType(mime.String()); err != nil {
		writeJSONError(w, "unsupported file type: "+mime.String(), http.StatusBadRequest)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// detached from the client, bounded by the stage timeouts
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.ingestTimeout())
	defer cancel()

	res, err := h.useCase.IngestUpload(ctx, file, fh.Filename, params)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, ingestStatus(res), toIngestResponse(res))
}

// Healthz runs every registered dependency check.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ingestTimeout() time.Duration {
	p := h.cfg.Pipeline
	d := config.Seconds(p.FetchTimeout + p.UploadTimeout + p.LinkTimeout + p.DeleteTimeout)
	if d <= 0 {
		return 2 * time.Minute
	}
	return d + 30*time.Second
}

func ingestStatus(res entities.JobResult) int {
	if res.Status != entities.StatusFailed {
		return http.StatusCreated
	}
	switch {
	case errors.Is(res.Err, ingest.ErrInvalidAssetKey):
		return http.StatusBadRequest
	case errors.Is(res.Err, ingest.ErrEncodeFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(res.Err, ingest.ErrPublishFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func toIngestResponse(res entities.JobResult) IngestResponse {
	out := IngestResponse{
		Success:  res.Status == entities.StatusDone,
		AssetKey: res.AssetKey,
		Warnings: res.Warnings,
	}
	if !out.Success {
		out.Error = res.Detail
		return out
	}
	out.PublicURL = res.URL
	if res.Encoded != nil {
		savings := res.SavingsPercent
		met := res.Encoded.MetBudget
		out.SavingsPercent = &savings
		out.MetBudget = &met
	}
	return out
}
