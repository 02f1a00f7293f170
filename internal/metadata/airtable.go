package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/trunov/assethub/internal/config"
	"github.com/trunov/assethub/internal/metrics"
)

const defaultAirtableAPI = "https://api.airtable.com"

type statusError struct {
	Op     string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("airtable: %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Airtable looks records up with a filterByFormula query on the key field and
// patches the reference field with the published URL.
type Airtable struct {
	baseURL        string
	apiKey         string
	baseID         string
	table          string
	keyField       string
	referenceField string
	asAttachment   bool

	client *http.Client
	cb     *gobreaker.CircuitBreaker[[]byte]
}

func NewAirtable(cfg *config.MetadataConfig, client *http.Client) *Airtable {
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = defaultAirtableAPI
	}

	name := "airtable"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 4xx answers mean the API is up
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.Status < 500 && se.Status != http.StatusTooManyRequests
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("component", "airtable").Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Airtable{
		baseURL:        base,
		apiKey:         cfg.APIKey,
		baseID:         cfg.BaseID,
		table:          cfg.Table,
		keyField:       cfg.KeyField,
		referenceField: cfg.ReferenceField,
		asAttachment:   cfg.AsAttachment,
		client:         client,
		cb:             cb,
	}
}

type listRecordsResponse struct {
	Records []struct {
		ID string `json:"id"`
	} `json:"records"`
}

// FindByKey returns the id of the first record whose key field equals key.
func (a *Airtable) FindByKey(ctx context.Context, key string) (string, bool, error) {
	q := url.Values{}
	q.Set("filterByFormula", fmt.Sprintf("{%s}='%s'", a.keyField, escapeFormula(key)))
	q.Set("maxRecords", "1")

	body, err := a.execute(ctx, "find", http.MethodGet, a.tableURL()+"?"+q.Encode(), nil)
	if err != nil {
		return "", false, err
	}

	var out listRecordsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", false, fmt.Errorf("airtable: find: decode response: %w", err)
	}
	if len(out.Records) == 0 {
		return "", false, nil
	}
	return out.Records[0].ID, true, nil
}

type attachment struct {
	URL string `json:"url"`
}

// PatchReference sets the reference field of recordID to url.
func (a *Airtable) PatchReference(ctx context.Context, recordID, ref string) error {
	var value any = ref
	if a.asAttachment {
		value = []attachment{{URL: ref}}
	}
	payload, err := json.Marshal(map[string]any{
		"fields": map[string]any{a.referenceField: value},
	})
	if err != nil {
		return err
	}

	_, err = a.execute(ctx, "patch", http.MethodPatch, a.tableURL()+"/"+url.PathEscape(recordID), payload)
	return err
}

func (a *Airtable) tableURL() string {
	return fmt.Sprintf("%s/v0/%s/%s", a.baseURL, url.PathEscape(a.baseID), url.PathEscape(a.table))
}

func (a *Airtable) execute(ctx context.Context, op, method, endpoint string, payload []byte) ([]byte, error) {
	body, err := a.cb.Execute(func() ([]byte, error) {
		return a.do(ctx, op, method, endpoint, payload)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues("airtable", "rejected").Inc()
		return nil, fmt.Errorf("airtable: %s: %w", op, err)
	case err != nil:
		metrics.CircuitBreakerRequests.WithLabelValues("airtable", "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues("airtable", "success").Inc()
	return body, nil
}

func (a *Airtable) do(ctx context.Context, op, method, endpoint string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("airtable: %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("airtable: %s: read response: %w", op, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &statusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// escapeFormula quotes a value for use inside a single quoted formula string.
func escapeFormula(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
