// Package gateway is the trust boundary for change notifications from the
// drop source. It answers the verification handshake, checks notification
// signatures and fans one ingestion job out per discovered image.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trunov/assethub/internal/config"
	"github.com/trunov/assethub/internal/entities"
	"github.com/trunov/assethub/internal/ingest"
	"github.com/trunov/assethub/internal/logging"
	"github.com/trunov/assethub/internal/redismanager"
	"github.com/trunov/assethub/internal/source"
)

var ErrAuthFailure = errors.New("webhook signature mismatch")

type Lister interface {
	List(ctx context.Context, folder string) ([]entities.SourceFile, error)
}

type JobRunner interface {
	Run(ctx context.Context, req ingest.Request) entities.JobResult
}

type Claimer interface {
	Claim(ctx context.Context, path string) (*redismanager.Claim, bool, error)
	Release(ctx context.Context, c *redismanager.Claim) error
}

type Reporter interface {
	ReportJob(res entities.JobResult)
}

type Gateway struct {
	secret      []byte
	folder      string
	namespace   string
	concurrency int
	listTimeout time.Duration
	encoding    config.EncodingConfig

	lister   Lister
	runner   JobRunner
	claims   Claimer
	reporter Reporter
}

type Option func(*Gateway)

// WithClaims skips files another delivery is already ingesting.
func WithClaims(c Claimer) Option { return func(g *Gateway) { g.claims = c } }

func WithReporter(r Reporter) Option { return func(g *Gateway) { g.reporter = r } }

func New(cfg *config.Config, lister Lister, runner JobRunner, opts ...Option) *Gateway {
	g := &Gateway{
		secret:      []byte(cfg.Webhook.Secret),
		folder:      cfg.Source.WatchFolder,
		namespace:   cfg.Source.Namespace,
		concurrency: cfg.Pipeline.Concurrency,
		listTimeout: config.Seconds(cfg.Pipeline.ListTimeout),
		encoding:    cfg.Encoding,
		lister:      lister,
		runner:      runner,
	}
	if g.concurrency < 1 {
		g.concurrency = 1
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Challenge echoes the verification token verbatim.
func (g *Gateway) Challenge(token string) string {
	return token
}

// VerifySignature checks the hex HMAC-SHA256 of body. Without a configured
// secret every body is accepted.
func (g *Gateway) VerifySignature(body []byte, signature string) error {
	if len(g.secret) == 0 {
		return nil
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(got) == 0 {
		return ErrAuthFailure
	}
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrAuthFailure
	}
	return nil
}

// HandleNotification verifies the notification and ingests the watch folder.
// No job is started when verification fails.
func (g *Gateway) HandleNotification(ctx context.Context, body []byte, signature string) (entities.BatchSummary, error) {
	if err := g.VerifySignature(body, signature); err != nil {
		return entities.BatchSummary{}, err
	}
	return g.ProcessFolder(ctx)
}

// ProcessFolder lists the watch folder and runs one job per image file.
func (g *Gateway) ProcessFolder(ctx context.Context) (entities.BatchSummary, error) {
	listCtx := ctx
	if g.listTimeout > 0 {
		var cancel context.CancelFunc
		listCtx, cancel = context.WithTimeout(ctx, g.listTimeout)
		defer cancel()
	}

	files, err := g.lister.List(listCtx, g.folder)
	if err != nil {
		return entities.BatchSummary{}, fmt.Errorf("%w: list %s: %w", ingest.ErrSourceUnavailable, g.folder, err)
	}
	return g.ProcessFiles(ctx, files), nil
}

// ProcessFiles runs the jobs with bounded concurrency. One job failing never
// stops the others; results keep discovery order.
func (g *Gateway) ProcessFiles(ctx context.Context, files []entities.SourceFile) entities.BatchSummary {
	logger := logging.Component("gateway")

	images := make([]entities.SourceFile, 0, len(files))
	for _, f := range files {
		if source.IsImage(f.Name) {
			images = append(images, f)
		}
	}
	hero := g.heroIndex(images)
	logger.Info().Int("files", len(images)).Int("concurrency", g.concurrency).Msg("batch started")

	results := make([]entities.JobResult, len(images))
	var eg errgroup.Group
	eg.SetLimit(g.concurrency)

	for i, f := range images {
		req := ingest.Request{
			File:      f,
			Namespace: g.namespace,
			Budget:    g.encoding.BudgetFor(g.namespace),
		}
		if i == hero {
			req.Budget = g.encoding.HeroBudget()
		}

		eg.Go(func() error {
			results[i] = g.runOne(ctx, req)
			return nil
		})
	}
	// jobs report failures in results, never through the group
	_ = eg.Wait()

	var summary entities.BatchSummary
	summary.Results = make([]entities.JobResult, 0, len(results))
	for _, r := range results {
		summary.Add(r)
	}
	logger.Info().
		Int("processed", summary.Processed).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("batch finished")
	return summary
}

func (g *Gateway) runOne(ctx context.Context, req ingest.Request) entities.JobResult {
	logger := logging.Component("gateway")
	if g.claims != nil {
		claim, ok, err := g.claims.Claim(ctx, req.File.Path)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("file", req.File.Path).Msg("claim failed, running unclaimed")
		case !ok:
			return entities.JobResult{
				File:   req.File.Path,
				Status: entities.StatusSkipped,
				State:  ingest.StatePending.String(),
				Detail: "already being ingested by another delivery",
			}
		default:
			defer func() {
				if err := g.claims.Release(context.WithoutCancel(ctx), claim); err != nil {
					logger.Warn().Err(err).Str("file", req.File.Path).Msg("release claim")
				}
			}()
		}
	}

	res := g.runner.Run(ctx, req)
	if g.reporter != nil {
		g.reporter.ReportJob(res)
	}
	return res
}

// heroIndex picks the file encoded with the hero budget, or -1.
func (g *Gateway) heroIndex(files []entities.SourceFile) int {
	switch g.encoding.HeroPolicy {
	case config.HeroFirst:
		if len(files) > 0 {
			return 0
		}
	case config.HeroPrefix:
		prefix := strings.ToLower(g.encoding.HeroPrefix)
		for i, f := range files {
			if prefix != "" && strings.HasPrefix(strings.ToLower(f.Name), prefix) {
				return i
			}
		}
	}
	return -1
}
