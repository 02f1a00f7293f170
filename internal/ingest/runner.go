// Package ingest runs one source file through fetch, encode, publish, link
// and source cleanup. Publish failures are fatal; link and cleanup failures
// are attached to the result as warnings.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"


	"github.com/trunov/assethub/internal/assetkey"
	"github.com/trunov/assethub/internal/config"
	"github.com/trunov/assethub/internal/entities"
	"github.com/trunov/assethub/internal/logging"
	"github.com/trunov/assethub/internal/metadata"
	"github.com/trunov/assethub/internal/metrics"
)

type Encoder interface {
	Encode(raw []byte, budgetKB int, maxDimension int) (entities.EncodedAsset, error)
}

type Source interface {
	Fetch(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

type Store interface {
	Upsert(ctx context.Context, key string, payload []byte, contentType string) (string, error)
}

type Options struct {
	FetchTimeout  time.Duration
	UploadTimeout time.Duration
	LinkTimeout   time.Duration
	DeleteTimeout time.Duration

	// TempDir holds downloaded source bytes. Empty means os.TempDir().
	TempDir        string
	MaxSourceBytes int64

	// Budget applies when a request carries none.
	Budget      config.Budget
	KeyPrefixes []string
}

func OptionsFromConfig(cfg *config.Config) Options {
	p := cfg.Pipeline
	return Options{
		FetchTimeout:   config.Seconds(p.FetchTimeout),
		UploadTimeout:  config.Seconds(p.UploadTimeout),
		LinkTimeout:    config.Seconds(p.LinkTimeout),
		DeleteTimeout:  config.Seconds(p.DeleteTimeout),
		TempDir:        p.TempDir,
		MaxSourceBytes: p.MaxSourceMB << 20,
		Budget:         config.Budget{MaxKB: cfg.Encoding.MaxKB, MaxDimension: cfg.Encoding.MaxDimension},
		KeyPrefixes:    cfg.Source.KeyPrefixes,
	}
}

// Request describes one job.
type Request struct {
	File      entities.SourceFile
	Namespace string
	// Key overrides the key derived from File.Name.
	Key    *entities.AssetKey
	Budget config.Budget
}

type Runner struct {
	encoder Encoder
	source  Source
	store   Store
	linker  metadata.Linker
	deriver *assetkey.Deriver
	opts    Options
}

func NewRunner(encoder Encoder, source Source, store Store, linker metadata.Linker, opts Options) *Runner {
	if linker == nil {
		linker = metadata.Noop{}
	}
	return &Runner{
		encoder: encoder,
		source:  source,
		store:   store,
		linker:  linker,
		deriver: assetkey.NewDeriver(opts.KeyPrefixes),
		opts:    opts,
	}
}

// WithSource returns a runner that reads from and cleans up src instead.
func (r *Runner) WithSource(src Source) *Runner {
	cp := *r
	cp.source = src
	return &cp
}

// Run drives one job to a terminal state. It never returns an error: the
// outcome, including the furthest state reached, is in the result.
func (r *Runner) Run(ctx context.Context, req Request) entities.JobResult {
	job := newJob(req.File, logging.Component("ingest"))
	defer job.removeTemp()

	start := time.Now()
	enc, url := r.run(ctx, job, req)

	res := entities.JobResult{
		JobID:    job.ID,
		File:     req.File.Path,
		State:    job.Furthest.String(),
		Warnings: job.Warnings,
		Err:      job.Err,
	}
	if job.Key.Slug != "" {
		res.AssetKey = job.Key.String()
	}

	if job.State == StateFailed {
		res.Status = entities.StatusFailed
		res.Detail = job.Err.Error()
		job.logger.Error().Err(job.Err).Str("state", res.State).Dur("took", time.Since(start)).Msg("job failed")
	} else {
		res.Status = entities.StatusDone
		res.URL = url
		res.Encoded = enc
		res.SavingsPercent = enc.SavingsPercent()
		if !enc.MetBudget {
			res.Detail = fmt.Sprintf("over budget: %d bytes at minimum width", enc.ByteSize)
		}
		job.logger.Info().
			Str("asset_key", res.AssetKey).
			Int("bytes", enc.ByteSize).
			Float64("savings_percent", res.SavingsPercent).
			Int("warnings", len(job.Warnings)).
			Dur("took", time.Since(start)).
			Msg("job done")
	}

	metrics.JobsTotal.WithLabelValues(string(res.Status)).Inc()
	for _, w := range job.Warnings {
		metrics.JobWarnings.WithLabelValues(string(w.Kind)).Inc()
	}
	return res
}

func (r *Runner) run(ctx context.Context, job *Job, req Request) (*entities.EncodedAsset, string) {
	key, err := r.key(req)
	if err != nil {
		job.fail(ErrInvalidAssetKey, err)
		return nil, ""
	}
	job.Key = key
	job.logger = job.logger.With().Str("asset_key", key.String()).Logger()

	job.transition(StateFetching)
	raw, err := r.fetch(ctx, job)
	if err != nil {
		job.fail(ErrSourceUnavailable, err)
		return nil, ""
	}

	job.transition(StateEncoding)
	enc, err := r.encode(ctx, raw, r.budget(req))
	if err != nil {
		job.fail(ErrEncodeFailure, err)
		return nil, ""
	}

	job.transition(StatePublishing)
	url, err := r.publish(ctx, key.StorageKey(enc.Format), enc)
	if err != nil {
		job.fail(ErrPublishFailure, err)
		return nil, ""
	}

	job.transition(StateLinking)
	r.link(ctx, job, url)

	job.transition(StateSourceCleanup)
	r.cleanup(ctx, job)

	job.transition(StateDone)
	return &enc, url
}

func (r *Runner) key(req Request) (entities.AssetKey, error) {
	if req.Key != nil {
		k := *req.Key
		k.Slug = assetkey.Slugify(k.Slug)
		k.Namespace = assetkey.Slugify(k.Namespace)
		if k.Slug == "" {
			return entities.AssetKey{}, assetkey.ErrEmptySlug
		}
		return k, nil
	}
	return r.deriver.Derive(req.Namespace, req.File.Name)
}

func (r *Runner) budget(req Request) config.Budget {
	b := req.Budget
	if b.MaxKB <= 0 {
		b.MaxKB = r.opts.Budget.MaxKB
	}
	if b.MaxDimension <= 0 {
		b.MaxDimension = r.opts.Budget.MaxDimension
	}
	return b
}

// fetch spills the source to a job scoped temp file and reads it back.
func (r *Runner) fetch(ctx context.Context, job *Job) ([]byte, error) {
	defer observe("fetch", time.Now())

	ctx, cancel := withTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()

	rc, err := r.source.Fetch(ctx, job.File.Path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	f, err := os.CreateTemp(r.opts.TempDir, "assethub-"+job.ID+"-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	job.TempPaths = append(job.TempPaths, f.Name())
	defer f.Close()

	src := io.Reader(rc)
	if r.opts.MaxSourceBytes > 0 {
		src = io.LimitReader(rc, r.opts.MaxSourceBytes+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", job.File.Path, err)
	}
	if r.opts.MaxSourceBytes > 0 && n > r.opts.MaxSourceBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrSourceTooLarge, r.opts.MaxSourceBytes)
	}

	return os.ReadFile(f.Name())
}

func (r *Runner) encode(ctx context.Context, raw []byte, b config.Budget) (entities.EncodedAsset, error) {
	defer observe("encode", time.Now())

	if err := ctx.Err(); err != nil {
		return entities.EncodedAsset{}, err
	}
	enc, err := r.encoder.Encode(raw, b.MaxKB, b.MaxDimension)
	if err != nil {
		return entities.EncodedAsset{}, err
	}

	metrics.EncodedBytes.Observe(float64(enc.ByteSize))
	if !enc.MetBudget {
		metrics.BudgetMisses.Inc()
	}
	if saved := enc.OriginalBytes - enc.ByteSize; saved > 0 {
		metrics.BytesSaved.Add(float64(saved))
	}
	return enc, nil
}

func (r *Runner) publish(ctx context.Context, storageKey string, enc entities.EncodedAsset) (string, error) {
	defer observe("publish", time.Now())

	ctx, cancel := withTimeout(ctx, r.opts.UploadTimeout)
	defer cancel()

	url, err := r.store.Upsert(ctx, storageKey, enc.Bytes, enc.ContentType)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", errors.New("asset store returned an empty url")
	}
	return url, nil
}

// link is best effort: every problem becomes a link warning.
func (r *Runner) link(ctx context.Context, job *Job, url string) {
	defer observe("link", time.Now())

	ctx, cancel := withTimeout(ctx, r.opts.LinkTimeout)
	defer cancel()

	id, found, err := r.linker.FindByKey(ctx, job.Key.Slug)
	switch {
	case err != nil:
		job.warn(entities.LinkWarning, fmt.Sprintf("find metadata record %q: %v", job.Key.Slug, err))
		return
	case !found:
		job.warn(entities.LinkWarning, fmt.Sprintf("no metadata record for %q", job.Key.Slug))
		return
	}

	if err := r.linker.PatchReference(ctx, id, url); err != nil {
		job.warn(entities.LinkWarning, fmt.Sprintf("patch metadata record %s: %v", id, err))
	}
}

// cleanup deletes the source file. Only reached after a successful publish.
func (r *Runner) cleanup(ctx context.Context, job *Job) {
	defer observe("cleanup", time.Now())

	ctx, cancel := withTimeout(ctx, r.opts.DeleteTimeout)
	defer cancel()

	if err := r.source.Delete(ctx, job.File.Path); err != nil {
		job.warn(entities.CleanupWarning, fmt.Sprintf("delete source %s: %v", job.File.Path, err))
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func observe(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
