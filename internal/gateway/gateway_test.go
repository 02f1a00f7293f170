package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trunov/assethub/internal/config"
	"github.com/trunov/assethub/internal/entities"
	"github.com/trunov/assethub/internal/ingest"
	"github.com/trunov/assethub/internal/metadata"
	"github.com/trunov/assethub/internal/redisholder"
	"github.com/trunov/assethub/internal/redismanager"
	"github.com/trunov/assethub/internal/source"
)

type stubEncoder struct{}

func (stubEncoder) Encode(raw []byte, budgetKB, _ int) (entities.EncodedAsset, error) {
	if bytes.Equal(raw, []byte("corrupt")) {
		return entities.EncodedAsset{}, errors.New("decode image: invalid format")
	}
	return entities.EncodedAsset{Bytes: raw, Format: "webp", ContentType: "image/webp", ByteSize: len(raw), MetBudget: true, OriginalBytes: len(raw)}, nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStore) Upsert(_ context.Context, key string, payload []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = payload
	return "https://cdn.test/" + key, nil
}

type countingLister struct {
	Lister
	calls int32
}

func (c *countingLister) List(ctx context.Context, folder string) ([]entities.SourceFile, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.Lister.List(ctx, folder)
}

type failingLister struct{}

func (failingLister) List(context.Context, string) ([]entities.SourceFile, error) {
	return nil, errors.New("dropbox: files/list_folder: status 401")
}

// recordingRunner captures requests instead of running jobs.
type recordingRunner struct {
	mu   sync.Mutex
	reqs map[string]ingest.Request
}

func (r *recordingRunner) Run(_ context.Context, req ingest.Request) entities.JobResult {
	r.mu.Lock()
	r.reqs[req.File.Name] = req
	r.mu.Unlock()
	return entities.JobResult{File: req.File.Path, Status: entities.StatusDone, State: "done"}
}

type reporterFunc func(entities.JobResult)

func (f reporterFunc) ReportJob(r entities.JobResult) { f(r) }

func testConfig() *config.Config {
	return &config.Config{
		Source:   config.SourceConfig{WatchFolder: "/website-photos", Namespace: "catering"},
		Webhook:  config.WebhookConfig{Secret: "shh"},
		Pipeline: config.PipelineConfig{Concurrency: 3, ListTimeout: 5},
		Encoding: config.EncodingConfig{
			MaxKB: 500, MaxDimension: 1920, HeroMaxKB: 300, HeroMaxDimension: 1600,
			HeroPolicy: config.HeroNone, HeroPrefix: "hero",
		},
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newPipeline(src *source.Memory) (*ingest.Runner, *memStore) {
	store := &memStore{objects: map[string][]byte{}}
	return ingest.NewRunner(stubEncoder{}, src, store, metadata.Noop{}, ingest.Options{
		Budget: config.Budget{MaxKB: 500, MaxDimension: 1920},
	}), store
}

func TestChallengeEchoesToken(t *testing.T) {
	g := New(testConfig(), source.NewMemory(), nil)
	assert.Equal(t, "abc123", g.Challenge("abc123"))
}

func TestVerifySignature(t *testing.T) {
	g := New(testConfig(), source.NewMemory(), nil)
	body := []byte(`{"list_folder": {"accounts": ["dbid:1"]}}`)

	assert.NoError(t, g.VerifySignature(body, sign("shh", body)))
	assert.NoError(t, g.VerifySignature(body, "sha256="+sign("shh", body)))
	assert.ErrorIs(t, g.VerifySignature(body, sign("wrong", body)), ErrAuthFailure)
	assert.ErrorIs(t, g.VerifySignature(body, ""), ErrAuthFailure)
	assert.ErrorIs(t, g.VerifySignature(body, "not-hex"), ErrAuthFailure)

	cfg := testConfig()
	cfg.Webhook.Secret = ""
	assert.NoError(t, New(cfg, source.NewMemory(), nil).VerifySignature(body, ""))
}

func TestBadSignatureCreatesNoJobs(t *testing.T) {
	src := source.NewMemory()
	src.Put("/website-photos/gourmet-wraps.jpg", []byte("jpeg"))
	lister := &countingLister{Lister: src}
	runner := &recordingRunner{reqs: map[string]ingest.Request{}}

	_, err := New(testConfig(), lister, runner).HandleNotification(context.Background(), []byte("{}"), sign("wrong", []byte("{}")))

	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.Zero(t, atomic.LoadInt32(&lister.calls))
	assert.Empty(t, runner.reqs)
	assert.True(t, src.Has("/website-photos/gourmet-wraps.jpg"))
}

func TestPartialBatchResilience(t *testing.T) {
	src := source.NewMemory()
	names := []string{"a.jpg", "b.jpg", "c.jpg", "d.png", "e.webp"}
	for _, n := range names {
		data := []byte("image-" + n)
		if n == "c.jpg" {
			data = []byte("corrupt")
		}
		src.Put("/website-photos/"+n, data)
	}
	src.Put("/website-photos/notes.txt", []byte("ignored"))

	runner, store := newPipeline(src)
	var reported []entities.JobResult
	var mu sync.Mutex
	g := New(testConfig(), src, runner, WithReporter(reporterFunc(func(r entities.JobResult) {
		mu.Lock()
		reported = append(reported, r)
		mu.Unlock()
	})))

	body := []byte(`{"delta": {"users": [1]}}`)
	summary, err := g.HandleNotification(context.Background(), body, sign("shh", body))
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 5)
	for i, n := range names {
		assert.Equal(t, "/website-photos/"+n, summary.Results[i].File)
	}

	failed := summary.Results[2]
	assert.Equal(t, entities.StatusFailed, failed.Status)
	assert.Equal(t, string(ingest.StateEncoding), failed.State)
	assert.ErrorIs(t, failed.Err, ingest.ErrEncodeFailure)

	assert.Len(t, store.objects, 4)
	assert.True(t, src.Has("/website-photos/c.jpg"), "failed file stays for the next run")
	assert.False(t, src.Has("/website-photos/a.jpg"))
	assert.Len(t, reported, 5)

	// a rerun only retries what is left
	again, err := g.ProcessFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, again.Processed)
	assert.Equal(t, 1, again.Failed)
}

func TestListFailureIsSourceUnavailable(t *testing.T) {
	_, err := New(testConfig(), failingLister{}, nil).ProcessFolder(context.Background())
	assert.ErrorIs(t, err, ingest.ErrSourceUnavailable)
}

func TestHeroPolicy(t *testing.T) {
	files := []entities.SourceFile{
		{Path: "/w/dish.jpg", Name: "dish.jpg"},
		{Path: "/w/HERO-banner.jpg", Name: "HERO-banner.jpg"},
		{Path: "/w/side.jpg", Name: "side.jpg"},
	}
	hero := config.Budget{MaxKB: 300, MaxDimension: 1600}
	normal := config.Budget{MaxKB: 500, MaxDimension: 1920}

	for _, tc := range []struct {
		policy string
		hero   string
	}{
		{config.HeroNone, ""},
		{config.HeroFirst, "dish.jpg"},
		{config.HeroPrefix, "HERO-banner.jpg"},
	} {
		t.Run(tc.policy, func(t *testing.T) {
			cfg := testConfig()
			cfg.Encoding.HeroPolicy = tc.policy
			runner := &recordingRunner{reqs: map[string]ingest.Request{}}

			New(cfg, source.NewMemory(), runner).ProcessFiles(context.Background(), files)

			require.Len(t, runner.reqs, 3)
			for name, req := range runner.reqs {
				want := normal
				if name == tc.hero {
					want = hero
				}
				assert.Equal(t, want, req.Budget, name)
				assert.Equal(t, "catering", req.Namespace)
			}
		})
	}
}

func TestCategoryBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Encoding.Categories = map[string]config.Budget{"catering": {MaxKB: 200}}
	runner := &recordingRunner{reqs: map[string]ingest.Request{}}

	New(cfg, source.NewMemory(), runner).ProcessFiles(context.Background(), []entities.SourceFile{{Path: "/w/a.jpg", Name: "a.jpg"}})

	assert.Equal(t, config.Budget{MaxKB: 200, MaxDimension: 1920}, runner.reqs["a.jpg"].Budget)
}

func TestClaimedFilesAreSkipped(t *testing.T) {
	mr := miniredis.RunT(t)
	h := redisholder.NewHolder(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = h.Close() })
	claims := redismanager.NewManager(h, time.Minute)

	held, ok, err := claims.Claim(context.Background(), "/w/b.jpg")
	require.NoError(t, err)
	require.True(t, ok)

	runner := &recordingRunner{reqs: map[string]ingest.Request{}}
	summary := New(testConfig(), source.NewMemory(), runner, WithClaims(claims)).ProcessFiles(context.Background(), []entities.SourceFile{
		{Path: "/w/a.jpg", Name: "a.jpg"},
		{Path: "/w/b.jpg", Name: "b.jpg"},
	})

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, entities.StatusSkipped, summary.Results[1].Status)
	assert.NotContains(t, runner.reqs, "b.jpg")

	// claims taken by the batch are released
	assert.False(t, mr.Exists(redismanager.ClaimKey("/w/a.jpg")))
	require.NoError(t, claims.Release(context.Background(), held))
}

// peakRunner tracks how many jobs run at the same time.
type peakRunner struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	runs     atomic.Int32
}

func (p *peakRunner) Run(_ context.Context, req ingest.Request) entities.JobResult {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	p.runs.Add(1)
	time.Sleep(5 * time.Millisecond)
	return entities.JobResult{File: req.File.Path, Status: entities.StatusDone, State: "done"}
}

func TestProcessFilesRespectsConcurrencyLimit(t *testing.T) {
	runner := &peakRunner{}
	cfg := testConfig()
	g := New(cfg, source.NewMemory(), runner)

	files := make([]entities.SourceFile, 20)
	for i := range files {
		name := fmt.Sprintf("dish-%02d.jpg", i)
		files[i] = entities.SourceFile{Path: "/website-photos/" + name, Name: name}
	}

	summary := g.ProcessFiles(context.Background(), files)

	assert.Equal(t, 20, summary.Succeeded)
	assert.EqualValues(t, 20, runner.runs.Load())
	assert.LessOrEqual(t, runner.peak.Load(), int32(cfg.Pipeline.Concurrency))
	assert.Greater(t, runner.peak.Load(), int32(1))
}
