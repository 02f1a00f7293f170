package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trunov/assethub/cmd/migrate"
	"github.com/trunov/assethub/internal/cache"
	"github.com/trunov/assethub/internal/config"
	"github.com/trunov/assethub/internal/gateway"
	"github.com/trunov/assethub/internal/ingest"
	"github.com/trunov/assethub/internal/metadata"
	"github.com/trunov/assethub/internal/processor"
	"github.com/trunov/assethub/internal/r2"
	"github.com/trunov/assethub/internal/redisholder"
	"github.com/trunov/assethub/internal/redismanager"
	"github.com/trunov/assethub/internal/report"
	"github.com/trunov/assethub/internal/repository/storage"
	"github.com/trunov/assethub/internal/source"
	"github.com/trunov/assethub/internal/supabase"
	"github.com/trunov/assethub/internal/transport/handler"
	"github.com/trunov/assethub/internal/transport/router"
	use_case "github.com/trunov/assethub/internal/use-case"
	webp_converter "github.com/trunov/assethub/internal/webp-converter"
)

// Pipeline is the wired ingestion stack shared by the HTTP service and the CLI.
type Pipeline struct {
	Runner  *ingest.Runner
	Gateway *gateway.Gateway

	Catalog     *storage.DBStorage
	Redis       *redisholder.Holder
	RecordCache *cache.Cache

	closers []func()
}

func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// Build wires every driver named in cfg. ctx bounds background loops.
func Build(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{}

	src, err := newSource(cfg)
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	linker, err := p.newLinker(ctx, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}

	var opts []gateway.Option
	if cfg.Redis.Enabled() {
		holder, err := redisholder.Build(ctx, &cfg.Redis)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.Redis = holder
		p.closers = append(p.closers, func() { _ = holder.Close() })

		opts = append(opts, gateway.WithClaims(redismanager.NewManager(holder, config.Seconds(cfg.Redis.ClaimTTL))))

		if _, noop := linker.(metadata.Noop); !noop && cfg.Metadata.CacheTTL > 0 {
			p.RecordCache = cache.NewCache("assethub:records", holder)
			linker = cache.NewLinker(linker, p.RecordCache, config.Seconds(cfg.Metadata.CacheTTL))
		}
	}
	opts = append(opts, gateway.WithReporter(report.NewSentry(nil)))

	encoder := processor.NewEncoder(webp_converter.Converter{})
	p.Runner = ingest.NewRunner(encoder, src, store, linker, ingest.OptionsFromConfig(cfg))
	p.Gateway = gateway.New(cfg, src, p.Runner, opts...)

	log.Info().
		Str("source", cfg.Source.Driver).
		Str("store", cfg.AssetStore.Driver).
		Str("metadata", cfg.Metadata.Driver).
		Bool("redis", cfg.Redis.Enabled()).
		Msg("pipeline ready")

	return p, nil
}

// Source lists, fetches and deletes drop folder files.
type Source interface {
	gateway.Lister
	ingest.Source
}

func newSource(cfg *config.Config) (Source, error) {
	switch cfg.Source.Driver {
	case config.SourceLocal:
		return source.NewLocal(cfg.Source.LocalRoot)
	default:
		return source.NewDropbox(&cfg.Source, &http.Client{Timeout: 5 * time.Minute}), nil
	}
}

func newStore(ctx context.Context, cfg *config.Config) (ingest.Store, error) {
	switch cfg.AssetStore.Driver {
	case config.StoreR2:
		return r2.NewStore(ctx, &cfg.AssetStore)
	default:
		return supabase.NewStore(&cfg.AssetStore, nil), nil
	}
}

func (p *Pipeline) newLinker(ctx context.Context, cfg *config.Config) (metadata.Linker, error) {
	switch cfg.Metadata.Driver {
	case config.MetadataAirtable:
		return metadata.NewAirtable(&cfg.Metadata, nil), nil
	case config.MetadataPostgres:
		if cfg.Database.Migrate {
			if err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		repo, err := storage.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		p.Catalog = repo
		p.closers = append(p.closers, repo.Close)
		return repo, nil
	default:
		return metadata.Noop{}, nil
	}
}

type App struct {
	HttpServer *http.Server
	Pipeline   *Pipeline
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	p, err := Build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	uc := use_case.New(p.Runner, cfg.Encoding)

	h := handler.New(uc, p.Gateway, cfg)
	if p.Redis != nil {
		h.AddHealthCheck("redis", func(ctx context.Context) error { return p.Redis.Get().Ping(ctx).Err() })
	}
	if p.Catalog != nil {
		h.AddHealthCheck("database", p.Catalog.Ping)
	}
	r := router.NewRouter(h, cfg.Server.IngestRateLimit)

	s := &http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.Seconds(cfg.Server.ReadTimeout),
		WriteTimeout:      config.Seconds(cfg.Server.WriteTimeout),
	}

	return &App{
		HttpServer: s,
		Pipeline:   p,
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	defer a.Pipeline.Close()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.HttpServer.Addr).Msg("starting server")
		errCh <- a.HttpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.HttpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
