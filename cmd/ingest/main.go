package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/trunov/assethub/internal/app"
	"github.com/trunov/assethub/internal/config"
	"github.com/trunov/assethub/internal/logging"
)

var errJobsFailed = errors.New("one or more jobs failed")

type cli struct {
	configFile string
	folder     string
	namespace  string
	cfg        *config.Config
}

func main() {
	c := &cli{}
	root := c.rootCommand()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	sentry.Flush(2 * time.Second)

	if err != nil {
		if !errors.Is(err, errJobsFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ingest",
		Short: "Run the asset ingestion pipeline once against the watch folder",
		Long: `Lists the configured watch folder, ingests every image in it and prints
the batch summary as JSON. Exits non-zero when any job failed, so a cron
entry or CI step can alert on it. Files that failed stay in the folder and
are picked up again by the next run.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.load,
		RunE:              c.run,
	}
	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "config.json", "optional json config file")
	root.Flags().StringVar(&c.folder, "folder", "", "watch folder override")
	root.Flags().StringVar(&c.namespace, "namespace", "", "storage namespace override")

	root.AddCommand(c.cacheCommand(), c.catalogCommand())
	return root
}

func (c *cli) load(cmd *cobra.Command, _ []string) error {
	c.cfg = config.NewConfig()
	if err := c.cfg.Read(c.configFile); err != nil {
		return err
	}
	if c.folder != "" {
		c.cfg.Source.WatchFolder = c.folder
	}
	if c.namespace != "" {
		c.cfg.Source.Namespace = c.namespace
	}

	logging.Init(logging.Config{Level: c.cfg.Log.Level, Format: c.cfg.Log.Format, Output: cmd.ErrOrStderr()})
	return sentry.Init(sentry.ClientOptions{Dsn: c.cfg.Sentry.SentryDSN, Environment: c.cfg.Sentry.Environment})
}

func (c *cli) run(cmd *cobra.Command, _ []string) error {
	p, err := app.Build(cmd.Context(), c.cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	summary, err := p.Gateway.ProcessFolder(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return errJobsFailed
	}
	return nil
}

func (c *cli) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the metadata record id cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Drop every cached record id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := app.Build(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			if p.RecordCache == nil {
				return errors.New("record id cache is not enabled (needs REDIS_ADDR and a metadata driver)")
			}
			if err := p.RecordCache.Flush(cmd.Context()); err != nil {
				return err
			}
			log.Info().Msg("record id cache flushed")
			return nil
		},
	})
	return cmd
}

func (c *cli) catalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and seed the postgres catalog used as metadata store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <key> <title>",
		Short: "Create a catalog item so ingestion can link an image to it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.catalog(cmd.Context())
			if err != nil {
				return err
			}
			defer p.Close()

			id, err := p.Catalog.CreateItem(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}, &cobra.Command{
		Use:   "show <key>",
		Short: "Print the image url linked to a catalog item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.catalog(cmd.Context())
			if err != nil {
				return err
			}
			defer p.Close()

			url, err := p.Catalog.ImageURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	})
	return cmd
}

func (c *cli) catalog(ctx context.Context) (*app.Pipeline, error) {
	if c.cfg.Metadata.Driver != config.MetadataPostgres {
		return nil, fmt.Errorf("catalog commands need METADATA_DRIVER=%s", config.MetadataPostgres)
	}
	return app.Build(ctx, c.cfg)
}
