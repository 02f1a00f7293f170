package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Create new config instance
func NewConfig() *Config {
	return &Config{}
}

// Read loads the optional json config file and overlays environment variables.
// A missing file is not an error: the service is usually configured purely by env.
func (c *Config) Read(file string) error {
	// .env is a convenience for local runs
	_ = godotenv.Load()

	if file != "" {
		if _, err := os.Stat(file); err == nil {
			if err := cleanenv.ReadConfig(file, c); err != nil {
				return fmt.Errorf("read config %s: %w", file, err)
			}
			return c.Validate()
		}
	}

	if err := cleanenv.ReadEnv(c); err != nil {
		return fmt.Errorf("read env config: %w", err)
	}
	return c.Validate()
}

// Validate rejects driver and credential combinations that cannot work.
func (c *Config) Validate() error {
	var errs []error

	switch c.Source.Driver {
	case SourceDropbox:
		if c.Source.AccessToken == "" && c.Source.RefreshToken == "" {
			errs = append(errs, errors.New("source: SOURCE_ACCESS_TOKEN or SOURCE_REFRESH_TOKEN is required for dropbox"))
		}
		if c.Source.RefreshToken != "" && (c.Source.AppKey == "" || c.Source.AppSecret == "") {
			errs = append(errs, errors.New("source: refresh token requires SOURCE_APP_KEY and SOURCE_APP_SECRET"))
		}
	case SourceLocal:
		if c.Source.LocalRoot == "" {
			errs = append(errs, errors.New("source: SOURCE_LOCAL_ROOT is required for local driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("source: unknown driver %q", c.Source.Driver))
	}

	switch c.AssetStore.Driver {
	case StoreSupabase:
		if c.AssetStore.URL == "" || c.AssetStore.Key == "" {
			errs = append(errs, errors.New("asset store: ASSET_STORE_URL and ASSET_STORE_KEY are required for supabase"))
		}
	case StoreR2:
		r2 := c.AssetStore.R2
		if r2.BucketName == "" || r2.AccessKeyID == "" || r2.SecretKey == "" {
			errs = append(errs, errors.New("asset store: r2 bucket and credentials are required"))
		}
		if r2.AccountID == "" && r2.Endpoint == "" {
			errs = append(errs, errors.New("asset store: R2_ACCOUNT_ID or R2_ENDPOINT is required"))
		}
		if r2.PublicBaseURL == "" {
			errs = append(errs, errors.New("asset store: R2_PUBLIC_BASE_URL is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("asset store: unknown driver %q", c.AssetStore.Driver))
	}

	switch c.Metadata.Driver {
	case MetadataAirtable:
		if c.Metadata.APIKey == "" || c.Metadata.BaseID == "" {
			errs = append(errs, errors.New("metadata: METADATA_API_KEY and METADATA_BASE_ID are required for airtable"))
		}
	case MetadataPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("metadata: DATABASE_DSN is required for postgres"))
		}
	case MetadataNone:
	default:
		errs = append(errs, fmt.Errorf("metadata: unknown driver %q", c.Metadata.Driver))
	}

	switch c.Encoding.HeroPolicy {
	case HeroNone, HeroFirst, HeroPrefix:
	default:
		errs = append(errs, fmt.Errorf("encoding: unknown hero policy %q", c.Encoding.HeroPolicy))
	}
	if c.Encoding.MaxKB <= 0 || c.Encoding.MaxDimension <= 0 {
		errs = append(errs, errors.New("encoding: ASSET_MAX_KB and ASSET_MAX_DIMENSION must be positive"))
	}
	if c.Pipeline.Concurrency <= 0 {
		errs = append(errs, errors.New("pipeline: INGEST_CONCURRENCY must be positive"))
	}

	return errors.Join(errs...)
}

// BudgetFor returns the size budget for a storage namespace, falling back to the default budget.
func (e EncodingConfig) BudgetFor(category string) Budget {
	if b, ok := e.Categories[strings.ToLower(category)]; ok && b.MaxKB > 0 {
		if b.MaxDimension <= 0 {
			b.MaxDimension = e.MaxDimension
		}
		return b
	}
	return Budget{MaxKB: e.MaxKB, MaxDimension: e.MaxDimension}
}

// HeroBudget is the "hero" category budget when configured, else HERO_MAX_KB and HERO_MAX_DIMENSION.
func (e EncodingConfig) HeroBudget() Budget {
	if b, ok := e.Categories["hero"]; ok && b.MaxKB > 0 {
		return e.BudgetFor("hero")
	}
	return Budget{MaxKB: e.HeroMaxKB, MaxDimension: e.HeroMaxDimension}
}
