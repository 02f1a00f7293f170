package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SOURCE_ACCESS_TOKEN", "sl.token")
	t.Setenv("ASSET_STORE_URL", "https://project.supabase.co")
	t.Setenv("ASSET_STORE_KEY", "service-key")
	t.Setenv("METADATA_API_KEY", "pat123")
	t.Setenv("METADATA_BASE_ID", "appBase")
}

func TestReadEnvDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg := NewConfig()
	require.NoError(t, cfg.Read(""))

	assert.Equal(t, 500, cfg.Encoding.MaxKB)
	assert.Equal(t, 1920, cfg.Encoding.MaxDimension)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, "X-Signature", cfg.Webhook.SignatureHeader)
	assert.Equal(t, SourceDropbox, cfg.Source.Driver)
	assert.Equal(t, StoreSupabase, cfg.AssetStore.Driver)
	assert.Equal(t, "sl.token", cfg.Source.AccessToken)
}

func TestReadEnvOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ASSET_MAX_KB", "250")
	t.Setenv("ASSET_MAX_DIMENSION", "1600")
	t.Setenv("SOURCE_WEBHOOK_SECRET", "shh")

	cfg := NewConfig()
	require.NoError(t, cfg.Read(""))

	assert.Equal(t, 250, cfg.Encoding.MaxKB)
	assert.Equal(t, 1600, cfg.Encoding.MaxDimension)
	assert.Equal(t, "shh", cfg.Webhook.Secret)
}

func TestReadJSONFileWithEnvOverlay(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("INGEST_CONCURRENCY", "8")

	file := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(file, []byte(`{
		"source": {"namespace": "catering"},
		"encoding": {"categories": {"hero": {"max_kb": 200, "max_dimension": 1600}}}
	}`), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.Read(file))

	assert.Equal(t, "catering", cfg.Source.Namespace)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.Equal(t, Budget{MaxKB: 200, MaxDimension: 1600}, cfg.Encoding.BudgetFor("hero"))
	assert.Equal(t, Budget{MaxKB: 500, MaxDimension: 1920}, cfg.Encoding.BudgetFor("catering"))
}

func TestValidateRejectsMissingCredentials(t *testing.T) {
	t.Setenv("SOURCE_DRIVER", "local")
	t.Setenv("ASSET_STORE_DRIVER", "r2")
	t.Setenv("METADATA_DRIVER", "postgres")

	cfg := NewConfig()
	err := cfg.Read("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOURCE_LOCAL_ROOT")
	assert.Contains(t, err.Error(), "r2 bucket")
	assert.Contains(t, err.Error(), "DATABASE_DSN")
}

func TestValidateRejectsUnknownHeroPolicy(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("HERO_POLICY", "random")

	err := NewConfig().Read("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hero policy")
}
