package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Upload     UploadConfig     `json:"upload"`
	Log        LogConfig        `json:"log"`
	Source     SourceConfig     `json:"source"`
	Webhook    WebhookConfig    `json:"webhook"`
	AssetStore AssetStoreConfig `json:"asset_store"`
	Metadata   MetadataConfig   `json:"metadata"`
	Database   Database         `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Encoding   EncodingConfig   `json:"encoding"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Sentry     SentryConfig     `json:"sentry"`
}

type ServerConfig struct {
	Port         int `json:"port" env:"PORT" env-default:"8080"`
	ReadTimeout  int `json:"read_timeout" env:"SERVER_READ_TIMEOUT_SECONDS" env-default:"15"`
	WriteTimeout int `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT_SECONDS" env-default:"0"`
	// requests per minute per IP on /ingest, 0 disables
	IngestRateLimit int `json:"ingest_rate_limit" env:"INGEST_RATE_LIMIT" env-default:"30"`
}

type UploadConfig struct {
	MaxRequestBodyMB     int64 `json:"max_request_body" env:"UPLOAD_MAX_REQUEST_BODY_MB" env-default:"60"`
	MaxMultipartMemoryMB int64 `json:"max_multipart_memory" env:"UPLOAD_MAX_MULTIPART_MEMORY_MB" env-default:"32"`
}

type LogConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `json:"format" env:"LOG_FORMAT" env-default:"json"`
}

const (
	SourceDropbox = "dropbox"
	SourceLocal   = "local"
)

type SourceConfig struct {
	Driver       string `json:"driver" env:"SOURCE_DRIVER" env-default:"dropbox"`
	AccessToken  string `json:"access_token" env:"SOURCE_ACCESS_TOKEN"`
	RefreshToken string `json:"refresh_token" env:"SOURCE_REFRESH_TOKEN"`
	AppKey       string `json:"app_key" env:"SOURCE_APP_KEY"`
	AppSecret    string `json:"app_secret" env:"SOURCE_APP_SECRET"`
	WatchFolder  string `json:"watch_folder" env:"SOURCE_WATCH_FOLDER" env-default:"/website-photos"`
	// Namespace is the storage category for files discovered in WatchFolder.
	Namespace string `json:"namespace" env:"SOURCE_NAMESPACE" env-default:"gallery"`
	// LocalRoot is the mounted sync folder when Driver is "local".
	LocalRoot string `json:"local_root" env:"SOURCE_LOCAL_ROOT"`
	// KeyPrefixes are stripped from file names when deriving asset keys.
	KeyPrefixes    []string `json:"key_prefixes" env:"SOURCE_KEY_PREFIXES" env-separator:","`
	APIBaseURL     string   `json:"api_base_url" env:"SOURCE_API_BASE_URL"`
	ContentBaseURL string   `json:"content_base_url" env:"SOURCE_CONTENT_BASE_URL"`
}

type WebhookConfig struct {
	Secret          string `json:"secret" env:"SOURCE_WEBHOOK_SECRET"`
	SignatureHeader string `json:"signature_header" env:"WEBHOOK_SIGNATURE_HEADER" env-default:"X-Signature"`
	MaxBodyKB       int64  `json:"max_body_kb" env:"WEBHOOK_MAX_BODY_KB" env-default:"1024"`
}

const (
	StoreSupabase = "supabase"
	StoreR2       = "r2"
)

type AssetStoreConfig struct {
	Driver       string   `json:"driver" env:"ASSET_STORE_DRIVER" env-default:"supabase"`
	URL          string   `json:"url" env:"ASSET_STORE_URL"`
	Key          string   `json:"key" env:"ASSET_STORE_KEY"`
	Bucket       string   `json:"bucket" env:"ASSET_STORE_BUCKET" env-default:"assets"`
	CacheControl string   `json:"cache_control" env:"ASSET_STORE_CACHE_CONTROL" env-default:"public, max-age=31536000"`
	R2           R2Config `json:"r2"`
}

type R2Config struct {
	AccountID     string `json:"account_id" env:"R2_ACCOUNT_ID"`
	BucketName    string `json:"bucket_name" env:"R2_BUCKET_NAME"`
	AccessKeyID   string `json:"access_key_id" env:"R2_ACCESS_KEY_ID"`
	SecretKey     string `json:"secret_key" env:"R2_SECRET_KEY"`
	Endpoint      string `json:"endpoint" env:"R2_ENDPOINT"`
	PublicBaseURL string `json:"public_base_url" env:"R2_PUBLIC_BASE_URL"`
}

const (
	MetadataAirtable = "airtable"
	MetadataPostgres = "postgres"
	MetadataNone     = "none"
)

type MetadataConfig struct {
	Driver         string `json:"driver" env:"METADATA_DRIVER" env-default:"airtable"`
	APIKey         string `json:"api_key" env:"METADATA_API_KEY"`
	BaseID         string `json:"base_id" env:"METADATA_BASE_ID"`
	Table          string `json:"table" env:"METADATA_TABLE" env-default:"Products"`
	KeyField       string `json:"key_field" env:"METADATA_KEY_FIELD" env-default:"Slug"`
	ReferenceField string `json:"reference_field" env:"METADATA_REFERENCE_FIELD" env-default:"Image URL"`
	// AsAttachment writes the reference as an attachment cell instead of a URL string.
	AsAttachment bool   `json:"as_attachment" env:"METADATA_AS_ATTACHMENT"`
	APIBaseURL   string `json:"api_base_url" env:"METADATA_API_BASE_URL"`
	// CacheTTL caches record ids in redis, seconds, 0 disables
	CacheTTL int `json:"cache_ttl" env:"METADATA_CACHE_TTL_SECONDS" env-default:"600"`
}

type Database struct {
	DSN     string `json:"dsn" env:"DATABASE_DSN"`
	Migrate bool   `json:"migrate" env:"DATABASE_MIGRATE" env-default:"true"`
}

type RedisConfig struct {
	Password            string      `json:"password" env:"REDIS_PASSWORD"`
	DatabaseID          int         `json:"database_id" env:"REDIS_DB"`
	HealthCheckInterval int         `json:"health_check_interval" env:"REDIS_HEALTH_CHECK_SECONDS" env-default:"30"`
	DialTimeout         int         `json:"dial_timeout" env:"REDIS_DIAL_TIMEOUT_SECONDS" env-default:"5"`
	ReadTimeout         int         `json:"read_timeout" env:"REDIS_READ_TIMEOUT_SECONDS" env-default:"3"`
	WriteTimeout        int         `json:"write_timeout" env:"REDIS_WRITE_TIMEOUT_SECONDS" env-default:"3"`
	Addr                string      `json:"addr" env:"REDIS_ADDR"`
	Nodes               []RedisNode `json:"nodes"`
	// ClaimTTL bounds how long a source path stays claimed by one job, seconds
	ClaimTTL int `json:"claim_ttl" env:"REDIS_CLAIM_TTL_SECONDS" env-default:"900"`
}

type RedisNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

// Enabled reports whether any redis endpoint is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" || len(c.Nodes) > 0 }

type Budget struct {
	MaxKB        int `json:"max_kb"`
	MaxDimension int `json:"max_dimension"`
}

const (
	HeroNone   = "none"
	HeroFirst  = "first"
	HeroPrefix = "prefix"
)

type EncodingConfig struct {
	MaxKB            int    `json:"max_kb" env:"ASSET_MAX_KB" env-default:"500"`
	MaxDimension     int    `json:"max_dimension" env:"ASSET_MAX_DIMENSION" env-default:"1920"`
	HeroMaxKB        int    `json:"hero_max_kb" env:"HERO_MAX_KB" env-default:"300"`
	HeroMaxDimension int    `json:"hero_max_dimension" env:"HERO_MAX_DIMENSION" env-default:"1920"`
	HeroPolicy       string `json:"hero_policy" env:"HERO_POLICY" env-default:"none"`
	HeroPrefix       string `json:"hero_prefix" env:"HERO_PREFIX" env-default:"hero"`
	// Categories overrides the default budget per storage namespace.
	Categories map[string]Budget `json:"categories"`
}

type PipelineConfig struct {
	Concurrency   int    `json:"concurrency" env:"INGEST_CONCURRENCY" env-default:"4"`
	TempDir       string `json:"temp_dir" env:"INGEST_TEMP_DIR"`
	MaxSourceMB   int64  `json:"max_source_mb" env:"INGEST_MAX_SOURCE_MB" env-default:"50"`
	FetchTimeout  int    `json:"fetch_timeout" env:"FETCH_TIMEOUT_SECONDS" env-default:"60"`
	UploadTimeout int    `json:"upload_timeout" env:"UPLOAD_TIMEOUT_SECONDS" env-default:"60"`
	LinkTimeout   int    `json:"link_timeout" env:"METADATA_TIMEOUT_SECONDS" env-default:"15"`
	DeleteTimeout int    `json:"delete_timeout" env:"DELETE_TIMEOUT_SECONDS" env-default:"15"`
	ListTimeout   int    `json:"list_timeout" env:"LIST_TIMEOUT_SECONDS" env-default:"30"`
}

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn" env:"SENTRY_DSN"`
	Environment string `json:"environment" env:"SENTRY_ENVIRONMENT" env-default:"development"`
}

// Seconds converts the integer second values used across the config tree.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }
