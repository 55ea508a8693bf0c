package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	Redis      RedisConfig      `mapstructure:"redis"      validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth"       validate:"required"`
	Lifecycle  LifecycleConfig  `mapstructure:"lifecycle"  validate:"required"`
	Providers  ProvidersConfig  `mapstructure:"providers"  validate:"required"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// PublicBaseURL is the externally reachable base URL used to build
	// per-task webhook callback URLs handed to providers.
	PublicBaseURL string `mapstructure:"public_base_url" validate:"required,url"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// RedisConfig contains the connection settings for the poll scheduler.
type RedisConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
	DB   int    `mapstructure:"db"   validate:"gte=0"`
}

// AuthConfig contains all authentication settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// LifecycleConfig tunes the task lifecycle state machine.
type LifecycleConfig struct {
	// PollInterval is the fixed delay between poll ticks for one task.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required"`

	// Timeout is the wall-clock window a task gets to reach a terminal
	// status before it is force-failed.
	Timeout time.Duration `mapstructure:"timeout" validate:"required"`

	// MaxRetries bounds the retry-on-error policy.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`

	// WorkerCount and QueueSize size the background job runner.
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize   int `mapstructure:"queue_size"   validate:"required,gt=0"`
}

// ProvidersConfig groups the per-backend client settings.
type ProvidersConfig struct {
	// RequestTimeout bounds every HTTP call to a provider.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required"`

	Midjourney MidjourneyConfig `mapstructure:"midjourney"`
	Imagen     ImagenConfig     `mapstructure:"imagen"`
	Replicate  ReplicateConfig  `mapstructure:"replicate"`
	Dalle      DalleConfig      `mapstructure:"dalle"`

	// UploadURL is the asset storage endpoint results are uploaded to.
	UploadURL string `mapstructure:"upload_url" validate:"required,url"`
}

// MidjourneyConfig contains the task-API settings for the midjourney backend.
type MidjourneyConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	Token   string `mapstructure:"token"    validate:"required"`
}

// ImagenConfig contains the session-API settings for the imagen backend.
type ImagenConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key"  validate:"required"`
}

// ReplicateConfig contains the prediction-API settings shared by the
// replicate-backed engines.
type ReplicateConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	Token   string `mapstructure:"token"    validate:"required"`
}

// DalleConfig contains the OpenAI-compatible image-API settings for the
// dalle backend.
type DalleConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key"  validate:"required"`
	Model   string `mapstructure:"model"    validate:"required"`
}

// EnrichmentConfig contains the settings for the prompt translate/enhance
// collaborator. When the API key is empty prompts pass through untouched.
type EnrichmentConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name"`
}
