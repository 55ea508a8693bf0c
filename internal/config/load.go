package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables with the IMAGINE_
// prefix (nested keys joined by underscores, e.g. IMAGINE_SERVER_PORT) and
// validates the result. Environment variables take precedence over defaults.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("IMAGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not surface env-only keys through Unmarshal unless
	// the key is known, so bind every key we care about explicitly.
	for _, key := range []string{
		"server.port", "server.log_level", "server.public_base_url",
		"database.url",
		"redis.addr", "redis.db",
		"auth.jwt_secret",
		"lifecycle.poll_interval", "lifecycle.timeout", "lifecycle.max_retries",
		"lifecycle.worker_count", "lifecycle.queue_size",
		"providers.request_timeout", "providers.upload_url",
		"providers.midjourney.base_url", "providers.midjourney.token",
		"providers.imagen.base_url", "providers.imagen.api_key",
		"providers.replicate.base_url", "providers.replicate.token",
		"providers.dalle.base_url", "providers.dalle.api_key", "providers.dalle.model",
		"enrichment.gemini_api_key", "enrichment.model_name",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.db", 0)
	v.SetDefault("lifecycle.poll_interval", "10s")
	v.SetDefault("lifecycle.timeout", "10m")
	v.SetDefault("lifecycle.max_retries", 5)
	v.SetDefault("lifecycle.worker_count", 4)
	v.SetDefault("lifecycle.queue_size", 100)
	v.SetDefault("providers.request_timeout", "30s")
	v.SetDefault("providers.dalle.model", "dall-e-3")
	v.SetDefault("enrichment.model_name", "gemini-2.0-flash")
}
