package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	LogLevel   string           `mapstructure:"log_level"`
	LogFormat  string           `mapstructure:"log_format"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	MongoDB    MongoDBConfig    `mapstructure:"mongodb"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	WebHooks   WebHooksConfig   `mapstructure:"webhooks"`
}

type SecurityConfig struct {
	APIKeyHeader string            `mapstructure:"apiKeyHeader"`
	APIKeys      map[string]string `mapstructure:"apiKeys"`
	// Admins lists client ids allowed to notify every user.
	Admins       []string          `mapstructure:"admins"`
	// Receivers maps a receiver name to the secret used to verify
	// incoming ms-signature headers.
	Receivers    map[string]string `mapstructure:"receivers"`
	RateLimit    RateLimitConfig   `mapstructure:"rateLimit"`
}

// RateLimitConfig sizes the per-client token bucket on the API.
type RateLimitConfig struct {
	Burst     float64 `mapstructure:"burst"`
	PerSecond float64 `mapstructure:"perSecond"`
}

type MonitoringConfig struct {
	PrometheusPort int    `mapstructure:"prometheusPort"`
	MetricsPath    string `mapstructure:"metricsPath"`
}

type StorageConfig struct {
	// Backend is "memory" or "mongodb".
	Backend string `mapstructure:"backend"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	Deliveries string `mapstructure:"deliveries"`
}

type RabbitMQConfig struct {
	URL       string `mapstructure:"url"`
	Exchange  string `mapstructure:"exchange"`
	QueueName string `mapstructure:"queueName"`
}

type DispatchConfig struct {
	// Mode is "inprocess" or "rabbitmq".
	Mode        string        `mapstructure:"mode"`
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queueSize"`
	MaxAttempts int           `mapstructure:"maxAttempts"`
	BaseDelay   time.Duration `mapstructure:"baseDelay"`
	MaxDelay    time.Duration `mapstructure:"maxDelay"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type WebHooksConfig struct {
	RequireHTTPS   bool              `mapstructure:"requireHTTPS"`
	VerifyAddress  bool              `mapstructure:"verifyAddress"`
	MaxPerUser     int               `mapstructure:"maxPerUser"`
	DailyNotifyCap int               `mapstructure:"dailyNotifyCap"`
	Actions        map[string]string `mapstructure:"actions"`
	PrivateFilters []string          `mapstructure:"privateFilters"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// Load reads ./config/config.yaml when present, then applies defaults and
// environment overrides.
func Load() (*Config, error) {
	return LoadFrom("./config")
}

func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("mongodb.database", "webhooks")
	v.SetDefault("mongodb.collection", "registrations")
	v.SetDefault("mongodb.deliveries", "deliveries")
	v.SetDefault("rabbitmq.exchange", "webhooks")
	v.SetDefault("rabbitmq.queueName", "webhook_work_items")
	v.SetDefault("monitoring.prometheusPort", 9090)
	v.SetDefault("monitoring.metricsPath", "/metrics")
	v.SetDefault("security.apiKeyHeader", "X-API-Key")
	v.SetDefault("security.rateLimit.burst", 10)
	v.SetDefault("security.rateLimit.perSecond", 1)
	v.SetDefault("dispatch.mode", "inprocess")
	v.SetDefault("dispatch.workers", 8)
	v.SetDefault("dispatch.queueSize", 256)
	v.SetDefault("dispatch.maxAttempts", 3)
	v.SetDefault("dispatch.baseDelay", "1m")
	v.SetDefault("dispatch.maxDelay", "10m")
	v.SetDefault("dispatch.timeout", "30s")
	v.SetDefault("webhooks.requireHTTPS", true)
	v.SetDefault("webhooks.verifyAddress", true)
	v.SetDefault("webhooks.maxPerUser", 50)
	v.SetDefault("webhooks.dailyNotifyCap", 10000)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if port := os.Getenv("APP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if promPort := os.Getenv("PROMETHEUS_PORT"); promPort != "" {
		if p, err := strconv.Atoi(promPort); err == nil {
			cfg.Monitoring.PrometheusPort = p
		}
	}

	if backend := os.Getenv("STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.MongoDB.URI = uri
	}
	if db := os.Getenv("MONGODB_DATABASE"); db != "" {
		cfg.MongoDB.Database = db
	}
	if col := os.Getenv("MONGODB_COLLECTION"); col != "" {
		cfg.MongoDB.Collection = col
	}

	// Support both CLOUDAMQP_URL and RABBITMQ_URI for backwards compatibility
	if cloudamqpURL := os.Getenv("CLOUDAMQP_URL"); cloudamqpURL != "" {
		cfg.RabbitMQ.URL = cloudamqpURL
	} else if rabbitURL := os.Getenv("RABBITMQ_URI"); rabbitURL != "" {
		cfg.RabbitMQ.URL = rabbitURL
	}
	if exchange := os.Getenv("RABBITMQ_EXCHANGE"); exchange != "" {
		cfg.RabbitMQ.Exchange = exchange
	}
	if queue := os.Getenv("RABBITMQ_QUEUE"); queue != "" {
		cfg.RabbitMQ.QueueName = queue
	}

	if mode := os.Getenv("DISPATCH_MODE"); mode != "" {
		cfg.Dispatch.Mode = mode
	}
	if workers := os.Getenv("DISPATCH_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Dispatch.Workers = n
		}
	}
	if attempts := os.Getenv("DISPATCH_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			cfg.Dispatch.MaxAttempts = n
		}
	}

	if https := os.Getenv("WEBHOOKS_REQUIRE_HTTPS"); https != "" {
		if b, err := strconv.ParseBool(https); err == nil {
			cfg.WebHooks.RequireHTTPS = b
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	if header := os.Getenv("API_KEY_HEADER"); header != "" {
		cfg.Security.APIKeyHeader = header
	}

	// Viper folds map keys, so client ids in apiKeys are lower case;
	// admins is a list and must be folded to match them.
	for i, admin := range cfg.Security.Admins {
		cfg.Security.Admins[i] = strings.ToLower(strings.TrimSpace(admin))
	}

	// Load API keys from environment
	for user, key := range loadAPIKeysFromEnv() {
		if cfg.Security.APIKeys == nil {
			cfg.Security.APIKeys = make(map[string]string)
		}
		cfg.Security.APIKeys[user] = key
	}

	return &cfg, nil
}

// loadAPIKeysFromEnv maps USER_<NAME>_API_KEY variables to user "name".
func loadAPIKeysFromEnv() map[string]string {
	apiKeys := make(map[string]string)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}

		envName := parts[0]
		envValue := parts[1]

		if strings.HasPrefix(envName, "USER_") && strings.HasSuffix(envName, "_API_KEY") {
			name := strings.TrimSuffix(strings.TrimPrefix(envName, "USER_"), "_API_KEY")
			if name == "" {
				continue
			}
			apiKeys[strings.ToLower(name)] = envValue
		}
	}

	return apiKeys
}
