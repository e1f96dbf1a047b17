package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Store     StoreConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
	// RuntimeConfigPath points at the hot-reloadable decisioning YAML.
	RuntimeConfigPath string
}

type ServerConfig struct {
	Port string
	// RateLimit is the sustained auction requests per second per instance.
	RateLimit float64
	RateBurst int
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey string
}

type RedisConfig struct {
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

// StoreConfig selects where hot decisioning state lives.
type StoreConfig struct {
	Backend       string // memory | redis
	CheckpointDir string // badger directory used when the database is disabled
}

type TelemetryConfig struct {
	OTLPEndpoint string
	SampleRatio  float64
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, errors.New("invalid redis database")
	}
	rate, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "5000"), 64)
	if err != nil {
		return nil, errors.New("invalid RATE_LIMIT_RPS")
	}
	burst, err := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "500"))
	if err != nil {
		return nil, errors.New("invalid RATE_LIMIT_BURST")
	}
	ratio, err := strconv.ParseFloat(getEnv("OTEL_SAMPLE_RATIO", "0.05"), 64)
	if err != nil {
		return nil, errors.New("invalid OTEL_SAMPLE_RATIO")
	}

	cfg := &Config{
		App: AppConfig{
			Name:              getEnv("APP_NAME", "ad-decisioning"),
			Version:           getEnv("APP_VERSION", "1.0.0"),
			Environment:       getEnv("APP_ENV", "development"),
			RuntimeConfigPath: getEnv("DECISIONING_CONFIG", "config/decisioning.yaml"),
		},
		Server: ServerConfig{
			Port:      getEnv("PORT", "8080"),
			RateLimit: rate,
			RateBurst: burst,
		},
		Database: DatabaseConfig{
			Enabled:  getEnv("DB_ENABLED", "true") == "true",
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "ad_decisioning"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", ""),
		},
		Redis: RedisConfig{
			RedisHost:     getEnv("REDIS_HOST", "localhost"),
			RedisPort:     getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
		},
		Store: StoreConfig{
			Backend:       getEnv("STATE_BACKEND", BackendMemory),
			CheckpointDir: getEnv("CHECKPOINT_DIR", "data/checkpoints"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			SampleRatio:  ratio,
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, errors.New("missing jwt secret")
	}

	if cfg.Database.Enabled && cfg.Database.Password == "" {
		return nil, errors.New("missing database password")
	}

	if cfg.Store.Backend != BackendMemory && cfg.Store.Backend != BackendRedis {
		return nil, errors.New("STATE_BACKEND must be memory or redis")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultVal
}
