package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the service reads at startup.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Model    ModelConfig
	Minio    MinioConfig
	LogLevel string
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	DSN string
}

type AuthConfig struct {
	JWTSecret      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// RedisConfig configures the prediction cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ModelConfig selects the classifier backend. Addr wins over Path when set.
type ModelConfig struct {
	Path   string
	Addr   string
	Method string
}

// MinioConfig configures blob storage for saved images. An empty Endpoint disables it.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether the prediction cache should be used.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// Enabled reports whether saved images should be uploaded to object storage.
func (c MinioConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// Load reads configuration from the environment, after loading a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	duration := func(key string, fallback time.Duration) time.Duration {
		d, err := getDurationEnv(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	integer := func(key string, fallback int) int {
		v, err := getIntEnv(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	boolean := func(key string, fallback bool) bool {
		v, err := getBoolEnv(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:     duration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    duration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			DSN: getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=truefaces port=5432 sslmode=disable"),
		},
		Auth: AuthConfig{
			JWTSecret:      strings.TrimSpace(os.Getenv("JWT_SECRET")),
			JWTAudience:    strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
			AccessTokenTTL: duration("ACCESS_TOKEN_TTL", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       integer("REDIS_DB", 0),
		},
		Model: ModelConfig{
			Path:   getEnv("MODEL_PATH", "model.json"),
			Addr:   os.Getenv("MODEL_ADDR"),
			Method: getEnv("MODEL_METHOD", "/truefaces.classifier.v1.FaceClassifier/Predict"),
		},
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "images"),
			UseSSL:    boolean("MINIO_USE_SSL", false),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if cfg.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

// getDurationEnv accepts Go durations ("90s", "30m") and bare integers as seconds.
func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
