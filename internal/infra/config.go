package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	LogLevel           string
	Port               string
	BaseURL            string
	APIKey             string
	PollInterval       time.Duration
	PollMaxAttempts    int
	RequestTimeout     time.Duration
	MaxUploadDimension int
	StoragePath        string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
	MinIO              MinIOConfig

	// Routes holds per-kind route overrides keyed by kind name ("try-on").
	Routes map[string]RouteOverride
}

// RouteOverride replaces route templates of one job kind. Empty fields keep
// the built-in template and RouteDisabled turns a fallback off.
type RouteOverride struct {
	Submit         string
	Status         string
	StatusFallback string
	Result         string
	ResultFallback string
}

// RouteDisabled is the override value that removes a fallback route.
const RouteDisabled = "-"

const (
	routeEnvPrefix = "IMAGEJOB_"
	routeEnvSuffix = "_ROUTE"
)

// MinIOConfig points at an optional S3 compatible bucket that mirrors the
// local result store. An empty endpoint disables the mirror.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	BasePath        string
}

// Enabled reports whether a mirror bucket is configured.
func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != ""
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// Optional .env files are read first; variables already set in the environment win.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "production"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		Port:               getEnv("PORT", "8080"),
		BaseURL:            strings.TrimRight(os.Getenv("IMAGEJOB_BASE_URL"), "/"),
		APIKey:             strings.TrimSpace(os.Getenv("IMAGEJOB_API_KEY")),
		PollInterval:       time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 3000)),
		PollMaxAttempts:    getEnvInt("POLL_MAX_ATTEMPTS", 60),
		RequestTimeout:     time.Second * time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 60)),
		MaxUploadDimension: getEnvInt("MAX_UPLOAD_DIMENSION", 1024),
		StoragePath:        getEnv("STORAGE_PATH", "./results"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		// Streams stay open for the whole polling window.
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		MinIO: MinIOConfig{
			Endpoint:        strings.TrimSpace(os.Getenv("MINIO_ENDPOINT")),
			AccessKeyID:     os.Getenv("MINIO_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("MINIO_SECRET_ACCESS_KEY"),
			UseSSL:          getEnv("MINIO_USE_SSL", "false") == "true",
			Bucket:          getEnv("MINIO_BUCKET", "imagejob-results"),
			BasePath:        os.Getenv("MINIO_BASE_PATH"),
		},
	}

	routes, err := loadRoutes(os.Environ())
	if err != nil {
		return nil, err
	}
	cfg.Routes = routes

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("IMAGEJOB_BASE_URL is required")
	}
	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("IMAGEJOB_BASE_URL must be an absolute url: %q", cfg.BaseURL)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if cfg.PollMaxAttempts <= 0 {
		return nil, fmt.Errorf("POLL_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

// PollBudget is the longest a job may be polled before it times out.
func (c *Config) PollBudget() time.Duration {
	return time.Duration(c.PollMaxAttempts) * c.PollInterval
}

// loadRoutes collects IMAGEJOB_<KIND>_<ROLE>_ROUTE variables, e.g.
// IMAGEJOB_TRY_ON_STATUS_FALLBACK_ROUTE=/v2/status/{task_id}.
func loadRoutes(environ []string) (map[string]RouteOverride, error) {
	roles := []struct {
		suffix string
		set    func(*RouteOverride, string)
		needID bool
	}{
		// Longer suffixes first so STATUS_FALLBACK is not read as STATUS.
		{"_STATUS_FALLBACK", func(o *RouteOverride, v string) { o.StatusFallback = v }, true},
		{"_RESULT_FALLBACK", func(o *RouteOverride, v string) { o.ResultFallback = v }, true},
		{"_SUBMIT", func(o *RouteOverride, v string) { o.Submit = v }, false},
		{"_STATUS", func(o *RouteOverride, v string) { o.Status = v }, true},
		{"_RESULT", func(o *RouteOverride, v string) { o.Result = v }, true},
	}
	routes := map[string]RouteOverride{}
	for _, kv := range environ {
		key, value, _ := strings.Cut(kv, "=")
		value = strings.TrimSpace(value)
		if value == "" || !strings.HasPrefix(key, routeEnvPrefix) || !strings.HasSuffix(key, routeEnvSuffix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, routeEnvPrefix), routeEnvSuffix)
		for _, role := range roles {
			kindPart, ok := strings.CutSuffix(name, role.suffix)
			if !ok || kindPart == "" {
				continue
			}
			if role.needID && value != RouteDisabled && !strings.Contains(value, "{task_id}") {
				return nil, fmt.Errorf("%s must contain {task_id}: %q", key, value)
			}
			if value == RouteDisabled && !strings.HasSuffix(role.suffix, "_FALLBACK") {
				return nil, fmt.Errorf("%s cannot be disabled", key)
			}
			kind := strings.ToLower(strings.ReplaceAll(kindPart, "_", "-"))
			o := routes[kind]
			role.set(&o, value)
			routes[kind] = o
			break
		}
	}
	return routes, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
