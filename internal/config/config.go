// Package config handles loading and validation of storefront configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"golang.org/x/mod/semver"
)

const (
	DefaultAPIBaseURL     = "https://pionner-v2.vercel.app/api"
	DefaultAPIVersion     = "v2.0.0"
	DefaultRequestTimeout = 10 * time.Second
	DefaultLoginPath      = "/login"
)

// Config holds all storefront configuration.
// Environment determines whether secrets load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// Backend API
	APIBaseURL     string
	APIVersion     string // semver; the major version selects the path segment
	RequestTimeout time.Duration
	TLSFingerprint bool // present a browser TLS fingerprint to the API edge

	// Durable credential storage. Redis is used when RedisAddr is set,
	// otherwise a JSON file under DataDir.
	DataDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Payments
	StripePublishableKey string
	StripeBaseURL        string
	ReturnURL            string

	LoginPath string

	// GCP settings (required in production)
	GCPProject string
	SecretName string
}

// Secrets is the JSON document held in Secret Manager.
type Secrets struct {
	StripePublishableKey string `json:"stripe_publishable_key"`
	RedisPassword        string `json:"redis_password"`
}

// fileConfig matches the CONFIG_FILE JSON structure.
type fileConfig struct {
	Port                 string `json:"port"`
	Environment          string `json:"environment"`
	LogLevel             string `json:"log_level"`
	APIBaseURL           string `json:"api_base_url"`
	APIVersion           string `json:"api_version"`
	RequestTimeout       string `json:"request_timeout"`
	TLSFingerprint       bool   `json:"tls_fingerprint"`
	DataDir              string `json:"data_dir"`
	RedisAddr            string `json:"redis_addr"`
	RedisPassword        string `json:"redis_password"`
	RedisDB              int    `json:"redis_db"`
	StripePublishableKey string `json:"stripe_publishable_key"`
	StripeBaseURL        string `json:"stripe_base_url"`
	ReturnURL            string `json:"return_url"`
	LoginPath            string `json:"login_path"`
}

// Load reads configuration from .env, file, environment, or Secret Manager.
// Priority: .env (if present) → CONFIG_FILE (if set) → ENV vars → Secret Manager (production).
// Validates all fields and returns an error if any are malformed.
func Load(ctx context.Context) (*Config, error) {
	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg, err := loadFromEnv()
	if err != nil {
		return nil, err
	}

	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading secrets: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	timeout, err := parseTimeout(fc.RequestTimeout)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                 withDefault(fc.Port, "8080"),
		Environment:          withDefault(fc.Environment, "development"),
		LogLevel:             withDefault(fc.LogLevel, "info"),
		APIBaseURL:           withDefault(fc.APIBaseURL, DefaultAPIBaseURL),
		APIVersion:           withDefault(fc.APIVersion, DefaultAPIVersion),
		RequestTimeout:       timeout,
		TLSFingerprint:       fc.TLSFingerprint,
		DataDir:              withDefault(fc.DataDir, defaultDataDir()),
		RedisAddr:            fc.RedisAddr,
		RedisPassword:        fc.RedisPassword,
		RedisDB:              fc.RedisDB,
		StripePublishableKey: fc.StripePublishableKey,
		StripeBaseURL:        fc.StripeBaseURL,
		ReturnURL:            fc.ReturnURL,
		LoginPath:            withDefault(fc.LoginPath, DefaultLoginPath),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv reads configuration from individual environment variables.
func loadFromEnv() (*Config, error) {
	timeout, err := parseTimeout(os.Getenv("REQUEST_TIMEOUT"))
	if err != nil {
		return nil, err
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if redisDB, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parsing REDIS_DB: %w", err)
		}
	}

	fingerprint := false
	if v := os.Getenv("TLS_FINGERPRINT"); v != "" {
		if fingerprint, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("parsing TLS_FINGERPRINT: %w", err)
		}
	}

	return &Config{
		Port:                 envOrDefault("PORT", "8080"),
		Environment:          envOrDefault("ENVIRONMENT", "development"),
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		APIBaseURL:           envOrDefault("API_BASE_URL", DefaultAPIBaseURL),
		APIVersion:           envOrDefault("API_VERSION", DefaultAPIVersion),
		RequestTimeout:       timeout,
		TLSFingerprint:       fingerprint,
		DataDir:              envOrDefault("DATA_DIR", defaultDataDir()),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              redisDB,
		StripePublishableKey: os.Getenv("STRIPE_PUBLISHABLE_KEY"),
		StripeBaseURL:        os.Getenv("STRIPE_BASE_URL"),
		ReturnURL:            os.Getenv("RETURN_URL"),
		LoginPath:            envOrDefault("LOGIN_PATH", DefaultLoginPath),
		GCPProject:           os.Getenv("GCP_PROJECT"),
		SecretName:           envOrDefault("SECRET_NAME", "storefront"),
	}, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches secrets from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_name}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	var secrets Secrets
	if err := json.Unmarshal(result.Payload.Data, &secrets); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	c.applySecrets(secrets)
	return nil
}

// applySecrets overlays non-empty secret values.
func (c *Config) applySecrets(s Secrets) {
	c.StripePublishableKey = withDefault(s.StripePublishableKey, c.StripePublishableKey)
	c.RedisPassword = withDefault(s.RedisPassword, c.RedisPassword)
}

// validate checks that configuration values are well-formed.
func (c *Config) validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid api_base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api_base_url %q: must be an absolute http(s) URL", c.APIBaseURL)
	}
	if !semver.IsValid(c.APIVersion) {
		return fmt.Errorf("invalid api_version %q: must be semver like v2.0.0", c.APIVersion)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("login_path must start with /")
	}
	return nil
}

// APIURL returns the versioned backend base URL, e.g.
// https://host/api + v2.1.0 → https://host/api/v2.
func (c *Config) APIURL() string {
	return strings.TrimSuffix(c.APIBaseURL, "/") + "/" + semver.Major(c.APIVersion)
}

// TokenFile is the durable credential file used when redis is not configured.
func (c *Config) TokenFile() string {
	return filepath.Join(c.DataDir, "credentials.json")
}

// parseTimeout accepts a Go duration; empty means the default.
func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return DefaultRequestTimeout, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing request timeout: %w", err)
	}
	return d, nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "storefront")
	}
	return ".storefront"
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
