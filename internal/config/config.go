// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Engine authentication modes.
const (
	AuthModePassword          = "password"
	AuthModeClientCredentials = "client_credentials"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Offers        OffersConfig        `yaml:"offers"`
	Overrides     OverridesConfig     `yaml:"overrides"`
	Resolver      ResolverConfig      `yaml:"resolver"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	HandlerTimeout   time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	ValidateRequests bool          `yaml:"validate_requests"`
	CORS             CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

// EngineConfig describes the remote journey engine.
type EngineConfig struct {
	BaseURL        string               `yaml:"base_url"`
	JourneyName    string               `yaml:"journey_name"`
	Locale         string               `yaml:"locale"`
	LocaleParam    string               `yaml:"locale_param"`
	Timeout        time.Duration        `yaml:"timeout"`
	Paths          EnginePaths          `yaml:"paths"`
	Auth           EngineAuthConfig     `yaml:"auth"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// EnginePaths are path templates relative to BaseURL. Placeholders:
// {journeyName}, {externalId}, {actionId}, {journeyStep}.
type EnginePaths struct {
	Metadata string `yaml:"metadata"`
	Start    string `yaml:"start"`
	Step     string `yaml:"step"`
	Next     string `yaml:"next"`
	Previous string `yaml:"previous"`
	Action   string `yaml:"action"`
	ViewItem string `yaml:"view_item"`
}

// EngineAuthConfig describes how engine tokens are obtained.
type EngineAuthConfig struct {
	Mode         string `yaml:"mode"`
	TokenURL     string `yaml:"token_url"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// ForwardInboundToken uses the caller's bearer token for engine calls
	// when one is presented.
	ForwardInboundToken bool `yaml:"forward_inbound_token"`
	// ReuseTokens caches acquired tokens until they expire.
	ReuseTokens bool          `yaml:"reuse_tokens"`
	DefaultTTL  time.Duration `yaml:"default_ttl"`
}

// OffersConfig describes the product-offer API.
type OffersConfig struct {
	BaseURL        string               `yaml:"base_url"`
	TokenURL       string               `yaml:"token_url"`
	ClientID       string               `yaml:"client_id"`
	ClientSecret   string               `yaml:"client_secret"`
	Scopes         []string             `yaml:"scopes"`
	Locale         string               `yaml:"locale"`
	LocaleParam    string               `yaml:"locale_param"`
	Timeout        time.Duration        `yaml:"timeout"`
	Paths          OfferPaths           `yaml:"paths"`
	DetailCache    CacheConfig          `yaml:"detail_cache"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`

	// DetailConcurrency bounds concurrent per-offer detail fetches.
	DetailConcurrency int `yaml:"detail_concurrency"`
}

// OfferPaths are path templates relative to the offer API base URL.
// Placeholder: {offerId}.
type OfferPaths struct {
	Search  string `yaml:"search"`
	Details string `yaml:"details"`
}

// CircuitBreakerConfig describes circuit breaker settings per upstream.
type CircuitBreakerConfig struct {
	FailureThreshold   int           `yaml:"failure_threshold"`
	SuccessThreshold   int           `yaml:"success_threshold"`
	Timeout            time.Duration `yaml:"timeout"`
	ErrorRateThreshold float64       `yaml:"error_rate_threshold"`
	ErrorRateWindow    time.Duration `yaml:"error_rate_window"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// OverridesConfig describes the step override document.
type OverridesConfig struct {
	File           string `yaml:"file"`
	ValidateSchema bool   `yaml:"validate_schema"`
}

// ResolverConfig tunes the post-navigation step-load retry.
type ResolverConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	Environment   string        `yaml:"environment"`
	LogLevel      string        `yaml:"log_level"`
	DebugTraces   *bool         `yaml:"debug_traces"`
	MaxLoggedBody int           `yaml:"max_logged_body"`
	Tracing       TracingConfig `yaml:"tracing"`
	Metrics       MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	// Insecure dials the OTLP collector without TLS.
	Insecure bool `yaml:"insecure"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			HandlerTimeout:   55 * time.Second,
			ShutdownTimeout:  30 * time.Second,
			ValidateRequests: true,
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Authorization", "Content-Type",
					"X-Correlation-Id"},
				MaxAge: 300,
			},
		},
		Engine: EngineConfig{
			Locale:      "en-GB",
			LocaleParam: "locale",
			Timeout:     30 * time.Second,
			Paths: EnginePaths{
				Metadata: "/api/digital-journey/{journeyName}/metadata",
				Start:    "/api/digital-journey/{journeyName}/start",
				Step:     "/api/digital-journey/instance/{externalId}/step",
				Next:     "/api/digital-journey/instance/{externalId}/next",
				Previous: "/api/digital-journey/instance/{externalId}/previous",
				Action:   "/api/digital-journey/instance/{externalId}/actions/{actionId}",
				ViewItem: "/api/digital-journey/instance/{externalId}/view-item/{journeyStep}",
			},
			Auth: EngineAuthConfig{
				Mode:                AuthModePassword,
				ForwardInboundToken: true,
				ReuseTokens:         true,
				DefaultTTL:          5 * time.Minute,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
		},
		Offers: OffersConfig{
			Locale:      "en-GB",
			LocaleParam: "locale",
			Timeout:     15 * time.Second,
			Paths: OfferPaths{
				Search:  "/api/offers/search",
				Details: "/api/offers/{offerId}",
			},
			DetailCache: CacheConfig{
				TTL:        5 * time.Minute,
				MaxEntries: 256,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
			DetailConcurrency: 8,
		},
		Overrides: OverridesConfig{
			ValidateSchema: true,
		},
		Resolver: ResolverConfig{
			MaxAttempts: 4,
			Delay:       250 * time.Millisecond,
		},
		Observability: ObservabilityConfig{
			Environment:   "development",
			LogLevel:      "info",
			MaxLoggedBody: 2048,
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads an optional .env file and an optional YAML config file, applies
// environment variable overrides, and validates structural settings.
// Credentials and remote endpoints are checked at request time instead; see
// EngineConfig.Missing and OffersConfig.Missing.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks structural settings that make the process unusable when
// wrong. It does not require credentials.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Resolver.MaxAttempts < 1 {
		errs = append(errs, "resolver.max_attempts must be at least 1")
	}
	if c.Resolver.Delay < 0 {
		errs = append(errs, "resolver.delay must not be negative")
	}
	switch c.Engine.Auth.Mode {
	case AuthModePassword, AuthModeClientCredentials:
	default:
		errs = append(errs, fmt.Sprintf("engine.auth.mode %q is not one of %s, %s",
			c.Engine.Auth.Mode, AuthModePassword, AuthModeClientCredentials))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Missing lists the engine settings required to serve journey requests
// that are not set. When withCredentials is false the caller supplies its
// own token, so auth settings are not required.
func (e EngineConfig) Missing(withCredentials bool) []string {
	var missing []string
	if e.BaseURL == "" {
		missing = append(missing, "engine.base_url")
	}
	if e.JourneyName == "" {
		missing = append(missing, "engine.journey_name")
	}
	if !withCredentials {
		return missing
	}
	if e.Auth.TokenURL == "" {
		missing = append(missing, "engine.auth.token_url")
	}
	switch e.Auth.Mode {
	case AuthModeClientCredentials:
		if e.Auth.ClientID == "" {
			missing = append(missing, "engine.auth.client_id")
		}
		if e.Auth.ClientSecret == "" {
			missing = append(missing, "engine.auth.client_secret")
		}
	default:
		if e.Auth.Username == "" {
			missing = append(missing, "engine.auth.username")
		}
		if e.Auth.Password == "" {
			missing = append(missing, "engine.auth.password")
		}
	}
	return missing
}

// Missing lists the offer API settings that are not set.
func (o OffersConfig) Missing() []string {
	var missing []string
	if o.BaseURL == "" {
		missing = append(missing, "offers.base_url")
	}
	if o.TokenURL == "" {
		missing = append(missing, "offers.token_url")
	}
	if o.ClientID == "" {
		missing = append(missing, "offers.client_id")
	}
	if o.ClientSecret == "" {
		missing = append(missing, "offers.client_secret")
	}
	return missing
}

// DebugTracesEnabled reports whether outbound request/response traces are
// logged. They are on by default outside production.
func (o ObservabilityConfig) DebugTracesEnabled() bool {
	if o.DebugTraces != nil {
		return *o.DebugTraces
	}
	return !o.IsProduction()
}

// IsProduction reports whether the configured environment is production.
func (o ObservabilityConfig) IsProduction() bool {
	return strings.EqualFold(o.Environment, "production") || strings.EqualFold(o.Environment, "prod")
}

// applyEnvOverrides reads JOURNEYBFF_* environment variables and overrides
// config values. Secrets are expected to arrive this way.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JOURNEYBFF_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	setString(&cfg.Engine.BaseURL, "JOURNEYBFF_ENGINE_BASE_URL")
	setString(&cfg.Engine.JourneyName, "JOURNEYBFF_ENGINE_JOURNEY_NAME")
	setString(&cfg.Engine.Locale, "JOURNEYBFF_ENGINE_LOCALE")
	setString(&cfg.Engine.Auth.Mode, "JOURNEYBFF_ENGINE_AUTH_MODE")
	setString(&cfg.Engine.Auth.TokenURL, "JOURNEYBFF_ENGINE_TOKEN_URL")
	setString(&cfg.Engine.Auth.Username, "JOURNEYBFF_ENGINE_USERNAME")
	setString(&cfg.Engine.Auth.Password, "JOURNEYBFF_ENGINE_PASSWORD")
	setString(&cfg.Engine.Auth.ClientID, "JOURNEYBFF_ENGINE_CLIENT_ID")
	setString(&cfg.Engine.Auth.ClientSecret, "JOURNEYBFF_ENGINE_CLIENT_SECRET")
	setString(&cfg.Offers.BaseURL, "JOURNEYBFF_OFFERS_BASE_URL")
	setString(&cfg.Offers.TokenURL, "JOURNEYBFF_OFFERS_TOKEN_URL")
	setString(&cfg.Offers.ClientID, "JOURNEYBFF_OFFERS_CLIENT_ID")
	setString(&cfg.Offers.ClientSecret, "JOURNEYBFF_OFFERS_CLIENT_SECRET")
	setString(&cfg.Overrides.File, "JOURNEYBFF_OVERRIDES_FILE")
	setString(&cfg.Observability.Environment, "JOURNEYBFF_ENVIRONMENT")
	setString(&cfg.Observability.LogLevel, "JOURNEYBFF_LOG_LEVEL")
	setString(&cfg.Observability.Tracing.Endpoint, "JOURNEYBFF_OTLP_ENDPOINT")
	if v := os.Getenv("JOURNEYBFF_DEBUG_TRACES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Observability.DebugTraces = &b
		}
	}
	if v := os.Getenv("JOURNEYBFF_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.CORS.AllowedOrigins = splitList(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
