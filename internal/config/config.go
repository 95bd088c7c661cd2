// Package config loads service settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Notification delivery modes.
const (
	NotifyDirect = "direct"
	NotifyQueue  = "queue"
	NotifyOff    = "off"
)

// Rate limit backends.
const (
	RateLimitFixed   = "fixed"
	RateLimitSliding = "sliding"
)

// MaxOrderCodeAttempts caps the order code allocator whatever is configured.
const MaxOrderCodeAttempts = 10

type Config struct {
	AppEnv             string
	Port               string
	StoreDriver        string
	DatabaseURL        string
	MongoURI           string
	MongoDatabase      string
	RedisURL           string
	CORSAllowedOrigins []string

	ComboCacheTTL        time.Duration
	IdempotencyTTL       time.Duration
	OrderCodeLength      int
	OrderCodeMaxAttempts int
	OrderRateLimit       string
	RateLimitBackend     string
	MaxBodyBytes         int64

	NotifyMode          string
	NotifyTimeout       time.Duration
	SheetWebhookURL     string
	SheetWebhookSecret  string
	SheetWebhookTimeout time.Duration
	KafkaBrokers        []string
	KafkaOrderTopic     string
	WorkerConcurrency   int

	Obs      Observability
	Security Security
	Health   Health
}

// Observability groups the OBS_* knobs.
type Observability struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	Prometheus       bool
	LatencyBucketsMS string
	Tracing          bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	Pprof            bool
	PprofUser        string
	PprofPass        string
}

// Security groups the SECURE_* knobs.
type Security struct {
	Headers    bool
	HSTS       bool
	HSTSMaxAge int
}

// Health holds per-dependency readiness probe timeouts.
type Health struct {
	StoreTimeout time.Duration
	RedisTimeout time.Duration
}

// Load reads the process environment, after merging .env when present.
func Load() (*Config, error) {
	k, err := environment()
	if err != nil {
		return nil, err
	}
	return build(reader{k})
}

// LoadForTests overlays overrides on the environment without mutating the
// process. An empty value unsets the key.
func LoadForTests(overrides map[string]string) (*Config, error) {
	k, err := environment()
	if err != nil {
		return nil, err
	}
	for key, value := range overrides {
		if value == "" {
			k.Delete(key)
			continue
		}
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}
	return build(reader{k})
}

func environment() (*koanf.Koanf, error) {
	_ = godotenv.Load()
	k := koanf.New("::")
	if err := k.Load(env.Provider("", "::", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return k, nil
}

func build(r reader) (*Config, error) {
	cfg := &Config{
		AppEnv:             r.str("APP_ENV", "development"),
		Port:               r.str("PORT", "8080"),
		StoreDriver:        strings.ToLower(r.str("STORE_DRIVER", StorePostgres)),
		DatabaseURL:        r.str("DATABASE_URL", ""),
		MongoURI:           r.str("MONGODB_URI", ""),
		MongoDatabase:      r.str("MONGODB_DATABASE", "merch"),
		RedisURL:           r.str("REDIS_URL", ""),
		CORSAllowedOrigins: r.list("CORS_ALLOWED_ORIGINS"),

		ComboCacheTTL:        r.dur("COMBO_CACHE_TTL", 5*time.Minute),
		IdempotencyTTL:       r.dur("IDEMPOTENCY_TTL", 24*time.Hour),
		OrderCodeLength:      r.integer("ORDER_CODE_LENGTH", 8),
		OrderCodeMaxAttempts: r.integer("ORDER_CODE_MAX_ATTEMPTS", MaxOrderCodeAttempts),
		OrderRateLimit:       r.str("ORDER_RATE_LIMIT", "30-M"),
		RateLimitBackend:     strings.ToLower(r.str("RATE_LIMIT_BACKEND", RateLimitFixed)),
		MaxBodyBytes:         int64(r.integer("MAX_BODY_BYTES", 1<<20)),

		NotifyMode:          strings.ToLower(r.str("NOTIFY_MODE", NotifyDirect)),
		NotifyTimeout:       r.dur("NOTIFY_TIMEOUT", 10*time.Second),
		SheetWebhookURL:     r.str("SHEET_WEBHOOK_URL", ""),
		SheetWebhookSecret:  r.raw("SHEET_WEBHOOK_SECRET"),
		SheetWebhookTimeout: r.dur("SHEET_WEBHOOK_TIMEOUT", 5*time.Second),
		KafkaBrokers:        r.list("KAFKA_BROKERS"),
		KafkaOrderTopic:     r.str("KAFKA_ORDER_TOPIC", "orders.created"),
		WorkerConcurrency:   r.integer("WORKER_CONCURRENCY", 5),
	}
	dev := cfg.IsDevelopment()
	cfg.Obs = Observability{
		LogFormat:        r.str("OBS_LOG_FORMAT", "json"),
		LogLevel:         r.str("OBS_LOG_LEVEL", "info"),
		MetricsNamespace: r.str("OBS_METRICS_NAMESPACE", "merch"),
		Prometheus:       r.boolean("OBS_ENABLE_PROMETHEUS", true),
		LatencyBucketsMS: r.str("OBS_METRICS_BUCKETS_MS", ""),
		Tracing:          r.boolean("OBS_ENABLE_TRACING", true),
		TracingExporter:  r.str("OBS_TRACING_EXPORTER", "otlp"),
		OTLPEndpoint:     r.str("OBS_OTLP_ENDPOINT", ""),
		SamplingRatio:    r.float("OBS_TRACING_SAMPLING_RATIO", 1),
		Pprof:            r.boolean("OBS_ENABLE_PPROF", dev),
		PprofUser:        r.str("SECURE_PPROF_BASIC_AUTH_USER", ""),
		PprofPass:        r.str("SECURE_PPROF_BASIC_AUTH_PASS", ""),
	}
	cfg.Security = Security{
		Headers:    r.boolean("SECURE_HEADERS_ENABLE", true),
		HSTS:       r.boolean("SECURE_HSTS_ENABLE", !dev),
		HSTSMaxAge: r.integer("SECURE_HSTS_MAX_AGE", 31536000),
	}
	cfg.Health = Health{
		StoreTimeout: r.millis("HEALTH_READY_STORE_TIMEOUT_MS", 500),
		RedisTimeout: r.millis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	cfg.clamp()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// clamp pulls out-of-range tunables back to safe values.
func (c *Config) clamp() {
	if c.OrderCodeMaxAttempts <= 0 || c.OrderCodeMaxAttempts > MaxOrderCodeAttempts {
		c.OrderCodeMaxAttempts = MaxOrderCodeAttempts
	}
	if c.OrderCodeLength < 6 || c.OrderCodeLength > 16 {
		c.OrderCodeLength = 8
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 1
	}
}

func (c *Config) validate() error {
	var errs []error
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required"))
		}
	case StoreMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.RateLimitBackend != RateLimitFixed && c.RateLimitBackend != RateLimitSliding {
		errs = append(errs, fmt.Errorf("unsupported RATE_LIMIT_BACKEND %q", c.RateLimitBackend))
	}
	switch c.NotifyMode {
	case NotifyDirect, NotifyQueue, NotifyOff:
	default:
		errs = append(errs, fmt.Errorf("unsupported NOTIFY_MODE %q", c.NotifyMode))
	}
	return errors.Join(errs...)
}

// HTTPAddr is the listen address derived from PORT.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	switch {
	case port == "":
		return ":8080"
	case strings.HasPrefix(port, ":"):
		return port
	default:
		return ":" + port
	}
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// reader applies defaults and lenient parsing over koanf values; malformed
// numbers and durations fall back to the default.
type reader struct{ k *koanf.Koanf }

func (r reader) raw(key string) string { return r.k.String(key) }

func (r reader) str(key, def string) string {
	if v := strings.TrimSpace(r.k.String(key)); v != "" {
		return v
	}
	return def
}

func (r reader) dur(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(r.str(key, ""))
	if err != nil {
		return def
	}
	return d
}

func (r reader) integer(key string, def int) int {
	n, err := strconv.Atoi(r.str(key, ""))
	if err != nil {
		return def
	}
	return n
}

func (r reader) float(key string, def float64) float64 {
	f, err := strconv.ParseFloat(r.str(key, ""), 64)
	if err != nil {
		return def
	}
	return f
}

func (r reader) boolean(key string, def bool) bool {
	switch strings.ToLower(r.str(key, "")) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	}
	return def
}

func (r reader) millis(key string, def int) time.Duration {
	return time.Duration(r.integer(key, def)) * time.Millisecond
}

func (r reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.k.String(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
