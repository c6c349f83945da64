package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
	StoreScylla = "scylla"

	UploadNone       = "none"
	UploadS3         = "s3"
	UploadCloudinary = "cloudinary"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string

	StoreBackend      string
	MongoURI          string
	MongoDB           string
	MongoTransactions bool

	ScyllaHosts       []string
	ScyllaKeyspace    string
	ScyllaUsername    string
	ScyllaPassword    string
	ScyllaConsistency gocql.Consistency
	ScyllaTimeout     time.Duration
	ReplicationFactor int

	RedisURL string

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration
	IdempotencyTTL     time.Duration

	UploadBackend    string
	MaxUploadBytes   int64
	S3Endpoint       string
	S3PublicEndpoint string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3UseSSL         bool
	CloudinaryURL    string
	CloudinaryFolder string

	JWTSecret string
	JWTIssuer string

	WSReadLimit    int64
	WSPingInterval time.Duration
	WSSendBuffer   int
	WSEventRate    float64
	WSEventBurst   int
	PresenceTTL    time.Duration
	NotifyTimeout  time.Duration
	AllowedOrigins []string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "rentalhub"),
		ScyllaHosts:      splitAndTrim(getEnv("SCYLLA_HOSTS", "localhost")),
		ScyllaKeyspace:   strings.TrimSpace(getEnv("SCYLLA_KEYSPACE", "rentalhub_messaging")),
		ScyllaUsername:   strings.TrimSpace(os.Getenv("SCYLLA_USERNAME")),
		ScyllaPassword:   strings.TrimSpace(os.Getenv("SCYLLA_PASSWORD")),
		RedisURL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		KafkaBrokers:     splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		UploadBackend:    strings.ToLower(getEnv("UPLOAD_BACKEND", UploadNone)),
		S3Endpoint:       getEnv("S3_ENDPOINT", "http://localhost:9000"),
		S3PublicEndpoint: getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:      getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:         getEnv("S3_BUCKET", "rentalhub-attachments"),
		CloudinaryURL:    strings.TrimSpace(os.Getenv("CLOUDINARY_URL")),
		CloudinaryFolder: getEnv("CLOUDINARY_FOLDER", "rentalhub"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTIssuer:        strings.TrimSpace(os.Getenv("JWT_ISSUER")),
		AllowedOrigins:   splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.MongoTransactions, err = parseBoolEnv("MONGO_TRANSACTIONS", true); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaTimeout, err = parseDurationEnv("SCYLLA_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ReplicationFactor, err = parseIntEnv("SCYLLA_REPLICATION_FACTOR", 1); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaConsistency, err = parseConsistency(getEnv("SCYLLA_CONSISTENCY", "quorum")); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = parseDurationEnv("IDEMP_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.RetryBackoff, err = parseBackoff(getEnv("RETRY_BACKOFF", "1s,5s,30s")); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	maxUpload, err := parseIntEnv("MAX_UPLOAD_BYTES", 25<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	readLimit, err := parseIntEnv("WS_READ_LIMIT", 64<<10)
	if err != nil {
		return Config{}, err
	}
	cfg.WSReadLimit = int64(readLimit)
	if cfg.WSPingInterval, err = parseDurationEnv("WS_PING_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WSSendBuffer, err = parseIntEnv("WS_SEND_BUFFER", 256); err != nil {
		return Config{}, err
	}
	if cfg.WSEventRate, err = parseFloatEnv("WS_EVENT_RATE", 10); err != nil {
		return Config{}, err
	}
	if cfg.WSEventBurst, err = parseIntEnv("WS_EVENT_BURST", 20); err != nil {
		return Config{}, err
	}
	if cfg.PresenceTTL, err = parseDurationEnv("PRESENCE_TTL", 90*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.NotifyTimeout, err = parseDurationEnv("NOTIFY_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.StoreBackend {
	case StoreMemory:
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for STORE_BACKEND=mongo")
		}
	case StoreScylla:
		if c.ScyllaKeyspace == "" {
			return fmt.Errorf("SCYLLA_KEYSPACE is required for STORE_BACKEND=scylla")
		}
		if len(c.ScyllaHosts) == 0 {
			return fmt.Errorf("SCYLLA_HOSTS is required for STORE_BACKEND=scylla")
		}
		if c.ReplicationFactor < 1 {
			return fmt.Errorf("SCYLLA_REPLICATION_FACTOR must be positive")
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND: %s", c.StoreBackend)
	}
	switch c.UploadBackend {
	case UploadNone, UploadS3:
	case UploadCloudinary:
		if c.CloudinaryURL == "" {
			return fmt.Errorf("CLOUDINARY_URL is required for UPLOAD_BACKEND=cloudinary")
		}
	default:
		return fmt.Errorf("unsupported UPLOAD_BACKEND: %s", c.UploadBackend)
	}
	if c.WSSendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	if c.WSEventRate <= 0 || c.WSEventBurst < 1 {
		return fmt.Errorf("WS_EVENT_RATE and WS_EVENT_BURST must be positive")
	}
	return nil
}

// IsDev reports whether human-readable logging and debug modes apply.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "local":
		return true
	}
	return false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return v, nil
}

func parseFloatEnv(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s number: %w", key, err)
	}
	return v, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}

func parseBackoff(raw string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(raw, ",") {
		val := strings.TrimSpace(part)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", part, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_quorum", "localquorum":
		return gocql.LocalQuorum, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported SCYLLA_CONSISTENCY: %s", raw)
	}
}
