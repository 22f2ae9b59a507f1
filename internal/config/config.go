package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"otp-gateway/internal/util"
)

// Config is the process-wide configuration. It is built once at startup and
// never mutated afterwards.
type Config struct {
	Environment   string
	Server        ServerConfig
	Logging       LoggingConfig
	Telegram      TelegramConfig
	Dispatch      DispatchConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Scylla        ScyllaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
}

type ServerConfig struct {
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	RateLimitPerMinute int
	AllowedOrigins     []string

	EnableTLS   bool
	TLSPort     int
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Credentials gate the real Telegram delivery path. Both fields must be set
// for Present to report true.
type Credentials struct {
	APIID   int
	APIHash string
}

// Present reports whether both halves of the credentials are configured.
func (c Credentials) Present() bool {
	return c.APIID > 0 && c.APIHash != ""
}

type TelegramConfig struct {
	Credentials Credentials
	MaxRetries  int
	DialTimeout time.Duration
	Transport   string
}

type DispatchConfig struct {
	Timeout      time.Duration
	RecordTTL    time.Duration
	AuditTimeout time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

// KMSConfig controls envelope encryption of phone numbers in audit events.
// LocalKey is a base64 AES-256 key that wraps data keys when KMS is off; it
// is ignored in production.
type KMSConfig struct {
	Enabled  bool
	KeyID    string
	Region   string
	LocalKey string
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
	Pepper            string
}

type BucketingConfig struct {
	PhoneBuckets int
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() *Config {
	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()

	cfg := &Config{
		Environment: util.GetEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:               getEnvInt("PORT", 3000),
			ReadTimeout:        getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:        getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 0),
			AllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			EnableTLS:          getEnvBool("SERVER_ENABLE_TLS", false),
			TLSPort:            getEnvInt("SERVER_TLS_PORT", 3443),
			AutoCert:           getEnvBool("SERVER_AUTO_CERT", false),
			Domain:             util.GetEnv("SERVER_DOMAIN", "localhost"),
			CertFile:           util.GetEnv("SERVER_CERT_FILE", ""),
			KeyFile:            util.GetEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:        util.GetEnv("SERVER_AUTO_CERT_DIR", "./certs"),
			Email:              util.GetEnv("SERVER_ACME_EMAIL", ""),
		},
		Logging: LoggingConfig{
			Level:  util.GetEnv("LOG_LEVEL", "info"),
			Format: util.GetEnv("LOG_FORMAT", "console"),
		},
		Telegram: TelegramConfig{
			Credentials: Credentials{
				APIID:   getEnvInt("API_ID", 0),
				APIHash: strings.TrimSpace(os.Getenv("API_HASH")),
			},
			MaxRetries:  getEnvInt("TELEGRAM_MAX_RETRIES", 3),
			DialTimeout: getEnvDuration("TELEGRAM_DIAL_TIMEOUT", 5*time.Second),
			Transport:   util.GetEnv("TELEGRAM_TRANSPORT", "tcp"),
		},
		Dispatch: DispatchConfig{
			Timeout:      getEnvDuration("DISPATCH_TIMEOUT", 10*time.Second),
			RecordTTL:    getEnvDuration("OTP_RECORD_TTL", 5*time.Minute),
			AuditTimeout: getEnvDuration("AUDIT_TIMEOUT", 2*time.Second),
		},
		Redis: RedisConfig{
			URL:      util.GetEnv("REDIS_URL", ""),
			Password: util.GetEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:   util.GetEnv("KAFKA_DISPATCH_TOPIC", "otp.dispatch"),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvList("SCYLLA_NODES", nil),
			Keyspace: util.GetEnv("SCYLLA_KEYSPACE", "otp_gateway"),
			Username: util.GetEnv("SCYLLA_USERNAME", ""),
			Password: util.GetEnv("SCYLLA_PASSWORD", ""),
		},
		Clickhouse: ClickhouseConfig{
			URL:      util.GetEnv("CLICKHOUSE_URL", ""),
			Username: util.GetEnv("CLICKHOUSE_USERNAME", "default"),
			Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
			Database: util.GetEnv("CLICKHOUSE_DATABASE", "otp_gateway"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:      util.GetEnv("ELASTICSEARCH_URL", ""),
			Username: util.GetEnv("ELASTICSEARCH_USERNAME", ""),
			Password: util.GetEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    util.GetEnv("ELASTICSEARCH_DISPATCH_INDEX", "otp-dispatch"),
		},
		KMS: KMSConfig{
			Enabled:  getEnvBool("KMS_ENABLED", false),
			KeyID:    util.GetEnv("KMS_KEY_ID", ""),
			Region:   util.GetEnv("AWS_REGION", "us-east-1"),
			LocalKey: util.GetEnv("PHONE_ENCRYPTION_KEY", ""),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_KB", 64*1024),
			Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 1),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
			Pepper:            util.GetEnv("OTP_PEPPER", ""),
		},
		Bucketing: BucketingConfig{
			PhoneBuckets: getEnvInt("PHONE_BUCKETS", 256),
		},
	}

	cfg.Server.WriteTimeout = cfg.Server.writeTimeoutFor(cfg.Dispatch)
	return cfg
}

// writeTimeoutMargin is the time left for encoding the response once the
// dispatch and its side effects are done.
const writeTimeoutMargin = 5 * time.Second

// RequestBound is the longest a send-otp request can take before its response
// is written: the delivery attempt plus record storage and audit.
func (d DispatchConfig) RequestBound() time.Duration {
	return d.Timeout + d.AuditTimeout
}

// writeTimeoutFor raises the write timeout when it would cut off a response
// that is still inside the dispatch bound.
func (s ServerConfig) writeTimeoutFor(d DispatchConfig) time.Duration {
	minimum := d.RequestBound() + writeTimeoutMargin
	if s.WriteTimeout < minimum {
		return minimum
	}
	return s.WriteTimeout
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// GetServerAddress returns the plain HTTP listen address.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
