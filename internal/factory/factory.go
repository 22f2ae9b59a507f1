package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"otp-gateway/internal/bucketing"
	"otp-gateway/internal/client"
	"otp-gateway/internal/config"
	"otp-gateway/internal/encryption"
	"otp-gateway/internal/hashing"
	"otp-gateway/internal/repository/audit"
	redisrepo "otp-gateway/internal/repository/redis"
	"otp-gateway/internal/repository/scylla"
	"otp-gateway/internal/service"
	"otp-gateway/internal/tls"
	"otp-gateway/internal/util"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Factory manages the lifecycle of all application dependencies. Every
// store is optional: an unset address or a failed connection leaves that
// store out, and dispatch keeps working without it.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	telegramAdapter  *client.TelegramAdapter

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	// Repositories
	dispatchCache *redisrepo.DispatchCache
	auditRecorder *service.AuditRecorder

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
}

// NewFactory loads configuration and initializes all application dependencies
func NewFactory() (*Factory, error) {
	return New(config.LoadConfig())
}

// New builds a factory from an already loaded configuration.
func New(cfg *config.Config) (*Factory, error) {
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(cfg)
	}

	factory.initializeClients()

	if err := factory.initializeManagers(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	factory.initializeRepositories()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Duration("write_timeout", cfg.Server.WriteTimeout),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("telegram_configured", cfg.Telegram.Credentials.Present()),
		util.Bool("dispatch_cache", factory.dispatchCache != nil),
		util.Int("audit_sinks", factory.auditSinkCount()),
	)

	return factory, nil
}

// initializeClients connects every configured store. Failures are logged and
// the store is skipped.
func (f *Factory) initializeClients() {
	logger := util.Get()

	f.telegramAdapter = client.NewTelegramAdapter(f.config.Telegram, logger.Named("telegram"))

	if f.config.Redis.URL != "" {
		if c, err := client.NewRedisClient(f.config, logger); err != nil {
			util.Warn("Redis unavailable, dispatch records disabled", util.ErrorField(err))
		} else {
			f.redisClient = c
		}
	}

	if len(f.config.Scylla.Nodes) > 0 {
		if c, err := scylla.NewScyllaClient(f.config, logger); err != nil {
			util.Warn("ScyllaDB unavailable, skipping audit sink", util.ErrorField(err))
		} else {
			f.scyllaClient = c
		}
	}

	if len(f.config.Kafka.Brokers) > 0 {
		if p, err := client.NewKafkaProducer(f.config, logger); err != nil {
			util.Warn("Kafka unavailable, skipping audit sink", util.ErrorField(err))
		} else {
			f.kafkaProducer = p
		}
	}

	if f.config.Elasticsearch.URL != "" {
		if c, err := client.NewElasticsearchClient(f.config, logger); err != nil {
			util.Warn("Elasticsearch unavailable, skipping audit sink", util.ErrorField(err))
		} else {
			f.esClient = c
		}
	}

	if f.config.Clickhouse.URL != "" {
		if c, err := client.NewClickHouseClient(f.config, logger); err != nil {
			util.Warn("ClickHouse unavailable, skipping audit sink", util.ErrorField(err))
		} else {
			f.clickhouseClient = c
		}
	}
}

// initializeManagers initializes hashing, encryption, and bucketing managers
func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewBucketingManager(f.config)

	var kmsClient encryption.KMSAPI
	if f.config.KMS.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}
	em, err := encryption.NewEncryptionManager(f.config, kmsClient)
	if err != nil {
		return err
	}
	f.encryptionManager = em

	if f.config.KMS.LocalKey != "" && !f.config.KMS.Enabled && f.config.IsProduction() {
		util.Warn("PHONE_ENCRYPTION_KEY is ignored in production, enable KMS to encrypt audit phones")
	}

	util.Info("Managers initialized successfully",
		util.Bool("kms_client", kmsClient != nil),
		util.Bool("audit_phone_encryption", em.CanEncrypt()),
		util.Int("phone_buckets", f.bucketingManager.PhoneBuckets()),
	)
	return nil
}

func (f *Factory) initializeRepositories() {
	if f.redisClient != nil {
		f.dispatchCache = redisrepo.NewDispatchCache(f.redisClient)
	}

	if sinks := f.auditSinks(); len(sinks) > 0 {
		f.auditRecorder = service.NewAuditRecorder(
			f.phoneEncryptor(),
			f.bucketingManager,
			util.Named("audit"),
			sinks...,
		)
	}
}

// phoneEncryptor is nil unless data keys can be wrapped, so audit events then
// carry only the phone hash and bucket.
func (f *Factory) phoneEncryptor() service.PhoneEncryptor {
	if f.encryptionManager == nil || !f.encryptionManager.CanEncrypt() {
		return nil
	}
	return f.encryptionManager
}

func (f *Factory) auditSinks() []service.AuditSink {
	var sinks []service.AuditSink
	if f.kafkaProducer != nil {
		sinks = append(sinks, audit.NewKafkaSink(f.kafkaProducer, f.kafkaProducer.Topic()))
	}
	if f.clickhouseClient != nil {
		sinks = append(sinks, audit.NewClickHouseSink(f.clickhouseClient))
	}
	if f.esClient != nil {
		sinks = append(sinks, audit.NewElasticsearchSink(f.esClient, f.esClient.Index()))
	}
	if f.scyllaClient != nil {
		sinks = append(sinks, scylla.NewDispatchEventRepository(f.scyllaClient, f.bucketingManager))
	}
	return sinks
}

func (f *Factory) auditSinkCount() int {
	if f.auditRecorder == nil {
		return 0
	}
	return len(f.auditRecorder.Sinks())
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		// Interface values must stay untyped nil when a store is absent.
		var records service.DispatchRecordStore
		if f.dispatchCache != nil {
			records = f.dispatchCache
		}
		var auditor service.DispatchAuditor
		if f.auditRecorder != nil {
			auditor = f.auditRecorder
		}

		f.serviceFactory = service.NewServiceFactory(
			f.config,
			f.telegramAdapter,
			records,
			f.hasher,
			auditor,
			util.Get(),
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// HealthCheck probes every connected store. Stores that were never
// configured are not reported.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}
	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			healthErrors["scylla"] = err
		}
	}
	if f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}
	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

// LogStoreHealth checks every connected store and logs one line per failure.
// Unhealthy stores stay wired; their writes keep failing best-effort.
func (f *Factory) LogStoreHealth(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	for store, err := range healthErrors {
		util.Warn("Store health check failed",
			util.String("store", store),
			util.ErrorField(err))
	}
	if len(healthErrors) == 0 {
		util.Info("Store health check passed",
			util.Int("audit_sinks", f.auditSinkCount()),
			util.Bool("dispatch_cache", f.dispatchCache != nil))
	}
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	var errs []error

	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("clickhouse: %w", err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("kafka: %w", err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("redis: %w", err))
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return errors.Join(errs...)
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) Hasher() *hashing.Hasher {
	return f.hasher
}

func (f *Factory) EncryptionManager() *encryption.EncryptionManager {
	return f.encryptionManager
}

func (f *Factory) BucketingManager() *bucketing.BucketingManager {
	return f.bucketingManager
}

func (f *Factory) DispatchCache() *redisrepo.DispatchCache {
	return f.dispatchCache
}
