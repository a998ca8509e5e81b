package service

import (
	"context"
	"database/sql"
	"fmt"

	commondb "github.com/DigitalWolfInc/mindtrainer-sub002/common/database"
	mqttcommon "github.com/DigitalWolfInc/mindtrainer-sub002/common/mqtt"
	rediscommon "github.com/DigitalWolfInc/mindtrainer-sub002/common/redis"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/audit"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/config"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/consumer"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/evaluator"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/metrics"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/protocol"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/publisher"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// NightwatchService 夜惊监测服务（整合各层）
type NightwatchService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client

	// 各层组件
	deviceRepo     *repository.DeviceRepository
	eventPublisher *publisher.EventPublisher
	sessions       *SessionManager
	vitalsConsumer *consumer.VitalsConsumer
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
}

// NewNightwatchService 创建夜惊监测服务
func NewNightwatchService(cfg *config.Config, logger *zap.Logger) (*NightwatchService, error) {
	// 1. 连接数据库（设备注册表，只读）
	db, err := commondb.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// 4. 创建 Repository 层
	deviceRepo := repository.NewDeviceRepository(db, logger)

	// 5. 创建指标与事件输出
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	eventPublisher := publisher.NewEventPublisher(publisher.Config{
		Stream:      cfg.Nightwatch.Events.Stream,
		CachePrefix: cfg.Nightwatch.Events.CachePrefix,
		CacheSuffix: cfg.Nightwatch.Events.CacheSuffix,
		CacheTTL:    cfg.EventCacheTTL(),
	}, redisClient, logger)

	auditSink := audit.NewZapSink(logger)

	// 6. 创建会话管理器
	protocolCfg := protocol.Config{
		SlidingWindow:         cfg.BaselineWindow(),
		CooldownPeriod:        cfg.Cooldown(),
		RecoveryWindow:        cfg.RecoveryWindow(),
		MinSamplesForBaseline: cfg.Nightwatch.Protocol.MinBaselineSamples,
		CueTimeout:            cfg.CueTimeout(),
		Thresholds: evaluator.Config{
			HRSpikeMargin:     cfg.Nightwatch.Protocol.HRSpikeMargin,
			HRVDropRatio:      cfg.Nightwatch.Protocol.HRVDropRatio,
			MotionSpikeFactor: cfg.Nightwatch.Protocol.MotionSpikeFactor,
		},
	}

	sessions := NewSessionManager(
		protocolCfg,
		cfg.Nightwatch.Topics.CueFormat,
		cfg.Nightwatch.SampleBuffer,
		mqttClient,
		eventPublisher,
		auditSink,
		m,
		logger,
	)

	// 7. 创建 Consumer 层
	vitalsConsumer := consumer.NewVitalsConsumer(cfg, mqttClient, deviceRepo, sessions, m, logger)

	return &NightwatchService{
		config:         cfg,
		logger:         logger,
		db:             db,
		redisClient:    redisClient,
		mqttClient:     mqttClient,
		deviceRepo:     deviceRepo,
		eventPublisher: eventPublisher,
		sessions:       sessions,
		vitalsConsumer: vitalsConsumer,
		metrics:        m,
		registry:       registry,
	}, nil
}

// Start 启动服务（阻塞直至 ctx 取消）
func (s *NightwatchService) Start(ctx context.Context) error {
	s.logger.Info("Starting nightwatch service",
		zap.String("vitals_topic", s.config.Nightwatch.Topics.Vitals),
		zap.String("event_stream", s.config.Nightwatch.Events.Stream),
		zap.String("metrics_addr", s.config.Nightwatch.MetricsAddr),
	)

	metricsServer := metrics.NewServer(s.config.Nightwatch.MetricsAddr, s.registry, s.logger)
	defer metricsServer.Close()

	if err := s.vitalsConsumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start vitals consumer: %w", err)
	}

	return nil
}

// Stop 停止服务
func (s *NightwatchService) Stop() error {
	s.logger.Info("Stopping nightwatch service")

	// 停止消费新采样
	if err := s.vitalsConsumer.Stop(context.Background()); err != nil {
		s.logger.Error("Failed to stop vitals consumer", zap.Error(err))
	}

	// 停止全部监测会话
	s.sessions.StopAll()

	// 断开外部连接
	s.mqttClient.Disconnect()

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}

	return nil
}
