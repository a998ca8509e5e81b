// Package publisher 将协议事件扇出到 Redis Streams 供实时消费者使用
//
// 两路输出：
// - Redis Stream（XADD）：完整事件流，UI 等消费者按需读取
// - 最新事件缓存键（带 TTL）：每台设备的最近一次协议事件
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	rediscommon "github.com/DigitalWolfInc/mindtrainer-sub002/common/redis"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config 事件发布配置
type Config struct {
	Stream      string        // 事件流名称，如 night-watch:events:stream
	CachePrefix string        // 最新事件缓存键前缀，如 night-watch:device:
	CacheSuffix string        // 最新事件缓存键后缀，如 :last-event
	CacheTTL    time.Duration // 最新事件缓存 TTL
}

// EventRecord 事件流记录（JSON 序列化后放入 stream 的 data 字段）
type EventRecord struct {
	EventID          string  `json:"event_id"`
	DeviceID         string  `json:"device_id"`
	TenantID         string  `json:"tenant_id"`
	Type             string  `json:"type"`
	Trigger          string  `json:"trigger,omitempty"`
	Severity         float64 `json:"severity,omitempty"`
	StabilizedForSec float64 `json:"stabilized_for_sec,omitempty"`
	At               int64   `json:"at"`
}

// EventPublisher 协议事件发布器
type EventPublisher struct {
	config      Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewEventPublisher 创建事件发布器
func NewEventPublisher(cfg Config, redisClient *redis.Client, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Publish 发布一条协议事件
//
// 先写入事件流，再更新设备的最新事件缓存。
// 缓存更新失败只告警不返回错误（流内已有完整记录）。
func (p *EventPublisher) Publish(ctx context.Context, deviceID, tenantID string, event models.ProtocolEvent) error {
	record := EventRecord{
		EventID:          uuid.New().String(),
		DeviceID:         deviceID,
		TenantID:         tenantID,
		Type:             string(event.Type),
		Trigger:          string(event.Trigger),
		Severity:         event.Severity,
		StabilizedForSec: event.StabilizedFor.Seconds(),
		At:               event.At.Unix(),
	}

	streamID, err := rediscommon.PublishJSONToStream(ctx, p.redisClient, p.config.Stream, record)
	if err != nil {
		return fmt.Errorf("failed to publish event to stream: %w", err)
	}

	p.logger.Debug("Protocol event published to stream",
		zap.String("device_id", deviceID),
		zap.String("type", record.Type),
		zap.String("stream_id", streamID),
	)

	// 更新设备最新事件缓存（尽力而为）
	if err := p.cacheLatest(ctx, deviceID, record); err != nil {
		p.logger.Warn("Failed to cache latest protocol event",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}

	return nil
}

// cacheLatest 更新设备的最新事件缓存键
func (p *EventPublisher) cacheLatest(ctx context.Context, deviceID string, record EventRecord) error {
	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal event record: %w", err)
	}

	key := p.config.CachePrefix + deviceID + p.config.CacheSuffix
	if err := p.redisClient.Set(ctx, key, jsonData, p.config.CacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set latest event cache: %w", err)
	}

	return nil
}
