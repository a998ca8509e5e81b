// Package consumer 消费穿戴设备的 MQTT 生理数据并分发到监测会话
package consumer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/config"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/metrics"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/models"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/repository"

	mqttcommon "github.com/DigitalWolfInc/mindtrainer-sub002/common/mqtt"

	"go.uber.org/zap"
)

// Dispatcher 采样分发接口（由会话管理器实现）
type Dispatcher interface {
	Dispatch(device *repository.Device, sample models.BioSample)
}

// VitalsConsumer MQTT 生理数据消费者
type VitalsConsumer struct {
	config     *config.Config
	mqttClient *mqttcommon.Client
	deviceRepo *repository.DeviceRepository
	sessions   Dispatcher
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewVitalsConsumer 创建消费者
func NewVitalsConsumer(
	cfg *config.Config,
	mqttClient *mqttcommon.Client,
	deviceRepo *repository.DeviceRepository,
	sessions Dispatcher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *VitalsConsumer {
	return &VitalsConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		deviceRepo: deviceRepo,
		sessions:   sessions,
		metrics:    m,
		logger:     logger,
	}
}

// Start 启动消费者
func (c *VitalsConsumer) Start(ctx context.Context) error {
	topic := c.config.Nightwatch.Topics.Vitals
	if err := c.mqttClient.Subscribe(topic, c.config.MQTT.QoS, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to vitals topic: %w", err)
	}

	c.logger.Info("Vitals consumer started",
		zap.String("topic", topic),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *VitalsConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.config.Nightwatch.Topics.Vitals); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("Vitals consumer stopped")
	return nil
}

// handleMessage 处理单条MQTT消息
func (c *VitalsConsumer) handleMessage(topic string, payload []byte) error {
	c.metrics.SamplesReceived.Inc()

	// 1. 从主题中提取设备序列号
	// 主题格式: wearable/{serial}/vitals
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		c.metrics.MalformedPayloads.Inc()
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	serial := parts[1]

	// 2. 解析消息（格式错误只丢弃，不影响后续消息）
	msg, err := models.ParseVitalsMessage(payload)
	if err != nil {
		c.metrics.MalformedPayloads.Inc()
		c.logger.Warn("Malformed vitals payload dropped",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return nil
	}

	// 3. 查询设备信息
	device, err := c.deviceRepo.GetDeviceBySerial(serial)
	if err != nil {
		c.metrics.UnknownDevices.Inc()
		c.logger.Warn("Device not found",
			zap.String("serial", serial),
			zap.Error(err),
		)
		return fmt.Errorf("device not found: %s", serial)
	}

	// 4. 未启用监测的设备跳过
	if !device.MonitoringEnabled {
		c.logger.Debug("Monitoring disabled for device, skipping",
			zap.String("device_id", device.DeviceID),
		)
		return nil
	}

	// 5. 转换为采样并分发到设备会话
	sample := msg.ToBioSample(time.Now())
	c.sessions.Dispatch(device, sample)

	return nil
}
