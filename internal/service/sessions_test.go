package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/evaluator"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/metrics"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/models"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/protocol"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/publisher"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMQTTPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *fakeMQTTPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *fakeMQTTPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func setupTestSessions(t *testing.T) (*fakeMQTTPublisher, *redis.Client, *metrics.Metrics, *SessionManager) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	eventPublisher := publisher.NewEventPublisher(publisher.Config{
		Stream:      "night-watch:events:stream",
		CachePrefix: "night-watch:device:",
		CacheSuffix: ":last-event",
		CacheTTL:    5 * time.Minute,
	}, redisClient, zap.NewNop())

	protocolCfg := protocol.Config{
		SlidingWindow:         5 * time.Minute,
		CooldownPeriod:        10 * time.Minute,
		RecoveryWindow:        2 * time.Minute,
		MinSamplesForBaseline: 3,
		Thresholds:            evaluator.DefaultConfig(),
	}

	mqttPub := &fakeMQTTPublisher{}
	m := metrics.New(prometheus.NewRegistry())

	sm := NewSessionManager(
		protocolCfg,
		"speaker/%s/cue",
		16,
		mqttPub,
		eventPublisher,
		protocol.NopAuditSink{},
		m,
		zap.NewNop(),
	)

	return mqttPub, redisClient, m, sm
}

func testDevice() *repository.Device {
	return &repository.Device{
		DeviceID:          "device-1",
		TenantID:          "tenant-1",
		SerialNumber:      "WB-001",
		SpeakerSerial:     "SPK-001",
		MonitoringEnabled: true,
	}
}

func TestSessionManager_DistressFlowsToSpeakerAndStream(t *testing.T) {
	mqttPub, redisClient, m, sm := setupTestSessions(t)
	defer sm.StopAll()

	device := testDevice()
	base := time.Date(2025, 8, 1, 2, 0, 0, 0, time.UTC)

	// 3条基线采样 + 1条心率骤升
	for i := 0; i < 3; i++ {
		sm.Dispatch(device, models.BioSample{
			At: base.Add(time.Duration(i) * time.Second), HeartRate: 70, HRV: 50, Motion: 0.02, Stage: models.StageNREM,
		})
	}
	sm.Dispatch(device, models.BioSample{
		At: base.Add(3 * time.Second), HeartRate: 125, HRV: 50, Motion: 0.02, Stage: models.StageNREM,
	})

	// 事件处理是异步的：等待安抚指令下发且事件进入流
	require.Eventually(t, func() bool {
		count, err := redisClient.XLen(context.Background(), "night-watch:events:stream").Result()
		return err == nil && count >= 2
	}, 2*time.Second, 10*time.Millisecond)

	topics := mqttPub.published()
	require.NotEmpty(t, topics)
	assert.Equal(t, "speaker/SPK-001/cue", topics[0])

	messages, err := redisClient.XRange(context.Background(), "night-watch:events:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 2)

	var first publisher.EventRecord
	require.NoError(t, json.Unmarshal([]byte(messages[0].Values["data"].(string)), &first))
	assert.Equal(t, "detected_distress", first.Type)
	assert.Equal(t, "hr_spike", first.Trigger)
	assert.Equal(t, "device-1", first.DeviceID)

	var second publisher.EventRecord
	require.NoError(t, json.Unmarshal([]byte(messages[1].Values["data"].(string)), &second))
	assert.Equal(t, "cue_played", second.Type)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.DistressDetected))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CuesPlayed))
}

func TestSessionManager_OneSessionPerDevice(t *testing.T) {
	_, _, m, sm := setupTestSessions(t)
	defer sm.StopAll()

	device := testDevice()
	sample := models.BioSample{At: time.Now(), HeartRate: 70, HRV: 50, Motion: 0.02, Stage: models.StageNREM}

	sm.Dispatch(device, sample)
	sm.Dispatch(device, sample)
	sm.Dispatch(device, sample)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))
}

func TestSessionManager_StopAllStopsSessions(t *testing.T) {
	_, _, m, sm := setupTestSessions(t)

	sm.Dispatch(testDevice(), models.BioSample{At: time.Now(), HeartRate: 70, HRV: 50, Motion: 0.02, Stage: models.StageNREM})

	other := testDevice()
	other.DeviceID = "device-2"
	sm.Dispatch(other, models.BioSample{At: time.Now(), HeartRate: 70, HRV: 50, Motion: 0.02, Stage: models.StageNREM})

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActiveSessions))

	sm.StopAll()

	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveSessions))

	// 停止后的分发被静默丢弃
	assert.NotPanics(t, func() {
		sm.Dispatch(testDevice(), models.BioSample{At: time.Now(), Stage: models.StageNREM})
	})
}

func TestSessionManager_BufferOverflowDropsSample(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	eventPublisher := publisher.NewEventPublisher(publisher.Config{
		Stream:      "night-watch:events:stream",
		CachePrefix: "night-watch:device:",
		CacheSuffix: ":last-event",
		CacheTTL:    time.Minute,
	}, redisClient, zap.NewNop())

	m := metrics.New(prometheus.NewRegistry())
	sm := NewSessionManager(
		protocol.Config{
			SlidingWindow:         5 * time.Minute,
			CooldownPeriod:        10 * time.Minute,
			RecoveryWindow:        2 * time.Minute,
			MinSamplesForBaseline: 3,
		},
		"speaker/%s/cue",
		1, // 单槽缓冲，便于触发溢出
		&fakeMQTTPublisher{},
		eventPublisher,
		protocol.NopAuditSink{},
		m,
		zap.NewNop(),
	)
	defer sm.StopAll()

	device := testDevice()
	sample := models.BioSample{At: time.Now(), HeartRate: 70, HRV: 50, Motion: 0.02, Stage: models.StageNREM}

	// 快速灌入远超缓冲容量的采样：部分被丢弃但不阻塞
	for i := 0; i < 500; i++ {
		sm.Dispatch(device, sample)
	}

	assert.Greater(t, testutil.ToFloat64(m.SamplesDropped), float64(0))
}
