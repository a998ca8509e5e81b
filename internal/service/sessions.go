package service

import (
	"context"
	"sync"

	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/audio"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/metrics"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/models"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/protocol"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/publisher"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/repository"

	"go.uber.org/zap"
)

// SessionManager 会话管理器
//
// 每台启用监测的设备对应一个独立的 Monitor 会话：
// 一条带缓冲的采样通道（单消费者，保证逐样本串行处理）
// 加一个事件泵 goroutine（将协议事件扇出到 Redis Streams）。
type SessionManager struct {
	protocolConfig protocol.Config
	cueTopicFormat string
	sampleBuffer   int

	audioPublisher audio.Publisher
	eventPublisher *publisher.EventPublisher
	audit          protocol.AuditSink
	metrics        *metrics.Metrics
	logger         *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

// session 单台设备的监测会话
type session struct {
	device  *repository.Device
	monitor *protocol.Monitor
	samples chan models.BioSample
}

// NewSessionManager 创建会话管理器
func NewSessionManager(
	protocolConfig protocol.Config,
	cueTopicFormat string,
	sampleBuffer int,
	audioPublisher audio.Publisher,
	eventPublisher *publisher.EventPublisher,
	auditSink protocol.AuditSink,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SessionManager {
	if sampleBuffer <= 0 {
		sampleBuffer = 256
	}
	return &SessionManager{
		protocolConfig: protocolConfig,
		cueTopicFormat: cueTopicFormat,
		sampleBuffer:   sampleBuffer,
		audioPublisher: audioPublisher,
		eventPublisher: eventPublisher,
		audit:          auditSink,
		metrics:        m,
		logger:         logger,
		sessions:       make(map[string]*session),
	}
}

// Dispatch 将采样分发到设备会话（首次分发时创建会话）
//
// 采样通道已满时丢弃该条采样并告警：对实时监测而言，
// 新鲜数据比完整数据更重要。
func (sm *SessionManager) Dispatch(device *repository.Device, sample models.BioSample) {
	sm.mu.Lock()
	if sm.closed {
		sm.mu.Unlock()
		return
	}

	s, ok := sm.sessions[device.DeviceID]
	if !ok {
		var err error
		s, err = sm.createSession(device)
		if err != nil {
			sm.mu.Unlock()
			sm.logger.Error("Failed to create monitoring session",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
			return
		}
		sm.sessions[device.DeviceID] = s
	}
	sm.mu.Unlock()

	select {
	case s.samples <- sample:
	default:
		sm.metrics.SamplesDropped.Inc()
		sm.logger.Warn("Sample dropped: device buffer full",
			zap.String("device_id", device.DeviceID),
		)
	}
}

// createSession 创建设备会话（调用方持有 sm.mu）
func (sm *SessionManager) createSession(device *repository.Device) (*session, error) {
	sessionLogger := sm.logger.With(
		zap.String("device_id", device.DeviceID),
		zap.String("tenant_id", device.TenantID),
	)

	monitor, err := protocol.New(sm.protocolConfig, protocol.SystemClock(), sm.audit, sessionLogger)
	if err != nil {
		return nil, err
	}

	s := &session{
		device:  device,
		monitor: monitor,
		samples: make(chan models.BioSample, sm.sampleBuffer),
	}

	cuePlayer := audio.NewCuePlayer(sm.audioPublisher, sm.cueTopicFormat, device.SpeakerSerial, sessionLogger)

	if err := monitor.Start(context.Background(), s.samples, cuePlayer); err != nil {
		return nil, err
	}

	sm.metrics.ActiveSessions.Inc()
	sm.wg.Add(1)
	go sm.pumpEvents(s)

	sessionLogger.Info("Monitoring session created",
		zap.String("speaker_serial", device.SpeakerSerial),
	)

	return s, nil
}

// pumpEvents 将会话的协议事件扇出到 Redis Streams
//
// 事件通道在会话结束时关闭，泵随之退出。
// 发布失败只记录日志，继续处理下一条事件。
func (sm *SessionManager) pumpEvents(s *session) {
	defer func() {
		sm.metrics.ActiveSessions.Dec()
		sm.wg.Done()
	}()

	for event := range s.monitor.Events() {
		switch event.Type {
		case models.EventDetectedDistress:
			sm.metrics.DistressDetected.Inc()
		case models.EventCuePlayed:
			sm.metrics.CuesPlayed.Inc()
		case models.EventRecovered:
			sm.metrics.Recoveries.Inc()
		}

		if err := sm.eventPublisher.Publish(context.Background(), s.device.DeviceID, s.device.TenantID, event); err != nil {
			sm.logger.Error("Failed to publish protocol event",
				zap.String("device_id", s.device.DeviceID),
				zap.String("type", string(event.Type)),
				zap.Error(err),
			)
			// 继续处理下一条事件，不中断
		}
	}
}

// StopAll 停止全部会话并等待事件泵退出
func (sm *SessionManager) StopAll() {
	sm.mu.Lock()
	sm.closed = true
	sessions := make([]*session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.sessions = make(map[string]*session)
	sm.mu.Unlock()

	for _, s := range sessions {
		s.monitor.Stop()
	}
	sm.wg.Wait()

	sm.logger.Info("All monitoring sessions stopped",
		zap.Int("session_count", len(sessions)),
	)
}
