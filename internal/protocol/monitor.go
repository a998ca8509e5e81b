// Package protocol 实现夜惊检测与干预协议的核心状态机
//
// 一个 Monitor 对应一次监测会话：
// idle →（检测到异常）→ 播放安抚音频 → armed-cooldown →（平稳采样）→ recovering →（平稳持续满恢复窗口）→ idle
//
// 每个会话是显式构造的独立实例，配置与依赖（时钟、审计接收器、音频端口、采样源）
// 全部注入，不使用任何进程级单例。
package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/baseline"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/evaluator"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 会话阶段
const (
	phaseIdle          = "idle"           // 空闲，接受新的异常检测
	phaseArmedCooldown = "armed-cooldown" // 音频已触发，冷却期内抑制重复干预
	phaseRecovering    = "recovering"     // 正在累计平稳采样，等待确认恢复
)

// Config 协议配置（全部由调用方提供，核心不读环境变量）
type Config struct {
	SlidingWindow         time.Duration    // 基线滑动窗口时长
	CooldownPeriod        time.Duration    // 音频触发后的抑制时长
	RecoveryWindow        time.Duration    // 确认恢复所需的连续平稳时长
	MinSamplesForBaseline int              // 开始检测前的最少合格采样数
	CueTimeout            time.Duration    // 音频播放的有界等待时长（默认 5s）
	EventBuffer           int              // 协议事件通道缓冲大小（默认 64）
	Thresholds            evaluator.Config // 检测阈值
}

// Monitor 夜惊监测协议状态机
//
// 单消费者模型：一个 run goroutine 顺序消费采样通道，
// 每条采样的处理（基线更新 → 异常检测 → 状态转移 → 音频副作用 → 事件发出）
// 是一个原子步骤，不存在对共享状态的并发处理。
type Monitor struct {
	config Config
	clock  Clock
	audit  AuditSink
	logger *zap.Logger
	eval   *evaluator.Evaluator

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	events    chan models.ProtocolEvent
	sessionID string

	// 以下状态仅由 run goroutine 访问
	estimator           *baseline.Estimator
	audio               AudioPort
	phase               string
	lastCueAt           *time.Time // 最近一次音频触发的采样时间戳
	recoveryStreakStart *time.Time // 当前连续平稳段的起始时间戳
}

// New 创建 Monitor
//
// clock 为 nil 时使用系统时钟，audit 为 nil 时使用空接收器。
func New(cfg Config, clock Clock, audit AuditSink, logger *zap.Logger) (*Monitor, error) {
	if cfg.SlidingWindow <= 0 {
		return nil, fmt.Errorf("sliding window must be positive")
	}
	if cfg.CooldownPeriod <= 0 {
		return nil, fmt.Errorf("cooldown period must be positive")
	}
	if cfg.RecoveryWindow <= 0 {
		return nil, fmt.Errorf("recovery window must be positive")
	}
	if cfg.MinSamplesForBaseline <= 0 {
		return nil, fmt.Errorf("min samples for baseline must be positive")
	}
	if cfg.CueTimeout <= 0 {
		cfg.CueTimeout = 5 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if clock == nil {
		clock = SystemClock()
	}
	if audit == nil {
		audit = NopAuditSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Monitor{
		config: cfg,
		clock:  clock,
		audit:  audit,
		logger: logger,
		eval:   evaluator.NewEvaluator(cfg.Thresholds),
	}, nil
}

// Start 启动监测会话
//
// 幂等：已在运行时的重复调用是无操作（不产生重复的 started 审计事件，
// 不重复订阅采样源）。每次成功启动都会重置基线和会话状态。
// 采样源关闭或 ctx 取消都会触发与 Stop 等价的清理。
func (m *Monitor) Start(ctx context.Context, samples <-chan models.BioSample, audio AudioPort) error {
	if samples == nil {
		return fmt.Errorf("sample source is required")
	}
	if audio == nil {
		return fmt.Errorf("audio port is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.logger.Warn("Monitor already running, ignoring duplicate start")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.events = make(chan models.ProtocolEvent, m.config.EventBuffer)
	m.sessionID = uuid.New().String()

	m.estimator = baseline.NewEstimator(m.config.SlidingWindow, m.config.MinSamplesForBaseline)
	m.audio = audio
	m.phase = phaseIdle
	m.lastCueAt = nil
	m.recoveryStreakStart = nil

	m.record(models.AuditStarted, map[string]interface{}{
		"session_id": m.sessionID,
	}, m.clock.Now())

	m.logger.Info("Night terror monitor started",
		zap.String("session_id", m.sessionID),
		zap.Duration("sliding_window", m.config.SlidingWindow),
		zap.Duration("cooldown_period", m.config.CooldownPeriod),
		zap.Duration("recovery_window", m.config.RecoveryWindow),
		zap.Int("min_baseline_samples", m.config.MinSamplesForBaseline),
	)

	go m.run(runCtx, samples)

	return nil
}

// Stop 停止监测会话
//
// 幂等：未运行时（含采样源已关闭后）调用是无操作，不会 panic。
// 每次成功启动恰好产生一个 stopped 审计事件。
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
}

// Events 返回当前会话的协议事件通道
//
// 会话结束时通道关闭。通道在 Start 之前为 nil。
func (m *Monitor) Events() <-chan models.ProtocolEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// run 会话主循环（单消费者）
func (m *Monitor) run(ctx context.Context, samples <-chan models.BioSample) {
	defer func() {
		// stopped 审计先于事件通道关闭：消费者读完事件流时审计已齐全
		m.record(models.AuditStopped, map[string]interface{}{
			"session_id": m.sessionID,
		}, m.clock.Now())
		m.logger.Info("Night terror monitor stopped",
			zap.String("session_id", m.sessionID),
		)

		m.mu.Lock()
		m.running = false
		close(m.events)
		done := m.done
		m.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				// 采样源终止（如传感器断连）：等价于 Stop 的清理，不是错误
				m.logger.Info("Sample source closed, tearing down session",
					zap.String("session_id", m.sessionID),
				)
				return
			}
			m.process(ctx, sample)
		}
	}
}

// process 处理单条采样（原子步骤）
func (m *Monitor) process(ctx context.Context, sample models.BioSample) {
	// 非 NREM 采样只观察不处理：不更新基线，不产生任何事件
	if sample.Stage != models.StageNREM {
		m.logger.Debug("Ignoring non-NREM sample",
			zap.String("stage", string(sample.Stage)),
			zap.Time("at", sample.At),
		)
		return
	}

	// 检测针对本采样之前的基线快照进行，之后本采样才进入窗口，
	// 避免采样稀释自身的偏离幅度
	base := m.estimator.CurrentBaseline()
	m.estimator.Accept(sample)

	if base == nil {
		m.logger.Debug("Absorbing sample into baseline",
			zap.Int("sample_count", m.estimator.SampleCount()),
			zap.Int("min_required", m.config.MinSamplesForBaseline),
		)
		return
	}

	if anomaly := m.eval.Evaluate(sample, base); anomaly != nil {
		m.handleAnomaly(ctx, sample, anomaly)
	} else {
		m.handleNormalized(sample)
	}
}

// handleAnomaly 处理异常采样
func (m *Monitor) handleAnomaly(ctx context.Context, sample models.BioSample, anomaly *models.DetectedAnomaly) {
	// 恢复段必须连续：任何新异常都会清零累计中的平稳段
	if m.recoveryStreakStart != nil {
		m.logger.Debug("Recovery streak broken by anomaly",
			zap.String("trigger", string(anomaly.Trigger)),
			zap.Time("streak_start", *m.recoveryStreakStart),
		)
		m.recoveryStreakStart = nil
	}

	// 冷却期内的异常被抑制：不发新事件，不播新音频
	if m.lastCueAt != nil && sample.At.Sub(*m.lastCueAt) < m.config.CooldownPeriod {
		m.phase = phaseArmedCooldown
		m.logger.Debug("Anomaly suppressed within cooldown period",
			zap.String("phase", m.phase),
			zap.String("trigger", string(anomaly.Trigger)),
			zap.Float64("severity", anomaly.Severity),
			zap.Time("last_cue_at", *m.lastCueAt),
		)
		return
	}

	m.emit(models.ProtocolEvent{
		Type:     models.EventDetectedDistress,
		Trigger:  anomaly.Trigger,
		Severity: anomaly.Severity,
		At:       sample.At,
	})
	m.record(models.AuditDistressDetected, map[string]interface{}{
		"session_id": m.sessionID,
		"trigger":    string(anomaly.Trigger),
		"severity":   anomaly.Severity,
	}, sample.At)

	m.logger.Info("Distress detected",
		zap.String("session_id", m.sessionID),
		zap.String("trigger", string(anomaly.Trigger)),
		zap.Float64("severity", anomaly.Severity),
		zap.Time("at", sample.At),
	)

	// 播放安抚音频（有界等待）。失败只审计不中断：
	// 无论成败，本次发作都按已处理对待，冷却期照常开始
	cueCtx, cancelCue := context.WithTimeout(ctx, m.config.CueTimeout)
	err := m.audio.PlayLowVolumeCue(cueCtx)
	cancelCue()

	if err != nil {
		m.record(models.AuditCueFailed, map[string]interface{}{
			"session_id": m.sessionID,
			"trigger":    string(anomaly.Trigger),
			"error":      err.Error(),
		}, sample.At)
		m.logger.Warn("Failed to play calming cue, episode still handled",
			zap.String("session_id", m.sessionID),
			zap.Error(err),
		)
	} else {
		m.emit(models.ProtocolEvent{
			Type: models.EventCuePlayed,
			At:   sample.At,
		})
		m.record(models.AuditCuePlayed, map[string]interface{}{
			"session_id": m.sessionID,
			"trigger":    string(anomaly.Trigger),
		}, sample.At)
	}

	cueAt := sample.At
	m.lastCueAt = &cueAt
	m.phase = phaseArmedCooldown
}

// handleNormalized 处理平稳采样
func (m *Monitor) handleNormalized(sample models.BioSample) {
	// 没有进行中的发作，无需恢复跟踪
	if m.lastCueAt == nil {
		return
	}

	if m.recoveryStreakStart == nil {
		streakStart := sample.At
		m.recoveryStreakStart = &streakStart
		m.phase = phaseRecovering
		m.logger.Debug("Recovery streak started",
			zap.String("session_id", m.sessionID),
			zap.String("phase", m.phase),
			zap.Time("at", sample.At),
		)
		return
	}

	if stabilizedFor := sample.At.Sub(*m.recoveryStreakStart); stabilizedFor >= m.config.RecoveryWindow {
		m.emit(models.ProtocolEvent{
			Type:          models.EventRecovered,
			StabilizedFor: stabilizedFor,
			At:            sample.At,
		})
		m.record(models.AuditRecovered, map[string]interface{}{
			"session_id":         m.sessionID,
			"stabilized_for_sec": stabilizedFor.Seconds(),
		}, sample.At)

		m.logger.Info("Episode recovered",
			zap.String("session_id", m.sessionID),
			zap.Duration("stabilized_for", stabilizedFor),
		)

		// 发作结束，完全回到空闲（冷却标记一并清除）
		m.lastCueAt = nil
		m.recoveryStreakStart = nil
		m.phase = phaseIdle
	}
}

// emit 发出协议事件（非阻塞）
//
// 消费者跟不上时丢弃事件并告警，绝不阻塞采样处理
func (m *Monitor) emit(event models.ProtocolEvent) {
	select {
	case m.events <- event:
	default:
		m.logger.Warn("Protocol event dropped: consumer not keeping up",
			zap.String("type", string(event.Type)),
		)
	}
}

// record 记录审计事件（尽力而为）
func (m *Monitor) record(eventType string, meta map[string]interface{}, at time.Time) {
	m.audit.Record(models.AuditEvent{
		Type: eventType,
		Meta: meta,
		At:   at,
	})
}
