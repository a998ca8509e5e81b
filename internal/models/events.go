package models

import "time"

// ProtocolEventType 协议事件类型
type ProtocolEventType string

const (
	EventDetectedDistress ProtocolEventType = "detected_distress" // 检测到夜惊征兆
	EventCuePlayed        ProtocolEventType = "cue_played"        // 安抚音频已播放
	EventRecovered        ProtocolEventType = "recovered"         // 已确认恢复平稳
)

// ProtocolEvent 协议事件（供UI等实时消费者使用）
//
// 按因果顺序单调发出：DetectedDistress 一定先于由它引起的 CuePlayed。
type ProtocolEvent struct {
	Type          ProtocolEventType // 事件类型
	Trigger       TriggerType       // 触发类型（仅 detected_distress）
	Severity      float64           // 严重度（仅 detected_distress）
	StabilizedFor time.Duration     // 平稳持续时长（仅 recovered）
	At            time.Time         // 事件时间戳
}

// 审计事件类型
const (
	AuditStarted          = "started"
	AuditStopped          = "stopped"
	AuditDistressDetected = "distress_detected"
	AuditCuePlayed        = "cue_played"
	AuditCueFailed        = "cue_failed"
	AuditRecovered        = "recovered"
)

// AuditEvent 审计事件（单向审计流，协议本身不回读）
type AuditEvent struct {
	Type string                 // 事件类型标签
	Meta map[string]interface{} // 附加元数据（如 trigger/severity）
	At   time.Time              // 事件时间戳
}
