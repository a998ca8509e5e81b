// Package models 定义夜惊监测协议的核心数据模型
//
// 包含：
// - BioSample：单条生理采样（心率、HRV、体动、睡眠阶段）
// - Baseline：滑动窗口内的生理基线（各信号的滚动均值）
// - DetectedAnomaly：单次异常检测结果（触发类型 + 严重度）
// - ProtocolEvent / AuditEvent：协议事件流与审计事件
package models

import "time"

// SleepStage 睡眠阶段
type SleepStage string

const (
	StageWake    SleepStage = "wake"
	StageREM     SleepStage = "rem"
	StageNREM    SleepStage = "nrem"
	StageUnknown SleepStage = "unknown"
)

// ParseSleepStage 解析睡眠阶段字符串
//
// 除标准枚举外，兼容厂家别名：
// - "light" / "deep"（Sleepace 浅睡/深睡）→ nrem
// 无法识别的值返回 unknown
func ParseSleepStage(s string) SleepStage {
	switch s {
	case "wake":
		return StageWake
	case "rem":
		return StageREM
	case "nrem", "light", "deep":
		return StageNREM
	default:
		return StageUnknown
	}
}

// BioSample 单条生理采样数据（不可变值类型）
//
// 由外部传感器以任意（可能不规则的）间隔产生。
// 只有 Stage == nrem 的采样参与基线和异常检测逻辑。
type BioSample struct {
	At        time.Time  // 采样时间戳
	HeartRate int        // 心率（次/分钟）
	HRV       float64    // 心率变异性指标
	Motion    float64    // 体动强度（无量纲）
	Stage     SleepStage // 睡眠阶段
}

// Baseline 生理基线（滑动窗口内各信号的滚动均值）
//
// 在累计 MinSamplesForBaseline 个合格采样之前不存在（nil）。
type Baseline struct {
	HeartRate   float64 // 心率均值
	HRV         float64 // HRV均值
	Motion      float64 // 体动均值
	SampleCount int     // 窗口内采样数量
}

// TriggerType 异常触发类型
type TriggerType string

const (
	TriggerHRSpike     TriggerType = "hr_spike"     // 心率骤升
	TriggerHRVDrop     TriggerType = "hrv_drop"     // HRV骤降
	TriggerMotionSpike TriggerType = "motion_spike" // 体动骤升
)

// DetectedAnomaly 单次异常检测结果（瞬态，不持久化）
type DetectedAnomaly struct {
	Trigger  TriggerType // 触发类型
	Severity float64     // 严重度（偏离基线的归一化幅度，非负）
	At       time.Time   // 采样时间戳
}
