// Package evaluator 提供基于基线的多信号异常检测
//
// 检测规则（固定优先级，每条采样最多报告一个异常）：
// 1. hr_spike：心率超出基线固定裕量
// 2. hrv_drop：HRV相对基线下降超过比例阈值
// 3. motion_spike：体动超出基线的倍数阈值
package evaluator

import (
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/models"
)

// Config 检测阈值配置
type Config struct {
	HRSpikeMargin     float64 // 心率骤升裕量（bpm），默认 50
	HRVDropRatio      float64 // HRV下降比例阈值，默认 0.30
	MotionSpikeFactor float64 // 体动倍数阈值，默认 10
	MotionFloor       float64 // 体动基线下限（防止接近零的基线导致误报），默认 0.05
}

// DefaultConfig 返回默认阈值配置
func DefaultConfig() Config {
	return Config{
		HRSpikeMargin:     50,
		HRVDropRatio:      0.30,
		MotionSpikeFactor: 10,
		MotionFloor:       0.05,
	}
}

// Evaluator 异常检测器
type Evaluator struct {
	config Config
}

// NewEvaluator 创建异常检测器
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.HRSpikeMargin <= 0 {
		cfg.HRSpikeMargin = 50
	}
	if cfg.HRVDropRatio <= 0 {
		cfg.HRVDropRatio = 0.30
	}
	if cfg.MotionSpikeFactor <= 0 {
		cfg.MotionSpikeFactor = 10
	}
	if cfg.MotionFloor <= 0 {
		cfg.MotionFloor = 0.05
	}
	return &Evaluator{config: cfg}
}

// Evaluate 评估单条采样
//
// 基线缺失或采样非 NREM 阶段时不做检测（返回 nil）。
// 规则按 hr_spike → hrv_drop → motion_spike 的固定顺序评估，
// 首个命中的规则胜出，每条采样最多报告一个异常。
func (e *Evaluator) Evaluate(sample models.BioSample, baseline *models.Baseline) *models.DetectedAnomaly {
	if baseline == nil || sample.Stage != models.StageNREM {
		return nil
	}

	// 1. 心率骤升
	if excess := float64(sample.HeartRate) - baseline.HeartRate; excess >= e.config.HRSpikeMargin {
		return &models.DetectedAnomaly{
			Trigger:  models.TriggerHRSpike,
			Severity: excess / e.config.HRSpikeMargin,
			At:       sample.At,
		}
	}

	// 2. HRV骤降（基线HRV非正时跳过，避免除零）
	if baseline.HRV > 0 {
		if drop := (baseline.HRV - sample.HRV) / baseline.HRV; drop >= e.config.HRVDropRatio {
			return &models.DetectedAnomaly{
				Trigger:  models.TriggerHRVDrop,
				Severity: drop,
				At:       sample.At,
			}
		}
	}

	// 3. 体动骤升（基线体动以 MotionFloor 为下限）
	floor := baseline.Motion
	if floor < e.config.MotionFloor {
		floor = e.config.MotionFloor
	}
	if threshold := floor * e.config.MotionSpikeFactor; sample.Motion >= threshold {
		return &models.DetectedAnomaly{
			Trigger:  models.TriggerMotionSpike,
			Severity: sample.Motion / threshold,
			At:       sample.At,
		}
	}

	return nil
}
