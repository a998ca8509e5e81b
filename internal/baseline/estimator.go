// Package baseline 维护 NREM 采样的滑动窗口生理基线
package baseline

import (
	"time"

	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/models"
)

// Estimator 基线估计器
//
// 只接收 NREM 阶段的采样，按时间戳维护一个滑动窗口，
// 并以运行和（running sum）方式维护各信号的滚动均值。
// 窗口淘汰严格按时间戳（采样间隔不规则，不能按数量淘汰）。
// 无副作用；基线是窗口内容的纯函数。
type Estimator struct {
	window     time.Duration
	minSamples int

	samples   []models.BioSample // 窗口内采样（按到达顺序）
	sumHR     float64
	sumHRV    float64
	sumMotion float64
}

// NewEstimator 创建基线估计器
func NewEstimator(window time.Duration, minSamples int) *Estimator {
	return &Estimator{
		window:     window,
		minSamples: minSamples,
	}
}

// Accept 接收一条采样
//
// 非 NREM 采样直接忽略；NREM 采样加入窗口，
// 并淘汰所有严格早于 sample.At - window 的旧采样。
func (e *Estimator) Accept(sample models.BioSample) {
	if sample.Stage != models.StageNREM {
		return
	}

	e.samples = append(e.samples, sample)
	e.sumHR += float64(sample.HeartRate)
	e.sumHRV += sample.HRV
	e.sumMotion += sample.Motion

	// 按时间戳淘汰过期采样
	cutoff := sample.At.Add(-e.window)
	evicted := 0
	for _, s := range e.samples {
		if !s.At.Before(cutoff) {
			break
		}
		e.sumHR -= float64(s.HeartRate)
		e.sumHRV -= s.HRV
		e.sumMotion -= s.Motion
		evicted++
	}
	if evicted > 0 {
		e.samples = e.samples[evicted:]
	}
}

// CurrentBaseline 返回当前基线
//
// 窗口内合格采样不足 minSamples 时返回 nil（此阶段只吸收采样，不做检测）。
func (e *Estimator) CurrentBaseline() *models.Baseline {
	n := len(e.samples)
	if n < e.minSamples {
		return nil
	}
	return &models.Baseline{
		HeartRate:   e.sumHR / float64(n),
		HRV:         e.sumHRV / float64(n),
		Motion:      e.sumMotion / float64(n),
		SampleCount: n,
	}
}

// SampleCount 返回窗口内采样数量
func (e *Estimator) SampleCount() int {
	return len(e.samples)
}

// Reset 清空窗口
func (e *Estimator) Reset() {
	e.samples = nil
	e.sumHR = 0
	e.sumHRV = 0
	e.sumMotion = 0
}
