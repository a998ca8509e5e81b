package baseline

import (
	"testing"
	"time"

	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 8, 1, 2, 0, 0, 0, time.UTC)

func nremAt(offset time.Duration, hr int, hrv, motion float64) models.BioSample {
	return models.BioSample{
		At:        t0.Add(offset),
		HeartRate: hr,
		HRV:       hrv,
		Motion:    motion,
		Stage:     models.StageNREM,
	}
}

func TestEstimator_NoBaselineBeforeMinSamples(t *testing.T) {
	e := NewEstimator(5*time.Minute, 3)

	e.Accept(nremAt(0, 70, 50, 0.02))
	e.Accept(nremAt(time.Second, 72, 48, 0.03))

	assert.Nil(t, e.CurrentBaseline())
	assert.Equal(t, 2, e.SampleCount())
}

func TestEstimator_RollingMean(t *testing.T) {
	e := NewEstimator(5*time.Minute, 3)

	e.Accept(nremAt(0, 68, 40, 0.01))
	e.Accept(nremAt(time.Second, 70, 50, 0.02))
	e.Accept(nremAt(2*time.Second, 72, 60, 0.03))

	b := e.CurrentBaseline()
	require.NotNil(t, b)
	assert.InDelta(t, 70.0, b.HeartRate, 0.001)
	assert.InDelta(t, 50.0, b.HRV, 0.001)
	assert.InDelta(t, 0.02, b.Motion, 0.001)
	assert.Equal(t, 3, b.SampleCount)
}

func TestEstimator_IgnoresNonNREMSamples(t *testing.T) {
	e := NewEstimator(5*time.Minute, 1)

	e.Accept(models.BioSample{At: t0, HeartRate: 180, HRV: 1, Motion: 9, Stage: models.StageWake})
	e.Accept(models.BioSample{At: t0, HeartRate: 180, HRV: 1, Motion: 9, Stage: models.StageREM})
	e.Accept(models.BioSample{At: t0, HeartRate: 180, HRV: 1, Motion: 9, Stage: models.StageUnknown})

	assert.Equal(t, 0, e.SampleCount())
	assert.Nil(t, e.CurrentBaseline())
}

func TestEstimator_EvictsByTimestampNotCount(t *testing.T) {
	// 采样间隔不规则：淘汰必须严格按时间戳
	e := NewEstimator(time.Minute, 1)

	e.Accept(nremAt(0, 60, 40, 0.01))
	e.Accept(nremAt(2*time.Second, 62, 42, 0.01))
	e.Accept(nremAt(45*time.Second, 64, 44, 0.01))
	// 这条采样使前两条超出1分钟窗口
	e.Accept(nremAt(70*time.Second, 80, 50, 0.05))

	b := e.CurrentBaseline()
	require.NotNil(t, b)
	assert.Equal(t, 2, b.SampleCount)
	assert.InDelta(t, 72.0, b.HeartRate, 0.001) // (64+80)/2
}

func TestEstimator_ExactWindowBoundaryKept(t *testing.T) {
	// 恰好在窗口边界上的采样保留（淘汰条件是严格早于 cutoff）
	e := NewEstimator(time.Minute, 1)

	e.Accept(nremAt(0, 60, 40, 0.01))
	e.Accept(nremAt(time.Minute, 70, 50, 0.02))

	b := e.CurrentBaseline()
	require.NotNil(t, b)
	assert.Equal(t, 2, b.SampleCount)
}

func TestEstimator_Reset(t *testing.T) {
	e := NewEstimator(5*time.Minute, 1)

	e.Accept(nremAt(0, 70, 50, 0.02))
	require.NotNil(t, e.CurrentBaseline())

	e.Reset()

	assert.Nil(t, e.CurrentBaseline())
	assert.Equal(t, 0, e.SampleCount())

	// 重置后运行和从零累积
	e.Accept(nremAt(time.Hour, 80, 60, 0.04))
	b := e.CurrentBaseline()
	require.NotNil(t, b)
	assert.InDelta(t, 80.0, b.HeartRate, 0.001)
}
