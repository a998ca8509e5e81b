package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// VitalsMessage 穿戴设备 MQTT 消息结构
//
// 主题格式: wearable/{serial}/vitals，每条消息一个采样点
type VitalsMessage struct {
	HeartRate  int     `json:"heartRate"`  // 心率（次/分钟）
	HRV        float64 `json:"hrv"`        // 心率变异性
	Motion     float64 `json:"motion"`     // 体动强度
	SleepStage string  `json:"sleepStage"` // 睡眠阶段（wake/rem/nrem/light/deep）
	Timestamp  int64   `json:"timestamp"`  // Unix秒时间戳（可选，缺省取接收时间）
}

// ParseVitalsMessage 解析穿戴设备消息
func ParseVitalsMessage(payload []byte) (*VitalsMessage, error) {
	var msg VitalsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vitals message: %w", err)
	}
	return &msg, nil
}

// ToBioSample 转换为 BioSample
//
// 时间戳缺省（为0）时以 receivedAt 填充
func (m *VitalsMessage) ToBioSample(receivedAt time.Time) BioSample {
	at := receivedAt
	if m.Timestamp > 0 {
		at = time.Unix(m.Timestamp, 0)
	}
	return BioSample{
		At:        at,
		HeartRate: m.HeartRate,
		HRV:       m.HRV,
		Motion:    m.Motion,
		Stage:     ParseSleepStage(m.SleepStage),
	}
}
