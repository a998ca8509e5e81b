// Package audio 实现通过 MQTT 下发安抚音频指令的音频干预端口
package audio

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Publisher MQTT 发布接口（便于测试注入假实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// CueCommand 床头音箱指令
//
// 主题格式: speaker/{serial}/cue
type CueCommand struct {
	Action string  `json:"action"`           // "play" 或 "stop"
	Cue    string  `json:"cue,omitempty"`    // 音频名称
	Volume float64 `json:"volume,omitempty"` // 音量（0.0-1.0）
}

// CuePlayer 音频干预端口的 MQTT 实现
//
// PlayLowVolumeCue 向指定音箱发布低音量播放指令（QoS 1），
// 发布等待即为协议要求的有界等待。
type CuePlayer struct {
	publisher Publisher
	topic     string // 目标音箱的完整主题，如 speaker/SN-001/cue
	logger    *zap.Logger
}

// NewCuePlayer 创建音频干预端口
//
// topicFormat 形如 "speaker/%s/cue"，serial 为音箱序列号
func NewCuePlayer(publisher Publisher, topicFormat string, serial string, logger *zap.Logger) *CuePlayer {
	return &CuePlayer{
		publisher: publisher,
		topic:     fmt.Sprintf(topicFormat, serial),
		logger:    logger,
	}
}

// PlayLowVolumeCue 播放低音量安抚音频
func (p *CuePlayer) PlayLowVolumeCue(ctx context.Context) error {
	return p.send(ctx, CueCommand{
		Action: "play",
		Cue:    "calming",
		Volume: 0.2,
	})
}

// Stop 停止播放
func (p *CuePlayer) Stop(ctx context.Context) error {
	return p.send(ctx, CueCommand{
		Action: "stop",
	})
}

// send 发布指令（有界等待）
//
// MQTT 发布本身可能阻塞，这里通过 ctx 限定等待时长：
// 超时后即刻返回错误（fire-and-continue），发布结果不再影响协议。
func (p *CuePlayer) send(ctx context.Context, cmd CueCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal cue command: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.publisher.Publish(p.topic, 1, false, payload)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("cue command timed out: %w", ctx.Err())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to publish cue command: %w", err)
		}
	}

	p.logger.Debug("Cue command published",
		zap.String("topic", p.topic),
		zap.String("action", cmd.Action),
	)

	return nil
}
