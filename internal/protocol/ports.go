package protocol

import (
	"context"

	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/models"
)

// AudioPort 音频干预端口（外部协作者）
//
// 两个操作均可失败。播放失败由 Monitor 捕获并记录 cue_failed 审计事件，
// 本次发作仍按已处理对待（冷却期照常开始），失败绝不中断监测。
type AudioPort interface {
	// PlayLowVolumeCue 播放低音量安抚音频
	PlayLowVolumeCue(ctx context.Context) error
	// Stop 停止播放
	Stop(ctx context.Context) error
}

// AuditSink 审计事件接收器（外部协作者，尽力而为）
//
// 协议只写不读；接收器内部的失败不得传播回协议。
type AuditSink interface {
	Record(event models.AuditEvent)
}

// NopAuditSink 空审计接收器
type NopAuditSink struct{}

// Record 丢弃事件
func (NopAuditSink) Record(models.AuditEvent) {}
