// Package audit 提供基于 zap 的审计事件接收器
package audit

import (
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/models"

	"go.uber.org/zap"
)

// ZapSink 将审计事件写入结构化日志
//
// 单向审计流：协议只写不读。写入失败由 zap 自行处理，不回传协议。
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink 创建审计接收器
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{
		logger: logger.Named("audit"),
	}
}

// Record 记录一条审计事件
func (s *ZapSink) Record(event models.AuditEvent) {
	s.logger.Info("protocol audit event",
		zap.String("event_type", event.Type),
		zap.Any("meta", event.Meta),
		zap.Time("at", event.At),
	)
}
