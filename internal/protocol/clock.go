package protocol

import "time"

// Clock 时钟抽象（可注入，便于测试使用合成时间）
//
// 冷却期和恢复窗口均通过采样时间戳的惰性比较实现，
// Clock 仅用于没有采样在手的场合（started/stopped 审计时间戳）。
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock 返回系统时钟
func SystemClock() Clock {
	return systemClock{}
}
