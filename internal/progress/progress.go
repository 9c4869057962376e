// Package progress 定义 fetch 流程的进度/告警输出接口，默认实现把事件写成结构化日志。
package progress

import (
	"github.com/sirupsen/logrus"
)

// Sink 接收进度与告警事件。
type Sink interface {
	// Report 更新 label 对应的进度（current/total）。
	Report(label string, current, total int)
	// Clear 清除 label 对应的进度指示。
	Clear(label string)
	// Warn 输出一行面向用户的告警（例如关闭连接时的统计摘要）。
	Warn(line string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Report(string, int, int) {}
func (Nop) Clear(string)            {}
func (Nop) Warn(string)             {}

// LogSink 把进度写成 debug 级别日志，告警写成 warn 级别日志。
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink 基于 logger 构造 Sink；logger 为空时使用 logrus 标准 logger。
func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Report(label string, current, total int) {
	s.logger.WithFields(logrus.Fields{
		"action":  "progress",
		"label":   label,
		"current": current,
		"total":   total,
	}).Debug("progress")
}

func (s *LogSink) Clear(label string) {
	s.logger.WithFields(logrus.Fields{
		"action": "progress",
		"label":  label,
	}).Debug("progress_done")
}

func (s *LogSink) Warn(line string) {
	s.logger.WithField("action", "fetch_stats").Warn(line)
}
