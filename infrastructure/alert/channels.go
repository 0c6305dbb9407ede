package alert

import (
	"go.uber.org/zap"

	"market-bridge-go/infrastructure/logger"
)

// LogChannel 把告警写入结构化日志，级别映射到 zap。
type LogChannel struct {
	logger *logger.Logger
	name   string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, lg *logger.Logger) *LogChannel {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &LogChannel{logger: lg, name: name}
}

// Send 发送告警到日志
func (c *LogChannel) Send(a Alert) error {
	fields := make([]zap.Field, 0, len(a.Fields)+3)
	fields = append(fields,
		zap.String("alert_level", string(a.Level)),
		zap.String("alert_key", a.Key),
		zap.Time("alert_ts", a.Timestamp),
	)
	for k, v := range a.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch a.Level {
	case LevelCritical, LevelError:
		c.logger.Error(a.Message, fields...)
	case LevelWarning:
		c.logger.Warn(a.Message, fields...)
	default:
		c.logger.Info(a.Message, fields...)
	}
	return nil
}

// Name 返回通道名称
func (c *LogChannel) Name() string {
	return c.name
}
