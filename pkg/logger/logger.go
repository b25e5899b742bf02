package logger

import "log/slog"

// Component returns base tagged with the component attribute.
func Component(base *slog.Logger, name string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("component", name)
}

// CronLogger adapts slog to the logger interface of github.com/robfig/cron.
type CronLogger struct {
	log *slog.Logger
}

// NewCronLogger wraps log; a nil log uses slog.Default.
func NewCronLogger(log *slog.Logger) CronLogger {
	if log == nil {
		log = slog.Default()
	}
	return CronLogger{log: log}
}

// Info logs scheduler bookkeeping at debug level; cron is chatty.
func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

// Error logs scheduler failures, including recovered job panics.
func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
