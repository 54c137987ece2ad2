package mailbus

// Logger is the logging interface used throughout the pipeline.
// Plug in any backend; adapters/zerologger provides a zerolog implementation.
//
// Messages should carry enough context to diagnose a failure without a
// debugger: domain, bucket, attempt count and the underlying cause.
type Logger interface {
	// Debugf logs debug-level messages with printf-style formatting.
	Debugf(format string, args ...interface{})

	// Infof logs info-level messages with printf-style formatting.
	Infof(format string, args ...interface{})

	// Warnf logs warning-level messages with printf-style formatting.
	Warnf(format string, args ...interface{})

	// Errorf logs error-level messages with printf-style formatting.
	Errorf(format string, args ...interface{})

	// Info logs info-level messages without formatting.
	Info(message string)
}

// NoopLogger discards everything. Useful in tests.
type NoopLogger struct{}

// Debugf implements Logger.
func (l *NoopLogger) Debugf(_ string, _ ...interface{}) {}

// Infof implements Logger.
func (l *NoopLogger) Infof(_ string, _ ...interface{}) {}

// Warnf implements Logger.
func (l *NoopLogger) Warnf(_ string, _ ...interface{}) {}

// Errorf implements Logger.
func (l *NoopLogger) Errorf(_ string, _ ...interface{}) {}

// Info implements Logger.
func (l *NoopLogger) Info(_ string) {}
