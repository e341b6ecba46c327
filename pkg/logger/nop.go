package logger

// NopLogger discards everything. Used by tests and library callers that
// don't care about logs.
type NopLogger struct{}

// NewNop returns a logger that discards all output.
func NewNop() Logger {
	return &NopLogger{}
}

func (n *NopLogger) Debug(string, ...Field) {}
func (n *NopLogger) Info(string, ...Field)  {}
func (n *NopLogger) Warn(string, ...Field)  {}
func (n *NopLogger) Error(string, ...Field) {}
func (n *NopLogger) With(...Field) Logger   { return n }
func (n *NopLogger) Sync() error            { return nil }
