package logging

// DiscardLogger is a no-op logger that discards all messages.
type DiscardLogger struct{}

// Discard is the singleton discard logger, the default Logger of
// options.TreeOptions.
var Discard Logger = &DiscardLogger{}

func (l *DiscardLogger) Errorf(format string, args ...any) {}
func (l *DiscardLogger) Warnf(format string, args ...any)  {}
func (l *DiscardLogger) Infof(format string, args ...any)  {}
func (l *DiscardLogger) Debugf(format string, args ...any) {}
func (l *DiscardLogger) Fatalf(format string, args ...any) {}
