package log

// discard is a Sink that drops every message. Used by tests and by
// components constructed without an explicit logger.
type discard struct{}

func (discard) Output(int, Level, string) {}

// Discard returns a Logger that drops everything. Handy for unit tests that
// don't want test output polluted by core components' debug logging.
func Discard() Logger {
	return NewLoggerSink(FatalLevel+1, discard{})
}
