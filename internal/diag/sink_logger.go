package diag

// Logger is the slice of the application logger the event sink needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// LoggerSink writes events through the application logger: drops at
// warn level, deliveries at info.
type LoggerSink struct {
	L Logger
}

func (s LoggerSink) Log(e Event) {
	if e.Verdict == Dropped {
		s.L.Warnf("%s", e)
		return
	}
	s.L.Infof("%s", e)
}
