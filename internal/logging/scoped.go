package logging

// Scoped prefixes every message with a fixed tag so interleaved output from
// concurrent bridge sessions stays attributable.
type Scoped struct {
	prefix string
}

// ForSession returns a logger tagged with the given session id.
func ForSession(id string) Scoped {
	return Scoped{prefix: "[session " + id + "] "}
}

func (s Scoped) Error(format string, v ...interface{}) {
	Error(s.prefix+format, v...)
}

func (s Scoped) Warn(format string, v ...interface{}) {
	Warn(s.prefix+format, v...)
}

func (s Scoped) Notice(format string, v ...interface{}) {
	Notice(s.prefix+format, v...)
}

func (s Scoped) Info(format string, v ...interface{}) {
	Info(s.prefix+format, v...)
}

func (s Scoped) Debug(format string, v ...interface{}) {
	Debug(s.prefix+format, v...)
}
