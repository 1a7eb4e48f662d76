package core

// Logger is the app-wide logger.
// args may hold errors, maps of extra data, and at most one Actor (the user the log line is about).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Actor identifies the user behind a request, for error reports.
type Actor struct {
	ID       string
	Username string
	IsAdmin  bool
}
