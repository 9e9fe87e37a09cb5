package core

// Logger is any service that can report application events and errors.
// Implementations may forward to an external error tracker.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, err error, args ...interface{})
	Critical(msg string, err error, args ...interface{})
}
