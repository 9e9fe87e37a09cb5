package logsvc

import (
	"log"

	"github.com/insightlab/insightlab/core"
)

// StdLogger logs to a standard library logger only. Used in development and
// tests where error tracking is not wanted.
type StdLogger struct {
	std *log.Logger
}

var _ core.Logger = (*StdLogger)(nil)

func NewStdLogger(std *log.Logger) *StdLogger {
	return &StdLogger{std: std}
}

func (l StdLogger) log(level, msg string, err error, args []interface{}) {
	l.std.Printf("%s: %s", level, msg)
	if err != nil {
		l.std.Printf("%+v", err)
	}
	for _, arg := range args {
		l.std.Printf("%+v", arg)
	}
}

func (l StdLogger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, nil, args) }
func (l StdLogger) Info(msg string, args ...interface{})  { l.log("INFO", msg, nil, args) }
func (l StdLogger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, nil, args) }

func (l StdLogger) Error(msg string, err error, args ...interface{}) {
	l.log("ERROR", msg, err, args)
}

func (l StdLogger) Critical(msg string, err error, args ...interface{}) {
	l.log("CRITICAL", msg, err, args)
}
