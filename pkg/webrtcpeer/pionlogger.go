package webrtcpeer

import (
	"log"

	"github.com/pion/logging"
)

// Logger is the ambient *log.Logger the rest of this repository logs
// through. webrtcpeer wires it into pion's own LoggerFactory so ICE/DTLS
// diagnostics land in the same place as proxy/session logs, instead of
// pion's default stderr writer.
type Logger = log.Logger

type pionLoggerFactory struct {
	logger *Logger
}

func newPionLoggerFactory(logger *Logger) logging.LoggerFactory {
	return &pionLoggerFactory{logger: logger}
}

func (f *pionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{scope: scope, logger: f.logger}
}

// pionLogger adapts the ambient *log.Logger to pion/logging.LeveledLogger.
// Trace/Debug are dropped; Info/Warn/Error are all forwarded, since the
// stdlib logger carries no level filtering of its own.
type pionLogger struct {
	scope  string
	logger *Logger
}

func (l *pionLogger) prefixf(level, format string, args ...interface{}) {
	l.logger.Printf("[webrtc:%s] %s: "+format, append([]interface{}{l.scope, level}, args...)...)
}

func (l *pionLogger) Trace(string)                        {}
func (l *pionLogger) Tracef(string, ...interface{})       {}
func (l *pionLogger) Debug(string)                        {}
func (l *pionLogger) Debugf(string, ...interface{})       {}
func (l *pionLogger) Info(msg string)                      { l.prefixf("info", "%s", msg) }
func (l *pionLogger) Infof(format string, args ...interface{}) { l.prefixf("info", format, args...) }
func (l *pionLogger) Warn(msg string)                       { l.prefixf("warn", "%s", msg) }
func (l *pionLogger) Warnf(format string, args ...interface{}) { l.prefixf("warn", format, args...) }
func (l *pionLogger) Error(msg string)                      { l.prefixf("error", "%s", msg) }
func (l *pionLogger) Errorf(format string, args ...interface{}) { l.prefixf("error", format, args...) }
