package badgerstore

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger routes badger's printf-style logging into slog
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger.With("component", "badger")}
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(msg(format, args))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(msg(format, args))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(msg(format, args))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(msg(format, args))
}

func msg(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
