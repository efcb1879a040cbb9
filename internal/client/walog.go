package client

import (
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

type waLogger struct {
	log *slog.Logger
}

// NewWALogger routes whatsmeow's printf-style logging into slog.
func NewWALogger(module string) waLog.Logger {
	return &waLogger{log: slog.Default().With("module", module)}
}

func (l *waLogger) Debugf(msg string, args ...any) { l.log.Debug(fmt.Sprintf(msg, args...)) }
func (l *waLogger) Infof(msg string, args ...any)  { l.log.Info(fmt.Sprintf(msg, args...)) }
func (l *waLogger) Warnf(msg string, args ...any)  { l.log.Warn(fmt.Sprintf(msg, args...)) }
func (l *waLogger) Errorf(msg string, args ...any) { l.log.Error(fmt.Sprintf(msg, args...)) }

func (l *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{log: l.log.With("sub", module)}
}
