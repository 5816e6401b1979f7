package src

import "go.uber.org/zap"

// Logger is the structured logger every component accepts. It is satisfied by
// *zap.SugaredLogger.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
	Sync() error
}

var _ Logger = (*zap.SugaredLogger)(nil)

func NopLogger() Logger {
	return zap.NewNop().Sugar()
}
