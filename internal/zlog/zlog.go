// Package zlog is a small leveled-logger facade standing in for the
// teacher's pktlog/log package, whose source was not available to port.
// It preserves the same Tracef/Debugf/Infof/Warnf/Errorf call surface
// backed by go.uber.org/zap.
package zlog

import "go.uber.org/zap"

// Logger is the call surface the addrmgr package logs through.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type sugared struct {
	s *zap.SugaredLogger
}

// New wraps a zap logger as a Logger. If z is nil, a no-op logger is
// returned.
func New(z *zap.Logger) Logger {
	if z == nil {
		return Disabled
	}
	return &sugared{s: z.Sugar()}
}

// NewProduction builds a Logger from zap's production configuration.
func NewProduction() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

func (l *sugared) Tracef(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *sugared) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *sugared) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *sugared) Warnf(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *sugared) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }

type noop struct{}

func (noop) Tracef(string, ...interface{}) {}
func (noop) Debugf(string, ...interface{}) {}
func (noop) Infof(string, ...interface{})  {}
func (noop) Warnf(string, ...interface{})  {}
func (noop) Errorf(string, ...interface{}) {}

// Disabled discards every log line. Used as the default Logger so callers
// that don't care about logging don't have to wire one up.
var Disabled Logger = noop{}
