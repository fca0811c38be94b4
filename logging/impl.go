package logging

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	name  string
	level zap.AtomicLevel

	// cores are shared between a logger and all of its subloggers.
	cores   []zapcore.Core
	sugared *zap.SugaredLogger
}

func newImpl(name string, level zap.AtomicLevel, cores ...zapcore.Core) *impl {
	sugared := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	if name != "" {
		sugared = sugared.Named(name)
	}
	return &impl{name: name, level: level, cores: cores, sugared: sugared}
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.sugared.Debugf(template, args...)
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.sugared.Infof(template, args...)
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.sugared.Warnf(template, args...)
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.sugared.Errorf(template, args...)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.sugared.Debugw(msg, keysAndValues...)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.sugared.Infow(msg, keysAndValues...)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.sugared.Warnw(msg, keysAndValues...)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.sugared.Errorw(msg, keysAndValues...)
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = imp.name + "." + subname
	}

	return &impl{
		name:    newName,
		level:   imp.level,
		cores:   imp.cores,
		sugared: imp.sugared.Named(subname),
	}
}

func (imp *impl) SetLevel(level zapcore.Level) {
	imp.level.SetLevel(level)
}

func (imp *impl) Level() zapcore.Level {
	return imp.level.Level()
}

// AsZap returns the underlying sugared logger, skipping the caller frame added for the wrapper.
func (imp *impl) AsZap() *zap.SugaredLogger {
	return imp.sugared.WithOptions(zap.AddCallerSkip(-1))
}

func (imp *impl) Sync() error {
	var errs []error
	for _, core := range imp.cores {
		if err := core.Sync(); err != nil {
			errs = append(errs, err)
		}
	}

	return multierr.Combine(errs...)
}
