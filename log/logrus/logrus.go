package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/twotier"
)

var _ twotier.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New returns an adapter that tags every entry with component=twotier.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "twotier")}
}

func (l LogrusLogger) Debug(msg string, f twotier.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f twotier.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f twotier.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f twotier.Fields) { l.with(f).Error(msg) }

// with moves an "err" field to logrus' error key.
func (l LogrusLogger) with(f twotier.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	e := l.E
	fields := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			e = e.WithError(err)
			continue
		}
		fields[k] = v
	}
	return e.WithFields(fields)
}
