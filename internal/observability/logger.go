package observability

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/stockpile-io/stockpile/internal/log"
)

// logSink routes logr output from the OTel SDK into our logger.
type logSink struct {
	keyValues map[string]interface{}
	logger    *log.Logger
}

var _ logr.LogSink = &logSink{}

func newOtelLogger(logger *log.Logger, level log.Level) logr.Logger {
	return logr.New(&logSink{logger: logger.Scope("otel").Level(level)})
}

func (l *logSink) Init(info logr.RuntimeInfo) {}

func (l *logSink) Enabled(level int) bool {
	return otelLevelToLevel(level) >= l.logger.GetLevel()
}

func (l *logSink) Info(level int, msg string, kvs ...interface{}) {
	l.logger.Logf(otelLevelToLevel(level), "%s", l.message(msg, kvs))
}

func (l *logSink) Error(err error, msg string, kvs ...interface{}) {
	l.logger.Errorf(err, "%s", l.message(msg, kvs))
}

func (l *logSink) message(msg string, kvs []interface{}) string {
	out := &strings.Builder{}
	out.WriteString(msg)
	for k, v := range l.keyValues {
		fmt.Fprintf(out, " %s=%+v", k, v)
	}
	for i := 0; i+1 < len(kvs); i += 2 {
		fmt.Fprintf(out, " %v=%+v", kvs[i], kvs[i+1])
	}
	return out.String()
}

func (l *logSink) WithName(name string) logr.LogSink {
	return &logSink{
		keyValues: l.keyValues,
		logger:    l.logger.Scope(name),
	}
}

func (l *logSink) WithValues(kvs ...interface{}) logr.LogSink {
	merged := make(map[string]interface{}, len(l.keyValues)+len(kvs)/2)
	for k, v := range l.keyValues {
		merged[k] = v
	}
	for i := 0; i+1 < len(kvs); i += 2 {
		merged[fmt.Sprintf("%v", kvs[i])] = kvs[i+1]
	}
	return &logSink{
		keyValues: merged,
		logger:    l.logger,
	}
}

// The OTel SDK logs through logr with verbosity 0, 1, 4 and 8 meaning error,
// warning, info and debug respectively.
func otelLevelToLevel(level int) log.Level {
	switch level {
	case 0:
		return log.Error
	case 1:
		return log.Warn
	case 4:
		return log.Info
	case 8:
		return log.Debug
	default:
		return log.Trace
	}
}
