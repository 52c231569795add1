package log

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"os"
	"runtime"
	"time"

	"github.com/benbjohnson/clock"
)

var _ Interface = (*Logger)(nil)

const scopeKey = "scope"

type Entry struct {
	Level      Level             `json:"level"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Message    string            `json:"message"`
	Time       time.Time         `json:"time"`

	Error error `json:"-"`
}

// Logger is the concrete logger.
type Logger struct {
	level      Level
	attributes map[string]string
	sink       Sink
	clock      clock.Clock
}

// New returns a new logger.
func New(level Level, sink Sink) *Logger {
	return &Logger{
		level:      level,
		attributes: map[string]string{},
		sink:       sink,
		clock:      clock.New(),
	}
}

func (l Logger) Scope(scope string) *Logger {
	return l.Attrs(map[string]string{scopeKey: scope})
}

// Attrs creates a new logger with the given attributes.
func (l Logger) Attrs(attributes map[string]string) *Logger {
	attrs := map[string]string{}
	maps.Copy(attrs, l.attributes)
	maps.Copy(attrs, attributes)
	l.attributes = attrs
	return &l
}

func (l Logger) Level(level Level) *Logger {
	l.level = level
	return &l
}

func (l Logger) GetLevel() Level { return l.level }

func (l *Logger) Log(entry Entry) {
	if entry.Level < l.level {
		return
	}
	if entry.Time.IsZero() {
		entry.Time = l.clock.Now().UTC()
	}
	if len(l.attributes) > 0 {
		entry.Attributes = l.attributes
	}
	if err := l.sink.Log(entry); err != nil {
		fmt.Fprintf(os.Stderr, "stockpile:log: failed to log entry: %v", err)
	}
}

func (l *Logger) Logf(level Level, format string, args ...interface{}) {
	l.Log(Entry{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *Logger) Tracef(format string, args ...interface{}) {
	l.Log(Entry{Level: Trace, Message: fmt.Sprintf(format, args...)})
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Log(Entry{Level: Debug, Message: fmt.Sprintf(format, args...)})
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.Log(Entry{Level: Info, Message: fmt.Sprintf(format, args...)})
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Log(Entry{Level: Warn, Message: fmt.Sprintf(format, args...)})
}

func (l *Logger) Errorf(err error, format string, args ...interface{}) {
	if err == nil {
		return
	}
	l.Log(Entry{Level: Error, Message: fmt.Sprintf(format, args...) + ": " + err.Error(), Error: err})
}

// WriterAt returns a writer that logs each line written to it at the given
// level. Used to adapt subprocess and library log output.
func (l *Logger) WriterAt(level Level) *io.PipeWriter {
	reader, writer := io.Pipe()
	go l.writerScanner(reader, level)
	runtime.SetFinalizer(writer, func(w *io.PipeWriter) { _ = w.Close() })
	return writer
}

func (l *Logger) writerScanner(reader *io.PipeReader, level Level) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(nil, 1024*1024)
	for scanner.Scan() {
		l.Log(Entry{Level: level, Message: scanner.Text()})
	}
	if err := scanner.Err(); err != nil {
		l.Errorf(err, "error reading log writer")
	}
	_ = reader.Close()
}
