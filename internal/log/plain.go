package log

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

var _ Sink = (*plainSink)(nil)

func newPlainSink(w io.Writer, timestamps bool) *plainSink {
	return &plainSink{
		w:          w,
		timestamps: timestamps,
		start:      time.Now(),
	}
}

type plainSink struct {
	w          io.Writer
	timestamps bool
	start      time.Time
}

// Log entries as "level[:scope]: message [key=value ...]".
func (s *plainSink) Log(entry Entry) error {
	var prefix string
	scope, hasScope := entry.Attributes[scopeKey]
	if hasScope {
		prefix = entry.Level.String() + ":" + scope + ": "
	} else {
		prefix = entry.Level.String() + ": "
	}
	if s.timestamps {
		prefix = fmt.Sprintf("%06.3fs ", time.Since(s.start).Seconds()) + prefix
	}

	line := prefix + entry.Message
	if attrs := formatAttributes(entry.Attributes); attrs != "" {
		line += " " + attrs
	}
	_, err := fmt.Fprintln(s.w, line)
	if err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

func formatAttributes(attributes map[string]string) string {
	pairs := make([]string, 0, len(attributes))
	for key, value := range attributes {
		if key == scopeKey {
			continue
		}
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, " ")
}
