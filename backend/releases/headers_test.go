package releases

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseHeaderLine(t *testing.T) {
	tests := []struct {
		line  string
		name  string
		value string
		err   bool
	}{
		{line: "X-SourceMap: http://example.com", name: "X-SourceMap", value: "http://example.com"},
		// Only the first colon splits, so the URL scheme survives.
		{line: "X-SourceMap:http://example.com/app.js.map", name: "X-SourceMap", value: "http://example.com/app.js.map"},
		// Values are trimmed.
		{line: "Cache-Control:   max-age=3600  ", name: "Cache-Control", value: "max-age=3600"},
		// Caller casing is preserved verbatim.
		{line: "x-sourcemap: a", name: "x-sourcemap", value: "a"},
		{line: "Content-Type: text/plain; charset=utf-8", name: "Content-Type", value: "text/plain; charset=utf-8"},
		// Empty values are legal.
		{line: "X-Empty:", name: "X-Empty", value: ""},

		{line: "lol", err: true},
		{line: "", err: true},
		{line: ": value", err: true},
		{line: "X-SourceMap: http://example.com/\r\n\ntest.map.js\n", err: true},
		{line: "X-Source\rMap: ok", err: true},
		{line: "X-SourceMap: a\tb", err: true},
		{line: "X-SourceMap: a\\b", err: true},
	}
	for _, test := range tests {
		name, value, err := ParseHeaderLine(test.line)
		if test.err {
			assert.Error(t, err, "expected %q to be rejected", test.line)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "expected a validation error for %q", test.line)
			continue
		}
		assert.NoError(t, err, "expected %q to parse", test.line)
		assert.Equal(t, test.name, name)
		assert.Equal(t, test.value, value)
	}
}

func TestMergeHeaders(t *testing.T) {
	pairs, err := parseHeaderLines([]string{"X-SourceMap: http://example.com"})
	assert.NoError(t, err)
	headers := mergeHeaders("application/javascript", pairs)
	assert.Equal(t, map[string]string{
		"Content-Type": "application/javascript",
		"X-SourceMap":  "http://example.com",
	}, headers)
}

func TestMergeHeadersCallerOverridesContentType(t *testing.T) {
	pairs, err := parseHeaderLines([]string{"Content-Type: text/css"})
	assert.NoError(t, err)
	headers := mergeHeaders("application/octet-stream", pairs)
	assert.Equal(t, map[string]string{"Content-Type": "text/css"}, headers)
}

func TestMergeHeadersLastDuplicateWins(t *testing.T) {
	pairs, err := parseHeaderLines([]string{"X-A: one", "X-A: two"})
	assert.NoError(t, err)
	headers := mergeHeaders("", pairs)
	assert.Equal(t, map[string]string{"X-A": "two"}, headers)
}

func TestMergeHeadersNoDeclaredContentType(t *testing.T) {
	headers := mergeHeaders("", nil)
	assert.Equal(t, map[string]string{}, headers)
}

func TestParseHeaderLinesFirstBadLineAborts(t *testing.T) {
	_, err := parseHeaderLines([]string{"X-A: ok", "lol", "X-B: never reached"})
	assert.Error(t, err)
}
