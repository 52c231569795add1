package releases

import (
	"strings"
)

// ParseHeaderLine parses one caller-supplied metadata header of the form
// "Name: Value".
//
// Only the first colon separates name from value, so values may themselves
// contain colons (URLs in X-SourceMap headers being the common case). The
// name and value are trimmed of surrounding whitespace; the name is kept in
// the caller's casing.
func ParseHeaderLine(line string) (name, value string, err error) {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", validationErrorf("header value was not formatted correctly")
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if name == "" {
		return "", "", validationErrorf("header name must not be empty")
	}
	if strings.ContainsAny(name, invalidMetaChars) || strings.ContainsAny(value, invalidMetaChars) {
		return "", "", validationErrorf("header value must not contain special whitespace characters")
	}
	return name, value, nil
}

type headerPair struct {
	name  string
	value string
}

// parseHeaderLines validates every caller header up front, before anything
// is stored, preserving order.
func parseHeaderLines(lines []string) ([]headerPair, error) {
	pairs := make([]headerPair, 0, len(lines))
	for _, line := range lines {
		name, value, err := ParseHeaderLine(line)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, headerPair{name: name, value: value})
	}
	return pairs, nil
}

// mergeHeaders builds the headers stored with an artifact: the declared
// content type seeds the map, then caller headers are applied in order. A
// caller header explicitly named Content-Type replaces the declared one;
// later duplicates of any name win.
func mergeHeaders(contentType string, pairs []headerPair) map[string]string {
	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	for _, pair := range pairs {
		headers[pair.name] = pair.value
	}
	return headers
}
