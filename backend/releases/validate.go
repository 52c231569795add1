package releases

import (
	"fmt"
	"strings"
)

// ValidationError describes a request the caller must correct. It is
// reported to clients verbatim with a 400 status.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}

// invalidMetaChars may never appear in artifact names, header names or
// header values.
const invalidMetaChars = "\n\t\r\f\v\\"

const (
	maxArtifactNameLength   = 1000
	maxReleaseVersionLength = 250
)

// ValidateArtifactName checks a caller-supplied artifact name.
//
// Names are otherwise unrestricted: URLs, slashes, spaces and unicode are
// all fine, and no normalisation is applied before deriving the artifact's
// identity.
func ValidateArtifactName(name string) error {
	switch {
	case name == "" || name == "file":
		// "file" is the multipart field name and always indicates a client
		// that forgot to send a real name.
		return validationErrorf("File name must be specified")
	case len(name) > maxArtifactNameLength:
		return validationErrorf("File name must not exceed %d bytes", maxArtifactNameLength)
	case strings.ContainsAny(name, invalidMetaChars):
		return validationErrorf("File name must not contain special whitespace characters")
	}
	return nil
}

// ValidateReleaseVersion checks a version string for a new release.
func ValidateReleaseVersion(version string) error {
	switch {
	case version == "" || version == "." || version == ".." || version == "latest":
		return validationErrorf("Invalid release version")
	case len(version) > maxReleaseVersionLength:
		return validationErrorf("Release version must not exceed %d bytes", maxReleaseVersionLength)
	case strings.Contains(version, "/") || strings.ContainsAny(version, invalidMetaChars):
		return validationErrorf("Release version must not contain slashes or special whitespace characters")
	case strings.TrimSpace(version) != version:
		return validationErrorf("Release version must not have surrounding whitespace")
	}
	return nil
}
