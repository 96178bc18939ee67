package sanitize

import (
	"regexp"

	"github.com/grovetools/devdash/errors"
)

// MaxProjectNameLength is the longest accepted project name.
const MaxProjectNameLength = 100

var (
	// disallowedNameRegex matches everything outside the project name alphabet
	disallowedNameRegex = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// ProjectName strips every character outside [A-Za-z0-9_-] from raw.
// The result is rejected when it is empty or longer than MaxProjectNameLength.
func ProjectName(raw string) (string, error) {
	s := disallowedNameRegex.ReplaceAllString(raw, "")

	if s == "" {
		return "", errors.InvalidName(raw, "name is empty after sanitization")
	}
	if len(s) > MaxProjectNameLength {
		return "", errors.InvalidName(raw, "name is longer than 100 characters")
	}

	return s, nil
}

// StrictProjectName is the form used at the API boundary: raw must already be
// canonical. Input such as "../etc" is rejected instead of becoming "etc".
func StrictProjectName(raw string) (string, error) {
	s, err := ProjectName(raw)
	if err != nil {
		return "", err
	}
	if s != raw {
		return "", errors.InvalidName(raw, "name contains disallowed characters")
	}
	return s, nil
}
