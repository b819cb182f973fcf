package util

import (
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"project-reaper/pkg/apierror"
)

const maxProjectPathLength = 255

// Segments may not contain "+", which is reserved for trash paths.
var projectSegment = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

var reservedSuffixes = []string{".git", ".wiki", ".atom"}

// NormalizeProjectPath trims and validates a namespace/project path such as
// "group/sub/app". It returns the cleaned path or a 400 API error.
func NormalizeProjectPath(raw string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", invalidPath("project path cannot be empty", raw)
	}

	for _, char := range trimmed {
		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			return "", invalidPath("project path contains invalid characters", raw)
		}
	}

	if len([]rune(trimmed)) > maxProjectPathLength {
		return "", invalidPath("project path is too long", raw)
	}

	segments := strings.Split(trimmed, "/")
	if len(segments) < 2 {
		return "", invalidPath("project path needs a namespace", raw)
	}

	for _, segment := range segments {
		if segment == "." || segment == ".." || !projectSegment.MatchString(segment) {
			return "", invalidPath("project path segment is invalid", segment)
		}
	}

	name := strings.ToLower(segments[len(segments)-1])
	for _, suffix := range reservedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return "", invalidPath("project name ends with a reserved suffix", suffix)
		}
	}

	return trimmed, nil
}

func invalidPath(message string, details string) error {
	return apierror.New("INVALID_PATH", message, details, http.StatusBadRequest)
}

// isInvisibleUnicode reports zero-width and other format characters.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\u200E', '\u200F', '\u2060', '\uFEFF':
		return true
	}
	return unicode.Is(unicode.Cf, r)
}
