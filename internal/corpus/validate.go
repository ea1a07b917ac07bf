package corpus

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	maxSourceIDLength = 255
	maxDocumentBytes  = 8 << 20
)

// ValidationError holds per-field validation failures.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Fields[f]))
	}
	return strings.Join(parts, "; ")
}

// ValidateDocument checks a document before it is stored as a corpus source.
func ValidateDocument(id, body string) error {
	errs := make(map[string]string)

	id = strings.TrimSpace(id)
	if id == "" {
		errs["source_id"] = "source id is required"
	} else if len(id) > maxSourceIDLength {
		errs["source_id"] = fmt.Sprintf("source id must be at most %d bytes", maxSourceIDLength)
	}

	switch {
	case strings.TrimSpace(body) == "":
		errs["body"] = "body must not be empty"
	case len(body) > maxDocumentBytes:
		errs["body"] = fmt.Sprintf("body must be at most %d bytes", maxDocumentBytes)
	case !utf8.ValidString(body):
		errs["body"] = "body must be valid UTF-8"
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
