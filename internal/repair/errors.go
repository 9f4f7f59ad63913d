package repair

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingAtom marks a required atom that is absent from an input
	// file. Always fatal; no output is written.
	ErrMissingAtom = errors.New("missing atom")
	// ErrUnsupportedEncoding marks a duration or table atom using an
	// internal version or field width this engine does not handle. The
	// field is skipped and the omission reported.
	ErrUnsupportedEncoding = errors.New("unsupported field encoding")
)

// Wrap builds an error message that carries the atom location and the
// operation being attempted while tagging it with the provided marker for
// errors.Is classification at the CLI boundary.
func Wrap(marker error, location, operation string, err error) error {
	detail := buildDetail(location, operation)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(location, operation string) string {
	parts := make([]string, 0, 2)
	if location = strings.TrimSpace(location); location != "" {
		parts = append(parts, location)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if len(parts) == 0 {
		return "repair failure"
	}
	return strings.Join(parts, ": ")
}
