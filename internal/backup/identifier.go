package backup

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/catactl/catactl/internal/engine"
)

// LatestAlias resolves to the most recent backup.
const LatestAlias = "latest"

// NewIdentifier builds "<timestamp>-<label>". The label is sanitized so the
// identifier is safe to use as a file name stem.
func NewIdentifier(now time.Time, label string) string {
	stamp := now.Format(engine.BackupTimestamp)
	label = sanitizeLabel(label)
	if label == "" {
		return stamp
	}
	return stamp + "-" + label
}

func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':':
			return '-'
		case unicode.IsSpace(r) || unicode.IsControl(r):
			return '-'
		default:
			return r
		}
	}, label)
	return strings.Trim(mapped, ".-")
}

// ValidateIdentifier rejects identifiers that cannot be used as an archive file stem.
func ValidateIdentifier(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidIdentifier, id)
	}
	return nil
}
