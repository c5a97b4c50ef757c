package utils

import (
	"fmt"
	"regexp"
	"time"
)

var firNumberPattern = regexp.MustCompile(`^FIR/\d{4}/\d{6}$`)

// GenerateFIRNumber produces FIR/<year>/<6 digits>. The 6-digit suffix is
// the millisecond clock truncated to its last six digits, so collisions
// are possible under load; callers must treat the DB unique index as the
// authority and regenerate on a duplicate-key error.
func GenerateFIRNumber(now time.Time) string {
	return fmt.Sprintf("FIR/%d/%06d", now.Year(), now.UnixMilli()%1000000)
}

// IsValidFIRNumber reports whether s matches the FIR/<year>/<seq> shape.
func IsValidFIRNumber(s string) bool {
	return firNumberPattern.MatchString(s)
}

// FirstNonEmpty returns the first non-empty string, or "".
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
