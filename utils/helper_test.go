package utils

import (
	"fmt"
	"testing"
	"time"
)

func TestGenerateFIRNumber(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
	number := GenerateFIRNumber(now)

	if !IsValidFIRNumber(number) {
		t.Fatalf("generated number %q does not match the FIR format", number)
	}
	wantPrefix := fmt.Sprintf("FIR/%d/", now.Year())
	if number[:len(wantPrefix)] != wantPrefix {
		t.Errorf("number %q missing year prefix %q", number, wantPrefix)
	}
	if len(number) != len(wantPrefix)+6 {
		t.Errorf("number %q suffix is not 6 digits", number)
	}
}

func TestIsValidFIRNumber(t *testing.T) {
	valid := []string{"FIR/2026/000123", "FIR/1999/999999"}
	for _, s := range valid {
		if !IsValidFIRNumber(s) {
			t.Errorf("IsValidFIRNumber(%q) = false", s)
		}
	}
	invalid := []string{"", "FIR/26/000123", "FIR/2026/12345", "FIR/2026/1234567", "fir/2026/000123", "FIR/2026/000123x"}
	for _, s := range invalid {
		if IsValidFIRNumber(s) {
			t.Errorf("IsValidFIRNumber(%q) = true", s)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "b", "c"); got != "b" {
		t.Errorf("FirstNonEmpty = %q, want b", got)
	}
	if got := FirstNonEmpty("", ""); got != "" {
		t.Errorf("FirstNonEmpty = %q, want empty", got)
	}
}
