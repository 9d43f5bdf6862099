package logger

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		maxLength int
		want      string
	}{
		{"empty", "", 10, ""},
		{"plain", "https://example.com", 100, "https://example.com"},
		{"control characters removed", "https://evil.org\r\nX-Injected: 1", 100, "https://evil.orgX-Injected: 1"},
		{"truncated", "abcdefghij", 4, "abcd..."},
		{"rune boundary kept", "ééé", 3, "é..."},
		{"invalid utf8 dropped", "ok\xff", 10, "ok"},
		{"default max length", strings.Repeat("a", MaxGeneralStringLength+1), 0, strings.Repeat("a", MaxGeneralStringLength) + "..."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeString(tt.in, tt.maxLength); got != tt.want {
				t.Errorf("SanitizeString(%q, %d) = %q, want %q", tt.in, tt.maxLength, got, tt.want)
			}
		})
	}
}

func TestSanitizeOrigin(t *testing.T) {
	t.Parallel()

	long := "https://" + strings.Repeat("a", MaxOriginLength) + ".com"
	got := SanitizeOrigin(long)
	if len(got) != MaxOriginLength+len("...") {
		t.Errorf("SanitizeOrigin() length = %d, want %d", len(got), MaxOriginLength+3)
	}
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	if got := SanitizeError(nil); got != "" {
		t.Errorf("SanitizeError(nil) = %q, want empty", got)
	}
	if got := SanitizeError(errors.New("boom\n")); got != "boom" {
		t.Errorf("SanitizeError() = %q, want boom", got)
	}
}
