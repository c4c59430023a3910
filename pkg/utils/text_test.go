package utils

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	// "Goiânia" is 8 bytes; cutting at 4 would split the two-byte "â".
	got := Truncate("Goiânia", 4)
	if !utf8.ValidString(got) {
		t.Errorf("truncation produced invalid UTF-8: %q", got)
	}
	if got != "Goi..." {
		t.Errorf("got %q", got)
	}

	long := strings.Repeat("ã", 50)
	got = Truncate(long, 7)
	if !utf8.ValidString(got) {
		t.Errorf("truncation produced invalid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") || len(got) > 7+3 {
		t.Errorf("got %q", got)
	}
}
