package file

import (
	"strings"
	"testing"
	"time"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.txt", "report.txt"},
		{"my report (final).pdf", "my_report__final_.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\notes.md`, "notes.md"},
		{".bashrc", "file.bashrc"},
		{"...", "file"},
		{"", "file"},
		{"/", "_"},
		{"résumé.doc", "r_sum_.doc"},
		{"archive.tar.gz", "archive.tar.gz"},
		{"x." + strings.Repeat("e", 20), "x"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeName_CapsLength(t *testing.T) {
	got := sanitizeName(strings.Repeat("a", 300) + ".txt")
	if len(got) != maxBaseLen+len(".txt") {
		t.Fatalf("expected %d bytes, got %d", maxBaseLen+4, len(got))
	}
	if !strings.HasSuffix(got, ".txt") {
		t.Fatalf("extension lost: %q", got)
	}
}

func TestStoredName(t *testing.T) {
	now := time.UnixMilli(1714564800123)

	a := storedName(now, "../report.txt")
	b := storedName(now, "../report.txt")
	if a == b {
		t.Fatalf("expected distinct names for the same instant, got %q twice", a)
	}
	if !strings.HasPrefix(a, "1714564800123-") || !strings.HasSuffix(a, "-report.txt") {
		t.Fatalf("unexpected stored name %q", a)
	}
	if strings.ContainsAny(a, `/\`) || strings.HasPrefix(a, ".") {
		t.Fatalf("stored name is not a plain file name: %q", a)
	}
	if parts := strings.SplitN(a, "-", 3); len(parts[1]) != 16 {
		t.Fatalf("expected 16 hex token, got %q", parts[1])
	}
}
