package file

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxBaseLen = 80
	maxExtLen  = 16
)

// storedName builds a collision-free blob name: a millisecond timestamp and
// 64 random bits in front of the sanitized client name. It never contains a
// path separator and never starts with a dot.
func storedName(now time.Time, originalName string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), token, sanitizeName(originalName))
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := filepath.Ext(name)
	base := strings.TrimLeft(cleanRunes(strings.TrimSuffix(name, ext)), ".")
	ext = cleanRunes(ext)

	if ext == "." || len(ext) > maxExtLen {
		ext = ""
	}
	if len(base) > maxBaseLen {
		base = base[:maxBaseLen]
	}
	if base == "" {
		base = "file"
	}
	return base + ext
}

func cleanRunes(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, s)
}
