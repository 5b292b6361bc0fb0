package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/twmb/murmur3"
)

// SafeTitle replaces every non-alphanumeric rune with an underscore so a
// video title can be used as part of a file name.
func SafeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// OutputPath builds the destination path for a downloaded episode:
// <dir>/<date>_<safe title>_<tier>.mp4
func OutputPath(dir, title, tier, date string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s.mp4", date, SafeTitle(title), tier))
}

// VideoExists reports whether a finished download for the given title is
// already present in dir. Matching is by sanitized title substring, so the
// check is independent of the resolution tier picked on a previous run.
func VideoExists(dir, title string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}

	safe := SafeTitle(title)
	for _, entry := range entries {
		name := entry.Name()
		if strings.Contains(name, safe) && strings.HasSuffix(name, ".mp4") {
			return true
		}
	}
	return false
}

// HashID derives a short stable identifier from a URL.
func HashID(s string) string {
	h := murmur3.New32()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}
