package storage

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SanitizeName derives the stored name for an upload: <base>_<unixMillis><ext>,
// with accents folded to their base letter and every other rune outside
// [A-Za-z0-9-_.] replaced by an underscore.
func SanitizeName(original string, now time.Time) string {
	original = filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	if original == "." || original == "/" {
		original = ""
	}
	ext := filepath.Ext(original)
	base := strings.TrimSuffix(original, ext)
	if base == "" {
		base = "upload"
	}
	return sanitize(fold(base) + "_" + strconv.FormatInt(now.UnixMilli(), 10) + fold(ext))
}

// OCROutputName is the name of the searchable copy written next to name.
func OCROutputName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + "-ocr.pdf"
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if allowed(r) {
			return r
		}
		return '_'
	}, s)
}

func allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}

// validName reports whether name could have been produced by SanitizeName
// or OCROutputName and is safe to join onto the storage directory.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) > 255 {
		return false
	}
	for _, r := range name {
		if !allowed(r) {
			return false
		}
	}
	return true
}
