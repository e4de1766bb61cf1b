package ocr

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\f", "\n")
	ligatures  = strings.NewReplacer("\uFB00", "ff", "\uFB01", "fi", "\uFB02", "fl", "\uFB03", "ffi", "\uFB04", "ffl")

	// "recog-\nnition", with a plain or soft hyphen
	brokenWord = regexp.MustCompile(`(\p{Ll})[-\x{00AD}][ \t]*\n[ \t]*(\p{Ll})`)
	invisible  = regexp.MustCompile("[\u200B-\u200D\uFEFF\u00AD\u2060]")
)

// Clean tidies the text Tesseract returns for one image. Form feeds (page
// ends) and carriage returns become newlines, ligature glyphs are spelled
// out, lowercase words hyphenated across a line are rejoined, and short lines
// of bare marks read from rules or borders are dropped. Runs of blank lines
// collapse to a single paragraph break.
func Clean(text string) string {
	text = lineBreaks.Replace(text)
	text = ligatures.Replace(text)
	text = brokenWord.ReplaceAllString(text, "$1$2")
	text = invisible.ReplaceAllString(text, "")

	var (
		b     strings.Builder
		blank bool
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			blank = b.Len() > 0
			continue
		case strayMarks(line):
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
			if blank {
				b.WriteByte('\n')
			}
		}
		blank = false
		b.WriteString(line)
	}
	return b.String()
}

// strayMarks reports a line of at most three runes with no letter or digit,
// such as the "|" or "_" produced by table rules.
func strayMarks(line string) bool {
	if utf8.RuneCountInString(line) > 3 {
		return false
	}
	for _, r := range line {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
