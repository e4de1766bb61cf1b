package document

import (
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Gap thresholds in units of the font size.
const (
	wordGap  = 0.2 // wider gaps get a space
	breakGap = 1.5 // wider gaps start a new run
	backstep = 0.5 // glyphs moving further left start a new run
	sameLine = 0.5 // max baseline drift in points
)

// groupRuns merges the per-glyph output of the decoder into runs: glyphs on
// the same baseline with the same font that follow each other closely.
func groupRuns(glyphs []pdf.Text) []TextRun {
	var (
		runs  []TextRun
		b     strings.Builder
		first pdf.Text
		last  pdf.Text
	)
	flush := func() {
		if b.Len() > 0 {
			size := math.Abs(first.FontSize)
			runs = append(runs, TextRun{Text: b.String(), Transform: glyphRunTransform(size, first.X, first.Y)})
		}
		b.Reset()
	}

	for i, g := range glyphs {
		if i > 0 && continues(last, g) {
			if gap(last, g) > wordGap*fontSize(last) && !endsWithSpace(&b) && g.S != " " {
				b.WriteByte(' ')
			}
		} else {
			flush()
			first = g
		}
		b.WriteString(g.S)
		last = g
	}
	flush()
	return runs
}

func continues(prev, g pdf.Text) bool {
	if prev.Font != g.Font || prev.FontSize != g.FontSize {
		return false
	}
	if math.Abs(prev.Y-g.Y) > sameLine {
		return false
	}
	d := gap(prev, g)
	size := fontSize(prev)
	return d >= -backstep*size && d <= breakGap*size
}

func gap(prev, g pdf.Text) float64 {
	return g.X - (prev.X + prev.W)
}

func fontSize(t pdf.Text) float64 {
	if s := math.Abs(t.FontSize); s > 0 {
		return s
	}
	return 1
}

func endsWithSpace(b *strings.Builder) bool {
	s := b.String()
	return s != "" && s[len(s)-1] == ' '
}
