package document

import (
	"testing"

	"github.com/ledongthuc/pdf"
)

func glyph(s string, x, y, w float64) pdf.Text {
	return pdf.Text{Font: "Helvetica", FontSize: 10, X: x, Y: y, W: w, S: s}
}

func TestGroupRuns(t *testing.T) {
	tests := []struct {
		name   string
		glyphs []pdf.Text
		want   []string
	}{
		{
			name:   "empty",
			glyphs: nil,
			want:   nil,
		},
		{
			name: "adjacent glyphs form one run",
			glyphs: []pdf.Text{
				glyph("H", 10, 100, 5), glyph("i", 15, 100, 3),
			},
			want: []string{"Hi"},
		},
		{
			name: "word gap inserts a space",
			glyphs: []pdf.Text{
				glyph("a", 10, 100, 5), glyph("b", 18, 100, 5),
			},
			want: []string{"a b"},
		},
		{
			name: "explicit space is not doubled",
			glyphs: []pdf.Text{
				glyph("a", 10, 100, 5), glyph(" ", 18, 100, 3), glyph("b", 24, 100, 5),
			},
			want: []string{"a b"},
		},
		{
			name: "wide gap splits",
			glyphs: []pdf.Text{
				glyph("a", 10, 100, 5), glyph("b", 200, 100, 5),
			},
			want: []string{"a", "b"},
		},
		{
			name: "new line splits",
			glyphs: []pdf.Text{
				glyph("a", 10, 100, 5), glyph("b", 15, 88, 5),
			},
			want: []string{"a", "b"},
		},
		{
			name: "font change splits",
			glyphs: []pdf.Text{
				glyph("a", 10, 100, 5), {Font: "Times", FontSize: 10, X: 15, Y: 100, W: 5, S: "b"},
			},
			want: []string{"a", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := groupRuns(tt.glyphs)
			if len(runs) != len(tt.want) {
				t.Fatalf("got %d runs %+v, want %d", len(runs), runs, len(tt.want))
			}
			for i, r := range runs {
				if r.Text != tt.want[i] {
					t.Errorf("run %d = %q, want %q", i, r.Text, tt.want[i])
				}
			}
		})
	}
}

func TestGroupRunsAnchorIsFirstGlyph(t *testing.T) {
	runs := groupRuns([]pdf.Text{glyph("x", 30, 500, 5), glyph("y", 35, 500, 5)})
	if len(runs) != 1 {
		t.Fatalf("got %d runs", len(runs))
	}
	tr := runs[0].Transform
	if tr.X() != 30 || tr.Y() != 500 || tr[0] != 10 || tr[3] != 10 {
		t.Errorf("transform = %v", tr)
	}
}
