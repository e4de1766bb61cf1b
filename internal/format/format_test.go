package format

import (
	"testing"

	"github.com/toricodesthings/pdf-content-service/internal/types"
)

func ptr[T any](v T) *T { return &v }

func TestTranscript(t *testing.T) {
	pages := []types.Page{
		{Number: 1, Items: []types.ContentItem{
			{Kind: types.KindText, Text: "Quarterly report"},
			{Kind: types.KindImage, Text: "Q1 Q2", Description: ptr("a bar chart")},
			{Kind: types.KindImage, Text: "logo"},
		}},
		{Number: 2, Items: []types.ContentItem{
			{Kind: types.KindText, Text: "Appendix"},
		}},
		{Number: 3},
	}
	want := "Quarterly report\n" +
		"Q1 Q2 [Image Description: a bar chart]\n" +
		"logo" +
		"\n====================\n" +
		"Appendix" +
		"\n====================\n"
	if got := Transcript(pages); got != want {
		t.Errorf("Transcript =\n%q\nwant\n%q", got, want)
	}
	if got := Transcript(nil); got != "" {
		t.Errorf("Transcript(nil) = %q", got)
	}
}

func TestTotalUsage(t *testing.T) {
	pages := []types.Page{
		{Items: []types.ContentItem{
			{Kind: types.KindImage, Description: ptr("a"), Usage: ptr(120)},
			{Kind: types.KindText, Text: "t"},
		}},
		{Items: []types.ContentItem{
			{Kind: types.KindImage, Description: ptr("b"), Usage: ptr(80)},
			{Kind: types.KindImage, Description: ptr("c")},
			{Kind: types.KindImage, Usage: ptr(1000)},
		}},
	}
	if got := TotalUsage(pages); got != 200 {
		t.Errorf("TotalUsage = %d, want 200", got)
	}
}
