// Package format flattens extracted pages into the transcript returned to
// callers.
package format

import (
	"strings"

	"github.com/toricodesthings/pdf-content-service/internal/types"
)

// PageSeparator sits between pages of a transcript.
var PageSeparator = "\n" + strings.Repeat("=", 20) + "\n"

// Transcript renders each page's items one per line, in order, and joins the
// pages with PageSeparator. An image that was described carries its
// description inline after its recognized text.
func Transcript(pages []types.Page) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString(PageSeparator)
		}
		for j, it := range p.Items {
			if j > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(Item(it))
		}
	}
	return b.String()
}

func Item(it types.ContentItem) string {
	if it.Kind == types.KindImage && it.Description != nil {
		return it.Text + " [Image Description: " + *it.Description + "]"
	}
	return it.Text
}

// TotalUsage sums usage over items that carry both a description and a usage
// count.
func TotalUsage(pages []types.Page) int {
	total := 0
	for _, p := range pages {
		for _, it := range p.Items {
			if it.Description != nil && it.Usage != nil {
				total += *it.Usage
			}
		}
	}
	return total
}
