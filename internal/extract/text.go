// Package extract builds the per-page content sequence: text runs and image
// regions, each anchored by a transform, sorted into reading order.
package extract

import (
	"github.com/toricodesthings/pdf-content-service/internal/document"
	"github.com/toricodesthings/pdf-content-service/internal/types"
)

// Texts maps every run to a text item, in order, without filtering.
func Texts(runs []document.TextRun) []types.ContentItem {
	items := make([]types.ContentItem, 0, len(runs))
	for _, r := range runs {
		items = append(items, types.ContentItem{
			Kind:   types.KindText,
			Text:   r.Text,
			Anchor: r.Transform,
		})
	}
	return items
}
