package extract

import (
	"sort"

	"github.com/toricodesthings/pdf-content-service/internal/types"
)

// Merge combines one page's items into reading order: top to bottom (larger
// vertical translation first), then left to right. Equal anchors keep their
// input order, text before images. Multi-column and rotated layouts are not
// handled.
func Merge(texts, images []types.ContentItem) []types.ContentItem {
	items := make([]types.ContentItem, 0, len(texts)+len(images))
	items = append(items, texts...)
	items = append(items, images...)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Anchor, items[j].Anchor
		if a.Y() != b.Y() {
			return a.Y() > b.Y()
		}
		return a.X() < b.X()
	})
	return items
}
