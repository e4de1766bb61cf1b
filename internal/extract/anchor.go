package extract

import (
	"github.com/toricodesthings/pdf-content-service/internal/document"
	"github.com/toricodesthings/pdf-content-service/internal/types"
)

// anchorOffset is how far before an image paint its positioning transform
// sits in the operation list: cm, dependency, paint.
const anchorOffset = 2

// anchorFor returns the transform carried by ops[i-2]. Out-of-range indices
// and operands that are not six numbers yield the zero transform.
func anchorFor(ops []document.Operation, i int) types.Transform {
	j := i - anchorOffset
	if j < 0 || j >= len(ops) {
		return types.Transform{}
	}
	t, _ := transformFrom(ops[j].Args)
	return t
}

func transformFrom(args []any) (types.Transform, bool) {
	var t types.Transform
	if len(args) < len(t) {
		return types.Transform{}, false
	}
	for i := range t {
		switch v := args[i].(type) {
		case float64:
			t[i] = v
		case float32:
			t[i] = float64(v)
		case int:
			t[i] = float64(v)
		case int64:
			t[i] = float64(v)
		default:
			return types.Transform{}, false
		}
	}
	return t, true
}
