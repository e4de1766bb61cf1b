// Package document defines the decoder boundary the extraction core works
// against: a document exposes its page count, and each page exposes text
// runs, a paint-operation list and an image resolver.
package document

import (
	"github.com/toricodesthings/pdf-content-service/internal/raster"
	"github.com/toricodesthings/pdf-content-service/internal/types"
)

// OpCode identifies an entry in a page's operation list.
type OpCode int

const (
	OpUnknown OpCode = iota
	OpSave
	OpRestore
	OpTransform
	OpDependency
	OpPaintXObject
	OpPaintImageXObject
	OpPaintFormXObject
	OpBeginText
	OpEndText
	OpShowText
)

// Operation is one painting operator with its operands. Transform operands are
// six float64 values; object operands are resource names (string).
type Operation struct {
	Code OpCode
	Args []any
}

// TextRun is a contiguous string drawn with a single transform.
type TextRun struct {
	Text      string
	Transform types.Transform
}

type Document interface {
	NumPages() int
	// Page returns the 1-based page n.
	Page(n int) (Page, error)
	Close() error
}

type Page interface {
	TextRuns() ([]TextRun, error)
	Operators() ([]Operation, error)
	// Object resolves an id from a paint operation. It returns (nil, nil)
	// when the id does not name an image.
	Object(id string) (*raster.Decoded, error)
}

// Opener opens a document stored at path.
type Opener func(path string) (Document, error)
