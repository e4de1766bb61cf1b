// Package ocr recognizes text in page images and drives the external
// ocrmypdf process that produces a searchable copy of an upload.
package ocr

import "context"

// Engine reads text out of a single encoded image. An Engine is not safe for
// concurrent use; acquire one per page and Close it when the page is done.
type Engine interface {
	Recognize(ctx context.Context, img []byte) (string, error)
	Close() error
}

// EngineFactory acquires an Engine configured for the given languages.
type EngineFactory func(languages ...string) (Engine, error)

// NewEngine is the default EngineFactory, backed by Tesseract.
func NewEngine(languages ...string) (Engine, error) {
	t, err := NewTesseract(languages...)
	if err != nil {
		return nil, err
	}
	return t, nil
}
