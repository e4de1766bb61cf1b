//go:build noocr

package ocr

import (
	"context"
	"errors"
)

// ErrOCRNotEnabled is returned by every engine operation when the binary was
// built with -tags noocr.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild without -tags noocr")

type Tesseract struct{}

func NewTesseract(languages ...string) (*Tesseract, error) {
	return nil, ErrOCRNotEnabled
}

func (t *Tesseract) Recognize(ctx context.Context, img []byte) (string, error) {
	return "", ErrOCRNotEnabled
}

// Close is safe on a nil receiver.
func (t *Tesseract) Close() error { return nil }
