//go:build !noocr

package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract wraps a gosseract client. It requires libtesseract at build and
// run time; build with -tags noocr to leave it out.
type Tesseract struct {
	client *gosseract.Client
}

// NewTesseract creates a client for languages, defaulting to English.
func NewTesseract(languages ...string) (*Tesseract, error) {
	c := gosseract.NewClient()
	if len(languages) > 0 {
		if err := c.SetLanguage(languages...); err != nil {
			c.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	return &Tesseract{client: c}, nil
}

// Recognize runs OCR on PNG, TIFF or JPEG bytes and returns cleaned text.
func (t *Tesseract) Recognize(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := t.client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return Clean(text), nil
}

func (t *Tesseract) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}
