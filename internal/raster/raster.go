// Package raster turns decoded image samples into a canonical RGBA buffer
// and encodes it for the description and OCR services.
package raster

import (
	"errors"
	"fmt"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
)

// Kind is the packed sample layout of a decoded image.
type Kind int

const (
	Grayscale Kind = 1 // 1 byte per pixel
	RGB       Kind = 2 // 3 bytes per pixel
	RGBA      Kind = 3 // 4 bytes per pixel
)

func (k Kind) String() string {
	switch k {
	case Grayscale:
		return "grayscale"
	case RGB:
		return "rgb"
	case RGBA:
		return "rgba"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// BytesPerPixel returns 0 for unknown kinds.
func (k Kind) BytesPerPixel() int {
	switch k {
	case Grayscale:
		return 1
	case RGB:
		return 3
	case RGBA:
		return 4
	default:
		return 0
	}
}

// Decoded is an image object as handed back by the document decoder.
type Decoded struct {
	Kind   Kind
	Width  int
	Height int
	Data   []byte
}

// Image is an interleaved 8-bit RGBA raster, len(Pix) == Width*Height*4.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

var ErrUnsupportedEncoding = errors.New("unsupported image encoding")

func unsupported(format string, args ...any) error {
	return apperr.Wrap(apperr.UnsupportedImageEncoding, ErrUnsupportedEncoding, fmt.Sprintf(format, args...))
}

// Normalize expands d into RGBA. Grayscale is replicated into R, G and B and
// gray/RGB sources get an opaque alpha; RGBA is copied verbatim. Unknown kinds
// and short buffers are errors rather than blank rasters.
func Normalize(d Decoded) (Image, error) {
	bpp := d.Kind.BytesPerPixel()
	if bpp == 0 {
		return Image{}, unsupported("image kind %s", d.Kind)
	}
	if d.Width <= 0 || d.Height <= 0 {
		return Image{}, unsupported("image dimensions %dx%d", d.Width, d.Height)
	}
	n := d.Width * d.Height
	if len(d.Data) < n*bpp {
		return Image{}, unsupported("%s data has %d bytes, want %d", d.Kind, len(d.Data), n*bpp)
	}

	pix := make([]byte, n*4)
	src := d.Data
	switch d.Kind {
	case Grayscale:
		for i := 0; i < n; i++ {
			v := src[i]
			pix[i*4] = v
			pix[i*4+1] = v
			pix[i*4+2] = v
			pix[i*4+3] = 255
		}
	case RGB:
		for i := 0; i < n; i++ {
			pix[i*4] = src[i*3]
			pix[i*4+1] = src[i*3+1]
			pix[i*4+2] = src[i*3+2]
			pix[i*4+3] = 255
		}
	case RGBA:
		copy(pix, src[:n*4])
	}
	return Image{Width: d.Width, Height: d.Height, Pix: pix}, nil
}
