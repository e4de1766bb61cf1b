package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// NRGBA wraps the buffer without copying. Pixels are treated as straight
// (non-premultiplied) alpha.
func (m Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    m.Pix,
		Stride: m.Width * 4,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}
}

// EncodePNG encodes the raster. A positive maxDim bounds the longer side; the
// image is resampled with Catmull-Rom when it is larger.
func EncodePNG(m Image, maxDim int) ([]byte, error) {
	var src image.Image = m.NRGBA()
	if maxDim > 0 && (m.Width > maxDim || m.Height > maxDim) {
		src = downscale(m.NRGBA(), maxDim)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func downscale(src *image.NRGBA, maxDim int) *image.NRGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	nw, nh := maxDim, maxDim
	if w >= h {
		nh = max(1, h*maxDim/w)
	} else {
		nw = max(1, w*maxDim/h)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
