package document

import (
	"bytes"
	"compress/zlib"
	"encoding/ascii85"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/image/ccitt"

	"github.com/toricodesthings/pdf-content-service/internal/raster"
)

// Image codecs the ledongthuc reader has no filter for. Streams ending in one
// of them are sliced from the file and decoded here.
var imageCodecs = map[string]bool{
	"DCTDecode":      true,
	"CCITTFaxDecode": true,
}

// filterChain lists a stream's filters with the DecodeParms entry of each.
func filterChain(v pdf.Value) ([]string, []pdf.Value) {
	f, p := v.Key("Filter"), v.Key("DecodeParms")
	switch f.Kind() {
	case pdf.Name:
		return []string{f.Name()}, []pdf.Value{p}
	case pdf.Array:
		names := make([]string, f.Len())
		parms := make([]pdf.Value, f.Len())
		for i := range names {
			names[i] = f.Index(i).Name()
			parms[i] = p.Index(i)
		}
		return names, parms
	}
	return nil, nil
}

// imageCodec returns the codec ending the stream's filter chain, or "".
func imageCodec(v pdf.Value) string {
	names, _ := filterChain(v)
	if len(names) == 0 || !imageCodecs[names[len(names)-1]] {
		return ""
	}
	return names[len(names)-1]
}

// rawStream reads the undecoded bytes of a stream. The reader only prints the
// data offset, as the suffix of the stream's textual form.
func (d *PDF) rawStream(v pdf.Value) ([]byte, error) {
	if d.r.Trailer().Key("Encrypt").Kind() != pdf.Null {
		return nil, unsupportedImage("encoded image in an encrypted document")
	}
	s := v.String()
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return nil, fmt.Errorf("stream offset missing from %q", s)
	}
	off, err := strconv.ParseInt(s[at+1:], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stream offset: %w", err)
	}
	n := v.Key("Length").Int64()
	if n <= 0 {
		return nil, fmt.Errorf("stream length %d", n)
	}
	return io.ReadAll(io.NewSectionReader(d.f, off, n))
}

// encodedImage returns the codec payload of an image stream with every
// preceding filter removed, plus the codec's DecodeParms.
func (d *PDF) encodedImage(v pdf.Value) ([]byte, pdf.Value, error) {
	names, parms := filterChain(v)
	data, err := d.rawStream(v)
	if err != nil {
		return nil, pdf.Value{}, err
	}
	last := len(names) - 1
	for i, name := range names[:last] {
		if parms[i].Kind() != pdf.Null {
			return nil, pdf.Value{}, unsupportedImage("filter %s with parameters before %s", name, names[last])
		}
		if data, err = unfilter(name, data); err != nil {
			return nil, pdf.Value{}, err
		}
	}
	return data, parms[last], nil
}

func unfilter(name string, data []byte) ([]byte, error) {
	switch name {
	case "FlateDecode":
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("flate: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "ASCII85Decode":
		if end := bytes.Index(data, []byte("~>")); end >= 0 {
			data = data[:end]
		}
		clean := bytes.Map(func(r rune) rune {
			if r <= ' ' {
				return -1
			}
			return r
		}, data)
		out := make([]byte, len(clean)*4/5+4)
		n, _, err := ascii85.Decode(out, clean, true)
		if err != nil {
			return nil, fmt.Errorf("ascii85: %w", err)
		}
		return out[:n], nil
	}
	return nil, unsupportedImage("filter %s", name)
}

// decodeEncoded decodes a DCT or CCITT image into packed 8-bit samples.
func (d *PDF) decodeEncoded(xo pdf.Value, codec string, w, h int) (raster.Kind, []byte, error) {
	data, parms, err := d.encodedImage(xo)
	if err != nil {
		return 0, nil, err
	}
	switch codec {
	case "DCTDecode":
		return decodeDCT(data, w, h)
	case "CCITTFaxDecode":
		s, err := decodeCCITT(data, w, h, parms)
		return raster.Grayscale, s, err
	}
	return 0, nil, unsupportedImage("filter %s", codec)
}

func decodeDCT(data []byte, w, h int) (raster.Kind, []byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, nil, unsupportedImage("jpeg: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != w || b.Dy() != h {
		return 0, nil, unsupportedImage("jpeg is %dx%d, image dictionary says %dx%d", b.Dx(), b.Dy(), w, h)
	}
	if g, ok := img.(*image.Gray); ok {
		out := make([]byte, 0, w*h)
		for y := 0; y < h; y++ {
			off := y * g.Stride
			out = append(out, g.Pix[off:off+w]...)
		}
		return raster.Grayscale, out, nil
	}
	out := make([]byte, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			out = append(out, c.R, c.G, c.B)
		}
	}
	return raster.RGB, out, nil
}

// decodeCCITT expands Group 3 or Group 4 fax data to one gray byte per pixel,
// 0x00 for black and 0xFF for white.
func decodeCCITT(data []byte, w, h int, parms pdf.Value) ([]byte, error) {
	sf := ccitt.Group3
	if parms.Key("K").Int64() < 0 {
		sf = ccitt.Group4
	}
	opts := &ccitt.Options{
		Align:  parms.Key("EncodedByteAlign").Bool(),
		Invert: parms.Key("BlackIs1").Bool(),
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if err := ccitt.DecodeIntoGray(dst, bytes.NewReader(data), ccitt.MSB, sf, opts); err != nil {
		return nil, unsupportedImage("ccitt: %v", err)
	}
	return dst.Pix, nil
}
