package document

import (
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
	"github.com/toricodesthings/pdf-content-service/internal/raster"
)

// Filters the ledongthuc reader decodes itself. DCT and CCITT image streams
// go through decodeEncoded; JPX and JBIG2 are reported as unsupported.
var readableFilters = map[string]bool{
	"FlateDecode":   true,
	"ASCII85Decode": true,
}

type colorSpace struct {
	comps   int // components per sample before any lookup
	cmyk    bool
	indexed *indexed
}

type indexed struct {
	base   colorSpace
	hival  int
	lookup []byte
}

func unsupportedImage(format string, args ...any) error {
	return apperr.Wrap(apperr.UnsupportedImageEncoding, raster.ErrUnsupportedEncoding, fmt.Sprintf(format, args...))
}

func checkFilters(v pdf.Value) error {
	f := v.Key("Filter")
	switch f.Kind() {
	case pdf.Null:
		return nil
	case pdf.Name:
		if !readableFilters[f.Name()] {
			return unsupportedImage("filter %s", f.Name())
		}
	case pdf.Array:
		for i := 0; i < f.Len(); i++ {
			if name := f.Index(i).Name(); !readableFilters[name] {
				return unsupportedImage("filter %s", name)
			}
		}
	default:
		return unsupportedImage("filter %v", f)
	}
	return nil
}

// decodeImage reads an image XObject into packed 8-bit samples. CMYK and
// indexed sources are converted to RGB; an SMask becomes the alpha channel.
func (d *PDF) decodeImage(xo pdf.Value) (*raster.Decoded, error) {
	w := int(xo.Key("Width").Int64())
	h := int(xo.Key("Height").Int64())
	if w <= 0 || h <= 0 {
		return &raster.Decoded{Width: w, Height: h}, nil
	}

	var (
		kind    raster.Kind
		samples []byte
		err     error
	)
	if codec := imageCodec(xo); codec != "" {
		kind, samples, err = d.decodeEncoded(xo, codec, w, h)
	} else {
		kind, samples, err = decodeSamples(xo, w, h)
	}
	if err != nil {
		return nil, err
	}

	if sm := xo.Key("SMask"); sm.Kind() == pdf.Stream {
		if alpha, ok := readSoftMask(sm, w, h); ok {
			kind, samples = withAlpha(kind, samples, alpha)
		}
	}
	return &raster.Decoded{Kind: kind, Width: w, Height: h, Data: samples}, nil
}

func decodeSamples(xo pdf.Value, w, h int) (raster.Kind, []byte, error) {
	mask := xo.Key("ImageMask").Bool()
	bpc := int(xo.Key("BitsPerComponent").Int64())
	cs := colorSpace{comps: 1}
	if mask {
		bpc = 1
	} else {
		var err error
		if cs, err = parseColorSpace(xo.Key("ColorSpace")); err != nil {
			return 0, nil, err
		}
	}
	if !validBPC(bpc) {
		return 0, nil, unsupportedImage("%d bits per component", bpc)
	}

	data, err := readStream(xo)
	if err != nil {
		return 0, nil, err
	}
	if cs.indexed != nil {
		idx, err := unpack(data, w, h, 1, bpc, false)
		if err != nil {
			return 0, nil, err
		}
		kind, samples := cs.indexed.expand(idx)
		return kind, samples, nil
	}
	s, err := unpack(data, w, h, cs.comps, bpc, true)
	if err != nil {
		return 0, nil, err
	}
	kind, samples := toKind(s, cs)
	return kind, samples, nil
}

func validBPC(bpc int) bool {
	switch bpc {
	case 1, 2, 4, 8, 16:
		return true
	}
	return false
}

func parseColorSpace(v pdf.Value) (colorSpace, error) {
	switch v.Kind() {
	case pdf.Name:
		return namedColorSpace(v.Name())
	case pdf.Array:
		if v.Len() == 0 {
			return colorSpace{}, unsupportedImage("empty color space")
		}
		switch family := v.Index(0).Name(); family {
		case "ICCBased":
			switch v.Index(1).Key("N").Int64() {
			case 1:
				return colorSpace{comps: 1}, nil
			case 3:
				return colorSpace{comps: 3}, nil
			case 4:
				return colorSpace{comps: 4, cmyk: true}, nil
			}
			return colorSpace{}, unsupportedImage("ICCBased color space with N=%d", v.Index(1).Key("N").Int64())
		case "CalGray", "CalRGB":
			return namedColorSpace(family)
		case "Indexed", "I":
			return parseIndexed(v)
		default:
			return colorSpace{}, unsupportedImage("color space %s", family)
		}
	default:
		return colorSpace{}, unsupportedImage("missing color space")
	}
}

func namedColorSpace(name string) (colorSpace, error) {
	switch name {
	case "DeviceGray", "G", "CalGray":
		return colorSpace{comps: 1}, nil
	case "DeviceRGB", "RGB", "CalRGB":
		return colorSpace{comps: 3}, nil
	case "DeviceCMYK", "CMYK":
		return colorSpace{comps: 4, cmyk: true}, nil
	}
	return colorSpace{}, unsupportedImage("color space %s", name)
}

func parseIndexed(v pdf.Value) (colorSpace, error) {
	if v.Len() != 4 {
		return colorSpace{}, unsupportedImage("indexed color space with %d entries", v.Len())
	}
	base, err := parseColorSpace(v.Index(1))
	if err != nil {
		return colorSpace{}, err
	}
	if base.indexed != nil {
		return colorSpace{}, unsupportedImage("nested indexed color space")
	}
	var lookup []byte
	switch lv := v.Index(3); lv.Kind() {
	case pdf.String:
		lookup = []byte(lv.RawString())
	case pdf.Stream:
		if lookup, err = readStream(lv); err != nil {
			return colorSpace{}, err
		}
	default:
		return colorSpace{}, unsupportedImage("indexed lookup of kind %v", lv.Kind())
	}
	return colorSpace{comps: 1, indexed: &indexed{
		base:   base,
		hival:  int(v.Index(2).Int64()),
		lookup: lookup,
	}}, nil
}

// unpack reads w*h*comps samples of bpc bits (rows are byte aligned). With
// scale set, samples are stretched to 0..255; otherwise they are kept as raw
// values, which is what indexed lookups need.
func unpack(data []byte, w, h, comps, bpc int, scale bool) ([]byte, error) {
	rowBits := w * comps * bpc
	stride := (rowBits + 7) / 8
	if len(data) < stride*h {
		return nil, unsupportedImage("image data has %d bytes, want %d", len(data), stride*h)
	}
	out := make([]byte, 0, w*h*comps)
	maxv := (1 << bpc) - 1
	for y := 0; y < h; y++ {
		row := data[y*stride : (y+1)*stride]
		for i := 0; i < w*comps; i++ {
			var v int
			switch bpc {
			case 8:
				v = int(row[i])
			case 16:
				v = int(row[i*2]) // high byte
			default:
				bit := i * bpc
				v = int(row[bit/8]>>(8-bpc-bit%8)) & maxv
			}
			if scale && bpc != 8 && bpc != 16 {
				v = v * 255 / maxv
			}
			out = append(out, byte(v))
		}
	}
	return out, nil
}

func toKind(s []byte, cs colorSpace) (raster.Kind, []byte) {
	switch {
	case cs.cmyk:
		return raster.RGB, cmykToRGB(s)
	case cs.comps == 3:
		return raster.RGB, s
	default:
		return raster.Grayscale, s
	}
}

func cmykToRGB(s []byte) []byte {
	out := make([]byte, 0, len(s)/4*3)
	for i := 0; i+3 < len(s); i += 4 {
		c, m, y, k := int(s[i]), int(s[i+1]), int(s[i+2]), int(s[i+3])
		out = append(out,
			byte((255-c)*(255-k)/255),
			byte((255-m)*(255-k)/255),
			byte((255-y)*(255-k)/255),
		)
	}
	return out
}

func (ix *indexed) expand(idx []byte) (raster.Kind, []byte) {
	comps := ix.base.comps
	entry := make([]byte, comps)
	out := make([]byte, 0, len(idx)*comps)
	for _, i := range idx {
		n := int(i)
		if n > ix.hival {
			n = ix.hival
		}
		off := n * comps
		for c := range entry {
			entry[c] = 0
			if off+c < len(ix.lookup) {
				entry[c] = ix.lookup[off+c]
			}
		}
		out = append(out, entry...)
	}
	return toKind(out, ix.base)
}

func readSoftMask(sm pdf.Value, w, h int) ([]byte, bool) {
	if int(sm.Key("Width").Int64()) != w || int(sm.Key("Height").Int64()) != h {
		return nil, false
	}
	bpc := int(sm.Key("BitsPerComponent").Int64())
	if !validBPC(bpc) {
		return nil, false
	}
	data, err := readStream(sm)
	if err != nil {
		return nil, false
	}
	alpha, err := unpack(data, w, h, 1, bpc, true)
	if err != nil {
		return nil, false
	}
	return alpha, true
}

func withAlpha(kind raster.Kind, s, alpha []byte) (raster.Kind, []byte) {
	n := len(alpha)
	out := make([]byte, 0, n*4)
	for i := 0; i < n; i++ {
		switch kind {
		case raster.Grayscale:
			out = append(out, s[i], s[i], s[i], alpha[i])
		default:
			out = append(out, s[i*3], s[i*3+1], s[i*3+2], alpha[i])
		}
	}
	return raster.RGBA, out
}
