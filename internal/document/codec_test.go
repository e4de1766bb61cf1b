package document

import (
	"bytes"
	"compress/zlib"
	"encoding/ascii85"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
	"github.com/toricodesthings/pdf-content-service/internal/raster"
)

func imagePDF(t *testing.T, dict, data string) Page {
	t.Helper()
	return openPage(t, writePDF(t,
		"q 40 0 0 40 100 100 cm /Im0 Do Q\n",
		"<< /XObject << /Im0 5 0 R >> >>",
		streamObject("/Type /XObject /Subtype /Image "+dict, data),
	))
}

func grayJPEG(t *testing.T, w, h int, v uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPDFObjectDecodesDCT(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		encode func([]byte) []byte
	}{
		{"jpeg", "/DCTDecode", func(b []byte) []byte { return b }},
		{"ascii85 wrapped jpeg", "[/ASCII85Decode /DCTDecode]", func(b []byte) []byte {
			out := make([]byte, ascii85.MaxEncodedLen(len(b)))
			return append(out[:ascii85.Encode(out, b)], "~>"...)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := imagePDF(t,
				"/Width 4 /Height 4 /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter "+tt.filter,
				string(tt.encode(grayJPEG(t, 4, 4, 128))),
			)
			img, err := page.Object("Im0")
			if err != nil {
				t.Fatalf("Object: %v", err)
			}
			if img == nil {
				t.Fatal("Object returned nil for a jpeg image")
			}
			if img.Kind != raster.Grayscale || img.Width != 4 || img.Height != 4 {
				t.Fatalf("got kind %v %dx%d, want grayscale 4x4", img.Kind, img.Width, img.Height)
			}
			if len(img.Data) != 16 {
				t.Fatalf("got %d samples, want 16", len(img.Data))
			}
			for i, v := range img.Data {
				if v < 126 || v > 130 {
					t.Errorf("sample %d = %d, want about 128", i, v)
				}
			}
		})
	}
}

func TestPDFObjectDecodesColorDCT(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 200, 40, 40, 255
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	page := imagePDF(t, "/Width 8 /Height 8 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode", buf.String())

	img, err := page.Object("Im0")
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	if img.Kind != raster.RGB || len(img.Data) != 8*8*3 {
		t.Fatalf("got kind %v with %d bytes", img.Kind, len(img.Data))
	}
	if r, g := img.Data[0], img.Data[1]; r < 180 || g > 70 {
		t.Errorf("first pixel = %v, want reddish", color.RGBA{R: r, G: g, B: img.Data[2]})
	}
}

func TestPDFObjectRejectsMismatchedDCT(t *testing.T) {
	page := imagePDF(t,
		"/Width 8 /Height 8 /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /DCTDecode",
		string(grayJPEG(t, 4, 4, 10)),
	)
	_, err := page.Object("Im0")
	if apperr.KindOf(err) != apperr.UnsupportedImageEncoding {
		t.Fatalf("got %v, want an unsupported encoding error", err)
	}
}

func TestPDFObjectDecodesCCITT(t *testing.T) {
	// One Group 4 row of eight pixels: horizontal mode, white run 4, black
	// run 4, then the end-of-block marker.
	fax := string([]byte{0x36, 0xC0, 0x04, 0x00, 0x40})
	page := imagePDF(t,
		"/Width 8 /Height 1 /ImageMask true /Filter /CCITTFaxDecode /DecodeParms << /K -1 /Columns 8 /Rows 1 >>",
		fax,
	)
	img, err := page.Object("Im0")
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	want := []byte{255, 255, 255, 255, 0, 0, 0, 0}
	if img.Kind != raster.Grayscale || !bytes.Equal(img.Data, want) {
		t.Errorf("got kind %v data %v, want grayscale %v", img.Kind, img.Data, want)
	}
}

func TestPDFObjectUnsupportedFilters(t *testing.T) {
	for _, filter := range []string{"/JPXDecode", "/JBIG2Decode"} {
		t.Run(filter, func(t *testing.T) {
			page := imagePDF(t, "/Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter "+filter, "x")
			_, err := page.Object("Im0")
			if apperr.KindOf(err) != apperr.UnsupportedImageEncoding {
				t.Fatalf("got %v, want an unsupported encoding error", err)
			}
			if !errors.Is(err, raster.ErrUnsupportedEncoding) {
				t.Errorf("%v does not wrap ErrUnsupportedEncoding", err)
			}
		})
	}
}

func TestUnfilter(t *testing.T) {
	payload := []byte("scanned page payload")

	var flated bytes.Buffer
	zw := zlib.NewWriter(&flated)
	_, _ = zw.Write(payload)
	_ = zw.Close()

	a85 := make([]byte, ascii85.MaxEncodedLen(len(payload)))
	a85 = a85[:ascii85.Encode(a85, payload)]
	wrapped := append(append(append([]byte{}, a85[:5]...), "\n  "...), a85[5:]...)
	wrapped = append(wrapped, "~>"...)

	tests := []struct {
		name   string
		filter string
		in     []byte
	}{
		{"flate", "FlateDecode", flated.Bytes()},
		{"ascii85 with whitespace and terminator", "ASCII85Decode", wrapped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unfilter(tt.filter, tt.in)
			if err != nil {
				t.Fatalf("unfilter: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("got %q, want %q", got, payload)
			}
		})
	}

	if _, err := unfilter("LZWDecode", nil); apperr.KindOf(err) != apperr.UnsupportedImageEncoding {
		t.Errorf("LZWDecode: got %v, want an unsupported encoding error", err)
	}
}
