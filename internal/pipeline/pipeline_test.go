package pipeline

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
	"github.com/toricodesthings/pdf-content-service/internal/document"
	"github.com/toricodesthings/pdf-content-service/internal/raster"
	"github.com/toricodesthings/pdf-content-service/internal/types"
)

type stubPage struct{ n int }

func (stubPage) TextRuns() ([]document.TextRun, error)    { return nil, nil }
func (stubPage) Operators() ([]document.Operation, error) { return nil, nil }
func (stubPage) Object(string) (*raster.Decoded, error)   { return nil, nil }

type stubDoc struct {
	pages  int
	mu     sync.Mutex
	closed bool
}

func (d *stubDoc) NumPages() int { return d.pages }
func (d *stubDoc) Page(n int) (document.Page, error) {
	if n < 1 || n > d.pages {
		return nil, errors.New("no such page")
	}
	return stubPage{n: n}, nil
}
func (d *stubDoc) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// usageExtractor gives page n one described image whose usage is usage[n].
type usageExtractor struct {
	usage map[int]int
	fail  map[int]error

	mu    sync.Mutex
	calls []int
	creds []string
}

func (x *usageExtractor) Page(ctx context.Context, page document.Page, number int, credential string) (types.Page, error) {
	x.mu.Lock()
	x.calls = append(x.calls, page.(stubPage).n)
	x.creds = append(x.creds, credential)
	x.mu.Unlock()

	if err := x.fail[number]; err != nil {
		return types.Page{}, err
	}
	items := []types.ContentItem{{Kind: types.KindText, Text: "p"}}
	if u, ok := x.usage[number]; ok {
		desc := "d"
		items = append(items, types.ContentItem{Kind: types.KindImage, Text: "i", Description: &desc, Usage: &u})
	}
	return types.Page{Number: number, Items: items}, nil
}

type recordingOCR struct {
	in, out string
	rng     types.PageRange
	calls   int
}

func (o *recordingOCR) Run(ctx context.Context, in, out string, rng types.PageRange) (types.OCRResult, error) {
	o.in, o.out, o.rng = in, out, rng
	o.calls++
	return types.OCRResult{Transcript: "scanned\n", OutputPath: out}, nil
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newPipeline(doc *stubDoc, x PageExtractor, o OCRRunner) *Pipeline {
	return &Pipeline{
		Open:         func(string) (document.Document, error) { return doc, nil },
		Extractor:    x,
		Orchestrator: o,
		PageWorkers:  3,
		Log:          quiet(),
	}
}

func TestParsePageRange(t *testing.T) {
	defaults := types.PageRange{Start: 1, End: 5}
	tests := []struct {
		name       string
		start, end string
		want       types.PageRange
		wantErr    bool
	}{
		{"defaults", "", "", types.PageRange{Start: 1, End: 5}, false},
		{"explicit", "2", "4", types.PageRange{Start: 2, End: 4}, false},
		{"single page", "3", "3", types.PageRange{Start: 3, End: 3}, false},
		{"only end", "", "2", types.PageRange{Start: 1, End: 2}, false},
		{"zero start", "0", "3", types.PageRange{}, true},
		{"inverted", "4", "2", types.PageRange{}, true},
		{"start past default end", "7", "", types.PageRange{}, true},
		{"not a number", "two", "4", types.PageRange{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePageRange(tt.start, tt.end, defaults)
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrInvalidPageRange) {
					t.Fatalf("err = %v, want ErrInvalidPageRange", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractPageCountAndNumbering(t *testing.T) {
	doc := &stubDoc{pages: 5}
	x := &usageExtractor{}
	res, err := newPipeline(doc, x, nil).Extract(context.Background(), "doc.pdf", types.PageRange{Start: 2, End: 4}, "sk")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(res.Pages))
	}
	for i, p := range res.Pages {
		if p.Number != i+2 {
			t.Errorf("page %d numbered %d", i, p.Number)
		}
	}
	for _, c := range x.creds {
		if c != "sk" {
			t.Errorf("credential %q not threaded through", c)
		}
	}
	if !doc.closed {
		t.Error("document not closed")
	}
	if want := "p\n====================\np\n====================\np"; res.Transcript != want {
		t.Errorf("transcript = %q", res.Transcript)
	}
}

func TestExtractAggregatesUsage(t *testing.T) {
	x := &usageExtractor{usage: map[int]int{1: 120, 3: 80}}
	res, err := newPipeline(&stubDoc{pages: 3}, x, nil).Extract(context.Background(), "doc.pdf", types.PageRange{Start: 1, End: 3}, "sk")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.TotalUsage != 200 {
		t.Errorf("TotalUsage = %d, want 200", res.TotalUsage)
	}
}

func TestExtractRejectsRanges(t *testing.T) {
	tests := []struct {
		name string
		rng  types.PageRange
	}{
		{"zero start", types.PageRange{Start: 0, End: 2}},
		{"inverted", types.PageRange{Start: 3, End: 2}},
		{"past last page", types.PageRange{Start: 1, End: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := &usageExtractor{}
			_, err := newPipeline(&stubDoc{pages: 3}, x, nil).Extract(context.Background(), "doc.pdf", tt.rng, "")
			if !errors.Is(err, apperr.ErrInvalidPageRange) {
				t.Fatalf("err = %v, want ErrInvalidPageRange", err)
			}
			if apperr.HTTPStatus(err) != 400 {
				t.Errorf("status = %d, want 400", apperr.HTTPStatus(err))
			}
			if len(x.calls) != 0 {
				t.Errorf("pages extracted before rejection: %v", x.calls)
			}
		})
	}
}

func TestExtractPropagatesPageError(t *testing.T) {
	boom := apperr.New(apperr.ExternalService, "vision down")
	x := &usageExtractor{fail: map[int]error{2: boom}}
	doc := &stubDoc{pages: 3}
	_, err := newPipeline(doc, x, nil).Extract(context.Background(), "doc.pdf", types.PageRange{Start: 1, End: 3}, "sk")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if !doc.closed {
		t.Error("document not closed after failure")
	}
}

func TestExtractOpenError(t *testing.T) {
	p := &Pipeline{
		Open:      func(string) (document.Document, error) { return nil, errors.New("not a pdf") },
		Extractor: &usageExtractor{},
		Log:       quiet(),
	}
	_, err := p.Extract(context.Background(), "doc.pdf", types.PageRange{Start: 1, End: 1}, "")
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Fatalf("err = %v, want invalid input", err)
	}
}

func TestOCR(t *testing.T) {
	o := &recordingOCR{}
	in := filepath.Join("store", "scan_1700000000000.pdf")
	res, err := newPipeline(&stubDoc{pages: 4}, nil, o).OCR(context.Background(), in, types.PageRange{Start: 2, End: 3})
	if err != nil {
		t.Fatalf("OCR: %v", err)
	}
	if want := filepath.Join("store", "scan_1700000000000-ocr.pdf"); o.out != want || res.OutputPath != want {
		t.Errorf("output = %q / %q, want %q", o.out, res.OutputPath, want)
	}
	if o.in != in || o.rng != (types.PageRange{Start: 2, End: 3}) {
		t.Errorf("runner got in=%q rng=%+v", o.in, o.rng)
	}
	if res.Transcript != "scanned\n" {
		t.Errorf("transcript = %q", res.Transcript)
	}
}

func TestOCRRejectsRangeBeforeRunning(t *testing.T) {
	o := &recordingOCR{}
	_, err := newPipeline(&stubDoc{pages: 2}, nil, o).OCR(context.Background(), "x.pdf", types.PageRange{Start: 1, End: 5})
	if !errors.Is(err, apperr.ErrInvalidPageRange) {
		t.Fatalf("err = %v, want ErrInvalidPageRange", err)
	}
	if o.calls != 0 {
		t.Error("ocr ran despite an invalid range")
	}
}
