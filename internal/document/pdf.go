package document

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
	"github.com/toricodesthings/pdf-content-service/internal/raster"
	"github.com/toricodesthings/pdf-content-service/internal/types"
)

// PDF is a Document backed by github.com/ledongthuc/pdf. The underlying
// reader is not safe for concurrent use, so every page call holds mu.
type PDF struct {
	mu sync.Mutex
	f  *os.File
	r  *pdf.Reader
}

// OpenPDF satisfies Opener.
func OpenPDF(path string) (Document, error) {
	var (
		f   *os.File
		r   *pdf.Reader
		err error
	)
	gerr := guard("open", func() error {
		f, r, err = pdf.Open(path)
		return err
	})
	if gerr != nil {
		if f != nil {
			_ = f.Close()
		}
		return nil, fmt.Errorf("open pdf: %w", gerr)
	}
	return &PDF{f: f, r: r}, nil
}

func (d *PDF) NumPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.r.NumPage()
}

func (d *PDF) Page(n int) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n < 1 || n > d.r.NumPage() {
		return nil, apperr.New(apperr.InvalidInput, "page %d out of range (1-%d)", n, d.r.NumPage())
	}
	var p pdf.Page
	err := guard("page", func() error {
		p = d.r.Page(n)
		if p.V.IsNull() {
			return fmt.Errorf("page %d not found", n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &pdfPage{doc: d, p: p, num: n}, nil
}

func (d *PDF) Close() error {
	if d.f == nil {
		return nil
	}
	return d.f.Close()
}

type pdfPage struct {
	doc *PDF
	p   pdf.Page
	num int
}

func (pg *pdfPage) TextRuns() ([]TextRun, error) {
	pg.doc.mu.Lock()
	defer pg.doc.mu.Unlock()

	var runs []TextRun
	err := guard(fmt.Sprintf("page %d text", pg.num), func() error {
		runs = groupRuns(pg.p.Content().Text)
		return nil
	})
	return runs, err
}

// Operators interprets the page content streams into an operation list. Only
// the operators the extractor cares about are kept. An image Do expands to a
// dependency followed by the paint, so the positioning cm sits two entries
// before every image paint. Form XObjects are interpreted in place.
func (pg *pdfPage) Operators() ([]Operation, error) {
	pg.doc.mu.Lock()
	defer pg.doc.mu.Unlock()

	var ops []Operation
	err := guard(fmt.Sprintf("page %d operators", pg.num), func() error {
		xobjs := pg.p.Resources().Key("XObject")
		for _, strm := range contentStreams(pg.p.V.Key("Contents")) {
			ops = interpret(ops, strm, xobjs, "", 0)
		}
		return nil
	})
	return ops, err
}

// Object resolves a paint id. Ids of images drawn inside form XObjects are
// slash-joined resource names, outermost first.
func (pg *pdfPage) Object(id string) (*raster.Decoded, error) {
	pg.doc.mu.Lock()
	defer pg.doc.mu.Unlock()

	var out *raster.Decoded
	err := guard(fmt.Sprintf("page %d object %s", pg.num, id), func() error {
		xo := resolveXObject(pg.p.Resources().Key("XObject"), id)
		if xo.Kind() != pdf.Stream || xo.Key("Subtype").Name() != "Image" {
			return nil
		}
		var err error
		out, err = pg.doc.decodeImage(xo)
		return err
	})
	return out, err
}

func resolveXObject(xobjs pdf.Value, id string) pdf.Value {
	names := strings.Split(id, "/")
	for _, name := range names[:len(names)-1] {
		form := xobjs.Key(name)
		if form.Key("Subtype").Name() != "Form" {
			return pdf.Value{}
		}
		xobjs = formXObjects(form, xobjs)
	}
	return xobjs.Key(names[len(names)-1])
}

// formXObjects returns the XObject dictionary a form's content resolves names
// against. Forms without their own resources use the enclosing ones.
func formXObjects(form, outer pdf.Value) pdf.Value {
	if res := form.Key("Resources"); res.Kind() == pdf.Dict {
		return res.Key("XObject")
	}
	return outer
}

func contentStreams(v pdf.Value) []pdf.Value {
	switch v.Kind() {
	case pdf.Stream:
		return []pdf.Value{v}
	case pdf.Array:
		out := make([]pdf.Value, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			if s := v.Index(i); s.Kind() == pdf.Stream {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// maxFormDepth bounds form XObject nesting, which also stops self-referencing
// forms.
const maxFormDepth = 8

func interpret(ops []Operation, strm, xobjs pdf.Value, prefix string, depth int) []Operation {
	pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		ops = appendOp(ops, op, args, xobjs, prefix, depth)
	})
	return ops
}

func appendOp(ops []Operation, op string, args []pdf.Value, xobjs pdf.Value, prefix string, depth int) []Operation {
	switch op {
	case "q":
		return append(ops, Operation{Code: OpSave})
	case "Q":
		return append(ops, Operation{Code: OpRestore})
	case "cm":
		if len(args) != 6 {
			return ops
		}
		return append(ops, transformOp(args))
	case "BT":
		return append(ops, Operation{Code: OpBeginText})
	case "ET":
		return append(ops, Operation{Code: OpEndText})
	case "Tj", "TJ", "'", `"`:
		return append(ops, Operation{Code: OpShowText})
	case "Do":
		if len(args) != 1 || args[0].Kind() != pdf.Name {
			return ops
		}
		name := args[0].Name()
		id := prefix + name
		xo := xobjs.Key(name)
		switch xo.Key("Subtype").Name() {
		case "Image":
			w, h := xo.Key("Width").Int64(), xo.Key("Height").Int64()
			return append(ops,
				Operation{Code: OpDependency, Args: []any{id}},
				Operation{Code: OpPaintImageXObject, Args: []any{id, int(w), int(h)}},
			)
		case "Form":
			if xo.Kind() != pdf.Stream || depth >= maxFormDepth {
				return append(ops, Operation{Code: OpPaintFormXObject, Args: []any{id}})
			}
			return appendForm(ops, xo, xobjs, id, depth)
		default:
			return append(ops, Operation{Code: OpPaintXObject, Args: []any{id}})
		}
	}
	return ops
}

// appendForm brackets the form's own operations with a save and restore. The
// form matrix follows the paint marker so that an image drawn without its own
// cm still finds the placing transform two entries back.
func appendForm(ops []Operation, form, outer pdf.Value, id string, depth int) []Operation {
	ops = append(ops,
		Operation{Code: OpSave},
		Operation{Code: OpPaintFormXObject, Args: []any{id}},
	)
	m := form.Key("Matrix")
	if m.Kind() == pdf.Array && m.Len() == 6 {
		args := make([]pdf.Value, 6)
		for i := range args {
			args[i] = m.Index(i)
		}
		ops = append(ops, transformOp(args))
	} else {
		ops = append(ops, Operation{Code: OpTransform, Args: []any{1.0, 0.0, 0.0, 1.0, 0.0, 0.0}})
	}
	ops = interpret(ops, form, formXObjects(form, outer), id+"/", depth+1)
	return append(ops, Operation{Code: OpRestore})
}

func transformOp(args []pdf.Value) Operation {
	m := make([]any, len(args))
	for i, a := range args {
		m[i] = a.Float64()
	}
	return Operation{Code: OpTransform, Args: m}
}

func readStream(v pdf.Value) ([]byte, error) {
	if err := checkFilters(v); err != nil {
		return nil, err
	}
	rc := v.Reader()
	defer rc.Close()
	return io.ReadAll(rc)
}

// guard converts decoder panics on malformed input into errors.
func guard(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: malformed pdf: %v", what, r)
		}
	}()
	return fn()
}

func glyphRunTransform(size, x, y float64) types.Transform {
	return types.Transform{size, 0, 0, size, x, y}
}
