package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
	"github.com/toricodesthings/pdf-content-service/internal/document"
	"github.com/toricodesthings/pdf-content-service/internal/raster"
	"github.com/toricodesthings/pdf-content-service/internal/types"
	"github.com/toricodesthings/pdf-content-service/internal/vision"
)

// Recognizer reads the text inside an encoded image. Instances are used by a
// single page at a time.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte) (string, error)
	Close() error
}

// RecognizerFactory acquires a Recognizer for the given languages.
type RecognizerFactory func(languages ...string) (Recognizer, error)

type Describer interface {
	Describe(ctx context.Context, png []byte, credential string) (vision.Description, error)
}

// FailurePolicy decides what a failing image does to its page.
type FailurePolicy string

const (
	// FailPage aborts the page on the first image error.
	FailPage FailurePolicy = "fail"
	// SkipImage logs the error and drops only that image.
	SkipImage FailurePolicy = "skip"
)

type Extractor struct {
	// Describer may be nil, in which case images carry no description.
	Describer     Describer
	NewRecognizer RecognizerFactory
	Languages     []string
	Policy        FailurePolicy
	// MaxDimension bounds the image sent for description; OCR always gets
	// the full-size raster. Zero disables resampling.
	MaxDimension int
	Log          logrus.FieldLogger
}

// Page extracts, enriches and orders everything on one page.
func (x *Extractor) Page(ctx context.Context, page document.Page, number int, credential string) (types.Page, error) {
	runs, err := page.TextRuns()
	if err != nil {
		return types.Page{}, fmt.Errorf("page %d text: %w", number, err)
	}
	images, err := x.Images(ctx, page, number, credential)
	if err != nil {
		return types.Page{}, fmt.Errorf("page %d images: %w", number, err)
	}
	return types.Page{Number: number, Items: Merge(Texts(runs), images)}, nil
}

// Images walks the operation list and produces one item per painted image.
// The recognizer is acquired before the scan and closed on every return.
func (x *Extractor) Images(ctx context.Context, page document.Page, number int, credential string) ([]types.ContentItem, error) {
	ops, err := page.Operators()
	if err != nil {
		return nil, fmt.Errorf("operator list: %w", err)
	}

	rec, err := x.NewRecognizer(x.Languages...)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalService, err, "start ocr engine")
	}
	log := x.logger().WithField("page", number)
	defer func() {
		if cerr := rec.Close(); cerr != nil {
			log.WithError(cerr).Warn("ocr engine close failed")
		}
	}()

	var items []types.ContentItem
	for i, op := range ops {
		if op.Code != document.OpPaintXObject && op.Code != document.OpPaintImageXObject {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, ok, err := x.image(ctx, page, rec, ops, i, credential)
		if err != nil {
			if x.Policy == SkipImage {
				log.WithError(err).WithField("op", i).Warn("image skipped")
				continue
			}
			return nil, err
		}
		if ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (x *Extractor) image(ctx context.Context, page document.Page, rec Recognizer, ops []document.Operation, i int, credential string) (types.ContentItem, bool, error) {
	args := ops[i].Args
	if len(args) == 0 {
		return types.ContentItem{}, false, nil
	}
	id, ok := args[0].(string)
	if !ok {
		return types.ContentItem{}, false, nil
	}

	obj, err := page.Object(id)
	if err != nil {
		return types.ContentItem{}, false, fmt.Errorf("resolve image %s: %w", id, err)
	}
	if obj == nil || obj.Width <= 0 || obj.Height <= 0 {
		return types.ContentItem{}, false, nil
	}

	img, err := raster.Normalize(*obj)
	if err != nil {
		return types.ContentItem{}, false, fmt.Errorf("image %s: %w", id, err)
	}
	full, err := raster.EncodePNG(img, 0)
	if err != nil {
		return types.ContentItem{}, false, fmt.Errorf("image %s: %w", id, err)
	}
	small := full
	if x.MaxDimension > 0 && (img.Width > x.MaxDimension || img.Height > x.MaxDimension) {
		if small, err = raster.EncodePNG(img, x.MaxDimension); err != nil {
			return types.ContentItem{}, false, fmt.Errorf("image %s: %w", id, err)
		}
	}

	start := time.Now()
	var (
		desc     vision.Description
		text     string
		describe = x.Describer != nil && credential != ""
	)
	g, gctx := errgroup.WithContext(ctx)
	if describe {
		g.Go(func() error {
			var err error
			desc, err = x.Describer.Describe(gctx, small, credential)
			return err
		})
	}
	g.Go(func() error {
		var err error
		if text, err = rec.Recognize(gctx, full); err != nil {
			return apperr.Wrap(apperr.ExternalService, err, "ocr image "+id)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return types.ContentItem{}, false, err
	}

	item := types.ContentItem{
		Kind:   types.KindImage,
		Text:   text,
		Anchor: anchorFor(ops, i),
	}
	if describe {
		item.Description = &desc.Text
		item.Usage = desc.Usage
	}

	x.logger().WithFields(logrus.Fields{
		"image":    id,
		"width":    img.Width,
		"height":   img.Height,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("image extracted")
	return item, true, nil
}

func (x *Extractor) logger() logrus.FieldLogger {
	if x.Log == nil {
		return logrus.StandardLogger()
	}
	return x.Log
}
