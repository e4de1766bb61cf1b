// Package pipeline runs a request over a page range: either the content-item
// path (text, images, descriptions, reading order) or the OCR re-pass.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
	"github.com/toricodesthings/pdf-content-service/internal/document"
	"github.com/toricodesthings/pdf-content-service/internal/format"
	"github.com/toricodesthings/pdf-content-service/internal/storage"
	"github.com/toricodesthings/pdf-content-service/internal/types"
)

// PageExtractor turns one decoded page into ordered content items.
type PageExtractor interface {
	Page(ctx context.Context, page document.Page, number int, credential string) (types.Page, error)
}

// OCRRunner produces a searchable copy of in at out and returns its text.
type OCRRunner interface {
	Run(ctx context.Context, in, out string, rng types.PageRange) (types.OCRResult, error)
}

type Pipeline struct {
	Open      document.Opener
	Extractor PageExtractor
	// Orchestrator serves the OCR path.
	Orchestrator OCRRunner
	PageWorkers  int
	Log          logrus.FieldLogger
}

// ParsePageRange reads the pageStart/pageEnd query values, substituting
// defaults for empty ones, and validates the result.
func ParsePageRange(start, end string, defaults types.PageRange) (types.PageRange, error) {
	rng := defaults
	var err error
	if s := strings.TrimSpace(start); s != "" {
		if rng.Start, err = strconv.Atoi(s); err != nil {
			return types.PageRange{}, rangeErr("pageStart %q is not a number", start)
		}
	}
	if s := strings.TrimSpace(end); s != "" {
		if rng.End, err = strconv.Atoi(s); err != nil {
			return types.PageRange{}, rangeErr("pageEnd %q is not a number", end)
		}
	}
	return rng, Validate(rng)
}

// Validate requires 1 <= Start <= End.
func Validate(rng types.PageRange) error {
	if rng.Start < 1 {
		return rangeErr("page start %d is below 1", rng.Start)
	}
	if rng.End < rng.Start {
		return rangeErr("page end %d is before page start %d", rng.End, rng.Start)
	}
	return nil
}

// rangeErr matches apperr.ErrInvalidPageRange under errors.Is.
func rangeErr(msg string, args ...any) error {
	return apperr.Wrap(apperr.InvalidInput, fmt.Errorf(msg, args...), apperr.ErrInvalidPageRange.Msg)
}

// Extract runs the content-item path over rng. Pages are processed
// concurrently but returned in ascending order; the first page error aborts
// the request.
func (p *Pipeline) Extract(ctx context.Context, path string, rng types.PageRange, credential string) (types.ExtractionResult, error) {
	if err := Validate(rng); err != nil {
		return types.ExtractionResult{}, err
	}
	doc, total, err := p.open(path, rng)
	if err != nil {
		return types.ExtractionResult{}, err
	}
	defer doc.Close()

	log := p.logger().WithFields(logrus.Fields{"file": filepath.Base(path), "pages": rng})
	start := time.Now()

	end := min(rng.End, total)
	pages := make([]types.Page, end-rng.Start+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i := range pages {
		n := rng.Start + i
		g.Go(func() error {
			page, err := doc.Page(n)
			if err != nil {
				return fmt.Errorf("page %d: %w", n, err)
			}
			out, err := p.Extractor.Page(gctx, page, n, credential)
			if err != nil {
				return err
			}
			pages[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("extraction failed")
		return types.ExtractionResult{}, err
	}

	res := types.ExtractionResult{
		Pages:      pages,
		Transcript: format.Transcript(pages),
		TotalUsage: format.TotalUsage(pages),
	}
	log.WithFields(logrus.Fields{
		"usage":    res.TotalUsage,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("extraction complete")
	return res, nil
}

// OCR validates rng against the document and runs the OCR re-pass, writing
// the searchable copy next to path.
func (p *Pipeline) OCR(ctx context.Context, path string, rng types.PageRange) (types.OCRResult, error) {
	if err := Validate(rng); err != nil {
		return types.OCRResult{}, err
	}
	doc, _, err := p.open(path, rng)
	if err != nil {
		return types.OCRResult{}, err
	}
	doc.Close()

	out := filepath.Join(filepath.Dir(path), storage.OCROutputName(filepath.Base(path)))
	return p.Orchestrator.Run(ctx, path, out, rng)
}

// open opens path and rejects ranges that end past the last page.
func (p *Pipeline) open(path string, rng types.PageRange) (document.Document, int, error) {
	doc, err := p.Open(path)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.InvalidInput, err, "Unable to read PDF")
	}
	total := doc.NumPages()
	if rng.End > total {
		doc.Close()
		return nil, 0, rangeErr("page end %d exceeds page count %d", rng.End, total)
	}
	return doc, total, nil
}

func (p *Pipeline) workers() int {
	if p.PageWorkers <= 0 {
		return 1
	}
	return p.PageWorkers
}

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}
