package ocr

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
	"github.com/toricodesthings/pdf-content-service/internal/document"
	"github.com/toricodesthings/pdf-content-service/internal/extract"
	"github.com/toricodesthings/pdf-content-service/internal/types"
)

// Runner is the part of Process the orchestrator depends on.
type Runner interface {
	Run(ctx context.Context, in, out string, rng types.PageRange) (string, error)
}

// Orchestrator produces a searchable copy of a document and reads its text
// layer back.
type Orchestrator struct {
	Runner Runner
	Open   document.Opener
	Log    logrus.FieldLogger
}

// Run OCRs pages rng of in into out and returns the recovered transcript:
// each page's runs joined by a space, each page terminated by a newline.
//
// ocrmypdf diagnostics mentioning ERROR, and a non-zero exit that still left
// an output file, are logged and tolerated. A timeout, or a failure without
// output, is returned.
func (o *Orchestrator) Run(ctx context.Context, in, out string, rng types.PageRange) (types.OCRResult, error) {
	log := o.logger().WithFields(logrus.Fields{"file": in, "pages": rng})
	start := time.Now()

	stderr, err := o.Runner.Run(ctx, in, out, rng)
	if strings.Contains(stderr, "ERROR") {
		log.WithField("stderr", truncate(stderr, 500)).Warn("ocrmypdf reported errors")
	}
	if err != nil {
		if apperr.KindOf(err) == apperr.ProcessTimeout || ctx.Err() != nil {
			return types.OCRResult{}, err
		}
		if !exists(out) {
			return types.OCRResult{}, err
		}
		log.WithError(err).Warn("ocrmypdf failed but produced output; continuing")
	} else if !exists(out) {
		return types.OCRResult{}, apperr.New(apperr.ExternalService, "ocrmypdf produced no output")
	}

	doc, err := o.Open(out)
	if err != nil {
		return types.OCRResult{}, err
	}
	defer doc.Close()

	end := min(rng.End, doc.NumPages())
	var b strings.Builder
	for n := rng.Start; n <= end; n++ {
		if err := ctx.Err(); err != nil {
			return types.OCRResult{}, err
		}
		page, err := doc.Page(n)
		if err != nil {
			return types.OCRResult{}, err
		}
		runs, err := page.TextRuns()
		if err != nil {
			return types.OCRResult{}, err
		}
		items := extract.Texts(runs)
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = it.Text
		}
		b.WriteString(strings.Join(parts, " "))
		b.WriteByte('\n')
	}

	log.WithField("duration", time.Since(start).Round(time.Millisecond)).Info("ocr pass complete")
	return types.OCRResult{Transcript: b.String(), OutputPath: out}, nil
}

func (o *Orchestrator) logger() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
