package ocr

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"time"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
	"github.com/toricodesthings/pdf-content-service/internal/types"
)

const (
	DefaultBinary  = "ocrmypdf"
	DefaultTimeout = 15 * time.Minute

	// waitDelay bounds how long Wait blocks on stray children holding the
	// output pipes after the process itself was killed.
	waitDelay = 5 * time.Second
)

// Process runs ocrmypdf over a page span of one document.
type Process struct {
	Binary  string
	Timeout time.Duration
}

// Run executes `ocrmypdf --pages S-E in out --redo-ocr` and returns whatever
// the process wrote to stderr. A deadline yields a ProcessTimeout error; a
// failed start or non-zero exit yields an ExternalService error. Callers
// decide whether a non-zero exit is fatal.
func (p *Process) Run(ctx context.Context, in, out string, rng types.PageRange) (string, error) {
	bin := p.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pages := strconv.Itoa(rng.Start) + "-" + strconv.Itoa(rng.End)
	cmd := exec.CommandContext(tctx, bin, "--pages", pages, in, out, "--redo-ocr")
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	switch {
	case err == nil:
		return stderr.String(), nil
	case errors.Is(tctx.Err(), context.DeadlineExceeded):
		return stderr.String(), apperr.Wrap(apperr.ProcessTimeout, tctx.Err(), "ocrmypdf timed out after "+timeout.String())
	case ctx.Err() != nil:
		return stderr.String(), ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stderr.String(), apperr.Wrap(apperr.ExternalService, err, "ocrmypdf exited with code "+strconv.Itoa(exitErr.ExitCode()))
	}
	return stderr.String(), apperr.Wrap(apperr.ExternalService, err, "start ocrmypdf")
}
