package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
	"github.com/toricodesthings/pdf-content-service/internal/types"
)

// fakeBinary writes an executable shell script standing in for ocrmypdf.
// Arguments arrive as: --pages S-E in out --redo-ocr
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-ins need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ocrmypdf")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(in, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	bin := fakeBinary(t, `echo "pages=$2 redo=$5" >&2; cp "$3" "$4"`)
	p := &Process{Binary: bin, Timeout: 10 * time.Second}
	stderr, err := p.Run(context.Background(), in, out, types.PageRange{Start: 2, End: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(stderr, "pages=2-4 redo=--redo-ocr") {
		t.Errorf("stderr = %q", stderr)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestProcessRunFailures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		timeout  time.Duration
		wantKind apperr.Kind
	}{
		{"non-zero exit", `echo "ERROR boom" >&2; exit 2`, 10 * time.Second, apperr.ExternalService},
		{"timeout", `exec sleep 5`, 100 * time.Millisecond, apperr.ProcessTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Process{Binary: fakeBinary(t, tt.body), Timeout: tt.timeout}
			_, err := p.Run(context.Background(), "in.pdf", "out.pdf", types.PageRange{Start: 1, End: 1})
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := apperr.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf = %v, want %v (err %v)", got, tt.wantKind, err)
			}
		})
	}
}

func TestProcessRunMissingBinary(t *testing.T) {
	p := &Process{Binary: filepath.Join(t.TempDir(), "nope")}
	_, err := p.Run(context.Background(), "in.pdf", "out.pdf", types.PageRange{Start: 1, End: 1})
	if apperr.KindOf(err) != apperr.ExternalService {
		t.Fatalf("err = %v, want external service error", err)
	}
}

func TestProcessRunCancelled(t *testing.T) {
	p := &Process{Binary: fakeBinary(t, `exec sleep 5`), Timeout: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := p.Run(ctx, "in.pdf", "out.pdf", types.PageRange{Start: 1, End: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
