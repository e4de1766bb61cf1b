// Package storage keeps uploaded documents and their OCR copies on local disk.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
)

// minPDFBytes rejects uploads too small to hold a header, a page and a
// trailer.
const minPDFBytes = 100

const maxNameAttempts = 16

var pdfMagic = []byte("%PDF")

type Store struct {
	Dir string
	now func() time.Time
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}
	return &Store{Dir: dir, now: time.Now}, nil
}

// Save streams r to a new file named after original and returns the stored
// name. The upload must start with the PDF magic bytes and fit within limit
// bytes; on any failure nothing is left behind.
func (s *Store) Save(original string, r io.Reader, limit int64) (string, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	name, path, f, err := s.create(original, now())
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, &io.LimitedReader{R: r, N: limit + 1})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = checkUpload(path, n, limit)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return name, nil
}

// create opens a fresh file for original, stepping the timestamp forward
// when two uploads of the same name land in the same millisecond.
func (s *Store) create(original string, at time.Time) (string, string, *os.File, error) {
	for i := 0; ; i++ {
		name := SanitizeName(original, at.Add(time.Duration(i)*time.Millisecond))
		path := filepath.Join(s.Dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) && i < maxNameAttempts {
			continue
		}
		if err != nil {
			return "", "", nil, fmt.Errorf("create: %w", err)
		}
		return name, path, f, nil
	}
}

func checkUpload(path string, n, limit int64) error {
	if n > limit {
		return apperr.New(apperr.InvalidInput, "PDF exceeds %dMB limit", limit/(1<<20))
	}
	if n < minPDFBytes {
		return apperr.New(apperr.InvalidInput, "PDF too small (likely invalid)")
	}
	return validatePDFMagic(path)
}

// validatePDFMagic checks that a file starts with %PDF. This catches HTML or
// other content uploaded with a PDF content type.
func validatePDFMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return apperr.New(apperr.InvalidInput, "uploaded file is too small to be a valid PDF")
	}
	if !bytes.Equal(header, pdfMagic) {
		return apperr.New(apperr.InvalidInput, "uploaded file is not a PDF (starts with %q)", header)
	}
	return nil
}

// Path resolves a stored name to its location. Names that could escape the
// directory are rejected.
func (s *Store) Path(name string) (string, error) {
	if !validName(name) {
		return "", apperr.New(apperr.InvalidInput, "Invalid file name")
	}
	return filepath.Join(s.Dir, name), nil
}

func (s *Store) Exists(name string) bool {
	path, err := s.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Open returns the stored file for reading. The caller closes it.
func (s *Store) Open(name string) (*os.File, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.New(apperr.ResourceNotFound, "File not found")
	}
	return f, err
}

func (s *Store) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return apperr.New(apperr.ResourceNotFound, "File not found")
	}
	return err
}
