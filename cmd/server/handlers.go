package main

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/toricodesthings/pdf-content-service/internal/apperr"
	"github.com/toricodesthings/pdf-content-service/internal/pipeline"
	"github.com/toricodesthings/pdf-content-service/internal/types"
)

const (
	uploadField     = "pdf"
	credentialField = "openAPIKey"

	// multipartMemory is how much of a form is held in memory before parts
	// spill to temporary files.
	multipartMemory = 8 << 20
	// formOverhead allows for the non-file fields and part headers on top
	// of the upload itself.
	formOverhead = 1 << 20

	msgProcessed = "File uploaded and processed successfully"
)

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, active, _ := s.metrics.get()
	status := "healthy"
	code := http.StatusOK

	ratio := s.cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if active >= int64(float64(s.cfg.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"version": version,
	})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active, ocrRuns := s.metrics.get()

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests": active,
		"totalRequests":  total,
		"ocrRuns":        ocrRuns,
		"goroutines":     runtime.NumGoroutine(),
		"memAllocMB":     m.Alloc / (1 << 20),
		"memSysMB":       m.Sys / (1 << 20),
	})
}

// handleExtract serves POST /ocr-ai: text runs and images per page, images
// described with the caller's key, flattened into one transcript.
func (s *server) handleExtract(w http.ResponseWriter, r *http.Request) {
	up, ok := s.receiveUpload(w, r)
	if !ok {
		return
	}
	defer up.cleanup()

	credential := strings.TrimSpace(r.FormValue(credentialField))
	if credential == "" {
		writeErr(w, http.StatusBadRequest, "No OpenAI API key provided")
		return
	}
	rng, err := s.pageRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ExtractTimeout)
	defer cancel()

	res, err := s.pipeline.Extract(ctx, up.path, rng, credential)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	usage := res.TotalUsage
	writeJSON(w, http.StatusOK, types.ExtractResponse{
		Status:          "success",
		Msg:             msgProcessed,
		File:            types.FileInfo{OriginalName: up.original, FilePath: up.name},
		Contents:        res.Transcript,
		TotalTokenUsage: &usage,
	})
}

// handleOCR serves POST /ocr: an ocrmypdf re-pass over the page range and the
// text of the searchable copy.
func (s *server) handleOCR(w http.ResponseWriter, r *http.Request) {
	up, ok := s.receiveUpload(w, r)
	if !ok {
		return
	}
	defer up.cleanup()

	rng, err := s.pageRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.OCRTimeout)
	defer cancel()

	res, err := s.pipeline.OCR(ctx, up.path, rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, types.ExtractResponse{
		Status: "success",
		Msg:    msgProcessed,
		File: types.FileInfo{
			OriginalName: up.original,
			FilePath:     up.name,
			OCRFilePath:  filepath.Base(res.OutputPath),
		},
		Contents: res.Transcript,
	})
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	f, err := s.store.Open(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeErr(w, http.StatusNotFound, "File not found")
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(r.PathValue("filename")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.StatusResponse{Status: "success", Msg: "File deleted successfully"})
}

// ---------- Upload ----------

type upload struct {
	original string // client-supplied file name
	name     string // stored name
	path     string
	cleanup  func()
}

// receiveUpload parses the multipart form and stores its PDF part. On
// failure it has already written the response.
func (s *server) receiveUpload(w http.ResponseWriter, r *http.Request) (upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, "Upload exceeds size limit")
			return upload{}, false
		}
		writeErr(w, http.StatusBadRequest, "No PDF file uploaded")
		return upload{}, false
	}
	cleanupForm := func() { _ = r.MultipartForm.RemoveAll() }

	file, hdr, err := r.FormFile(uploadField)
	if err != nil {
		cleanupForm()
		writeErr(w, http.StatusBadRequest, "No PDF file uploaded")
		return upload{}, false
	}
	defer file.Close()

	if mt, _, err := mime.ParseMediaType(hdr.Header.Get("Content-Type")); err != nil || mt != "application/pdf" {
		cleanupForm()
		writeErr(w, http.StatusBadRequest, "Only PDF files are allowed")
		return upload{}, false
	}

	name, err := s.store.Save(hdr.Filename, file, s.cfg.MaxUploadBytes)
	if err != nil {
		cleanupForm()
		s.writeError(w, r, err)
		return upload{}, false
	}
	path, _ := s.store.Path(name)

	logFrom(r.Context()).WithFields(logrus.Fields{
		"file": name,
		"size": hdr.Size,
	}).Debug("upload stored")

	return upload{original: hdr.Filename, name: name, path: path, cleanup: cleanupForm}, true
}

func (s *server) pageRange(r *http.Request) (types.PageRange, error) {
	q := r.URL.Query()
	return pipeline.ParsePageRange(q.Get("pageStart"), q.Get("pageEnd"), types.PageRange{
		Start: s.cfg.DefaultPageStart,
		End:   s.cfg.DefaultPageEnd,
	})
}

// ---------- Responses ----------

// writeError maps err onto a status code and a client-safe message.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}

	msg := sanitizeError(err)
	var e *apperr.Error
	if errors.As(err, &e) && e.Msg != "" {
		switch e.Kind {
		case apperr.InvalidInput, apperr.ResourceNotFound:
			msg = e.Msg
		}
	}

	log := logFrom(r.Context()).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Info("request rejected")
	}
	writeErr(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, types.StatusResponse{Status: "error", Msg: message})
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}
