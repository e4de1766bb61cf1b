package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/pdf-content-service/internal/config"
	"github.com/toricodesthings/pdf-content-service/internal/document"
	"github.com/toricodesthings/pdf-content-service/internal/extract"
	"github.com/toricodesthings/pdf-content-service/internal/ocr"
	"github.com/toricodesthings/pdf-content-service/internal/pipeline"
	"github.com/toricodesthings/pdf-content-service/internal/storage"
	"github.com/toricodesthings/pdf-content-service/internal/vision"
)

const version = "1.0.0"

type server struct {
	cfg      config.Config
	log      *logrus.Logger
	store    *storage.Store
	pipeline *pipeline.Pipeline

	requestSem *semaphore.Weighted
	ocrSem     *semaphore.Weighted
	limiters   *limiterSet
	metrics    *serverMetrics
}

func main() {
	cfg := config.Load()
	log := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	store, err := storage.New(cfg.StorageDir)
	if err != nil {
		log.WithError(err).Fatal("storage unavailable")
	}

	s := newServer(cfg, log, store, newPipeline(cfg, log))

	maxHeaderBytes := 1 << 20
	if cfg.MaxHeaderBytes > 0 {
		maxHeaderBytes = cfg.MaxHeaderBytes
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.housekeeping(ctx)

	go func() {
		log.WithFields(logrus.Fields{
			"addr":           srv.Addr,
			"max_concurrent": cfg.MaxConcurrentRequests,
			"max_ocr":        cfg.MaxOCRConcurrent,
			"storage":        cfg.StorageDir,
		}).Info("pdf content service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// newPipeline wires the PDF decoder, vision client, Tesseract and ocrmypdf
// into the request pipeline.
func newPipeline(cfg config.Config, log *logrus.Logger) *pipeline.Pipeline {
	describer := vision.New(cfg.VisionModel, cfg.VisionPrompt, cfg.VisionMaxTokens,
		cfg.VisionBaseURL, cfg.VisionRequestTimeout, log.WithField("component", "vision"))

	extractor := &extract.Extractor{
		Describer:     describer,
		NewRecognizer: recognizers(ocr.NewEngine),
		Languages:     cfg.OCRLanguages,
		Policy:        extract.FailurePolicy(cfg.ImageErrorPolicy),
		MaxDimension:  cfg.VisionMaxDimension,
		Log:           log.WithField("component", "extract"),
	}

	orchestrator := &ocr.Orchestrator{
		Runner: &ocr.Process{Binary: cfg.OCRMyPDFPath, Timeout: cfg.OCRProcessTimeout},
		Open:   document.OpenPDF,
		Log:    log.WithField("component", "ocr"),
	}

	return &pipeline.Pipeline{
		Open:         document.OpenPDF,
		Extractor:    extractor,
		Orchestrator: orchestrator,
		PageWorkers:  cfg.MaxPageWorkers,
		Log:          log.WithField("component", "pipeline"),
	}
}

func recognizers(f ocr.EngineFactory) extract.RecognizerFactory {
	return func(languages ...string) (extract.Recognizer, error) {
		return f(languages...)
	}
}

func newServer(cfg config.Config, log *logrus.Logger, store *storage.Store, p *pipeline.Pipeline) *server {
	return &server{
		cfg:        cfg,
		log:        log,
		store:      store,
		pipeline:   p,
		requestSem: semaphore.NewWeighted(max(cfg.MaxConcurrentRequests, 1)),
		ocrSem:     semaphore.NewWeighted(max(cfg.MaxOCRConcurrent, 1)),
		limiters:   newLimiterSet(cfg.RateLimitEvery, cfg.RateLimitBurst),
		metrics:    &serverMetrics{},
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/{$}", withMethod("GET", s.handleRoot))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.withInternalAuth(true, s.handleMetrics))

	mux.HandleFunc("/ocr-ai",
		s.withInternalAuth(false,
			s.withRateLimit(
				withMethod("POST",
					s.withConcurrencyLimit(s.handleExtract)))))

	mux.HandleFunc("/ocr",
		s.withInternalAuth(false,
			s.withRateLimit(
				withMethod("POST",
					s.withConcurrencyLimit(
						s.withOCRLimit(s.handleOCR))))))

	mux.HandleFunc("/download/{filename}",
		s.withInternalAuth(false,
			s.withRateLimit(
				withMethod("GET", s.handleDownload))))

	mux.HandleFunc("/files/{filename}",
		s.withInternalAuth(false,
			s.withRateLimit(
				withMethod("DELETE", s.handleDelete))))

	return withLogging(s.log, withRecovery(mux))
}

func (s *server) housekeeping(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active, ocrRuns := s.metrics.get()
		s.log.WithFields(logrus.Fields{
			"active":     active,
			"total":      total,
			"ocr_runs":   ocrRuns,
			"goroutines": runtime.NumGoroutine(),
			"mem_mb":     m.Alloc / (1 << 20),
			"limiters":   s.limiters.reset(),
		}).Info("stats")
	}
}
