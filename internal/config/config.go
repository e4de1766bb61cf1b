package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port string

	// Storage
	StorageDir string

	// Secrets
	InternalSharedSecret string // optional; guards /metrics when set

	// Limits
	MaxUploadBytes int64

	// Concurrency
	MaxConcurrentRequests int64
	MaxOCRConcurrent      int64
	MaxPageWorkers        int // per-document page extraction workers cap

	// Server timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// Request timeouts
	ExtractTimeout time.Duration
	OCRTimeout     time.Duration

	// ocrmypdf / tesseract
	OCRMyPDFPath      string
	OCRProcessTimeout time.Duration
	OCRLanguages      []string
	ImageErrorPolicy  string // "fail" or "skip"

	// rate limiting (per IP)
	RateLimitEvery time.Duration
	RateLimitBurst int

	// housekeeping
	CleanupInterval time.Duration

	// health
	HealthDegradeRatio float64

	// http
	MaxHeaderBytes int

	// Page range defaults (used when the query omits values)
	DefaultPageStart int
	DefaultPageEnd   int

	// Vision
	VisionModel          string
	VisionMaxTokens      int
	VisionPrompt         string
	VisionBaseURL        string
	VisionRequestTimeout time.Duration
	VisionMaxDimension   int // 0 sends images at full size

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"
}

func Load() Config {
	return Config{
		Port: envStr("PORT", ""),

		StorageDir: envStr("STORAGE_DIR", "./storage"),

		InternalSharedSecret: envStr("INTERNAL_SHARED_SECRET", ""),

		MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", int(200<<20))),

		MaxConcurrentRequests: int64(envInt("MAX_CONCURRENT_REQUESTS", 15)),
		MaxOCRConcurrent:      int64(envInt("MAX_OCR_CONCURRENT", 3)),
		MaxPageWorkers:        envInt("MAX_PAGE_WORKERS", 4),

		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       envDur("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 20*time.Minute),
		IdleTimeout:       envDur("IDLE_TIMEOUT", 60*time.Second),

		ExtractTimeout: envDur("EXTRACT_TIMEOUT", 5*time.Minute),
		OCRTimeout:     envDur("OCR_TIMEOUT", 16*time.Minute),

		OCRMyPDFPath:      envStr("OCRMYPDF_PATH", "ocrmypdf"),
		OCRProcessTimeout: envDur("OCR_PROCESS_TIMEOUT", 15*time.Minute),
		OCRLanguages:      envList("OCR_LANGUAGES", []string{"eng"}),
		ImageErrorPolicy:  strings.ToLower(envStr("IMAGE_ERROR_POLICY", "fail")),

		RateLimitEvery: envDur("RATE_LIMIT_EVERY", 600*time.Millisecond),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),

		CleanupInterval: envDur("CLEANUP_INTERVAL", 5*time.Minute),

		HealthDegradeRatio: envFloat("HEALTH_DEGRADE_RATIO", 0.9),

		MaxHeaderBytes: envInt("MAX_HEADER_BYTES", 1<<20),

		DefaultPageStart: envInt("DEFAULT_PAGE_START", 1),
		DefaultPageEnd:   envInt("DEFAULT_PAGE_END", 5),

		VisionModel:          envStr("VISION_MODEL", "gpt-4o"),
		VisionMaxTokens:      envInt("VISION_MAX_TOKENS", 500),
		VisionPrompt:         envStr("VISION_PROMPT", "You are a helpful assistant that can describe images in detail."),
		VisionBaseURL:        envStr("VISION_BASE_URL", ""),
		VisionRequestTimeout: envDur("VISION_REQUEST_TIMEOUT", 60*time.Second),
		VisionMaxDimension:   envNonNegInt("VISION_MAX_DIMENSION", 2048),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(envStr("LOG_FORMAT", "text")),
	}
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must be set")
	}
	if s := strings.TrimSpace(c.InternalSharedSecret); s != "" && len(s) < 32 {
		return fmt.Errorf("INTERNAL_SHARED_SECRET must be at least 32 characters")
	}
	if c.ImageErrorPolicy != "fail" && c.ImageErrorPolicy != "skip" {
		return fmt.Errorf("IMAGE_ERROR_POLICY must be \"fail\" or \"skip\", got %q", c.ImageErrorPolicy)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\", got %q", c.LogFormat)
	}
	if c.DefaultPageStart > c.DefaultPageEnd {
		return fmt.Errorf("DEFAULT_PAGE_START (%d) is after DEFAULT_PAGE_END (%d)", c.DefaultPageStart, c.DefaultPageEnd)
	}
	return nil
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// envNonNegInt is envInt for settings where 0 means "off".
func envNonNegInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// envList splits a comma or plus separated value ("eng+deu", "eng,deu").
func envList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, f := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '+' }) {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
