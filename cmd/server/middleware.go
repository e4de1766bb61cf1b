package main

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
	ocrRuns       int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}
func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}
func (m *serverMetrics) incOCR() {
	m.mu.Lock()
	m.ocrRuns++
	m.mu.Unlock()
}
func (m *serverMetrics) get() (total, active, ocr int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs, m.ocrRuns
}

// Per-IP rate limiters, reset wholesale on every cleanup tick.
type limiterSet struct {
	mu    sync.Mutex
	every time.Duration
	burst int
	m     map[string]*rate.Limiter
}

func newLimiterSet(every time.Duration, burst int) *limiterSet {
	if every <= 0 {
		every = 600 * time.Millisecond // ~100/min
	}
	if burst <= 0 {
		burst = 20
	}
	return &limiterSet{every: every, burst: burst, m: map[string]*rate.Limiter{}}
}

func (l *limiterSet) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.m[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.every), l.burst)
		l.m[ip] = lim
	}
	return lim
}

func (l *limiterSet) reset() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.m)
	l.m = map[string]*rate.Limiter{}
	return n
}

// ---------- Middleware ----------

func withMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeErr(w, http.StatusMethodNotAllowed, "Method must be "+method)
			return
		}
		next(w, r)
	}
}

// withInternalAuth requires X-Internal-Auth to match the shared secret. With
// no secret configured it only guards handlers where required is set.
func (s *server) withInternalAuth(required bool, next http.HandlerFunc) http.HandlerFunc {
	shared := s.cfg.InternalSharedSecret
	return func(w http.ResponseWriter, r *http.Request) {
		if shared == "" && !required {
			next(w, r)
			return
		}
		got := r.Header.Get("X-Internal-Auth")
		if shared == "" || subtle.ConstantTimeCompare([]byte(got), []byte(shared)) != 1 {
			writeErr(w, http.StatusUnauthorized, "Invalid authentication")
			return
		}
		next(w, r)
	}
}

func (s *server) withConcurrencyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.requestSem.Acquire(r.Context(), 1); err != nil {
			writeErr(w, http.StatusServiceUnavailable, "Service at capacity")
			return
		}
		defer s.requestSem.Release(1)

		s.metrics.incActive()
		defer s.metrics.decActive()

		next(w, r)
	}
}

// withOCRLimit waits for a slot on the ocrmypdf gate for as long as the
// request is alive.
func (s *server) withOCRLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.ocrSem.Acquire(r.Context(), 1); err != nil {
			writeErr(w, http.StatusServiceUnavailable, "OCR at capacity")
			return
		}
		defer s.ocrSem.Release(1)
		s.metrics.incOCR()
		next(w, r)
	}
}

func (s *server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiters.get(getClientIP(r)).Allow() {
			w.Header().Set("Retry-After", "60")
			writeErr(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logFrom(r.Context()).WithField("panic", err).
					WithField("stack", string(debug.Stack())).
					Error("handler panicked")
				writeErr(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withLogging stamps a request id, exposes a request-scoped logger through
// the context and logs one line per request.
func withLogging(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		entry := log.WithField("request_id", id)
		ww := &wrapWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), loggerKey{}, entry)))

		entry.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     sanitizeLogString(r.URL.Path),
			"status":   ww.status,
			"duration": time.Since(start).Round(time.Millisecond),
			"ip":       getClientIP(r),
		}).Info("request")
	})
}

type loggerKey struct{}

func logFrom(ctx context.Context) logrus.FieldLogger {
	if l, ok := ctx.Value(loggerKey{}).(logrus.FieldLogger); ok {
		return l
	}
	return logrus.StandardLogger()
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---------- Helpers ----------

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
