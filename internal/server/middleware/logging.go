package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/watchdeck/watchdeck/internal/metrics"
	"github.com/watchdeck/watchdeck/internal/model"
)

// Recorder persists request log entries. Implemented by *store.Store.
type Recorder interface {
	InsertRequestLog(ctx context.Context, entry *model.RequestLog) error
}

const recordTimeout = 5 * time.Second

// RequestLog returns an HTTP middleware that wraps every handler with
// request accounting: it measures latency, captures the final status code,
// emits a structured log line, and persists an immutable request log row.
//
// Persistence is fully decoupled from the response path. The row is written
// from a detached goroutine on a fresh context, so a client disconnect
// cannot cancel a write already in flight, the caller never waits on the
// database, and a failed write is swallowed after one attempt (counted in
// metrics, logged locally).
//
// If the handler panics, the entry is recorded with a 500 status and the
// panic is re-raised unchanged for the outer recoverer.
func RequestLog(rec Recorder, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			// The identity carrier lets the Authenticate middleware,
			// which runs deeper in the chain, report the resolved
			// principal back out to this wrapper without a second
			// key verification.
			carrier := &identityCarrier{}
			r = r.WithContext(withCarrier(r.Context(), carrier))

			defer func() {
				if rc := recover(); rc != nil {
					emit(rec, m, logger, r, carrier, http.StatusInternalServerError, time.Since(start))
					panic(rc)
				}
			}()

			next.ServeHTTP(ww, r)

			emit(rec, m, logger, r, carrier, ww.status, time.Since(start))
		})
	}
}

func emit(rec Recorder, m *metrics.Metrics, logger *slog.Logger, r *http.Request, carrier *identityCarrier, status int, duration time.Duration) {
	durationMs := float64(duration.Microseconds()) / 1000.0

	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	} else if status >= 400 {
		level = slog.LevelWarn
	}

	entry := &model.RequestLog{
		RequestID:  GetRequestID(r.Context()),
		Method:     r.Method,
		Path:       r.URL.Path,
		Status:     status,
		DurationMs: durationMs,
		IP:         r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	if p := carrier.get(); p != nil {
		if p.KeyID != "" {
			keyID := p.KeyID
			entry.KeyID = &keyID
		}
		if p.UserID != "" {
			userID := p.UserID
			entry.UserID = &userID
		}
	}

	logger.Log(r.Context(), level, "request",
		"method", entry.Method,
		"path", entry.Path,
		"status", status,
		"duration_ms", durationMs,
		"request_id", entry.RequestID,
		"remote_addr", entry.IP,
	)

	if m != nil {
		m.RequestsTotal.WithLabelValues(entry.Method, statusLabel(status)).Inc()
		m.RequestDurationSeconds.WithLabelValues(entry.Method).Observe(duration.Seconds())
	}

	if rec == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := rec.InsertRequestLog(ctx, entry); err != nil {
			if m != nil {
				m.RequestLogErrorsTotal.Inc()
			}
			logger.Warn("request log write failed", "error", err)
		}
	}()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// identityCarrier is a write-once mailbox placed in the request context by
// RequestLog and filled by Authenticate once the caller is resolved.
type identityCarrier struct {
	mu sync.Mutex
	p  *Principal
}

func (c *identityCarrier) set(p *Principal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.p == nil {
		c.p = p
	}
}

func (c *identityCarrier) get() *Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.p
}

const carrierKey contextKey = "identity_carrier"

func withCarrier(ctx context.Context, c *identityCarrier) context.Context {
	return context.WithValue(ctx, carrierKey, c)
}

func carrierFrom(ctx context.Context) *identityCarrier {
	if c, ok := ctx.Value(carrierKey).(*identityCarrier); ok {
		return c
	}
	return nil
}

// responseWriter wraps http.ResponseWriter to capture the status code and
// bytes written for logging purposes.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter, required for http.Flusher
// and other interface assertions through middleware chains.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
