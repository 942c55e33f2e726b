package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"pkt.systems/pslog"
)

// statusWriter records the status and size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// Flush keeps the click stream working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// withRequestLogging logs one line per request; server errors log at Warn.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		log := pslog.Ctx(r.Context()).With("remote", clientIP(r), "method", r.Method, "path", r.URL.Path)
		if r.Pattern != "" {
			log = log.With("route", r.Pattern)
		}
		if tool := r.PathValue("id"); tool != "" {
			log = log.With("tool", tool)
		}
		fields := []any{"status", sw.status, "bytes", sw.bytes, "duration_ms", time.Since(start).Milliseconds()}
		if sw.status >= http.StatusInternalServerError {
			log.Warn("http request failed", fields...)
			return
		}
		log.Info("http request", fields...)
		log.Debug("http request details", "query", r.URL.RawQuery, "ua", r.UserAgent())
	})
}

// clientIP prefers the first X-Forwarded-For hop and drops the port.
func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
