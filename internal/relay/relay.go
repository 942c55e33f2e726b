// Package relay forwards a single HTTP request on behalf of a client and
// reports status, latency and body.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/net/idna"
	"golang.org/x/time/rate"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/schema"
)

const (
	// DefaultTimeout bounds one relayed request.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxResponseBytes caps the relayed body.
	DefaultMaxResponseBytes int64 = 10 << 20
)

// ErrResponseTooLarge is returned when the upstream body exceeds the cap.
var ErrResponseTooLarge = errors.New("response body too large")

// Config controls relay behaviour.
type Config struct {
	Timeout          time.Duration
	MaxResponseBytes int64
	// RatePerSecond enables a token bucket when positive.
	RatePerSecond float64
	Burst         int
	Transport     http.RoundTripper
}

// Relay issues relayed requests.
type Relay struct {
	client   *http.Client
	limiter  *rate.Limiter
	maxBytes int64
}

// New builds a relay from cfg, filling defaults.
func New(cfg Config) *Relay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	r := &Relay{
		client:   &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		maxBytes: cfg.MaxResponseBytes,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return r
}

// Close drops idle upstream connections.
func (r *Relay) Close() {
	r.client.CloseIdleConnections()
}

// Do relays req and reports the upstream response.
func (r *Relay) Do(ctx context.Context, req schema.ProxyRequest) (schema.ProxyResponse, error) {
	if strings.TrimSpace(req.InputURL) == "" {
		return schema.ProxyResponse{}, schema.ErrURLRequired
	}
	target, err := NormalizeURL(req.InputURL)
	if err != nil {
		return schema.ProxyResponse{}, err
	}
	method, err := NormalizeMethod(req.Method)
	if err != nil {
		return schema.ProxyResponse{}, err
	}
	if r.limiter != nil && !r.limiter.Allow() {
		return schema.ProxyResponse{}, schema.ErrRateLimited
	}
	log := pslog.Ctx(ctx).With("method", method, "host", target.Host)

	var body io.Reader
	if method != http.MethodGet && req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	out, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return schema.ProxyResponse{}, fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	out.Header = SanitizeHeaders(req.Headers)

	start := time.Now()
	resp, err := r.client.Do(out)
	if err != nil {
		log.Warn("relay request failed", "err", err)
		return schema.ProxyResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return schema.ProxyResponse{}, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(raw)) > r.maxBytes {
		return schema.ProxyResponse{}, ErrResponseTooLarge
	}
	elapsed := time.Since(start)

	contentType := resp.Header.Get("Content-Type")
	data := string(raw)
	if strings.Contains(contentType, "application/json") {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, bytes.TrimSpace(raw), "", "  "); err != nil {
			return schema.ProxyResponse{}, fmt.Errorf("failed to parse JSON: %w", err)
		}
		data = pretty.String()
	}
	log.Debug("relay request done", "status", resp.StatusCode, "duration_ms", elapsed.Milliseconds(), "bytes", len(raw))
	return schema.ProxyResponse{
		Status:       resp.StatusCode,
		StatusText:   http.StatusText(resp.StatusCode),
		ResponseTime: elapsed.Milliseconds(),
		Data:         data,
		ContentType:  contentType,
	}, nil
}

// NormalizeURL trims input, defaults the scheme to https, restricts it to
// http/https and converts the host to its ASCII form.
func NormalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, schema.ErrURLRequired
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", schema.ErrInvalidURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", schema.ErrInvalidURL)
	}
	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", schema.ErrInvalidURL, err)
		}
		host = ascii
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	return u, nil
}

// NormalizeMethod defaults to GET and upper-cases a valid token.
func NormalizeMethod(method string) (string, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodGet, nil
	}
	if !httpguts.ValidHeaderFieldName(method) {
		return "", fmt.Errorf("%w: %q", schema.ErrInvalidMethod, method)
	}
	return method, nil
}

var droppedHeaders = map[string]bool{
	"Host":              true,
	"Content-Length":    true,
	"Connection":        true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Te":                true,
	"Trailer":           true,
	"Keep-Alive":        true,
}

// SanitizeHeaders drops headers with invalid names, values containing CR or
// LF (or other control bytes) and hop-by-hop headers.
func SanitizeHeaders(in map[string]string) http.Header {
	out := make(http.Header, len(in))
	for name, value := range in {
		name = strings.TrimSpace(name)
		if !httpguts.ValidHeaderFieldName(name) {
			continue
		}
		if strings.ContainsAny(value, "\r\n") || !httpguts.ValidHeaderFieldValue(value) {
			continue
		}
		key := http.CanonicalHeaderKey(name)
		if droppedHeaders[key] {
			continue
		}
		out.Set(key, value)
	}
	return out
}
