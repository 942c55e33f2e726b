package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"pkt.systems/swissblade/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSanitizeHeadersDropsCRLF(t *testing.T) {
	h := SanitizeHeaders(map[string]string{
		"X-Good":       "ok",
		"X-Injected":   "a\r\nSet-Cookie: x=1",
		"X-Newline":    "line\n",
		"Bad Name":     "v",
		"Host":         "evil.example",
		"Content-Type": "application/json",
	})
	if h.Get("X-Good") != "ok" || h.Get("Content-Type") != "application/json" {
		t.Fatalf("expected clean headers kept, got %v", h)
	}
	for _, name := range []string{"X-Injected", "X-Newline", "Bad Name", "Host"} {
		if _, ok := h[http.CanonicalHeaderKey(name)]; ok {
			t.Fatalf("expected %s dropped, got %v", name, h)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"example.com/path":            "https://example.com/path",
		" http://Example.com:8080/a ": "http://example.com:8080/a",
		"https://bücher.example/x":    "https://xn--bcher-kva.example/x",
		"http://127.0.0.1:9/":         "http://127.0.0.1:9/",
	}
	for in, want := range cases {
		u, err := NormalizeURL(in)
		if err != nil {
			t.Fatalf("normalize %q: %v", in, err)
		}
		if got := u.String(); got != want {
			t.Fatalf("normalize %q: want %q got %q", in, want, got)
		}
	}
	for _, bad := range []string{"ftp://example.com", "http://", "https://exa mple.com"} {
		if _, err := NormalizeURL(bad); !errors.Is(err, schema.ErrInvalidURL) {
			t.Fatalf("normalize %q: expected ErrInvalidURL, got %v", bad, err)
		}
	}
}

func TestNormalizeMethod(t *testing.T) {
	if m, _ := NormalizeMethod(""); m != http.MethodGet {
		t.Fatalf("expected GET default, got %q", m)
	}
	if m, _ := NormalizeMethod("patch"); m != http.MethodPatch {
		t.Fatalf("expected PATCH, got %q", m)
	}
	if _, err := NormalizeMethod("GE T"); !errors.Is(err, schema.ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
}

func TestDoRequiresURL(t *testing.T) {
	r := New(Config{})
	if _, err := r.Do(context.Background(), schema.ProxyRequest{}); !errors.Is(err, schema.ErrURLRequired) {
		t.Fatalf("expected ErrURLRequired, got %v", err)
	}
}

func TestDoPrettyPrintsJSON(t *testing.T) {
	var gotMethod, gotBody, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotHeader = r.Header.Get("X-Trace")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"b":1,"a":[true]}`)
	}))
	defer srv.Close()

	r := New(Config{Transport: srv.Client().Transport})
	defer r.Close()
	resp, err := r.Do(context.Background(), schema.ProxyRequest{
		InputURL: srv.URL,
		Method:   "post",
		Headers:  map[string]string{"X-Trace": "abc", "X-Bad": "x\r\ny"},
		Body:     `{"hello":"world"}`,
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotMethod != http.MethodPost || gotBody != `{"hello":"world"}` || gotHeader != "abc" {
		t.Fatalf("unexpected upstream request: %s %q %q", gotMethod, gotBody, gotHeader)
	}
	if resp.Status != http.StatusCreated || resp.StatusText != "Created" {
		t.Fatalf("unexpected status: %+v", resp)
	}
	want := "{\n  \"b\": 1,\n  \"a\": [\n    true\n  ]\n}"
	if resp.Data != want {
		t.Fatalf("unexpected data:\n%s", resp.Data)
	}
	if resp.ResponseTime < 0 {
		t.Fatalf("negative response time")
	}
}

func TestDoGetDropsBody(t *testing.T) {
	var gotLen int64 = -1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLen = r.ContentLength
		_, _ = io.WriteString(w, "plain")
	}))
	defer srv.Close()

	r := New(Config{})
	defer r.Close()
	resp, err := r.Do(context.Background(), schema.ProxyRequest{InputURL: srv.URL, Body: "ignored"})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotLen != 0 || resp.Data != "plain" {
		t.Fatalf("expected bodyless GET and plain data, got len=%d data=%q", gotLen, resp.Data)
	}
}

func TestDoResponseCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer srv.Close()

	r := New(Config{MaxResponseBytes: 16})
	defer r.Close()
	_, err := r.Do(context.Background(), schema.ProxyRequest{InputURL: srv.URL})
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}
}

func TestDoTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r := New(Config{Timeout: 50 * time.Millisecond})
	defer r.Close()
	_, err := r.Do(context.Background(), schema.ProxyRequest{InputURL: srv.URL})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestDoRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	r := New(Config{RatePerSecond: 0.001, Burst: 1})
	defer r.Close()
	if _, err := r.Do(context.Background(), schema.ProxyRequest{InputURL: srv.URL}); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := r.Do(context.Background(), schema.ProxyRequest{InputURL: srv.URL}); !errors.Is(err, schema.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
