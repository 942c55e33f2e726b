package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pkt.systems/swissblade/core"
	"pkt.systems/swissblade/internal/catalog"
	"pkt.systems/swissblade/internal/persist"
	"pkt.systems/swissblade/internal/portcheck"
	"pkt.systems/swissblade/internal/toolkit"
	"pkt.systems/swissblade/schema"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

type fakeLauncher struct {
	dir, cmd string
}

func (f *fakeLauncher) Launch(_ context.Context, dir, cmd string) (string, error) {
	f.dir, f.cmd = dir, cmd
	return "Command launched in fake-term", nil
}

type harness struct {
	srv      *httptest.Server
	service  *core.Service
	launcher *fakeLauncher
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	backend, err := persist.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	service := core.NewService(core.Deps{Backend: backend, KnownTool: catalog.Known})
	tools := toolkit.New(toolkit.Config{
		Ports: &portcheck.Checker{
			Run: func(context.Context, string, ...string) ([]byte, error) {
				return []byte("LISTEN 0 511 0.0.0.0:8080 0.0.0.0:* users:((\"node\",pid=4242,fd=20))\n"), nil
			},
		},
	})
	launcher := &fakeLauncher{}
	s := NewServer(cfg, service, tools, launcher, WithRand(fixedRand(0.1)))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		tools.Close()
		_ = service.Close()
	})
	return &harness{srv: srv, service: service, launcher: launcher}
}

func (h *harness) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, data)
		}
	}
	return resp.StatusCode, out
}

func TestTabsFlow(t *testing.T) {
	h := newHarness(t, Config{})
	status, body := h.do(t, http.MethodPost, "/api/tabs/open", `{"toolId":"regex-tester"}`)
	if status != http.StatusOK {
		t.Fatalf("open: status %d %v", status, body)
	}
	first := body["id"].(string)
	if body["activeTabId"] != first {
		t.Fatalf("expected opened tab active, got %v", body["activeTabId"])
	}
	tabs := body["tabs"].([]any)
	if tabs[0].(map[string]any)["title"] != "Regex Tester" {
		t.Fatalf("expected catalog title, got %v", tabs[0])
	}

	_, body = h.do(t, http.MethodPost, "/api/tabs/open", `{"toolId":"regex-tester"}`)
	if body["id"] != first || len(body["tabs"].([]any)) != 1 {
		t.Fatalf("expected open to focus existing tab, got %v", body)
	}

	_, body = h.do(t, http.MethodPost, "/api/tabs", `{"toolId":"base64","title":"b64"}`)
	second := body["id"].(string)

	status, _ = h.do(t, http.MethodPost, "/api/tabs/activate", `{"id":"`+first+`"}`)
	if status != http.StatusOK {
		t.Fatalf("activate: status %d", status)
	}
	status, _ = h.do(t, http.MethodPost, "/api/tabs/state", `{"id":"`+first+`","state":{"pattern":"a+"}}`)
	if status != http.StatusOK {
		t.Fatalf("state: status %d", status)
	}
	status, _ = h.do(t, http.MethodPost, "/api/tabs/title", `{"id":"`+second+`","title":"renamed"}`)
	if status != http.StatusOK {
		t.Fatalf("title: status %d", status)
	}
	_, body = h.do(t, http.MethodPost, "/api/tabs/close", `{"id":"`+first+`"}`)
	if body["activeTabId"] != second {
		t.Fatalf("expected remaining tab active, got %v", body["activeTabId"])
	}

	tab, ok := h.service.Tabs.Get(schema.TabID(second))
	if !ok || tab.Title != "renamed" {
		t.Fatalf("expected renamed tab, got %+v", tab)
	}
}

func TestTabsErrors(t *testing.T) {
	h := newHarness(t, Config{})
	cases := []struct {
		path string
		body string
		want int
	}{
		{"/api/tabs/activate", `{"id":"missing"}`, http.StatusNotFound},
		{"/api/tabs/close", `{"id":"missing"}`, http.StatusNotFound},
		{"/api/tabs/activate", `{}`, http.StatusBadRequest},
		{"/api/tabs", `{"toolId":"not-a-tool"}`, http.StatusNotFound},
		{"/api/tabs", `{"toolId":"Bad Tool"}`, http.StatusNotFound},
		{"/api/tabs", `{"bogus":true}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		status, body := h.do(t, http.MethodPost, tc.path, tc.body)
		if status != tc.want {
			t.Fatalf("%s %s: want %d got %d (%v)", tc.path, tc.body, tc.want, status, body)
		}
		if _, ok := body["error"]; !ok {
			t.Fatalf("%s: expected error body, got %v", tc.path, body)
		}
	}
}

func TestSettings(t *testing.T) {
	h := newHarness(t, Config{})
	status, body := h.do(t, http.MethodPut, "/api/settings", `{"theme":"dark","language":"zh-TW","panicKey":"F12"}`)
	if status != http.StatusOK {
		t.Fatalf("update: status %d %v", status, body)
	}
	if body["theme"] != "dark" || body["language"] != "zh" {
		t.Fatalf("unexpected settings %v", body)
	}
	if body["bossMode"].(map[string]any)["panicKey"] != "F12" {
		t.Fatalf("unexpected panic key %v", body["bossMode"])
	}
	status, _ = h.do(t, http.MethodPut, "/api/settings", `{"theme":"neon"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad theme, got %d", status)
	}
	_, body = h.do(t, http.MethodGet, "/api/settings", "")
	if body["theme"] != "dark" {
		t.Fatalf("invalid update should not change settings, got %v", body)
	}
}

func TestClicks(t *testing.T) {
	h := newHarness(t, Config{})
	h.do(t, http.MethodPost, "/api/clicks", "")
	_, body := h.do(t, http.MethodPost, "/api/clicks", `{"amount":49}`)
	if body["lifetime"].(float64) != 50 || body["session"].(float64) != 50 {
		t.Fatalf("unexpected counters %v", body)
	}
	stats := body["stats"].(map[string]any)
	if stats["earnedBadges"].(float64) != 1 {
		t.Fatalf("expected starter badge, got %v", stats)
	}
	_, body = h.do(t, http.MethodPost, "/api/clicks/reset", "")
	if body["session"].(float64) != 0 || body["lifetime"].(float64) != 50 {
		t.Fatalf("unexpected counters after reset %v", body)
	}
	status, _ := h.do(t, http.MethodPost, "/api/clicks/persist", `{}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 without persist flag, got %d", status)
	}
	_, body = h.do(t, http.MethodPost, "/api/clicks/persist", `{"persist":false}`)
	if body["persist"] != false {
		t.Fatalf("expected persist false, got %v", body)
	}
}

func TestClickStream(t *testing.T) {
	h := newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/api/clicks/stream", nil)
	resp, err := h.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	events := make(chan string, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				events <- strings.TrimPrefix(line, "data: ")
			}
		}
		close(events)
	}()
	next := func() map[string]any {
		t.Helper()
		select {
		case data, ok := <-events:
			if !ok {
				t.Fatalf("stream closed")
			}
			out := map[string]any{}
			if err := json.Unmarshal([]byte(data), &out); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			return out
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event")
		}
		return nil
	}
	if first := next(); first["lifetime"].(float64) != 0 {
		t.Fatalf("expected initial state, got %v", first)
	}
	h.do(t, http.MethodPost, "/api/clicks", `{"amount":3}`)
	if update := next(); update["lifetime"].(float64) != 3 {
		t.Fatalf("expected update, got %v", update)
	}
}

func TestDeploy(t *testing.T) {
	h := newHarness(t, Config{})
	_, body := h.do(t, http.MethodPost, "/api/deploy/spin", "")
	last := body["last"].(map[string]any)
	if last["result"] != "deploy" || last["survived"] != true {
		t.Fatalf("fixed rng should deploy, got %v", last)
	}
	_, body = h.do(t, http.MethodPost, "/api/deploy/result", `{"result":"rickroll"}`)
	if body["survivalRate"].(float64) != 50 {
		t.Fatalf("unexpected survival rate %v", body["survivalRate"])
	}
	status, _ := h.do(t, http.MethodPost, "/api/deploy/result", `{"result":"meteor"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad outcome, got %d", status)
	}
	_, body = h.do(t, http.MethodPost, "/api/deploy/config", `{"directory":"/srv/app","deployCommand":"make ship"}`)
	if body["directory"] != "/srv/app" || body["deployCommand"] != "make ship" {
		t.Fatalf("unexpected config %v", body)
	}
	_, body = h.do(t, http.MethodPost, "/api/deploy/run", "")
	if body["message"] != "Command launched in fake-term" || h.launcher.cmd != "make ship" || h.launcher.dir != "/srv/app" {
		t.Fatalf("unexpected launch %v %+v", body, h.launcher)
	}
	_, body = h.do(t, http.MethodPost, "/api/deploy/clear", "")
	if len(body["history"].([]any)) != 0 {
		t.Fatalf("expected cleared history, got %v", body["history"])
	}
	_, body = h.do(t, http.MethodPost, "/api/deploy/reset", "")
	if body["stats"].(map[string]any)["deploys"].(float64) != 0 {
		t.Fatalf("expected reset stats, got %v", body["stats"])
	}
}

func TestProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"method":"` + r.Method + `"}`))
	}))
	defer upstream.Close()
	h := newHarness(t, Config{})

	status, body := h.do(t, http.MethodPost, "/api/proxy", `{"InputUrl":"`+upstream.URL+`","method":"put"}`)
	if status != http.StatusOK {
		t.Fatalf("proxy: status %d %v", status, body)
	}
	if body["status"].(float64) != 200 || body["statusText"] != "OK" {
		t.Fatalf("unexpected proxy response %v", body)
	}
	if body["data"] != "{\n  \"method\": \"PUT\"\n}" {
		t.Fatalf("expected pretty JSON, got %q", body["data"])
	}

	status, body = h.do(t, http.MethodPost, "/api/proxy", `{"InputUrl":""}`)
	if status != http.StatusBadRequest || body["error"] != "URL is required" {
		t.Fatalf("expected URL is required, got %d %v", status, body)
	}
}

func TestBodyLimit(t *testing.T) {
	h := newHarness(t, Config{MaxBodyBytes: 64})
	payload := `{"InputUrl":"https://example.com","body":"` + strings.Repeat("x", 128) + `"}`
	status, _ := h.do(t, http.MethodPost, "/api/proxy", payload)
	if status != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", status)
	}
}

func TestTools(t *testing.T) {
	h := newHarness(t, Config{})
	_, body := h.do(t, http.MethodGet, "/api/tools?q=regex", "")
	tools := body["tools"].([]any)
	if len(tools) == 0 || tools[0].(map[string]any)["id"] != "regex-tester" {
		t.Fatalf("unexpected search %v", tools)
	}
	status, body := h.do(t, http.MethodPost, "/api/tools/color-picker", `{"input":"#ff0000"}`)
	if status != http.StatusOK {
		t.Fatalf("color: %d %v", status, body)
	}
	if body["formats"].(map[string]any)["hex"] != "#FF0000" {
		t.Fatalf("unexpected color %v", body["formats"])
	}
	status, _ = h.do(t, http.MethodPost, "/api/tools/base64", `{}`)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unavailable tool, got %d", status)
	}
	status, _ = h.do(t, http.MethodPost, "/api/tools/color-picker", `{"input":"nope"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad color, got %d", status)
	}
}

func TestPorts(t *testing.T) {
	h := newHarness(t, Config{})
	_, body := h.do(t, http.MethodGet, "/api/ports/8080", "")
	if body["inUse"] != true || body["processName"] != "node" {
		t.Fatalf("unexpected port info %v", body)
	}
	_, body = h.do(t, http.MethodGet, "/api/ports?from=8000&to=9000", "")
	if len(body["ports"].([]any)) != 1 {
		t.Fatalf("unexpected scan %v", body)
	}
	status, _ := h.do(t, http.MethodGet, "/api/ports/abc", "")
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestWhistleDisabled(t *testing.T) {
	h := newHarness(t, Config{})
	status, _ := h.do(t, http.MethodPost, "/api/whistle", `{"mode":"tcp-send","host":"example.com","port":80}`)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 when disabled, got %d", status)
	}
}

func TestBasePathMount(t *testing.T) {
	h := newHarness(t, Config{BasePath: "/blade/"})
	status, _ := h.do(t, http.MethodGet, "/blade/api/settings", "")
	if status != http.StatusOK {
		t.Fatalf("expected mounted route, got %d", status)
	}
	status, _ = h.do(t, http.MethodGet, "/api/settings", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 outside base path, got %d", status)
	}
}
