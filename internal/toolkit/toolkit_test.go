package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"pkt.systems/swissblade/internal/asciiart"
	"pkt.systems/swissblade/internal/blame"
	"pkt.systems/swissblade/internal/dataconv"
	"pkt.systems/swissblade/internal/lorem"
	"pkt.systems/swissblade/internal/portcheck"
	"pkt.systems/swissblade/internal/wsfish"
	"pkt.systems/swissblade/schema"
)

func newTestToolkit(t *testing.T) *Toolkit {
	t.Helper()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	k := New(Config{
		Location: time.UTC,
		Now:      func() time.Time { return now },
		NewRand:  func() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) },
		Ports: &portcheck.Checker{
			Run: func(context.Context, string, ...string) ([]byte, error) {
				return []byte("LISTEN 0 4096 127.0.0.1:5432 0.0.0.0:* users:((\"postgres\",pid=812,fd=5))\n"), nil
			},
		},
		Kill: func(int) error { return nil },
	})
	t.Cleanup(k.Close)
	return k
}

func run(t *testing.T, k *Toolkit, id schema.ToolID, body string) any {
	t.Helper()
	out, err := k.Run(context.Background(), id, json.RawMessage(body))
	if err != nil {
		t.Fatalf("run %s: %v", id, err)
	}
	return out
}

func TestRunRejectsUnknownAndUnavailable(t *testing.T) {
	k := newTestToolkit(t)
	if _, err := k.Run(context.Background(), "nope", nil); !errors.Is(err, schema.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	for _, id := range []schema.ToolID{"base64", "jwt-decoder", "jwt-toothpick", "hash-generator", "deploy-roulette", "tcp-whistle"} {
		if _, err := k.Run(context.Background(), id, nil); !errors.Is(err, schema.ErrToolUnavailable) {
			t.Fatalf("%s: expected ErrToolUnavailable, got %v", id, err)
		}
	}
}

func TestRunRejectsUnknownFields(t *testing.T) {
	k := newTestToolkit(t)
	_, err := k.Run(context.Background(), "color-picker", json.RawMessage(`{"colour":"red"}`))
	if !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestConvert(t *testing.T) {
	k := newTestToolkit(t)
	out := run(t, k, "json-csv", `{"input":"[{\"a\":1,\"b\":\"x\"}]","from":"json","to":"csv"}`).(dataconv.Result)
	if out.Output != "a,b\n1,x" {
		t.Fatalf("unexpected csv %q", out.Output)
	}
	_, err := k.Run(context.Background(), "json-csv", json.RawMessage(`{"input":"x","from":"ini","to":"json"}`))
	if !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for bad format, got %v", err)
	}
}

func TestTimestamp(t *testing.T) {
	k := newTestToolkit(t)
	out := run(t, k, "timestamp-converter", `{"input":"1700000000"}`).(TimestampResult)
	got := map[string]string{}
	for _, f := range out.Fields {
		got[f.Name] = f.Value
	}
	if got["unixMs"] != "1700000000000" {
		t.Fatalf("unexpected unixMs %q", got["unixMs"])
	}
	if got["iso8601"] != "2023-11-14T22:13:20.000Z" {
		t.Fatalf("unexpected iso8601 %q", got["iso8601"])
	}
	_, err := k.Run(context.Background(), "timestamp-converter", json.RawMessage(`{"input":"1","timezone":"Mars/Olympus"}`))
	if !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for bad timezone, got %v", err)
	}
}

func TestCron(t *testing.T) {
	k := newTestToolkit(t)
	out := run(t, k, "cron-generator", `{"expression":"0 9 * * 1-5","count":3}`).(CronResult)
	want := []string{"2024-03-01T09:00:00Z", "2024-03-04T09:00:00Z", "2024-03-05T09:00:00Z"}
	if diff := cmp.Diff(want, out.NextRuns); diff != "" {
		t.Fatalf("next runs mismatch (-want +got):\n%s", diff)
	}
	if out.Description == "" || len(out.Presets) == 0 {
		t.Fatalf("expected description and presets, got %+v", out)
	}
	built := run(t, k, "cron-generator", `{"build":{"frequency":"daily","hour":6,"minute":30}}`).(CronResult)
	if built.Expression != "30 6 * * *" {
		t.Fatalf("unexpected built expression %q", built.Expression)
	}
	if _, err := k.Run(context.Background(), "cron-generator", json.RawMessage(`{"expression":"* *"}`)); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRegex(t *testing.T) {
	k := newTestToolkit(t)
	out := run(t, k, "regex-tester", `{"pattern":"(\\d+)","flags":"g","input":"a1 b22"}`).(RegexResult)
	if len(out.Matches) != 2 || out.Matches[1].Match != "22" {
		t.Fatalf("unexpected matches %+v", out.Matches)
	}
	if len(out.Tokens) == 0 {
		t.Fatalf("expected token breakdown")
	}
	if _, err := k.Run(context.Background(), "regex-tester", json.RawMessage(`{"pattern":""}`)); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestQRPayloadTooLarge(t *testing.T) {
	k := newTestToolkit(t)
	body, _ := json.Marshal(map[string]string{"kind": "text", "input": strings.Repeat("x", 5000)})
	_, err := k.Run(context.Background(), "qr-code", body)
	if !errors.Is(err, schema.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestLorem(t *testing.T) {
	k := newTestToolkit(t)
	out := run(t, k, "lorem-tweezers", `{"count":2,"classic":true}`).(LoremResult)
	if !strings.HasPrefix(out.Output, lorem.ClassicOpening) {
		t.Fatalf("expected classic opening, got %q", out.Output)
	}
	if got := strings.Count(out.Output, "\n\n"); got != 1 {
		t.Fatalf("expected 2 paragraphs, got %d separators", got)
	}
	iban := run(t, k, "lorem-tweezers", `{"kind":"iban"}`).(LoremResult)
	if !lorem.ValidIBAN(iban.Output) {
		t.Fatalf("invalid iban %q", iban.Output)
	}
	if _, err := k.Run(context.Background(), "lorem-tweezers", json.RawMessage(`{"kind":"poem"}`)); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestBlame(t *testing.T) {
	k := newTestToolkit(t)
	out := run(t, k, "blame-intern", `{"input":"prod is down","intern":"Sam"}`).(blame.History)
	if out.Intern != "Sam" || len(out.Commits) < 3 {
		t.Fatalf("unexpected history %+v", out)
	}
	if _, err := k.Run(context.Background(), "blame-intern", json.RawMessage(`{"input":" "}`)); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestPort(t *testing.T) {
	k := newTestToolkit(t)
	info := run(t, k, "port-detective", `{"port":5432}`).(schema.PortInfo)
	want := schema.PortInfo{Port: 5432, InUse: true, PID: 812, ProcessName: "postgres"}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Fatalf("port info mismatch (-want +got):\n%s", diff)
	}
	killed := run(t, k, "port-detective", `{"kill":812}`).(KillResult)
	if !killed.Killed || killed.PID != 812 {
		t.Fatalf("unexpected kill result %+v", killed)
	}
	if _, err := k.Run(context.Background(), "port-detective", json.RawMessage(`{"kill":1}`)); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := k.Run(context.Background(), "port-detective", json.RawMessage(`{"port":70000}`)); !errors.Is(err, schema.ErrInvalidPort) {
		t.Fatalf("expected ErrInvalidPort, got %v", err)
	}
}

func TestCurlWithoutSend(t *testing.T) {
	k := newTestToolkit(t)
	out := run(t, k, "curl-converter", `{"input":"curl -X POST https://example.com -d a=1"}`).(CurlResult)
	if out.Request.Method != "POST" || out.Request.URL != "https://example.com" || out.Response != nil {
		t.Fatalf("unexpected curl result %+v", out)
	}
}

func TestASCIICork(t *testing.T) {
	k := newTestToolkit(t)
	out := run(t, k, "ascii-cork", `{"text":"hi","font":"Slant","frame":true}`).(asciiart.Result)
	if out.Font != asciiart.Slant || !strings.HasPrefix(out.Art, "+-") {
		t.Fatalf("unexpected banner %+v", out)
	}
	if Text(out) != out.Art {
		t.Fatalf("text rendering must be the banner")
	}
	if _, err := k.Run(context.Background(), "ascii-cork", json.RawMessage(`{"text":"hi","font":"Comic Sans"}`)); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestWebSocketFish(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteMessage(kind, append([]byte("echo: "), data...))
		}
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	k := newTestToolkit(t)
	raw, err := FromText("websocket-fish", url+"\nping")
	if err != nil {
		t.Fatalf("from text: %v", err)
	}
	var req wsfish.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	req.MaxMessages = 1
	body, _ := json.Marshal(req)
	out := run(t, k, "websocket-fish", string(body)).(wsfish.Result)
	last := out.Entries[len(out.Entries)-1]
	if last.Direction != wsfish.Received || last.Text != "echo: ping" {
		t.Fatalf("unexpected transcript %+v", out.Entries)
	}
	text := Text(out)
	if !strings.Contains(text, ">> ping") || !strings.Contains(text, "<< echo: ping") {
		t.Fatalf("unexpected transcript text %q", text)
	}
	if _, err := k.Run(context.Background(), "websocket-fish", json.RawMessage(`{"url":"https://example.com"}`)); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
