package toolkit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pkt.systems/swissblade/internal/asciiart"
	"pkt.systems/swissblade/internal/blame"
	"pkt.systems/swissblade/internal/dataconv"
	"pkt.systems/swissblade/internal/qrcode"
	"pkt.systems/swissblade/internal/regextest"
	"pkt.systems/swissblade/internal/wsfish"
	"pkt.systems/swissblade/schema"
)

// Text returns the plain-text rendering of a tool result, or "" when the
// result is best shown as JSON.
func Text(result any) string {
	switch v := result.(type) {
	case dataconv.Result:
		return v.Output
	case qrcode.Result:
		return v.Art
	case LoremResult:
		return v.Output
	case blame.History:
		return v.Log
	case TimestampResult:
		lines := make([]string, 0, len(v.Fields))
		for _, f := range v.Fields {
			lines = append(lines, fmt.Sprintf("%-12s %s", f.Name, f.Value))
		}
		return strings.Join(lines, "\n")
	case CronResult:
		lines := []string{v.Expression, v.Description}
		lines = append(lines, v.NextRuns...)
		return strings.Join(lines, "\n")
	case RegexResult:
		if len(v.Matches) == 0 {
			return v.Literal + ": no matches"
		}
		lines := []string{fmt.Sprintf("%s: %d matches", v.Literal, len(v.Matches))}
		for _, m := range v.Matches {
			lines = append(lines, fmt.Sprintf("  @%d %q", m.Index, m.Match))
		}
		if v.Replaced != nil {
			lines = append(lines, "", *v.Replaced)
		}
		return strings.Join(lines, "\n")
	case CurlResult:
		if v.Response == nil {
			return v.Curl
		}
		return proxyText(*v.Response)
	case schema.ProxyResponse:
		return proxyText(v)
	case schema.PortInfo:
		return portText(v)
	case []schema.PortInfo:
		if len(v) == 0 {
			return "no listening ports in range"
		}
		lines := make([]string, 0, len(v))
		for _, info := range v {
			lines = append(lines, portText(info))
		}
		return strings.Join(lines, "\n")
	case KillResult:
		return fmt.Sprintf("killed pid %d", v.PID)
	case asciiart.Result:
		return v.Art
	case wsfish.Result:
		lines := make([]string, 0, len(v.Entries))
		for _, e := range v.Entries {
			lines = append(lines, wsEntryText(e))
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

func proxyText(resp schema.ProxyResponse) string {
	return fmt.Sprintf("%d %s (%dms)\n%s", resp.Status, resp.StatusText, resp.ResponseTime, resp.Data)
}

var wsArrows = map[wsfish.Direction]string{
	wsfish.Sent:     ">>",
	wsfish.Received: "<<",
	wsfish.Info:     "--",
}

func wsEntryText(e wsfish.Entry) string {
	stamp := time.UnixMilli(e.Timestamp).Format("15:04:05.000")
	text := e.Text
	if e.IsBinary {
		text = fmt.Sprintf("[%d bytes] %s", e.Size, e.Hex)
	}
	return fmt.Sprintf("%s %s %s", stamp, wsArrows[e.Direction], text)
}

func portText(info schema.PortInfo) string {
	if !info.InUse {
		return fmt.Sprintf("%d free", info.Port)
	}
	if info.PID > 0 {
		return fmt.Sprintf("%d in use by %s (pid %d)", info.Port, info.ProcessName, info.PID)
	}
	return fmt.Sprintf("%d in use", info.Port)
}

// FromText maps free-form input typed into a tool pane to that tool's
// request body. Input that is already a JSON object passes through.
func FromText(id schema.ToolID, text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	var req any
	switch id {
	case "curl-converter":
		req = CurlRequest{Input: trimmed}
	case "json-csv":
		req = ConvertRequest{Input: text, From: "json", To: "csv", AutoFix: true}
	case "timestamp-converter":
		req = TimestampRequest{Input: trimmed}
	case "cron-generator":
		req = CronRequest{Expression: trimmed}
	case "regex-tester":
		pattern, input, _ := strings.Cut(text, "\n")
		req = regextest.Request{Pattern: strings.TrimSpace(pattern), Flags: "g", Input: input}
	case "color-picker":
		req = colorRequest{Input: trimmed}
	case "qr-code":
		req = qrcode.Request{Kind: qrcode.KindText, Data: text}
	case "lorem-tweezers":
		if n, err := strconv.Atoi(trimmed); err == nil {
			req = LoremRequest{Kind: "paragraphs", Count: n}
		} else {
			if trimmed == "" {
				trimmed = "paragraphs"
			}
			req = LoremRequest{Kind: trimmed}
		}
	case "blame-intern":
		req = blame.Request{Bug: trimmed}
	case "port-detective":
		p, err := parsePortText(trimmed)
		if err != nil {
			return nil, err
		}
		req = p
	case "ascii-cork":
		req = asciiart.Request{Text: trimmed}
	case "websocket-fish":
		target, rest, _ := strings.Cut(trimmed, "\n")
		ws := wsfish.Request{URL: strings.TrimSpace(target)}
		for _, line := range strings.Split(rest, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				ws.Messages = append(ws.Messages, wsfish.Message{Format: wsfish.FormatText, Payload: line})
			}
		}
		req = ws
	case "ssl-toothbrush":
		if strings.Contains(trimmed, "BEGIN CERTIFICATE") {
			req = schema.CertCheckRequest{CertPEM: trimmed}
		} else {
			host, port := splitHostPort(trimmed)
			req = schema.CertCheckRequest{Host: host, Port: port}
		}
	default:
		return nil, fmt.Errorf("%w: %s takes a JSON request", schema.ErrInvalidRequest, id)
	}
	return json.Marshal(req)
}

// parsePortText accepts "5432" or a "3000-3010" range.
func parsePortText(text string) (PortRequest, error) {
	if from, to, ok := strings.Cut(text, "-"); ok {
		f, err1 := strconv.Atoi(strings.TrimSpace(from))
		t, err2 := strconv.Atoi(strings.TrimSpace(to))
		if err1 != nil || err2 != nil {
			return PortRequest{}, fmt.Errorf("%w: %q", schema.ErrInvalidPort, text)
		}
		return PortRequest{From: f, To: t}, nil
	}
	port, err := strconv.Atoi(text)
	if err != nil {
		return PortRequest{}, fmt.Errorf("%w: %q", schema.ErrInvalidPort, text)
	}
	return PortRequest{Port: port}, nil
}

func splitHostPort(text string) (string, int) {
	host, portStr, ok := strings.Cut(text, ":")
	if !ok || strings.Contains(portStr, ":") {
		return text, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return text, 0
	}
	return host, port
}
