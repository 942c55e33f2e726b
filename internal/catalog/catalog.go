// Package catalog lists every tool known to swissblade.
package catalog

import (
	"strings"

	"github.com/sahilm/fuzzy"
	"pkt.systems/swissblade/schema"
)

// Category groups tools in the sidebar.
type Category string

const (
	// Utility tools transform input.
	Utility Category = "utility"
	// Fun tools exist for morale.
	Fun Category = "fun"
)

// Tool describes one catalog entry.
type Tool struct {
	ID          schema.ToolID `json:"id"`
	Title       string        `json:"title"`
	Category    Category      `json:"category"`
	Description string        `json:"description"`
	Keywords    []string      `json:"keywords,omitempty"`
	// Available is false for tools kept for tab identity only.
	Available bool `json:"available"`
}

var tools = []Tool{
	{ID: "ascii-cork", Title: "ASCII Cork", Category: Utility, Description: "Banner text in block letters", Keywords: []string{"ascii", "figlet", "banner"}, Available: true},
	{ID: "base64", Title: "Base64", Category: Utility, Description: "Encode and decode base64", Keywords: []string{"encode", "decode"}},
	{ID: "color-picker", Title: "Color Picker", Category: Utility, Description: "Convert colors and build palettes", Keywords: []string{"hex", "rgb", "hsl", "contrast", "palette"}, Available: true},
	{ID: "cron-generator", Title: "Cron Generator", Category: Utility, Description: "Build, explain and preview cron expressions", Keywords: []string{"schedule", "crontab"}, Available: true},
	{ID: "curl-converter", Title: "cURL Converter", Category: Utility, Description: "Turn curl commands into requests and send them", Keywords: []string{"http", "request", "proxy"}, Available: true},
	{ID: "hash-generator", Title: "Hash Generator", Category: Utility, Description: "Digest text with common hashes", Keywords: []string{"sha", "md5", "digest"}},
	{ID: "json-csv", Title: "JSON / CSV", Category: Utility, Description: "Convert between JSON, CSV, TSV, YAML, TOML and XML", Keywords: []string{"yaml", "toml", "xml", "tsv", "convert"}, Available: true},
	{ID: "jwt-decoder", Title: "JWT Decoder", Category: Utility, Description: "Inspect JSON web tokens", Keywords: []string{"token", "jws"}},
	{ID: "jwt-toothpick", Title: "JWT Toothpick", Category: Utility, Description: "Test HMAC token secrets against a wordlist", Keywords: []string{"token", "hmac", "secret"}},
	{ID: "port-detective", Title: "Port Detective", Category: Utility, Description: "Find which process holds a port", Keywords: []string{"lsof", "netstat", "listen", "kill"}, Available: true},
	{ID: "qr-code", Title: "QR Code", Category: Utility, Description: "Render text, links, Wi-Fi and contacts as QR", Keywords: []string{"wifi", "vcard", "barcode"}, Available: true},
	{ID: "regex-tester", Title: "Regex Tester", Category: Utility, Description: "Match, group and replace with regular expressions", Keywords: []string{"regexp", "pattern", "match"}, Available: true},
	{ID: "ssl-toothbrush", Title: "SSL Toothbrush", Category: Utility, Description: "Inspect TLS certificates", Keywords: []string{"tls", "certificate", "x509", "ocsp"}, Available: true},
	{ID: "tcp-whistle", Title: "TCP/UDP Whistle", Category: Utility, Description: "Send to or listen on raw sockets", Keywords: []string{"tcp", "udp", "socket", "netcat"}, Available: true},
	{ID: "timestamp-converter", Title: "Timestamp Converter", Category: Utility, Description: "Unix time to every format and back", Keywords: []string{"epoch", "date", "time", "iso8601"}, Available: true},
	{ID: "websocket-fish", Title: "WebSocket Fish", Category: Utility, Description: "Send frames to websocket endpoints and watch replies", Keywords: []string{"ws", "wss", "socket", "echo"}, Available: true},
	{ID: "lorem-tweezers", Title: "Lorem Tweezers", Category: Utility, Description: "Placeholder text and fake identities", Keywords: []string{"lorem", "ipsum", "fake", "iban", "card"}, Available: true},
	{ID: "blame-intern", Title: "Blame the Intern", Category: Fun, Description: "Forge a git history for any bug", Keywords: []string{"git", "blame", "excuse"}, Available: true},
	{ID: "deploy-roulette", Title: "Deploy Roulette", Category: Fun, Description: "Let fate decide whether to ship", Keywords: []string{"deploy", "friday", "spin"}, Available: true},
	{ID: "boss-mode", Title: "Boss Mode", Category: Fun, Description: "Panic key that shows a spreadsheet", Keywords: []string{"panic", "spreadsheet", "hide"}, Available: true},
}

var byID = func() map[schema.ToolID]int {
	out := make(map[schema.ToolID]int, len(tools))
	for i, tool := range tools {
		out[tool.ID] = i
	}
	return out
}()

// All returns every tool, utilities first.
func All() []Tool {
	out := make([]Tool, len(tools))
	copy(out, tools)
	return out
}

// ByCategory returns the tools of one category in catalog order.
func ByCategory(category Category) []Tool {
	var out []Tool
	for _, tool := range tools {
		if tool.Category == category {
			out = append(out, tool)
		}
	}
	return out
}

// Lookup returns the tool with the given id.
func Lookup(id schema.ToolID) (Tool, bool) {
	idx, ok := byID[id]
	if !ok {
		return Tool{}, false
	}
	return tools[idx], true
}

// Known reports whether id names a catalog tool.
func Known(id schema.ToolID) bool {
	_, ok := byID[id]
	return ok
}

// Resolve validates id and reports ErrToolUnavailable for listed tools without a backend.
func Resolve(id schema.ToolID) (Tool, error) {
	if err := schema.ValidateToolID(id); err != nil {
		return Tool{}, err
	}
	tool, ok := Lookup(id)
	if !ok {
		return Tool{}, schema.ErrUnknownTool
	}
	if !tool.Available {
		return tool, schema.ErrToolUnavailable
	}
	return tool, nil
}

type source []Tool

func (s source) String(i int) string {
	tool := s[i]
	return string(tool.ID) + " " + tool.Title + " " + strings.Join(tool.Keywords, " ")
}

func (s source) Len() int { return len(s) }

// Search ranks tools against query. An empty query returns the whole catalog.
func Search(query string) []Tool {
	query = strings.TrimSpace(query)
	if query == "" {
		return All()
	}
	matches := fuzzy.FindFrom(strings.ToLower(query), source(tools))
	out := make([]Tool, 0, len(matches))
	for _, m := range matches {
		out = append(out, tools[m.Index])
	}
	return out
}
