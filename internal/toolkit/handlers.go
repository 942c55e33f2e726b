package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pkt.systems/swissblade/internal/asciiart"
	"pkt.systems/swissblade/internal/blame"
	"pkt.systems/swissblade/internal/colorconv"
	"pkt.systems/swissblade/internal/crontool"
	"pkt.systems/swissblade/internal/curlparse"
	"pkt.systems/swissblade/internal/dataconv"
	"pkt.systems/swissblade/internal/lorem"
	"pkt.systems/swissblade/internal/qrcode"
	"pkt.systems/swissblade/internal/regextest"
	"pkt.systems/swissblade/internal/timefmt"
	"pkt.systems/swissblade/internal/wsfish"
	"pkt.systems/swissblade/schema"
)

// CurlRequest parses a curl command and optionally sends it through the relay.
type CurlRequest struct {
	Input string `json:"input"`
	Send  bool   `json:"send"`
}

// CurlResult is the parsed command plus the relayed response when sent.
type CurlResult struct {
	Request  curlparse.Parsed      `json:"request"`
	Curl     string                `json:"curl"`
	Response *schema.ProxyResponse `json:"response,omitempty"`
}

func (k *Toolkit) curl(ctx context.Context, raw json.RawMessage) (any, error) {
	var req CurlRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	parsed, err := curlparse.Parse(req.Input)
	if err != nil {
		return nil, invalid(err)
	}
	out := CurlResult{Request: parsed, Curl: curlparse.Format(parsed.ProxyRequest())}
	if !req.Send {
		return out, nil
	}
	resp, err := k.cfg.Relay.Do(ctx, parsed.ProxyRequest())
	if err != nil {
		return nil, err
	}
	out.Response = &resp
	return out, nil
}

// ConvertRequest converts structured text between formats.
type ConvertRequest struct {
	Input   string `json:"input"`
	From    string `json:"from"`
	To      string `json:"to"`
	AutoFix bool   `json:"autoFix"`
	XMLRoot string `json:"xmlRoot,omitempty"`
}

func (k *Toolkit) convert(_ context.Context, raw json.RawMessage) (any, error) {
	req := ConvertRequest{From: "json", To: "csv"}
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	from, err := dataconv.ParseFormat(req.From)
	if err != nil {
		return nil, invalid(err)
	}
	to, err := dataconv.ParseFormat(req.To)
	if err != nil {
		return nil, invalid(err)
	}
	res, err := dataconv.Convert(req.Input, from, to, dataconv.Options{AutoFix: req.AutoFix, XMLRoot: req.XMLRoot})
	if err != nil {
		return nil, invalid(err)
	}
	return res, nil
}

// TimestampRequest converts a timestamp. Empty input means now.
type TimestampRequest struct {
	Input    string `json:"input"`
	Timezone string `json:"timezone,omitempty"`
}

// TimestampResult lists every rendering of the parsed instant.
type TimestampResult struct {
	Input  string          `json:"input"`
	Fields []timefmt.Field `json:"fields"`
}

func (k *Toolkit) timestamp(_ context.Context, raw json.RawMessage) (any, error) {
	var req TimestampRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	loc := k.cfg.Location
	if tz := strings.TrimSpace(req.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, invalid(fmt.Errorf("unknown timezone %q", tz))
		}
		loc = l
	}
	now := k.cfg.Now()
	t := now
	if strings.TrimSpace(req.Input) != "" {
		parsed, err := timefmt.Parse(req.Input, loc)
		if err != nil {
			return nil, invalid(err)
		}
		t = parsed
	}
	return TimestampResult{Input: req.Input, Fields: timefmt.Formats(t.In(loc), now)}, nil
}

// CronRequest validates or builds an expression and previews its runs.
type CronRequest struct {
	Expression string                 `json:"expression"`
	Build      *crontool.BuildOptions `json:"build,omitempty"`
	Count      int                    `json:"count,omitempty"`
}

// CronResult explains an expression.
type CronResult struct {
	Expression  string            `json:"expression"`
	Description string            `json:"description"`
	NextRuns    []string          `json:"nextRuns"`
	Presets     []crontool.Preset `json:"presets"`
}

func (k *Toolkit) cron(_ context.Context, raw json.RawMessage) (any, error) {
	var req CronRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	expr := strings.TrimSpace(req.Expression)
	if req.Build != nil {
		built, err := crontool.Build(*req.Build)
		if err != nil {
			return nil, invalid(err)
		}
		expr = built
	}
	runs, err := crontool.NextRuns(expr, k.cfg.Now().In(k.cfg.Location), req.Count)
	if err != nil {
		return nil, invalid(err)
	}
	out := CronResult{
		Expression:  expr,
		Description: crontool.Describe(expr),
		NextRuns:    make([]string, 0, len(runs)),
		Presets:     crontool.Presets(),
	}
	for _, run := range runs {
		out.NextRuns = append(out.NextRuns, run.Format(time.RFC3339))
	}
	return out, nil
}

// RegexResult adds the token breakdown to an evaluation.
type RegexResult struct {
	regextest.Result
	Tokens []regextest.Token `json:"tokens"`
}

func (k *Toolkit) regex(_ context.Context, raw json.RawMessage) (any, error) {
	var req regextest.Request
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	res, err := regextest.Evaluate(req)
	if err != nil {
		return nil, invalid(err)
	}
	return RegexResult{Result: res, Tokens: regextest.Explain(req.Pattern)}, nil
}

type colorRequest struct {
	Input string `json:"input"`
}

func (k *Toolkit) color(_ context.Context, raw json.RawMessage) (any, error) {
	var req colorRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	res, err := colorconv.Convert(req.Input)
	if err != nil {
		return nil, invalid(err)
	}
	return res, nil
}

func (k *Toolkit) qr(_ context.Context, raw json.RawMessage) (any, error) {
	var req qrcode.Request
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	res, err := qrcode.Render(req)
	if err != nil {
		return nil, invalid(err)
	}
	return res, nil
}

// LoremRequest picks what to generate.
type LoremRequest struct {
	// Kind is paragraphs, words, sentence, email, address, card or iban.
	Kind    string       `json:"kind"`
	Count   int          `json:"count,omitempty"`
	Length  lorem.Length `json:"length,omitempty"`
	Classic bool         `json:"classic,omitempty"`
	Brand   string       `json:"brand,omitempty"`
	Country string       `json:"country,omitempty"`
}

// LoremResult carries generated text.
type LoremResult struct {
	Kind   string `json:"kind"`
	Output string `json:"output"`
}

func (k *Toolkit) lorem(_ context.Context, raw json.RawMessage) (any, error) {
	req := LoremRequest{Kind: "paragraphs"}
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	gen := lorem.New(k.cfg.NewRand())
	out := LoremResult{Kind: req.Kind}
	switch req.Kind {
	case "", "paragraphs":
		out.Kind = "paragraphs"
		count := req.Count
		if count <= 0 {
			count = 3
		}
		out.Output = gen.Paragraphs(count, req.Length, req.Classic)
	case "words":
		count := req.Count
		if count <= 0 {
			count = 10
		}
		out.Output = gen.Words(count)
	case "sentence":
		out.Output = gen.Sentence(req.Count)
	case "email":
		out.Output = gen.Email()
	case "address":
		out.Output = gen.Address()
	case "card":
		brand := req.Brand
		if brand == "" {
			brand = "visa"
		}
		card, err := gen.Card(brand)
		if err != nil {
			return nil, invalid(err)
		}
		out.Output = card
	case "iban":
		country := req.Country
		if country == "" {
			country = "DE"
		}
		iban, err := gen.IBAN(country)
		if err != nil {
			return nil, invalid(err)
		}
		out.Output = iban
	default:
		return nil, invalid(fmt.Errorf("unknown lorem kind %q", req.Kind))
	}
	return out, nil
}

func (k *Toolkit) blame(_ context.Context, raw json.RawMessage) (any, error) {
	var req blame.Request
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	res, err := blame.Generate(k.cfg.NewRand(), k.cfg.Now(), req)
	if err != nil {
		return nil, invalid(err)
	}
	return res, nil
}

// PortRequest checks one port, scans a range or kills a process.
type PortRequest struct {
	Port int `json:"port,omitempty"`
	From int `json:"from,omitempty"`
	To   int `json:"to,omitempty"`
	Kill int `json:"kill,omitempty"`
}

// KillResult reports a terminated process.
type KillResult struct {
	PID    int  `json:"pid"`
	Killed bool `json:"killed"`
}

func (k *Toolkit) port(ctx context.Context, raw json.RawMessage) (any, error) {
	var req PortRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	switch {
	case req.Kill != 0:
		if req.Kill <= 1 {
			return nil, invalid(fmt.Errorf("refusing to kill pid %d", req.Kill))
		}
		if err := k.cfg.Kill(req.Kill); err != nil {
			return nil, err
		}
		logger(ctx).Info("port process killed", "pid", req.Kill)
		return KillResult{PID: req.Kill, Killed: true}, nil
	case req.From != 0 || req.To != 0:
		return k.cfg.Ports.Scan(ctx, req.From, req.To)
	default:
		return k.cfg.Ports.Check(ctx, req.Port)
	}
}

func (k *Toolkit) cert(ctx context.Context, raw json.RawMessage) (any, error) {
	var req schema.CertCheckRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	return k.cfg.Certs.Check(ctx, req)
}

func (k *Toolkit) whistle(ctx context.Context, raw json.RawMessage) (any, error) {
	var req schema.WhistleRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	return k.cfg.Whistle.Run(ctx, req)
}

func (k *Toolkit) ascii(_ context.Context, raw json.RawMessage) (any, error) {
	var req asciiart.Request
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	return asciiart.Render(req)
}

func (k *Toolkit) websocket(ctx context.Context, raw json.RawMessage) (any, error) {
	var req wsfish.Request
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	res, err := k.cfg.Fish.Run(ctx, req)
	if err != nil {
		logger(ctx).Debug("websocket session failed", "attempts", res.Attempts, "err", err)
		return nil, err
	}
	logger(ctx).Info("websocket session done", "url", res.URL, "entries", len(res.Entries), "close_code", res.CloseCode)
	return res, nil
}
