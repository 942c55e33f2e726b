// Package toolkit dispatches tool invocations by catalog id.
package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/internal/catalog"
	"pkt.systems/swissblade/internal/certcheck"
	"pkt.systems/swissblade/internal/logx"
	"pkt.systems/swissblade/internal/portcheck"
	"pkt.systems/swissblade/internal/qrcode"
	"pkt.systems/swissblade/internal/relay"
	"pkt.systems/swissblade/internal/whistle"
	"pkt.systems/swissblade/internal/wsfish"
	"pkt.systems/swissblade/schema"
)

// Handler runs one tool against a JSON request body.
type Handler func(ctx context.Context, raw json.RawMessage) (any, error)

// Config wires the network-facing collaborators. Nil collaborators are
// created with defaults, except Whistle which stays disabled when nil.
type Config struct {
	Relay    *relay.Relay
	Certs    *certcheck.Checker
	Ports    *portcheck.Checker
	Whistle  *whistle.Whistle
	Fish     *wsfish.Fish
	Location *time.Location
	Now      func() time.Time
	// NewRand returns a generator for one invocation.
	NewRand func() *rand.Rand
	// Kill terminates a process for the port tool.
	Kill func(pid int) error
}

// Toolkit maps tool ids to handlers.
type Toolkit struct {
	cfg      Config
	handlers map[schema.ToolID]Handler
}

// New builds a toolkit with every available handler registered.
func New(cfg Config) *Toolkit {
	if cfg.Relay == nil {
		cfg.Relay = relay.New(relay.Config{})
	}
	if cfg.Certs == nil {
		cfg.Certs = certcheck.New()
	}
	if cfg.Ports == nil {
		cfg.Ports = portcheck.New()
	}
	if cfg.Fish == nil {
		cfg.Fish = wsfish.New()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRand == nil {
		cfg.NewRand = func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
	}
	if cfg.Kill == nil {
		cfg.Kill = portcheck.Kill
	}
	k := &Toolkit{cfg: cfg}
	k.handlers = map[schema.ToolID]Handler{
		"curl-converter":      k.curl,
		"json-csv":            k.convert,
		"timestamp-converter": k.timestamp,
		"cron-generator":      k.cron,
		"regex-tester":        k.regex,
		"color-picker":        k.color,
		"qr-code":             k.qr,
		"lorem-tweezers":      k.lorem,
		"blame-intern":        k.blame,
		"port-detective":      k.port,
		"ssl-toothbrush":      k.cert,
		"ascii-cork":          k.ascii,
		"websocket-fish":      k.websocket,
	}
	if cfg.Whistle != nil {
		k.handlers["tcp-whistle"] = k.whistle
	}
	return k
}

// Relay exposes the relay used by the curl tool.
func (k *Toolkit) Relay() *relay.Relay { return k.cfg.Relay }

// Certs exposes the certificate checker.
func (k *Toolkit) Certs() *certcheck.Checker { return k.cfg.Certs }

// Ports exposes the port checker.
func (k *Toolkit) Ports() *portcheck.Checker { return k.cfg.Ports }

// Whistle returns the socket tool, nil when disabled.
func (k *Toolkit) Whistle() *whistle.Whistle { return k.cfg.Whistle }

// Has reports whether id has a registered handler.
func (k *Toolkit) Has(id schema.ToolID) bool {
	_, ok := k.handlers[id]
	return ok
}

// Run resolves id in the catalog and invokes its handler.
func (k *Toolkit) Run(ctx context.Context, id schema.ToolID, raw json.RawMessage) (any, error) {
	if _, err := catalog.Resolve(id); err != nil {
		return nil, err
	}
	handler, ok := k.handlers[id]
	if !ok {
		return nil, schema.ErrToolUnavailable
	}
	log := logx.WithTool(ctx, id)
	ctx = logx.ContextWithToolLogger(ctx, log, id)
	start := k.cfg.Now()
	out, err := handler(ctx, raw)
	if err != nil {
		log.Debug("tool run failed", "err", err)
		return nil, err
	}
	log.Debug("tool run done", "duration_ms", k.cfg.Now().Sub(start).Milliseconds())
	return out, nil
}

// Close releases idle relay connections.
func (k *Toolkit) Close() {
	k.cfg.Relay.Close()
}

func decode(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	return nil
}

// invalid tags a tool-level validation error so transports can map it.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, qrcode.ErrPayloadTooLarge) {
		return fmt.Errorf("%w: %w", schema.ErrPayloadTooLarge, err)
	}
	if errors.Is(err, schema.ErrInvalidRequest) {
		return err
	}
	return fmt.Errorf("%w: %w", schema.ErrInvalidRequest, err)
}

func logger(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}
