// Package whistle sends and captures raw TCP and UDP payloads for protocol debugging.
package whistle

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"pkt.systems/swissblade/schema"
)

const (
	MaxPayloadBytes   = 4096
	MaxResponseBytes  = 128 * 1024
	MaxDuration       = 15 * time.Second
	DefaultDuration   = 5 * time.Second
	MaxDelay          = 8 * time.Second
	MinTimeout        = 500 * time.Millisecond
	DefaultTCPTimeout = 5 * time.Second
	DefaultUDPTimeout = 4 * time.Second
	DefaultMaxCapture = 10
	MaxCapture        = 25
	ChunkGap          = 120 * time.Millisecond
	DefaultEcho       = "ack"
	maxHostLength     = 255
)

var malformedNoise = []byte{0x00, 0xff, 0x13, 0x37}

// Whistle runs whistle requests.
type Whistle struct {
	// OnListen is called with the bound address in listen modes.
	OnListen func(net.Addr)
	now      func() time.Time
}

// New returns a Whistle.
func New() *Whistle {
	return &Whistle{now: time.Now}
}

// Validate checks mode, port and host.
func Validate(req schema.WhistleRequest) error {
	switch req.Mode {
	case "":
		return fmt.Errorf("%w: mode is required", schema.ErrInvalidRequest)
	case schema.WhistleTCPSend, schema.WhistleUDPSend, schema.WhistleTCPListen, schema.WhistleUDPListen:
	default:
		return fmt.Errorf("%w: unsupported mode %q", schema.ErrInvalidRequest, req.Mode)
	}
	if req.Port < 1 || req.Port > 65535 {
		return fmt.Errorf("%w: %d", schema.ErrInvalidPort, req.Port)
	}
	if req.Mode == schema.WhistleTCPSend || req.Mode == schema.WhistleUDPSend {
		host := strings.TrimSpace(req.Host)
		if host == "" {
			return schema.ErrHostRequired
		}
		if len(host) > maxHostLength {
			return fmt.Errorf("%w: host too long", schema.ErrInvalidRequest)
		}
	}
	return nil
}

// Run validates req and executes it. Send modes return
// schema.WhistleSendResponse, listen modes schema.WhistleListenResponse.
func (w *Whistle) Run(ctx context.Context, req schema.WhistleRequest) (any, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	req.Host = strings.TrimSpace(req.Host)
	switch req.Mode {
	case schema.WhistleTCPSend:
		return w.TCPSend(ctx, req)
	case schema.WhistleUDPSend:
		return w.UDPSend(ctx, req)
	case schema.WhistleTCPListen:
		return w.TCPListen(ctx, req)
	default:
		return w.UDPListen(ctx, req)
	}
}

func (w *Whistle) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

// BuildPayload truncates payload and appends the malformed marker bytes when requested.
func BuildPayload(payload string, malformed bool) []byte {
	data := []byte(payload)
	if len(data) > MaxPayloadBytes {
		data = data[:MaxPayloadBytes]
	}
	if malformed {
		data = append(data, malformedNoise...)
		if len(data) > MaxPayloadBytes {
			data = data[:MaxPayloadBytes]
		}
	}
	return data
}

// Preview renders b as lossy UTF-8 text and hex.
func Preview(b []byte) schema.ResponsePreview {
	return schema.ResponsePreview{Text: lossy(b), Hex: hex.EncodeToString(b), Bytes: len(b)}
}

func lossy(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

func safeDelay(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return min(time.Duration(ms)*time.Millisecond, MaxDelay)
}

func safeDuration(ms int64) time.Duration {
	if ms <= 0 {
		return DefaultDuration
	}
	return min(time.Duration(ms)*time.Millisecond, MaxDuration)
}

func safeTimeout(ms int64, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return max(time.Duration(ms)*time.Millisecond, MinTimeout)
}

func captureLimit(n int) int {
	if n <= 0 {
		return DefaultMaxCapture
	}
	return min(n, MaxCapture)
}

func echoPayload(req schema.WhistleRequest) []byte {
	payload := DefaultEcho
	if req.EchoPayload != nil {
		payload = *req.EchoPayload
	}
	return BuildPayload(payload, req.Malformed)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(strings.TrimSuffix(strings.TrimPrefix(host, "["), "]"), strconv.Itoa(port))
}

func isoNow(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
