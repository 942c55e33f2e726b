// Package wsfish connects to websocket endpoints, sends a few frames and
// records what comes back.
package wsfish

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"pkt.systems/swissblade/schema"
)

const (
	MaxMessageBytes      = 512 * 1024
	MaxReconnectAttempts = 10
	MaxEntries           = 200
	MaxMessages          = 50
	MaxOutgoing          = 20
	DefaultListen        = 3 * time.Second
	MaxListen            = 30 * time.Second
	DialTimeout          = 10 * time.Second
	closeWait            = time.Second
)

// Strategy selects how a failed connect is retried.
type Strategy string

const (
	ReconnectOff     Strategy = "off"
	ReconnectInstant Strategy = "instant"
	ReconnectBackoff Strategy = "backoff"
)

// Format selects how an outgoing payload is encoded.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatHex  Format = "hex"
)

// Direction tags a transcript entry.
type Direction string

const (
	Sent     Direction = "sent"
	Received Direction = "received"
	Info     Direction = "info"
)

var (
	ErrURLRequired = fmt.Errorf("%w: websocket url is required", schema.ErrInvalidRequest)
	ErrInvalidURL  = fmt.Errorf("%w: url must use ws:// or wss://", schema.ErrInvalidRequest)
	ErrHexRequired = fmt.Errorf("%w: hex payload has no hex digits", schema.ErrInvalidRequest)
	// ErrConnect reports that every connect attempt failed.
	ErrConnect = errors.New("websocket connect failed")
)

// Message is one outgoing frame.
type Message struct {
	Format  Format `json:"format,omitempty"`
	Payload string `json:"payload"`
}

// Request describes one session.
type Request struct {
	URL       string    `json:"url"`
	Messages  []Message `json:"messages,omitempty"`
	Reconnect Strategy  `json:"reconnect,omitempty"`
	// ListenMs bounds how long replies are collected after the last send.
	ListenMs int64 `json:"listenMs,omitempty"`
	// MaxMessages stops collecting after this many received frames.
	MaxMessages int `json:"maxMessages,omitempty"`
}

// Entry is one line of the session transcript.
type Entry struct {
	ID        int       `json:"id"`
	Direction Direction `json:"direction"`
	Timestamp int64     `json:"timestamp"`
	Text      string    `json:"text"`
	Hex       string    `json:"hex,omitempty"`
	IsBinary  bool      `json:"isBinary,omitempty"`
	Size      int       `json:"size,omitempty"`
}

// Result is the transcript of a finished session, oldest entry first.
type Result struct {
	URL         string  `json:"url"`
	Attempts    int     `json:"attempts"`
	Entries     []Entry `json:"entries"`
	CloseCode   int     `json:"closeCode,omitempty"`
	CloseReason string  `json:"closeReason,omitempty"`
}

// Fish runs sessions.
type Fish struct {
	Dialer *websocket.Dialer
	// Sleep waits between connect attempts.
	Sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New returns a Fish with a dialer bounded by DialTimeout.
func New() *Fish {
	return &Fish{
		Dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: DialTimeout,
		},
		Sleep: sleepCtx,
		now:   time.Now,
	}
}

// ValidateURL accepts absolute ws:// and wss:// URLs.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrURLRequired
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ErrInvalidURL
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	default:
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

// Encode turns m into a frame payload. JSON is compacted, hex ignores
// everything that is not a hex digit and reads the digits in pairs.
func Encode(m Message) ([]byte, bool, error) {
	switch m.Format {
	case "", FormatText:
		return []byte(m.Payload), false, nil
	case FormatJSON:
		var v any
		if err := json.Unmarshal([]byte(m.Payload), &v); err != nil {
			return nil, false, fmt.Errorf("%w: invalid json payload: %v", schema.ErrInvalidRequest, err)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false, err
		}
		return data, false, nil
	case FormatHex:
		var digits strings.Builder
		for _, r := range m.Payload {
			if isHexDigit(r) {
				digits.WriteRune(r)
			}
		}
		cleaned := digits.String()
		if cleaned == "" {
			return nil, false, ErrHexRequired
		}
		out := make([]byte, 0, (len(cleaned)+1)/2)
		for i := 0; i < len(cleaned); i += 2 {
			end := min(i+2, len(cleaned))
			b, err := strconv.ParseUint(cleaned[i:end], 16, 8)
			if err != nil {
				return nil, false, fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
			}
			out = append(out, byte(b))
		}
		return out, true, nil
	default:
		return nil, false, fmt.Errorf("%w: unsupported format %q", schema.ErrInvalidRequest, m.Format)
	}
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// ReconnectDelay is the wait before connect attempt number retry (zero based).
func ReconnectDelay(strategy Strategy, retry int) time.Duration {
	switch strategy {
	case ReconnectInstant:
		return time.Second
	case ReconnectBackoff:
		if retry >= 5 {
			return 30 * time.Second
		}
		return min(30*time.Second, time.Second<<retry)
	default:
		return 0
	}
}

// SpacedHex renders b as space separated hex pairs.
func SpacedHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	enc := hex.EncodeToString(b)
	var sb strings.Builder
	sb.Grow(len(enc) + len(b))
	for i := 0; i < len(enc); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(enc[i : i+2])
	}
	return sb.String()
}

type frame struct {
	data   []byte
	binary bool
}

// Run connects to req.URL, sends every message and collects replies until
// the listen window ends, MaxMessages frames arrived or the peer closed.
func (f *Fish) Run(ctx context.Context, req Request) (Result, error) {
	target, err := ValidateURL(req.URL)
	if err != nil {
		return Result{}, err
	}
	switch req.Reconnect {
	case "":
		req.Reconnect = ReconnectOff
	case ReconnectOff, ReconnectInstant, ReconnectBackoff:
	default:
		return Result{}, fmt.Errorf("%w: unsupported reconnect strategy %q", schema.ErrInvalidRequest, req.Reconnect)
	}
	if len(req.Messages) > MaxOutgoing {
		return Result{}, fmt.Errorf("%w: at most %d messages per session", schema.ErrInvalidRequest, MaxOutgoing)
	}
	frames := make([]frame, 0, len(req.Messages))
	for _, m := range req.Messages {
		data, binary, err := Encode(m)
		if err != nil {
			return Result{}, err
		}
		if len(data) > MaxMessageBytes {
			return Result{}, fmt.Errorf("%w: message exceeds %d bytes", schema.ErrPayloadTooLarge, MaxMessageBytes)
		}
		frames = append(frames, frame{data: data, binary: binary})
	}
	listen := DefaultListen
	if req.ListenMs > 0 {
		listen = min(time.Duration(req.ListenMs)*time.Millisecond, MaxListen)
	}
	limit := req.MaxMessages
	if limit <= 0 || limit > MaxMessages {
		limit = MaxMessages
	}

	s := &session{now: f.clock, res: Result{URL: target, Entries: []Entry{}}}
	conn, err := f.connect(ctx, s, target, req.Reconnect)
	if err != nil {
		return s.res, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for _, fr := range frames {
		kind := websocket.TextMessage
		if fr.binary {
			kind = websocket.BinaryMessage
		}
		if err := conn.WriteMessage(kind, fr.data); err != nil {
			s.info("send failed: " + err.Error())
			return s.res, fmt.Errorf("send: %w", err)
		}
		text := string(fr.data)
		if fr.binary {
			text = "[binary]"
		}
		s.add(Entry{Direction: Sent, Text: text, Hex: SpacedHex(fr.data), IsBinary: fr.binary, Size: len(fr.data)})
	}

	if err := s.collect(conn, f.clock().Add(listen), limit); err != nil {
		if ctx.Err() != nil {
			return s.res, ctx.Err()
		}
		return s.res, err
	}
	if s.res.CloseCode == 0 {
		deadline := f.clock().Add(closeWait)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
	return s.res, nil
}

func (f *Fish) connect(ctx context.Context, s *session, target string, strategy Strategy) (*websocket.Conn, error) {
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	sleep := f.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	for retry := 0; ; retry++ {
		s.res.Attempts++
		conn, resp, err := dialer.DialContext(ctx, target, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			s.info("connected to " + target)
			return conn, nil
		}
		s.info("connect failed: " + err.Error())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if strategy == ReconnectOff {
			return nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}
		if retry+1 >= MaxReconnectAttempts {
			s.info(fmt.Sprintf("gave up after %d attempts", MaxReconnectAttempts))
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrConnect, MaxReconnectAttempts, err)
		}
		if err := sleep(ctx, ReconnectDelay(strategy, retry)); err != nil {
			return nil, err
		}
	}
}

func (f *Fish) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

type session struct {
	now    func() time.Time
	res    Result
	nextID int
}

func (s *session) add(e Entry) {
	s.nextID++
	e.ID = s.nextID
	e.Timestamp = s.now().UnixMilli()
	s.res.Entries = append(s.res.Entries, e)
	if len(s.res.Entries) > MaxEntries {
		s.res.Entries = s.res.Entries[len(s.res.Entries)-MaxEntries:]
	}
}

func (s *session) info(text string) {
	s.add(Entry{Direction: Info, Text: text})
}

// collect reads frames until deadline. Frames over MaxMessageBytes are
// drained and noted instead of recorded.
func (s *session) collect(conn *websocket.Conn, deadline time.Time, limit int) error {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	received := 0
	for received < limit {
		kind, r, err := conn.NextReader()
		if err != nil {
			var closeErr *websocket.CloseError
			var netErr net.Error
			switch {
			case errors.As(err, &closeErr):
				s.res.CloseCode = closeErr.Code
				s.res.CloseReason = closeErr.Text
				reason := closeErr.Text
				if reason == "" {
					reason = "-"
				}
				s.info(fmt.Sprintf("closed (%d) %s", closeErr.Code, reason))
				return nil
			case errors.As(err, &netErr) && netErr.Timeout():
				return nil
			default:
				s.info("read failed: " + err.Error())
				return fmt.Errorf("read: %w", err)
			}
		}
		data, err := io.ReadAll(io.LimitReader(r, MaxMessageBytes+1))
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if len(data) > MaxMessageBytes {
			n, _ := io.Copy(io.Discard, r)
			s.info(fmt.Sprintf("dropped %d byte message (limit %d KB)", int64(len(data))+n, MaxMessageBytes/1024))
			continue
		}
		binary := kind == websocket.BinaryMessage
		text := string(data)
		if binary || !utf8.Valid(data) {
			text = strings.ToValidUTF8(text, "�")
		}
		s.add(Entry{Direction: Received, Text: text, Hex: SpacedHex(data), IsBinary: binary, Size: len(data)})
		received++
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
