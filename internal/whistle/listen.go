package whistle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/schema"
)

type captures struct {
	mu      sync.Mutex
	limit   int
	entries []schema.CaptureEntry
	full    chan struct{}
	once    sync.Once
}

func newCaptures(limit int) *captures {
	return &captures{limit: limit, entries: []schema.CaptureEntry{}, full: make(chan struct{})}
}

// add records e and reports whether it was kept.
func (c *captures) add(e schema.CaptureEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.limit {
		return false
	}
	c.entries = append(c.entries, e)
	if len(c.entries) == c.limit {
		c.once.Do(func() { close(c.full) })
	}
	return true
}

func (c *captures) list() []schema.CaptureEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schema.CaptureEntry(nil), c.entries...)
}

func remote(addr net.Addr) (string, int) {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}

// TCPListen accepts connections for the requested duration or until enough
// payloads were captured, optionally echoing a reply to each sender.
func (w *Whistle) TCPListen(ctx context.Context, req schema.WhistleRequest) (schema.WhistleListenResponse, error) {
	duration := safeDuration(req.DurationMs)
	respondDelay := safeDelay(req.RespondDelayMs)
	reply := echoPayload(req)
	caps := newCaptures(captureLimit(req.MaxCapture))
	log := pslog.Ctx(ctx).With("mode", req.Mode, "port", req.Port)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", hostPort(req.Host, req.Port))
	if err != nil {
		return schema.WhistleListenResponse{}, fmt.Errorf("bind failed: %w", err)
	}
	if w.OnListen != nil {
		w.OnListen(ln.Addr())
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns = map[net.Conn]struct{}{}
	)
	watchDone := make(chan struct{})
	expire := func(set func(net.Conn)) {
		mu.Lock()
		defer mu.Unlock()
		for c := range conns {
			set(c)
		}
	}
	go func() {
		defer close(watchDone)
		select {
		case <-ctx.Done():
		case <-caps.full:
		}
		_ = ln.Close()
		expire(func(c net.Conn) { _ = c.SetReadDeadline(time.Now()) })
		<-ctx.Done()
		expire(func(c net.Conn) { _ = c.SetDeadline(time.Now()) })
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			caps.add(schema.CaptureEntry{At: isoNow(w.clock()), Note: "Accept error: " + err.Error()})
			continue
		}
		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, conn)
				mu.Unlock()
				_ = conn.Close()
			}()
			w.serveTCP(ctx, conn, caps, req.Echo, respondDelay, reply)
		}()
	}
	wg.Wait()
	cancel()
	<-watchDone
	entries := caps.list()
	log.Debug("whistle tcp listen done", "captures", len(entries))
	return schema.WhistleListenResponse{
		OK:         true,
		Mode:       schema.WhistleTCPListen,
		DurationMs: time.Since(start).Milliseconds(),
		Captures:   entries,
	}, nil
}

func (w *Whistle) serveTCP(ctx context.Context, conn net.Conn, caps *captures, echo bool, delay time.Duration, reply []byte) {
	started := time.Now()
	host, port := remote(conn.RemoteAddr())
	deadline, _ := ctx.Deadline()
	idle := time.Until(deadline)
	data, err := readUntil(conn, idle, MaxResponseBytes)
	if err != nil && ctx.Err() == nil {
		caps.add(schema.CaptureEntry{At: isoNow(w.clock()), RemoteAddress: host, RemotePort: port, Note: "Socket error: " + err.Error()})
		return
	}
	if ctx.Err() != nil && len(data) == 0 {
		return
	}
	kept := caps.add(schema.CaptureEntry{
		At:            isoNow(w.clock()),
		RemoteAddress: host,
		RemotePort:    port,
		Bytes:         len(data),
		Hex:           Preview(data).Hex,
		Text:          lossy(data),
		ElapsedMs:     time.Since(started).Milliseconds(),
	})
	if !kept || !echo {
		return
	}
	if err := sleep(ctx, delay); err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = conn.Write(reply)
}

// UDPListen receives datagrams for the requested duration or until enough
// payloads were captured, optionally echoing a reply to each sender.
func (w *Whistle) UDPListen(ctx context.Context, req schema.WhistleRequest) (schema.WhistleListenResponse, error) {
	duration := safeDuration(req.DurationMs)
	respondDelay := safeDelay(req.RespondDelayMs)
	reply := echoPayload(req)
	caps := newCaptures(captureLimit(req.MaxCapture))

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", hostPort(req.Host, req.Port))
	if err != nil {
		return schema.WhistleListenResponse{}, fmt.Errorf("bind failed: %w", err)
	}
	defer pc.Close()
	if w.OnListen != nil {
		w.OnListen(pc.LocalAddr())
	}
	start := time.Now()
	_ = pc.SetReadDeadline(start.Add(duration))
	stop := context.AfterFunc(ctx, func() { _ = pc.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, 65535)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) || ctx.Err() != nil {
				break
			}
			caps.add(schema.CaptureEntry{At: isoNow(w.clock()), Note: "Recv error: " + err.Error()})
			continue
		}
		data := buf[:min(n, MaxResponseBytes)]
		host, port := remote(addr)
		kept := caps.add(schema.CaptureEntry{
			At:            isoNow(w.clock()),
			RemoteAddress: host,
			RemotePort:    port,
			Bytes:         len(data),
			Hex:           Preview(data).Hex,
			Text:          lossy(data),
		})
		if req.Echo {
			if err := sleep(ctx, respondDelay); err != nil {
				break
			}
			_, _ = pc.WriteTo(reply, addr)
		}
		if !kept || len(caps.list()) >= caps.limit {
			break
		}
	}
	entries := caps.list()
	pslog.Ctx(ctx).Debug("whistle udp listen done", "port", req.Port, "captures", len(entries))
	return schema.WhistleListenResponse{
		OK:         true,
		Mode:       schema.WhistleUDPListen,
		DurationMs: time.Since(start).Milliseconds(),
		Captures:   entries,
	}, nil
}
