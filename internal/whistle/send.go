package whistle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/schema"
)

// TCPSend connects, writes the payload (optionally in chunks) and half-closes,
// then collects the reply until EOF, idle timeout or the response cap.
func (w *Whistle) TCPSend(ctx context.Context, req schema.WhistleRequest) (schema.WhistleSendResponse, error) {
	payload := BuildPayload(req.Payload, req.Malformed)
	timeout := safeTimeout(req.TimeoutMs, DefaultTCPTimeout)
	log := pslog.Ctx(ctx).With("mode", req.Mode, "host", req.Host, "port", req.Port)
	start := time.Now()

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", hostPort(req.Host, req.Port))
	if err != nil {
		return schema.WhistleSendResponse{}, fmt.Errorf("connect failed: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := sleep(ctx, safeDelay(req.DelayMs)); err != nil {
		return schema.WhistleSendResponse{}, err
	}
	if err := writePayload(ctx, conn, payload, req.ChunkSize, timeout); err != nil {
		return schema.WhistleSendResponse{}, fmt.Errorf("write failed: %w", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}

	reply, err := readUntil(conn, timeout, MaxResponseBytes)
	if err != nil && ctx.Err() == nil {
		return schema.WhistleSendResponse{}, fmt.Errorf("read failed: %w", err)
	}
	if ctx.Err() != nil {
		return schema.WhistleSendResponse{}, ctx.Err()
	}
	log.Debug("whistle tcp send done", "sent", len(payload), "received", len(reply))
	return schema.WhistleSendResponse{
		OK:            true,
		Mode:          schema.WhistleTCPSend,
		ElapsedMs:     time.Since(start).Milliseconds(),
		BytesSent:     len(payload),
		BytesReceived: len(reply),
		Response:      Preview(reply),
	}, nil
}

func writePayload(ctx context.Context, conn net.Conn, payload []byte, chunk int, timeout time.Duration) error {
	if chunk <= 0 || chunk >= len(payload) {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		_, err := conn.Write(payload)
		return err
	}
	for i := 0; i < len(payload); i += chunk {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		if _, err := conn.Write(payload[i:min(i+chunk, len(payload))]); err != nil {
			return err
		}
		if err := sleep(ctx, ChunkGap); err != nil {
			return err
		}
	}
	return nil
}

// readUntil reads until EOF, an idle timeout or limit bytes. Timeouts end the
// read without error.
func readUntil(conn net.Conn, idle time.Duration, limit int) ([]byte, error) {
	var out []byte
	buf := make([]byte, 8192)
	for len(out) < limit {
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		n, err := conn.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) || isTimeout(err) {
				break
			}
			return out, err
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UDPSend sends one datagram and waits for a single reply. A missing reply
// yields an empty response.
func (w *Whistle) UDPSend(ctx context.Context, req schema.WhistleRequest) (schema.WhistleSendResponse, error) {
	payload := BuildPayload(req.Payload, req.Malformed)
	timeout := safeTimeout(req.TimeoutMs, DefaultUDPTimeout)
	start := time.Now()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", hostPort(req.Host, req.Port))
	if err != nil {
		return schema.WhistleSendResponse{}, fmt.Errorf("connect failed: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := sleep(ctx, safeDelay(req.DelayMs)); err != nil {
		return schema.WhistleSendResponse{}, err
	}
	if _, err := conn.Write(payload); err != nil {
		return schema.WhistleSendResponse{}, fmt.Errorf("send failed: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 65535)
	n, err := conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return schema.WhistleSendResponse{}, ctx.Err()
		}
		if !isTimeout(err) {
			return schema.WhistleSendResponse{}, fmt.Errorf("recv failed: %w", err)
		}
		n = 0
	}
	reply := buf[:min(n, MaxResponseBytes)]
	pslog.Ctx(ctx).Debug("whistle udp send done", "host", req.Host, "port", req.Port, "received", len(reply))
	return schema.WhistleSendResponse{
		OK:            true,
		Mode:          schema.WhistleUDPSend,
		ElapsedMs:     time.Since(start).Milliseconds(),
		BytesSent:     len(payload),
		BytesReceived: len(reply),
		Response:      Preview(reply),
	}, nil
}
