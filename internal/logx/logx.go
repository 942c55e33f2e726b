package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/schema"
)

type contextKey int

const (
	toolKey contextKey = iota
	tabKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithTool annotates the logger with the tool id if present.
func WithTool(ctx context.Context, toolID schema.ToolID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if toolID != "" {
		if current, ok := ctx.Value(toolKey).(schema.ToolID); ok && current == toolID {
			return log
		}
		log = log.With("tool", toolID)
	}
	return log
}

// WithTab annotates the logger with the tab id if present.
func WithTab(ctx context.Context, tabID schema.TabID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if tabID != "" {
		if current, ok := ctx.Value(tabKey).(schema.TabID); ok && current == tabID {
			return log
		}
		log = log.With("tab", tabID)
	}
	return log
}

// WithToolTab annotates the logger with tool and tab identifiers.
func WithToolTab(ctx context.Context, toolID schema.ToolID, tabID schema.TabID) pslog.Logger {
	log := WithTool(ctx, toolID)
	if tabID != "" {
		if current, ok := ctx.Value(tabKey).(schema.TabID); ok && current == tabID {
			return log
		}
		log = log.With("tab", tabID)
	}
	return log
}

// WithTarget annotates the logger with a remote host and port when available.
func WithTarget(log pslog.Logger, host string, port int) pslog.Logger {
	if host != "" {
		log = log.With("host", host)
	}
	if port > 0 {
		log = log.With("port", port)
	}
	return log
}

// ContextWithTool stores the tool marker on the context for log de-duplication.
func ContextWithTool(ctx context.Context, toolID schema.ToolID) context.Context {
	if ctx == nil || toolID == "" {
		return ctx
	}
	return context.WithValue(ctx, toolKey, toolID)
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, tabID schema.TabID) context.Context {
	if ctx == nil || tabID == "" {
		return ctx
	}
	return context.WithValue(ctx, tabKey, tabID)
}

// ContextWithToolLogger attaches the logger and tool marker to the context.
func ContextWithToolLogger(ctx context.Context, log pslog.Logger, toolID schema.ToolID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTool(ctx, toolID)
}
