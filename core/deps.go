package core

import (
	"context"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/internal/eventbus"
	"pkt.systems/swissblade/internal/persist"
	"pkt.systems/swissblade/schema"
)

// Deps carries collaborators shared by the stores.
type Deps struct {
	// Backend persists store snapshots. Nil keeps state in memory only.
	Backend persist.Backend
	// Bus receives state change events. Nil disables fan-out.
	Bus *eventbus.Bus
	// Logger is the base logger; defaults to the background context logger.
	Logger pslog.Logger
	// KnownTool reports whether a tool id exists in the catalog. Nil accepts any well-formed id.
	KnownTool func(schema.ToolID) bool
	// Now returns the current time.
	Now func() time.Time
	// Settings seeds preferences when none were persisted yet.
	Settings *schema.Settings
}

func (d Deps) logger() pslog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return pslog.Ctx(context.Background())
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) defaultSettings() schema.Settings {
	if d.Settings != nil {
		return schema.NormalizeSettings(*d.Settings)
	}
	return schema.DefaultSettings()
}
