package core

import (
	"context"
	"fmt"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/internal/eventbus"
	"pkt.systems/swissblade/internal/persist"
)

// Service composes the persisted stores over one backend.
type Service struct {
	Tabs     *TabStore
	Settings *SettingsStore
	Clicks   *ClickTracker
	Deploy   *DeployStatsStore

	bus     *eventbus.Bus
	backend persist.Backend
	log     pslog.Logger
}

// NewService constructs every store and loads persisted state.
func NewService(deps Deps) *Service {
	logger := deps.logger()
	if deps.Bus == nil {
		deps.Bus = eventbus.New(logger)
	}
	deps.Logger = logger
	return &Service{
		Tabs:     NewTabStore(deps),
		Settings: NewSettingsStore(deps),
		Clicks:   NewClickTracker(deps),
		Deploy:   NewDeployStatsStore(deps),
		bus:      deps.Bus,
		backend:  deps.Backend,
		log:      logger,
	}
}

// Bus returns the event bus the stores publish on.
func (s *Service) Bus() *eventbus.Bus {
	return s.bus
}

// Reload refreshes the store owning key from the backend.
func (s *Service) Reload(key string) error {
	var (
		changed bool
		err     error
	)
	switch key {
	case persist.KeyTabs:
		changed, err = s.Tabs.Reload()
	case persist.KeySettings:
		changed, err = s.Settings.Reload()
	case persist.KeyClickTracker:
		changed, err = s.Clicks.Reload()
	case persist.KeyDeployStats:
		changed, err = s.Deploy.Reload()
	default:
		return fmt.Errorf("unknown state key %q", key)
	}
	if err != nil {
		s.log.Warn("service reload failed", "key", key, "err", err)
		return err
	}
	if changed {
		s.log.Info("service state reloaded", "key", key)
	}
	return nil
}

// Watch reloads stores as the watcher reports changed keys, until ctx is done.
func (s *Service) Watch(ctx context.Context, watcher *persist.Watcher) error {
	return watcher.Run(ctx, func(key string) {
		_ = s.Reload(key)
	})
}

// Close releases the backend.
func (s *Service) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}
