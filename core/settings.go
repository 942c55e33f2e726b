package core

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/internal/eventbus"
	"pkt.systems/swissblade/internal/logx"
	"pkt.systems/swissblade/internal/persist"
	"pkt.systems/swissblade/schema"
)

// SettingsStore holds user preferences.
type SettingsStore struct {
	mu       sync.Mutex
	state    schema.Settings
	defaults schema.Settings
	blob     *blob
	bus      *eventbus.Bus
	log      pslog.Logger
}

// NewSettingsStore constructs a settings store and loads persisted preferences.
func NewSettingsStore(deps Deps) *SettingsStore {
	defaults := deps.defaultSettings()
	s := &SettingsStore{
		state:    defaults,
		defaults: defaults,
		blob:     newBlob(deps.Backend, persist.KeySettings, true),
		bus:      deps.Bus,
		log:      deps.logger().With("store", "settings"),
	}
	loaded := defaults
	if ok, err := s.blob.load(&loaded); err != nil {
		s.log.Warn("settings load failed", "err", err)
	} else if ok {
		s.state = schema.NormalizeSettings(loaded)
	}
	return s
}

// Get returns the current settings.
func (s *SettingsStore) Get() schema.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetTheme changes the theme.
func (s *SettingsStore) SetTheme(ctx context.Context, name string) error {
	_, err := s.Update(ctx, schema.SettingsPatch{Theme: &name})
	return err
}

// SetLanguage changes the UI language.
func (s *SettingsStore) SetLanguage(ctx context.Context, lang string) error {
	_, err := s.Update(ctx, schema.SettingsPatch{Language: &lang})
	return err
}

// SetSidebarCollapsed toggles the sidebar.
func (s *SettingsStore) SetSidebarCollapsed(ctx context.Context, collapsed bool) error {
	_, err := s.Update(ctx, schema.SettingsPatch{SidebarCollapsed: &collapsed})
	return err
}

// SetBossModeActive toggles boss mode.
func (s *SettingsStore) SetBossModeActive(ctx context.Context, active bool) error {
	_, err := s.Update(ctx, schema.SettingsPatch{BossModeActive: &active})
	return err
}

// SetBossModePanicKey changes the panic key.
func (s *SettingsStore) SetBossModePanicKey(ctx context.Context, key string) error {
	_, err := s.Update(ctx, schema.SettingsPatch{PanicKey: &key})
	return err
}

// Update validates and applies a partial update atomically.
func (s *SettingsStore) Update(ctx context.Context, patch schema.SettingsPatch) (schema.Settings, error) {
	s.mu.Lock()
	next := s.state
	if patch.Theme != nil {
		theme, ok := schema.NormalizeThemeName(*patch.Theme)
		if !ok {
			s.mu.Unlock()
			return schema.Settings{}, schema.ErrInvalidTheme
		}
		next.Theme = theme
	}
	if patch.Language != nil {
		lang, err := schema.NormalizeLanguage(*patch.Language)
		if err != nil {
			s.mu.Unlock()
			return schema.Settings{}, err
		}
		next.Language = lang
	}
	if patch.SidebarCollapsed != nil {
		next.SidebarCollapsed = *patch.SidebarCollapsed
	}
	if patch.BossModeActive != nil {
		next.BossMode.IsActive = *patch.BossModeActive
	}
	if patch.PanicKey != nil {
		key, err := schema.NormalizePanicKey(*patch.PanicKey)
		if err != nil {
			s.mu.Unlock()
			return schema.Settings{}, err
		}
		next.BossMode.PanicKey = key
	}
	if err := s.blob.save(next); err != nil {
		s.mu.Unlock()
		logx.Ctx(ctx).Warn("settings save failed", "err", err)
		return schema.Settings{}, err
	}
	s.state = next
	s.mu.Unlock()
	s.log.Trace("settings update ok", "theme", next.Theme, "language", next.Language, "boss_mode", next.BossMode.IsActive)
	s.bus.OnSettings(next)
	return next, nil
}

// Reload re-reads persisted settings when they changed underneath the store.
func (s *SettingsStore) Reload() (bool, error) {
	loaded := s.defaults
	changed, err := s.blob.reload(&loaded)
	if err != nil || !changed {
		return false, err
	}
	next := schema.NormalizeSettings(loaded)
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.bus.OnSettings(next)
	return true, nil
}
