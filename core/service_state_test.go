package core

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pkt.systems/swissblade/internal/eventbus"
	"pkt.systems/swissblade/internal/persist"
	"pkt.systems/swissblade/schema"
)

type fixedFloat float64

func (f fixedFloat) Float64() float64 { return float64(f) }

func newTestBackend(t *testing.T) *persist.FileStore {
	t.Helper()
	backend, err := persist.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	return backend
}

func TestClickTrackerRestoresLifetimeWhenPersisted(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	tracker := NewClickTracker(Deps{Backend: backend})
	if _, err := tracker.Increment(ctx, 5); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := tracker.Increment(ctx, 2); err != nil {
		t.Fatalf("increment: %v", err)
	}

	reopened := NewClickTracker(Deps{Backend: backend})
	got := reopened.State()
	want := schema.ClickTrackerState{Lifetime: 7, Session: 0, Persist: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestClickTrackerIgnoresNonPositive(t *testing.T) {
	tracker := NewClickTracker(Deps{})
	ctx := context.Background()
	for _, amount := range []int64{0, -3} {
		if _, err := tracker.Increment(ctx, amount); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if got := tracker.State(); got.Lifetime != 0 || got.Session != 0 {
		t.Fatalf("expected untouched counters, got %+v", got)
	}
}

func TestClickTrackerPersistDisabledStopsSaving(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	tracker := NewClickTracker(Deps{Backend: backend})
	if _, err := tracker.Increment(ctx, 3); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := tracker.SetPersist(ctx, false); err != nil {
		t.Fatalf("set persist: %v", err)
	}
	if _, err := tracker.Increment(ctx, 10); err != nil {
		t.Fatalf("increment: %v", err)
	}
	reopened := NewClickTracker(Deps{Backend: backend})
	got := reopened.State()
	if got.Persist {
		t.Fatalf("expected persist flag to survive as false")
	}
	if got.Lifetime != 3 {
		t.Fatalf("expected lifetime frozen at 3, got %d", got.Lifetime)
	}
}

func TestClickTrackerResetSession(t *testing.T) {
	tracker := NewClickTracker(Deps{})
	ctx := context.Background()
	if _, err := tracker.Increment(ctx, 4); err != nil {
		t.Fatalf("increment: %v", err)
	}
	state, err := tracker.ResetSession(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if state.Session != 0 || state.Lifetime != 4 {
		t.Fatalf("unexpected state after reset: %+v", state)
	}
}

func TestClickTrackerSubscribeReceivesCurrentThenChanges(t *testing.T) {
	tracker := NewClickTracker(Deps{Bus: eventbus.New(nil)})
	ctx := context.Background()
	if _, err := tracker.Increment(ctx, 2); err != nil {
		t.Fatalf("increment: %v", err)
	}
	got := make(chan schema.ClickTrackerState, 4)
	unsubscribe := tracker.Subscribe(func(state schema.ClickTrackerState) { got <- state })

	select {
	case first := <-got:
		if first.Lifetime != 2 {
			t.Fatalf("expected immediate current state, got %+v", first)
		}
	default:
		t.Fatalf("expected listener to be called immediately")
	}
	if _, err := tracker.Increment(ctx, 1); err != nil {
		t.Fatalf("increment: %v", err)
	}
	select {
	case next := <-got:
		if next.Lifetime != 3 || next.Session != 3 {
			t.Fatalf("unexpected change: %+v", next)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for change")
	}
	unsubscribe()
	if _, err := tracker.Increment(ctx, 1); err != nil {
		t.Fatalf("increment: %v", err)
	}
	select {
	case extra := <-got:
		t.Fatalf("unexpected delivery after unsubscribe: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestComputeClickStats(t *testing.T) {
	stats := ComputeClickStats(600)
	if stats.EarnedBadges != 2 {
		t.Fatalf("expected 2 badges, got %d", stats.EarnedBadges)
	}
	if stats.NextBadge != "marathon" || stats.ClicksToNext != 4400 {
		t.Fatalf("unexpected next badge %q (%d)", stats.NextBadge, stats.ClicksToNext)
	}
	if stats.DistanceMeters != 120 {
		t.Fatalf("expected 120 m, got %v", stats.DistanceMeters)
	}
	if stats.TimeSavedMinutes != 6 {
		t.Fatalf("expected 6 minutes, got %v", stats.TimeSavedMinutes)
	}
	all := ComputeClickStats(100000)
	if all.NextBadge != "" || all.NextBadgeProgress != 100 {
		t.Fatalf("expected all badges earned, got %+v", all)
	}
}

func TestSettingsUpdateAndPersist(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	store := NewSettingsStore(Deps{Backend: backend})
	if got := store.Get().BossMode.PanicKey; got != "Escape" {
		t.Fatalf("expected default panic key, got %q", got)
	}
	if err := store.SetTheme(ctx, "dark"); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if err := store.SetBossModePanicKey(ctx, "F9"); err != nil {
		t.Fatalf("set panic key: %v", err)
	}
	if err := store.SetBossModeActive(ctx, true); err != nil {
		t.Fatalf("set boss mode: %v", err)
	}
	if err := store.SetSidebarCollapsed(ctx, true); err != nil {
		t.Fatalf("set sidebar: %v", err)
	}
	if err := store.SetLanguage(ctx, "cn"); err != nil {
		t.Fatalf("set language: %v", err)
	}

	reopened := NewSettingsStore(Deps{Backend: backend})
	want := schema.Settings{
		Theme:            "dark",
		Language:         "zh",
		SidebarCollapsed: true,
		BossMode:         schema.BossMode{IsActive: true, PanicKey: "F9"},
	}
	if diff := cmp.Diff(want, reopened.Get()); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestSettingsSeededDefaultsYieldToPersisted(t *testing.T) {
	backend := newTestBackend(t)
	seed := schema.Settings{Theme: "light", Language: "zh-CN"}
	store := NewSettingsStore(Deps{Backend: backend, Settings: &seed})
	if got := store.Get(); got.Theme != "light" || got.Language != "zh" || got.BossMode.PanicKey != "Escape" {
		t.Fatalf("unexpected seeded settings %+v", got)
	}
	if err := store.SetTheme(context.Background(), "dark"); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	reopened := NewSettingsStore(Deps{Backend: backend, Settings: &seed})
	if got := reopened.Get().Theme; got != "dark" {
		t.Fatalf("expected persisted theme to win, got %q", got)
	}
}

func TestSettingsRejectsInvalidPatchAtomically(t *testing.T) {
	store := NewSettingsStore(Deps{})
	theme := "dark"
	key := ""
	_, err := store.Update(context.Background(), schema.SettingsPatch{Theme: &theme, PanicKey: &key})
	if !errors.Is(err, schema.ErrInvalidPanicKey) {
		t.Fatalf("expected ErrInvalidPanicKey, got %v", err)
	}
	if got := store.Get().Theme; got != schema.DefaultTheme {
		t.Fatalf("expected theme unchanged, got %q", got)
	}
	if err := store.SetTheme(context.Background(), "neon"); !errors.Is(err, schema.ErrInvalidTheme) {
		t.Fatalf("expected ErrInvalidTheme, got %v", err)
	}
}

func TestDeployStatsHistoryBounded(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	store := NewDeployStatsStore(Deps{Backend: backend})
	for i := 0; i < 12; i++ {
		outcome := schema.SpinDeploy
		if i%3 == 0 {
			outcome = schema.SpinRickroll
		}
		if _, err := store.AddResult(ctx, outcome); err != nil {
			t.Fatalf("add result: %v", err)
		}
	}
	state := store.State()
	if len(state.History) != schema.DeployHistoryMax {
		t.Fatalf("expected %d entries, got %d", schema.DeployHistoryMax, len(state.History))
	}
	if state.Stats.Deploys != 8 || state.Stats.Rickrolls != 4 {
		t.Fatalf("unexpected stats: %+v", state.Stats)
	}
	seen := map[string]bool{}
	for _, entry := range state.History {
		if seen[entry.ID] {
			t.Fatalf("duplicate history id %q", entry.ID)
		}
		seen[entry.ID] = true
	}
	if state.History[0].Result != schema.SpinDeploy || !state.History[0].Survived {
		t.Fatalf("expected newest entry first, got %+v", state.History[0])
	}

	reopened := NewDeployStatsStore(Deps{Backend: backend})
	if diff := cmp.Diff(state, reopened.State()); diff != "" {
		t.Fatalf("state mismatch after reload (-want +got):\n%s", diff)
	}
}

func TestDeployStatsDefaultsAndReset(t *testing.T) {
	store := NewDeployStatsStore(Deps{})
	ctx := context.Background()
	state := store.State()
	if state.Directory != "./" || state.DeployCommand != "npm run deploy:staging" {
		t.Fatalf("unexpected defaults: %+v", state)
	}
	if _, err := store.Spin(ctx, fixedFloat(0.1)); err != nil {
		t.Fatalf("spin: %v", err)
	}
	if _, err := store.Spin(ctx, fixedFloat(0.9)); err != nil {
		t.Fatalf("spin: %v", err)
	}
	if rate := store.SurvivalRate(); rate != 50 {
		t.Fatalf("expected 50%% survival, got %v", rate)
	}
	if err := store.ClearHistory(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := store.State(); len(got.History) != 0 || got.Stats.Deploys != 1 {
		t.Fatalf("expected history cleared but stats kept, got %+v", got)
	}
	if err := store.SetDirectory(ctx, "/srv/app"); err != nil {
		t.Fatalf("set directory: %v", err)
	}
	if err := store.SetDeployCommand(ctx, "make deploy"); err != nil {
		t.Fatalf("set command: %v", err)
	}
	if err := store.ResetStats(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got := store.State()
	if got.Stats != (schema.DeployStats{}) || len(got.History) != 0 {
		t.Fatalf("expected reset stats, got %+v", got)
	}
	if got.Directory != "/srv/app" || got.DeployCommand != "make deploy" {
		t.Fatalf("expected config kept after reset, got %+v", got)
	}
	if _, err := store.AddResult(ctx, "boom"); !errors.Is(err, schema.ErrInvalidOutcome) {
		t.Fatalf("expected ErrInvalidOutcome, got %v", err)
	}
}

func TestDeploySpinOddsRoughlySixtyForty(t *testing.T) {
	store := NewDeployStatsStore(Deps{})
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 2000; i++ {
		if _, err := store.Spin(context.Background(), rng); err != nil {
			t.Fatalf("spin: %v", err)
		}
	}
	rate := store.SurvivalRate()
	if rate < 55 || rate > 65 {
		t.Fatalf("expected survival near 60%%, got %.1f", rate)
	}
}

func TestServiceReloadPicksUpExternalWrites(t *testing.T) {
	dir := t.TempDir()
	backend, err := persist.NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	svc := NewService(Deps{Backend: backend})
	events, cancel := svc.Bus().Subscribe(eventbus.EventClicks)
	defer cancel()

	blob := []byte(`{"lifetime":42,"persist":true}`)
	if err := os.WriteFile(filepath.Join(dir, persist.KeyClickTracker+".json"), blob, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := svc.Reload(persist.KeyClickTracker); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := svc.Clicks.State().Lifetime; got != 42 {
		t.Fatalf("expected lifetime 42, got %d", got)
	}
	select {
	case event := <-events:
		if event.Clicks.Lifetime != 42 {
			t.Fatalf("unexpected event: %+v", event.Clicks)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected reload event")
	}
	if err := svc.Reload("bogus"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestCorruptStateFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, persist.KeySettings+".json"), []byte("{oops"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	backend, err := persist.NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	store := NewSettingsStore(Deps{Backend: backend})
	if diff := cmp.Diff(schema.DefaultSettings(), store.Get()); diff != "" {
		t.Fatalf("expected defaults (-want +got):\n%s", diff)
	}
}
