package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"pkt.systems/swissblade/core"
	"pkt.systems/swissblade/internal/catalog"
	"pkt.systems/swissblade/internal/toolkit"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

func newTestModel(t *testing.T) (Model, *core.Service) {
	t.Helper()
	svc := core.NewService(core.Deps{KnownTool: catalog.Known})
	tools := toolkit.New(toolkit.Config{})
	t.Cleanup(tools.Close)
	m := New(context.Background(), Options{Service: svc, Tools: tools, Rand: fixedRand(0.1)})
	t.Cleanup(m.Close)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model), svc
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, key := range keys {
		var next tea.Model
		next, cmd = m.Update(key)
		m = next.(Model)
	}
	return m, cmd
}

func key(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

func typed(s string) []tea.KeyMsg {
	out := make([]tea.KeyMsg, 0, len(s))
	for _, r := range s {
		out = append(out, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return out
}

func TestSidebarEnterOpensTool(t *testing.T) {
	m, svc := newTestModel(t)
	m, _ = press(t, m, typed("j")...)
	m, _ = press(t, m, key(tea.KeyEnter))
	snapshot := svc.Tabs.Snapshot()
	if len(snapshot.Tabs) != 1 || snapshot.Tabs[0].ToolID != m.entries[1].ID {
		t.Fatalf("unexpected tabs %+v", snapshot.Tabs)
	}
	if m.focus != focusInput {
		t.Fatalf("expected input focus, got %v", m.focus)
	}
	if !strings.Contains(m.View(), m.entries[1].Title) {
		t.Fatalf("expected tab title in view")
	}
}

func TestPaletteOpensToolAndEscCloses(t *testing.T) {
	m, svc := newTestModel(t)
	m, _ = press(t, m, key(tea.KeyCtrlP))
	if m.focus != focusPalette {
		t.Fatalf("expected palette focus")
	}
	m, _ = press(t, m, key(tea.KeyEsc))
	if m.focus == focusPalette {
		t.Fatalf("expected esc to close the palette")
	}
	if svc.Settings.Get().BossMode.IsActive {
		t.Fatalf("esc in the palette must not trigger boss mode")
	}
	m, _ = press(t, m, key(tea.KeyCtrlP))
	m, _ = press(t, m, typed("cron")...)
	if len(m.matches) == 0 || m.matches[0].ID != "cron-generator" {
		t.Fatalf("unexpected matches %+v", m.matches)
	}
	m, _ = press(t, m, key(tea.KeyEnter))
	tab, ok := svc.Tabs.Get(svc.Tabs.Snapshot().Active())
	if !ok || tab.ToolID != "cron-generator" {
		t.Fatalf("expected cron tab active, got %+v", tab)
	}
}

func TestPanicKeyTogglesBossMode(t *testing.T) {
	m, svc := newTestModel(t)
	m, _ = press(t, m, key(tea.KeyEsc))
	if !svc.Settings.Get().BossMode.IsActive {
		t.Fatalf("expected boss mode active")
	}
	if !strings.Contains(m.View(), "Quarterly Revenue") {
		t.Fatalf("expected decoy view")
	}
	m, _ = press(t, m, key(tea.KeyCtrlP))
	if m.focus == focusPalette {
		t.Fatalf("keys other than the panic key must be ignored in boss mode")
	}
	m, _ = press(t, m, key(tea.KeyEsc))
	if svc.Settings.Get().BossMode.IsActive {
		t.Fatalf("expected boss mode cleared")
	}
	if strings.Contains(m.View(), "Quarterly Revenue") {
		t.Fatalf("expected normal view")
	}
}

func TestKeysIncrementClicks(t *testing.T) {
	m, svc := newTestModel(t)
	m, cmd := press(t, m, typed("j")...)
	if cmd == nil {
		t.Fatalf("first press must schedule a click flush")
	}
	m, cmd = press(t, m, typed("jk")...)
	if cmd != nil {
		t.Fatalf("only one flush may be pending")
	}
	if got := svc.Clicks.State().Session; got != 0 {
		t.Fatalf("clicks must be batched, store already has %d", got)
	}
	if !strings.Contains(m.View(), "session 3") {
		t.Fatalf("footer must count pending clicks")
	}
	next, _ := m.Update(clickFlushMsg{})
	m = next.(Model)
	if got := svc.Clicks.State().Session; got != 3 {
		t.Fatalf("expected 3 session clicks, got %d", got)
	}
	m, cmd = press(t, m, typed("j")...)
	if cmd == nil {
		t.Fatalf("a press after a flush must schedule the next one")
	}
	m.Close()
	if got := svc.Clicks.State().Session; got != 4 {
		t.Fatalf("close must record pending clicks, got %d", got)
	}
}

func TestCloseTabAndToggleSidebar(t *testing.T) {
	m, svc := newTestModel(t)
	m, _ = press(t, m, key(tea.KeyEnter))
	m, _ = press(t, m, key(tea.KeyCtrlP))
	m, _ = press(t, m, typed("regex")...)
	m, _ = press(t, m, key(tea.KeyEnter))
	if got := len(svc.Tabs.Snapshot().Tabs); got != 2 {
		t.Fatalf("expected two tabs, got %d", got)
	}
	m, _ = press(t, m, key(tea.KeyCtrlW))
	snapshot := svc.Tabs.Snapshot()
	if len(snapshot.Tabs) != 1 || snapshot.Tabs[0].ToolID != m.entries[0].ID {
		t.Fatalf("unexpected tabs after close %+v", snapshot.Tabs)
	}
	if m.shownTab != snapshot.Active() {
		t.Fatalf("expected shown tab to follow the active tab")
	}
	m, _ = press(t, m, key(tea.KeyCtrlB))
	if !svc.Settings.Get().SidebarCollapsed {
		t.Fatalf("expected sidebar collapsed")
	}
	if strings.Contains(m.View(), "UTILITIES") {
		t.Fatalf("expected sidebar hidden")
	}
}

func TestSwitchingTabsRestoresInput(t *testing.T) {
	m, svc := newTestModel(t)
	m, _ = press(t, m, key(tea.KeyEnter))
	first := svc.Tabs.Snapshot().Active()
	m, _ = press(t, m, typed("abc")...)
	m, _ = press(t, m, key(tea.KeyCtrlP))
	m, _ = press(t, m, typed("cron")...)
	m, _ = press(t, m, key(tea.KeyEnter))
	if m.input.Value() != "" {
		t.Fatalf("expected empty input on new tab, got %q", m.input.Value())
	}
	m, _ = press(t, m, key(tea.KeyCtrlLeft))
	if svc.Tabs.Snapshot().Active() != first {
		t.Fatalf("expected first tab active")
	}
	if got := m.input.Value(); got != "abc" {
		t.Fatalf("expected restored input, got %q", got)
	}
	tab, _ := svc.Tabs.Get(first)
	if tab.State[stateInput] != "abc" {
		t.Fatalf("expected input persisted in tab state, got %+v", tab.State)
	}
}

func TestRunToolDeliversResult(t *testing.T) {
	m, svc := newTestModel(t)
	m, _ = press(t, m, key(tea.KeyCtrlP))
	m, _ = press(t, m, typed("color")...)
	m, _ = press(t, m, key(tea.KeyEnter))
	m, _ = press(t, m, typed("#ff0000")...)
	m, cmd := press(t, m, key(tea.KeyCtrlR))
	if cmd == nil {
		t.Fatalf("expected a run command")
	}
	next, _ := m.Update(cmd())
	m = next.(Model)
	tabID := svc.Tabs.Snapshot().Active()
	out := m.out.Text(tabID)
	if out == "" || strings.HasPrefix(out, "error:") {
		t.Fatalf("unexpected output %q", out)
	}
	if m.running {
		t.Fatalf("expected run to finish")
	}
}

func TestRunRouletteSpins(t *testing.T) {
	m, svc := newTestModel(t)
	m, _ = press(t, m, key(tea.KeyCtrlP))
	m, _ = press(t, m, typed("roulette")...)
	if len(m.matches) == 0 || m.matches[0].ID != "deploy-roulette" {
		t.Fatalf("unexpected matches %+v", m.matches)
	}
	m, _ = press(t, m, key(tea.KeyEnter))
	m, cmd := press(t, m, key(tea.KeyCtrlR))
	if cmd != nil {
		t.Fatalf("roulette spins inline")
	}
	stats := svc.Deploy.State().Stats
	if stats.Deploys+stats.Rickrolls != 1 {
		t.Fatalf("expected one spin, got %+v", stats)
	}
	if !strings.Contains(m.out.Text(svc.Tabs.Snapshot().Active()), "deploys") {
		t.Fatalf("expected spin summary")
	}
}

func TestCopyPutsOutputOnClipboard(t *testing.T) {
	m, _ := newTestModel(t)
	var copied string
	m.copy = func(text string) error {
		copied = text
		return nil
	}
	m, _ = press(t, m, key(tea.KeyCtrlY))
	if m.status != "open a tool first" {
		t.Fatalf("unexpected status %q", m.status)
	}
	m, _ = press(t, m, key(tea.KeyCtrlP))
	m, _ = press(t, m, typed("roulette")...)
	m, _ = press(t, m, key(tea.KeyEnter))
	m, _ = press(t, m, key(tea.KeyCtrlY))
	if m.status != "nothing to copy" {
		t.Fatalf("unexpected status %q", m.status)
	}
	m, _ = press(t, m, key(tea.KeyCtrlR))
	m, _ = press(t, m, key(tea.KeyCtrlY))
	if m.status != "copied" || !strings.Contains(copied, "deploys") {
		t.Fatalf("unexpected copy %q status %q", copied, m.status)
	}
}

func TestSlashCommandFromInput(t *testing.T) {
	m, svc := newTestModel(t)
	m, _ = press(t, m, key(tea.KeyEnter))
	m, _ = press(t, m, typed("/theme dark")...)
	m, _ = press(t, m, key(tea.KeyEnter))
	if got := svc.Settings.Get().Theme; got != "dark" {
		t.Fatalf("expected dark theme, got %q", got)
	}
	if m.input.Value() != "" {
		t.Fatalf("expected input cleared after a command")
	}
}

func TestPanicKeyName(t *testing.T) {
	cases := map[string]string{"Escape": "esc", "Space": " ", "F9": "f9", "b": "b"}
	for stored, want := range cases {
		if got := panicKeyName(stored); got != want {
			t.Fatalf("%s: expected %q, got %q", stored, want, got)
		}
	}
}
