// Package tui is the terminal front end: a tool sidebar, tabs backed by the
// tab store, a tool pane and a fuzzy command palette.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/core"
	"pkt.systems/swissblade/internal/catalog"
	"pkt.systems/swissblade/internal/command"
	"pkt.systems/swissblade/internal/eventbus"
	"pkt.systems/swissblade/internal/logx"
	"pkt.systems/swissblade/internal/toolkit"
	"pkt.systems/swissblade/schema"
)

const (
	sidebarWidth = 28
	inputHeight  = 6
	stateInput   = "input"

	clickFlushInterval = 500 * time.Millisecond
)

type focus int

const (
	focusSidebar focus = iota
	focusInput
	focusPalette
)

// Options wires the model to the stores and tools.
type Options struct {
	Service *core.Service
	Tools   *toolkit.Toolkit
	// Rand drives deploy roulette spins.
	Rand core.Float64Source
	// Input and Output replace the process terminal, e.g. for an SSH session.
	Input  io.Reader
	Output io.Writer
	// Renderer styles the view for Output. Defaults to the stdout renderer.
	Renderer *lipgloss.Renderer
	// Copy places text on the clipboard. Defaults to the system clipboard
	// when Output is nil; remote sessions have no clipboard.
	Copy func(string) error
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// toolResultMsg carries a finished tool run.
type toolResultMsg struct {
	tabID schema.TabID
	text  string
	err   error
}

// stateChangedMsg reports that a store published an event.
type stateChangedMsg struct{}

// Model is the bubbletea model.
type Model struct {
	ctx      context.Context
	service  *core.Service
	tools    *toolkit.Toolkit
	commands *command.Handler
	rng      core.Float64Source
	out      *outputLog
	r        *lipgloss.Renderer
	copy     func(string) error
	clicks   *clickBatch

	tabEvents      <-chan eventbus.Event
	settingsEvents <-chan eventbus.Event
	unsubscribe    []func()

	entries []catalog.Tool
	cursor  int
	focus   focus

	input   textarea.Model
	output  viewport.Model
	palette textinput.Model
	matches []catalog.Tool
	pick    int

	shownTab schema.TabID
	status   string
	running  bool
	width    int
	height   int
}

// New builds a model over opts. Close releases its event subscriptions.
func New(ctx context.Context, opts Options) Model {
	if opts.Rand == nil {
		opts.Rand = globalRand{}
	}
	if opts.Renderer == nil {
		opts.Renderer = lipgloss.DefaultRenderer()
	}
	if opts.Copy == nil && opts.Output == nil {
		opts.Copy = clipboard.WriteAll
	}
	out := newOutputLog()

	input := textarea.New()
	input.Placeholder = "input, or /help for commands"
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(inputHeight)
	input.SetWidth(60)

	palette := textinput.New()
	palette.Placeholder = "search tools"
	palette.Prompt = "> "

	m := Model{
		ctx:      ctx,
		service:  opts.Service,
		tools:    opts.Tools,
		commands: command.NewHandler(opts.Service, out, command.HandlerConfig{Rand: opts.Rand}),
		rng:      opts.Rand,
		out:      out,
		r:        opts.Renderer,
		copy:     opts.Copy,
		clicks:   &clickBatch{},
		entries:  sidebarEntries(),
		input:    input,
		output:   viewport.New(60, 10),
		palette:  palette,
		focus:    focusSidebar,
	}
	tabs, cancelTabs := opts.Service.Bus().Subscribe(eventbus.EventTabs)
	settings, cancelSettings := opts.Service.Bus().Subscribe(eventbus.EventSettings)
	m.tabEvents, m.settingsEvents = tabs, settings
	m.unsubscribe = []func(){cancelTabs, cancelSettings}
	m.syncActiveTab()
	return m
}

// Close records pending clicks and releases the store subscriptions.
func (m Model) Close() {
	m.flushClicks()
	for _, cancel := range m.unsubscribe {
		cancel()
	}
}

// clickBatch holds key presses not yet written to the click tracker. It is
// shared by every copy of the model.
type clickBatch struct {
	pending   atomic.Int64
	scheduled atomic.Bool
}

type clickFlushMsg struct{}

// countClick adds one pending click and returns a flush tick when none is
// scheduled yet.
func (m Model) countClick() tea.Cmd {
	m.clicks.pending.Add(1)
	if !m.clicks.scheduled.CompareAndSwap(false, true) {
		return nil
	}
	return tea.Tick(clickFlushInterval, func(time.Time) tea.Msg { return clickFlushMsg{} })
}

func (m Model) flushClicks() {
	m.clicks.scheduled.Store(false)
	n := m.clicks.pending.Swap(0)
	if n == 0 {
		return
	}
	if _, err := m.service.Clicks.Increment(m.ctx, n); err != nil {
		m.log().Debug("tui click record failed", "clicks", n, "err", err)
	}
}

// pendingClicks is the number of presses not yet recorded.
func (m Model) pendingClicks() int64 {
	return m.clicks.pending.Load()
}

// sidebarEntries lists utilities then fun tools.
func sidebarEntries() []catalog.Tool {
	entries := catalog.ByCategory(catalog.Utility)
	return append(entries, catalog.ByCategory(catalog.Fun)...)
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitForChange())
}

func (m Model) waitForChange() tea.Cmd {
	tabs, settings := m.tabEvents, m.settingsEvents
	return func() tea.Msg {
		select {
		case _, ok := <-tabs:
			if !ok {
				return nil
			}
		case _, ok := <-settings:
			if !ok {
				return nil
			}
		}
		return stateChangedMsg{}
	}
}

func (m Model) log() pslog.Logger {
	return logx.Ctx(m.ctx).With("component", "tui")
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil
	case stateChangedMsg:
		m.syncActiveTab()
		m.layout()
		return m, m.waitForChange()
	case toolResultMsg:
		m.running = false
		if msg.err != nil {
			m.out.Set(msg.tabID, "error: "+msg.err.Error())
			m.status = msg.err.Error()
		} else {
			m.out.Set(msg.tabID, msg.text)
			m.status = "done"
		}
		m.refreshOutput()
		return m, nil
	case clickFlushMsg:
		m.flushClicks()
		return m, nil
	case tea.KeyMsg:
		flush := m.countClick()
		next, cmd := m.handleKey(msg)
		return next, tea.Batch(cmd, flush)
	}
	var cmd tea.Cmd
	m.output, cmd = m.output.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == keyQuit {
		m.saveInput()
		m.flushClicks()
		return m, tea.Quit
	}
	settings := m.service.Settings.Get()
	if m.focus == focusPalette && key == "esc" {
		m.closePalette()
		return m, nil
	}
	if key == panicKeyName(settings.BossMode.PanicKey) {
		if err := m.service.Settings.SetBossModeActive(m.ctx, !settings.BossMode.IsActive); err != nil {
			m.status = err.Error()
		}
		return m, nil
	}
	if settings.BossMode.IsActive {
		return m, nil
	}

	switch key {
	case keyPalette:
		m.openPalette()
		return m, textinput.Blink
	case keyCloseTab:
		m.closeActiveTab()
		return m, nil
	case keyNextTab, keyNextTabAlt:
		m.cycleTab(1)
		return m, nil
	case keyPrevTab:
		m.cycleTab(-1)
		return m, nil
	case keySidebar:
		m.toggleSidebar()
		return m, nil
	case keyCopy:
		m.copyOutput()
		return m, nil
	}

	switch m.focus {
	case focusPalette:
		return m.handlePaletteKey(msg)
	case focusSidebar:
		return m.handleSidebarKey(msg)
	default:
		return m.handleInputKey(msg)
	}
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "enter":
		m.openTool(m.entries[m.cursor])
	case keyFocus:
		if m.service.Tabs.Snapshot().Active() != "" {
			m.setFocus(focusInput)
		}
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyFocus:
		if !m.service.Settings.Get().SidebarCollapsed {
			m.setFocus(focusSidebar)
		}
		return m, nil
	case keyRun:
		return m, m.run()
	case "enter":
		if strings.HasPrefix(strings.TrimSpace(m.input.Value()), "/") {
			m.runCommand()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handlePaletteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "ctrl+k":
		if m.pick > 0 {
			m.pick--
		}
		return m, nil
	case "down", "ctrl+j":
		if m.pick < len(m.matches)-1 {
			m.pick++
		}
		return m, nil
	case "enter":
		if len(m.matches) > 0 {
			tool := m.matches[m.pick]
			m.closePalette()
			m.openTool(tool)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.palette, cmd = m.palette.Update(msg)
	m.matches = catalog.Search(m.palette.Value())
	if m.pick >= len(m.matches) {
		m.pick = 0
	}
	return m, cmd
}

func (m *Model) openPalette() {
	m.palette.SetValue("")
	m.palette.Focus()
	m.matches = catalog.Search("")
	m.pick = 0
	m.input.Blur()
	m.focus = focusPalette
}

func (m *Model) closePalette() {
	m.palette.Blur()
	if m.shownTab != "" {
		m.setFocus(focusInput)
	} else {
		m.setFocus(focusSidebar)
	}
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) openTool(tool catalog.Tool) {
	m.saveInput()
	if _, err := m.service.Tabs.OpenOrFocusTab(m.ctx, tool.ID, tool.Title); err != nil {
		m.status = err.Error()
		return
	}
	m.syncActiveTab()
	m.setFocus(focusInput)
	m.status = tool.Description
}

func (m *Model) closeActiveTab() {
	active := m.service.Tabs.Snapshot().Active()
	if active == "" {
		return
	}
	if err := m.service.Tabs.RemoveTab(m.ctx, active); err != nil {
		m.status = err.Error()
		return
	}
	m.out.Drop(active)
	m.shownTab = ""
	m.syncActiveTab()
	if m.shownTab == "" {
		m.setFocus(focusSidebar)
	}
}

func (m *Model) cycleTab(delta int) {
	snapshot := m.service.Tabs.Snapshot()
	if len(snapshot.Tabs) < 2 {
		return
	}
	idx := 0
	active := snapshot.Active()
	for i, tab := range snapshot.Tabs {
		if tab.ID == active {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(snapshot.Tabs)) % len(snapshot.Tabs)
	m.saveInput()
	if err := m.service.Tabs.SetActiveTab(m.ctx, snapshot.Tabs[idx].ID); err != nil {
		m.status = err.Error()
		return
	}
	m.syncActiveTab()
}

func (m *Model) copyOutput() {
	if m.shownTab == "" {
		m.status = "open a tool first"
		return
	}
	text := m.out.Text(m.shownTab)
	if strings.TrimSpace(text) == "" {
		m.status = "nothing to copy"
		return
	}
	if m.copy == nil {
		m.status = "clipboard unavailable"
		return
	}
	if err := m.copy(text); err != nil {
		m.status = err.Error()
		return
	}
	m.status = "copied"
}

func (m *Model) toggleSidebar() {
	collapsed := !m.service.Settings.Get().SidebarCollapsed
	if err := m.service.Settings.SetSidebarCollapsed(m.ctx, collapsed); err != nil {
		m.status = err.Error()
		return
	}
	if collapsed && m.focus == focusSidebar && m.shownTab != "" {
		m.setFocus(focusInput)
	}
	m.layout()
}

// saveInput stores the pane input in the shown tab's state.
func (m *Model) saveInput() {
	if m.shownTab == "" {
		return
	}
	tab, ok := m.service.Tabs.Get(m.shownTab)
	if !ok {
		return
	}
	value := m.input.Value()
	if prev, _ := tab.State[stateInput].(string); prev == value {
		return
	}
	if err := m.service.Tabs.UpdateTabState(m.ctx, m.shownTab, map[string]any{stateInput: value}); err != nil {
		m.log().Debug("tui tab state save failed", "tab", m.shownTab, "err", err)
	}
}

// syncActiveTab loads the active tab's input when it differs from the shown one.
func (m *Model) syncActiveTab() {
	active := m.service.Tabs.Snapshot().Active()
	if active == m.shownTab {
		m.refreshOutput()
		return
	}
	m.shownTab = active
	value := ""
	if tab, ok := m.service.Tabs.Get(active); ok {
		value, _ = tab.State[stateInput].(string)
	}
	m.input.SetValue(value)
	m.refreshOutput()
}

func (m *Model) refreshOutput() {
	m.output.SetContent(m.out.Text(m.shownTab))
	m.output.GotoBottom()
}

func (m *Model) runCommand() {
	line := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if _, err := m.commands.Handle(m.ctx, m.shownTab, line); err != nil {
		m.out.AppendLines(m.shownTab, "error: "+err.Error())
		m.status = err.Error()
	}
	m.syncActiveTab()
	m.refreshOutput()
}

// run executes the active tab's tool with the pane input.
func (m *Model) run() tea.Cmd {
	tabID := m.shownTab
	tab, ok := m.service.Tabs.Get(tabID)
	if !ok {
		m.status = "open a tool first"
		return nil
	}
	m.saveInput()
	switch tab.ToolID {
	case "deploy-roulette":
		m.spin(tabID)
		return nil
	case "boss-mode":
		if err := m.service.Settings.SetBossModeActive(m.ctx, true); err != nil {
			m.status = err.Error()
		}
		return nil
	}
	if m.running {
		return nil
	}
	raw, err := toolkit.FromText(tab.ToolID, m.input.Value())
	if err != nil {
		m.status = err.Error()
		return nil
	}
	m.running = true
	m.status = "running " + string(tab.ToolID)
	ctx, tools, toolID := m.ctx, m.tools, tab.ToolID
	return func() tea.Msg {
		result, err := tools.Run(ctx, toolID, raw)
		if err != nil {
			return toolResultMsg{tabID: tabID, err: err}
		}
		return toolResultMsg{tabID: tabID, text: renderResult(result)}
	}
}

func (m *Model) spin(tabID schema.TabID) {
	result, err := m.service.Deploy.Spin(m.ctx, m.rng)
	if err != nil {
		m.status = err.Error()
		return
	}
	state := m.service.Deploy.State()
	verdict := "DEPLOY: you survived"
	if !result.Survived {
		verdict = "RICKROLL: never gonna give you up"
	}
	lines := []string{
		verdict,
		fmt.Sprintf("deploys %d  rickrolls %d  survival %.1f%%", state.Stats.Deploys, state.Stats.Rickrolls, m.service.Deploy.SurvivalRate()),
		"",
	}
	for _, h := range state.History {
		lines = append(lines, fmt.Sprintf("%s  %s", h.Timestamp, h.Result))
	}
	m.out.Set(tabID, strings.Join(lines, "\n"))
	m.refreshOutput()
}

func renderResult(result any) string {
	if text := toolkit.Text(result); text != "" {
		return text
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

// NewProgram builds a program over opts. release must be called once the
// program has exited.
func NewProgram(ctx context.Context, opts Options) (*tea.Program, func(), error) {
	if opts.Service == nil || opts.Tools == nil {
		return nil, nil, errors.New("tui requires a service and a toolkit")
	}
	m := New(ctx, opts)
	progOpts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}
	return tea.NewProgram(m, progOpts...), m.Close, nil
}

// Run starts the program and blocks until it exits.
func Run(ctx context.Context, opts Options) error {
	p, release, err := NewProgram(ctx, opts)
	if err != nil {
		return err
	}
	defer release()
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
