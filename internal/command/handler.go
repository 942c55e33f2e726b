// Package command implements the slash commands typed into the terminal UI.
package command

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"pkt.systems/swissblade/core"
	"pkt.systems/swissblade/internal/catalog"
	"pkt.systems/swissblade/internal/logx"
	"pkt.systems/swissblade/internal/version"
	"pkt.systems/swissblade/schema"
)

// Output receives the lines a command prints.
type Output interface {
	AppendLines(tabID schema.TabID, lines ...string)
}

// HandlerConfig configures slash command behavior.
type HandlerConfig struct {
	// Rand drives /spin; defaults to the global generator.
	Rand                core.Float64Source
	DisableAuditLogging bool
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Handler routes slash commands to store operations.
type Handler struct {
	service *core.Service
	out     Output
	cfg     HandlerConfig
}

// NewHandler constructs a command handler.
func NewHandler(service *core.Service, out Output, cfg HandlerConfig) *Handler {
	if cfg.Rand == nil {
		cfg.Rand = globalRand{}
	}
	return &Handler{service: service, out: out, cfg: cfg}
}

// Handle inspects input and executes slash commands.
func (h *Handler) Handle(ctx context.Context, tabID schema.TabID, input string) (bool, error) {
	if ctx == nil {
		return false, errors.New("missing context")
	}
	baseLog := logx.WithTab(ctx, tabID)
	ctx = logx.ContextWithTab(ctx, tabID)
	cmd, ok := Parse(input)
	if !ok {
		return false, nil
	}
	if !h.cfg.DisableAuditLogging {
		baseLog.Debug("audit command", "command_type", "slash", "command", strings.TrimSpace(input))
	}
	log := baseLog.With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")
	switch cmd.Name {
	case "":
		log.Warn("command slash rejected", "reason", "empty")
		return true, fmt.Errorf("invalid command")
	case "open":
		return true, h.handleOpen(ctx, tabID, cmd, h.service.Tabs.OpenOrFocusTab)
	case "new":
		return true, h.handleOpen(ctx, tabID, cmd, h.service.Tabs.AddTab)
	case "close":
		return true, h.handleClose(ctx, tabID, cmd)
	case "rename":
		return true, h.handleRename(ctx, tabID, cmd)
	case "tabs":
		return true, h.handleTabs(tabID)
	case "tools":
		return true, h.handleTools(tabID, cmd)
	case "theme":
		return true, h.handleTheme(ctx, tabID, cmd)
	case "lang":
		return true, h.handleLanguage(ctx, tabID, cmd)
	case "panic":
		return true, h.handlePanicKey(ctx, tabID, cmd)
	case "boss":
		return true, h.handleBoss(ctx, tabID, cmd)
	case "sidebar":
		return true, h.handleSidebar(ctx, tabID, cmd)
	case "clicks":
		return true, h.handleClicks(ctx, tabID, cmd)
	case "persist":
		return true, h.handlePersist(ctx, tabID, cmd)
	case "spin":
		return true, h.handleSpin(ctx, tabID)
	case "help":
		h.appendLines(tabID, helpLines()...)
		log.Info("command help completed")
		return true, nil
	case "version":
		h.appendLines(tabID, version.Read().String())
		return true, nil
	default:
		log.Warn("command slash rejected", "reason", "unknown")
		return true, fmt.Errorf("unknown command: /%s", cmd.Name)
	}
}

// ResolveTool finds a tool by exact id, falling back to the best fuzzy match.
func ResolveTool(query string) (catalog.Tool, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return catalog.Tool{}, false
	}
	if tool, ok := catalog.Lookup(schema.ToolID(strings.ToLower(query))); ok {
		return tool, true
	}
	matches := catalog.Search(query)
	if len(matches) == 0 {
		return catalog.Tool{}, false
	}
	return matches[0], true
}

func (h *Handler) handleOpen(ctx context.Context, tabID schema.TabID, cmd Command, open func(context.Context, schema.ToolID, string) (schema.TabID, error)) error {
	log := logx.WithTab(ctx, tabID)
	query := strings.Join(cmd.Args, " ")
	if query == "" {
		return fmt.Errorf("usage: /%s <tool>", cmd.Name)
	}
	tool, ok := ResolveTool(query)
	if !ok {
		log.Warn("command open rejected", "query", query)
		return fmt.Errorf("%w: %s", schema.ErrUnknownTool, query)
	}
	id, err := open(ctx, tool.ID, tool.Title)
	if err != nil {
		log.Warn("command open failed", "tool", tool.ID, "err", err)
		return err
	}
	h.appendLines(id, fmt.Sprintf("tab opened: %s", tool.Title))
	log.Info("command open completed", "tool", tool.ID, "opened", id)
	return nil
}

func (h *Handler) handleClose(ctx context.Context, tabID schema.TabID, cmd Command) error {
	log := logx.WithTab(ctx, tabID)
	target := tabID
	if len(cmd.Args) > 0 {
		resolved, err := h.resolveTab(cmd.Args[0])
		if err != nil {
			return err
		}
		target = resolved
	}
	if target == "" {
		return errors.New("no tab to close")
	}
	tab, _ := h.service.Tabs.Get(target)
	if err := h.service.Tabs.RemoveTab(ctx, target); err != nil {
		log.Warn("command close failed", "target", target, "err", err)
		return err
	}
	h.appendLines("", fmt.Sprintf("tab closed: %s", tab.Title))
	log.Info("command close completed", "target", target)
	return nil
}

func (h *Handler) handleRename(ctx context.Context, tabID schema.TabID, cmd Command) error {
	if tabID == "" {
		return errors.New("no active tab")
	}
	title := strings.TrimSpace(strings.Join(cmd.Args, " "))
	if title == "" {
		return fmt.Errorf("usage: /rename <title>")
	}
	if err := h.service.Tabs.UpdateTabTitle(ctx, tabID, title); err != nil {
		return err
	}
	h.appendLines(tabID, "tab renamed: "+title)
	return nil
}

// resolveTab accepts a 1-based tab number or a tab id.
func (h *Handler) resolveTab(arg string) (schema.TabID, error) {
	snapshot := h.service.Tabs.Snapshot()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(snapshot.Tabs) {
			return "", fmt.Errorf("%w: %d", schema.ErrTabNotFound, n)
		}
		return snapshot.Tabs[n-1].ID, nil
	}
	id := schema.TabID(arg)
	if _, ok := h.service.Tabs.Get(id); !ok {
		return "", fmt.Errorf("%w: %s", schema.ErrTabNotFound, arg)
	}
	return id, nil
}

func (h *Handler) handleTabs(tabID schema.TabID) error {
	snapshot := h.service.Tabs.Snapshot()
	if len(snapshot.Tabs) == 0 {
		h.appendLines(tabID, "no tabs open")
		return nil
	}
	active := snapshot.Active()
	lines := make([]string, 0, len(snapshot.Tabs))
	for i, tab := range snapshot.Tabs {
		marker := " "
		if tab.ID == active {
			marker = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %d. %s (%s)", marker, i+1, tab.Title, tab.ToolID))
	}
	h.appendLines(tabID, lines...)
	return nil
}

func (h *Handler) handleTools(tabID schema.TabID, cmd Command) error {
	tools := catalog.All()
	if len(cmd.Args) > 0 {
		tools = catalog.Search(strings.Join(cmd.Args, " "))
	}
	if len(tools) == 0 {
		h.appendLines(tabID, "no matching tools")
		return nil
	}
	lines := make([]string, 0, len(tools))
	for _, tool := range tools {
		line := fmt.Sprintf("%-20s %s", tool.ID, tool.Description)
		if !tool.Available {
			line += " (unavailable)"
		}
		lines = append(lines, line)
	}
	h.appendLines(tabID, lines...)
	return nil
}

func (h *Handler) handleTheme(ctx context.Context, tabID schema.TabID, cmd Command) error {
	log := logx.WithTab(ctx, tabID)
	if len(cmd.Args) == 0 {
		current := h.service.Settings.Get().Theme
		h.appendLines(tabID,
			"theme: "+string(current),
			"available themes: "+strings.Join(formatThemes(schema.AvailableThemes()), ", "),
		)
		return nil
	}
	if err := h.service.Settings.SetTheme(ctx, cmd.Args[0]); err != nil {
		log.Warn("command theme rejected", "theme", cmd.Args[0], "err", err)
		return fmt.Errorf("unknown theme %q (available: %s)", cmd.Args[0], strings.Join(formatThemes(schema.AvailableThemes()), ", "))
	}
	theme := h.service.Settings.Get().Theme
	h.appendLines(tabID, fmt.Sprintf("theme set to %s", theme))
	log.Info("command theme updated", "theme", theme)
	return nil
}

func (h *Handler) handleLanguage(ctx context.Context, tabID schema.TabID, cmd Command) error {
	if len(cmd.Args) == 0 {
		h.appendLines(tabID,
			"language: "+h.service.Settings.Get().Language,
			"available languages: "+strings.Join(schema.SupportedLanguages(), ", "),
		)
		return nil
	}
	if err := h.service.Settings.SetLanguage(ctx, cmd.Args[0]); err != nil {
		return err
	}
	h.appendLines(tabID, "language set to "+h.service.Settings.Get().Language)
	return nil
}

func (h *Handler) handlePanicKey(ctx context.Context, tabID schema.TabID, cmd Command) error {
	if len(cmd.Args) == 0 {
		h.appendLines(tabID, "panic key: "+h.service.Settings.Get().BossMode.PanicKey)
		return nil
	}
	if err := h.service.Settings.SetBossModePanicKey(ctx, cmd.Args[0]); err != nil {
		return err
	}
	h.appendLines(tabID, "panic key set to "+h.service.Settings.Get().BossMode.PanicKey)
	return nil
}

func (h *Handler) handleBoss(ctx context.Context, tabID schema.TabID, cmd Command) error {
	current := h.service.Settings.Get().BossMode.IsActive
	next, err := toggleArg(cmd, current)
	if err != nil {
		return err
	}
	if err := h.service.Settings.SetBossModeActive(ctx, next); err != nil {
		return err
	}
	h.appendLines(tabID, "boss mode: "+onOff(next))
	return nil
}

func (h *Handler) handleSidebar(ctx context.Context, tabID schema.TabID, cmd Command) error {
	collapsed := h.service.Settings.Get().SidebarCollapsed
	// "on" means the sidebar is shown.
	shown, err := toggleArg(cmd, !collapsed)
	if err != nil {
		return err
	}
	if err := h.service.Settings.SetSidebarCollapsed(ctx, !shown); err != nil {
		return err
	}
	h.appendLines(tabID, "sidebar: "+onOff(shown))
	return nil
}

func (h *Handler) handleClicks(ctx context.Context, tabID schema.TabID, cmd Command) error {
	state := h.service.Clicks.State()
	if len(cmd.Args) > 0 {
		if strings.ToLower(cmd.Args[0]) != "reset" {
			return fmt.Errorf("usage: /clicks [reset]")
		}
		var err error
		state, err = h.service.Clicks.ResetSession(ctx)
		if err != nil {
			return err
		}
	}
	stats := core.ComputeClickStats(state.Lifetime)
	h.appendLines(tabID,
		fmt.Sprintf("clicks saved: %s lifetime, %s this session", humanize.Comma(state.Lifetime), humanize.Comma(state.Session)),
		fmt.Sprintf("distance: %.2f km, time saved: %.1f min", stats.DistanceKm, stats.TimeSavedMinutes),
		fmt.Sprintf("badges: %d/%d", stats.EarnedBadges, len(stats.Badges)),
		"persist: "+onOff(state.Persist),
	)
	return nil
}

func (h *Handler) handlePersist(ctx context.Context, tabID schema.TabID, cmd Command) error {
	next, err := toggleArg(cmd, h.service.Clicks.State().Persist)
	if err != nil {
		return err
	}
	if _, err := h.service.Clicks.SetPersist(ctx, next); err != nil {
		return err
	}
	h.appendLines(tabID, "click persistence: "+onOff(next))
	return nil
}

func (h *Handler) handleSpin(ctx context.Context, tabID schema.TabID) error {
	log := logx.WithTab(ctx, tabID)
	result, err := h.service.Deploy.Spin(ctx, h.cfg.Rand)
	if err != nil {
		log.Warn("command spin failed", "err", err)
		return err
	}
	line := "deploy survived"
	if !result.Survived {
		line = "rickrolled"
	}
	h.appendLines(tabID, fmt.Sprintf("%s (survival rate %.1f%%)", line, h.service.Deploy.SurvivalRate()))
	log.Info("command spin completed", "result", result.Result)
	return nil
}

func toggleArg(cmd Command, current bool) (bool, error) {
	if len(cmd.Args) == 0 {
		return !current, nil
	}
	switch strings.ToLower(cmd.Args[0]) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	case "toggle":
		return !current, nil
	default:
		return current, fmt.Errorf("usage: /%s [on|off|toggle]", cmd.Name)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func (h *Handler) appendLines(tabID schema.TabID, lines ...string) {
	if h.out == nil || len(lines) == 0 {
		return
	}
	h.out.AppendLines(tabID, lines...)
}

func helpLines() []string {
	return []string{
		"Commands",
		"/open <tool>       open or focus a tool tab (id or fuzzy name)",
		"/new <tool>        open another tab for a tool",
		"/close [n|id]      close the current or given tab",
		"/rename <title>    rename the current tab",
		"/tabs              list open tabs",
		"/tools [query]     list or search tools",
		"/theme [name]      show or set the theme (" + strings.Join(formatThemes(schema.AvailableThemes()), ", ") + ")",
		"/lang [code]       show or set the language",
		"/panic [key]       show or set the boss mode panic key",
		"/boss [on|off]     toggle boss mode",
		"/sidebar [on|off]  toggle the sidebar",
		"/clicks [reset]    show click savings or reset the session count",
		"/persist [on|off]  toggle click persistence",
		"/spin              spin the deploy roulette",
		"/version           show version information",
	}
}

func formatThemes(themes []schema.ThemeName) []string {
	formatted := make([]string, 0, len(themes))
	for _, name := range themes {
		formatted = append(formatted, string(name))
	}
	return formatted
}
