package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"pkt.systems/swissblade/internal/catalog"
	"pkt.systems/swissblade/schema"
)

type colorSet struct {
	accent lipgloss.Color
	muted  lipgloss.Color
	text   lipgloss.Color
	border lipgloss.Color
}

var (
	darkColors  = colorSet{accent: "#7c3aed", muted: "#6b7280", text: "#e5e7eb", border: "#374151"}
	lightColors = colorSet{accent: "#6d28d9", muted: "#6b7280", text: "#111827", border: "#d1d5db"}
)

func colorsFor(r *lipgloss.Renderer, theme schema.ThemeName) colorSet {
	switch theme {
	case "light":
		return lightColors
	case "dark":
		return darkColors
	}
	if r.HasDarkBackground() {
		return darkColors
	}
	return lightColors
}

var labels = map[string]map[string]string{
	"en": {
		"utilities": "UTILITIES",
		"fun":       "FUN",
		"welcome":   "Pick a tool from the sidebar or press ctrl+p.",
		"clicks":    "clicks",
		"session":   "session",
		"help":      "ctrl+p palette  ctrl+r run  ctrl+y copy  ctrl+w close  ctrl+b sidebar  tab focus  ctrl+c quit",
		"soon":      "This tool has no terminal view yet.",
	},
	"zh": {
		"utilities": "实用工具",
		"fun":       "娱乐",
		"welcome":   "从侧边栏选择工具或按 ctrl+p。",
		"clicks":    "点击",
		"session":   "本次",
		"help":      "ctrl+p 命令面板  ctrl+r 运行  ctrl+y 复制  ctrl+w 关闭  ctrl+b 侧边栏  tab 切换焦点  ctrl+c 退出",
		"soon":      "该工具暂无终端视图。",
	},
}

func label(language, key string) string {
	if set, ok := labels[language]; ok {
		if v, ok := set[key]; ok {
			return v
		}
	}
	return labels["en"][key]
}

// layout sizes the pane widgets to the window.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	main := m.width - 2
	if !m.service.Settings.Get().SidebarCollapsed {
		main -= sidebarWidth + 1
	}
	main = max(main, 20)
	m.input.SetWidth(main)
	m.palette.Width = main - 4
	m.output.Width = main
	m.output.Height = max(m.height-inputHeight-6, 3)
}

// View implements tea.Model.
func (m Model) View() string {
	settings := m.service.Settings.Get()
	if settings.BossMode.IsActive {
		return m.bossView()
	}
	colors := colorsFor(m.r, settings.Theme)
	lang := settings.Language

	body := m.mainView(colors, lang)
	if !settings.SidebarCollapsed {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(colors, lang), " ", body)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.tabBar(colors),
		body,
		m.footer(colors, lang),
	)
}

func (m Model) tabBar(colors colorSet) string {
	snapshot := m.service.Tabs.Snapshot()
	active := m.r.NewStyle().Bold(true).Foreground(colors.accent).Padding(0, 1)
	idle := m.r.NewStyle().Foreground(colors.muted).Padding(0, 1)
	parts := []string{m.r.NewStyle().Bold(true).Foreground(colors.accent).Render("swissblade")}
	for i, tab := range snapshot.Tabs {
		text := fmt.Sprintf("%d %s", i+1, tab.Title)
		if tab.ID == snapshot.Active() {
			parts = append(parts, active.Render("["+text+"]"))
		} else {
			parts = append(parts, idle.Render(text))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) sidebarView(colors colorSet, lang string) string {
	heading := m.r.NewStyle().Bold(true).Foreground(colors.muted)
	selected := m.r.NewStyle().Foreground(colors.accent).Bold(true)
	normal := m.r.NewStyle().Foreground(colors.text)
	disabled := m.r.NewStyle().Foreground(colors.muted).Faint(true)

	var lines []string
	var current catalog.Category
	for i, tool := range m.entries {
		if tool.Category != current {
			current = tool.Category
			if len(lines) > 0 {
				lines = append(lines, "")
			}
			key := "utilities"
			if current == catalog.Fun {
				key = "fun"
			}
			lines = append(lines, heading.Render(label(lang, key)))
		}
		style := normal
		if !tool.Available {
			style = disabled
		}
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
			if m.focus == focusSidebar {
				style = selected
			}
		}
		lines = append(lines, style.Render(prefix+tool.Title))
	}
	border := colors.border
	if m.focus == focusSidebar {
		border = colors.accent
	}
	return m.r.NewStyle().
		Width(sidebarWidth).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Render(strings.Join(lines, "\n"))
}

func (m Model) mainView(colors colorSet, lang string) string {
	frame := m.r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colors.border)
	if m.focus == focusInput || m.focus == focusPalette {
		frame = frame.BorderForeground(colors.accent)
	}
	if m.focus == focusPalette {
		return frame.Render(m.paletteView(colors))
	}
	tab, ok := m.service.Tabs.Get(m.shownTab)
	if !ok {
		return frame.Render(label(lang, "welcome"))
	}
	title := m.r.NewStyle().Bold(true).Foreground(colors.accent).Render(tab.Title)
	sections := []string{title}
	if tool, ok := catalog.Lookup(tab.ToolID); ok {
		sections = append(sections, m.r.NewStyle().Foreground(colors.muted).Render(tool.Description))
		if !tool.Available {
			sections = append(sections, label(lang, "soon"))
		}
	}
	sections = append(sections, m.input.View(), m.output.View())
	return frame.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) paletteView(colors colorSet) string {
	lines := []string{m.palette.View(), ""}
	for i, tool := range m.matches {
		if i >= 12 {
			break
		}
		line := fmt.Sprintf("  %-22s %s", tool.Title, tool.Description)
		if i == m.pick {
			line = m.r.NewStyle().Foreground(colors.accent).Bold(true).Render("> " + line[2:])
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) footer(colors colorSet, lang string) string {
	clicks := m.service.Clicks.State()
	pending := m.pendingClicks()
	left := fmt.Sprintf("%s %s  %s %s",
		label(lang, "clicks"), humanize.Comma(clicks.Lifetime+pending),
		label(lang, "session"), humanize.Comma(clicks.Session+pending))
	if m.status != "" {
		left += "  | " + m.status
	}
	muted := m.r.NewStyle().Foreground(colors.muted)
	return lipgloss.JoinVertical(lipgloss.Left, left, muted.Render(label(lang, "help")))
}

var bossRows = [][]string{
	{"Region", "Q1", "Q2", "Q3", "Q4", "Total"},
	{"North", "12,480", "13,120", "12,905", "14,310", "52,815"},
	{"South", "9,875", "10,240", "11,002", "10,870", "41,987"},
	{"East", "15,310", "14,980", "15,660", "16,020", "61,970"},
	{"West", "8,440", "8,915", "9,120", "9,635", "36,110"},
	{"Total", "46,105", "47,255", "48,687", "50,835", "192,882"},
}

// bossView renders a spreadsheet that hides the real screen.
func (m Model) bossView() string {
	width, height := m.width, m.height
	cell := m.r.NewStyle().Width(12).Padding(0, 1)
	head := cell.Bold(true).Background(lipgloss.Color("#e5e7eb")).Foreground(lipgloss.Color("#111827"))
	rows := []string{"Book1.xlsx - Quarterly Revenue", ""}
	for i, row := range bossRows {
		cells := make([]string, len(row))
		for j, v := range row {
			if i == 0 || j == 0 {
				cells[j] = head.Render(v)
			} else {
				cells[j] = cell.Render(v)
			}
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	rows = append(rows, "", "Sheet1  Sheet2  Sheet3")
	out := strings.Join(rows, "\n")
	if width > 0 && height > 0 {
		return m.r.Place(width, height, lipgloss.Left, lipgloss.Top, out)
	}
	return out
}
