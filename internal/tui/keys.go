package tui

import (
	"strings"
	"unicode/utf8"
)

// Global bindings.
const (
	keyQuit       = "ctrl+c"
	keyPalette    = "ctrl+p"
	keyCloseTab   = "ctrl+w"
	keyNextTab    = "ctrl+right"
	keyNextTabAlt = "ctrl+tab"
	keyPrevTab    = "ctrl+left"
	keySidebar    = "ctrl+b"
	keyRun        = "ctrl+r"
	keyCopy       = "ctrl+y"
	keyFocus      = "tab"
)

var namedKeys = map[string]string{
	"escape":     "esc",
	"esc":        "esc",
	"space":      " ",
	"enter":      "enter",
	"tab":        "tab",
	"backspace":  "backspace",
	"delete":     "delete",
	"insert":     "insert",
	"home":       "home",
	"end":        "end",
	"pageup":     "pgup",
	"pagedown":   "pgdown",
	"arrowup":    "up",
	"arrowdown":  "down",
	"arrowleft":  "left",
	"arrowright": "right",
}

// panicKeyName maps a stored panic key (browser key names such as "Escape"
// or "F9") to the string bubbletea reports for that key.
func panicKeyName(stored string) string {
	if stored == "" {
		return "esc"
	}
	if utf8.RuneCountInString(stored) == 1 {
		return stored
	}
	lower := strings.ToLower(stored)
	if name, ok := namedKeys[lower]; ok {
		return name
	}
	return lower
}
