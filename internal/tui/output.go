package tui

import (
	"strings"
	"sync"

	"pkt.systems/swissblade/schema"
)

const maxOutputLines = 500

// outputLog keeps per-tab output; the empty tab id holds messages shown when no tab is open.
type outputLog struct {
	mu    sync.Mutex
	lines map[schema.TabID][]string
}

func newOutputLog() *outputLog {
	return &outputLog{lines: make(map[schema.TabID][]string)}
}

// AppendLines implements command.Output.
func (o *outputLog) AppendLines(tabID schema.TabID, lines ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	buf := append(o.lines[tabID], lines...)
	if len(buf) > maxOutputLines {
		buf = buf[len(buf)-maxOutputLines:]
	}
	o.lines[tabID] = buf
}

// Set replaces a tab's output.
func (o *outputLog) Set(tabID schema.TabID, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines[tabID] = strings.Split(text, "\n")
}

func (o *outputLog) Text(tabID schema.TabID) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return strings.Join(o.lines[tabID], "\n")
}

func (o *outputLog) Drop(tabID schema.TabID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.lines, tabID)
}
