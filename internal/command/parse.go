package command

import (
	"strings"

	"github.com/google/shlex"
)

// Command represents a parsed slash command.
type Command struct {
	Name      string
	Args      []string
	Raw       string
	Remainder string
}

// Parse parses a line and returns a Command if it starts with "/".
// Arguments follow shell quoting; unbalanced quotes fall back to whitespace splitting.
func Parse(input string) (Command, bool) {
	trimmed := strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(trimmed, "/") {
		return Command{}, false
	}
	raw := strings.TrimSpace(trimmed[1:])
	if raw == "" {
		return Command{}, true
	}
	fields, err := shlex.Split(raw)
	if err != nil || len(fields) == 0 {
		fields = strings.Fields(raw)
	}
	if len(fields) == 0 {
		return Command{Raw: raw}, true
	}
	return Command{
		Name:      strings.ToLower(fields[0]),
		Args:      fields[1:],
		Raw:       raw,
		Remainder: remainderAfterName(raw),
	}, true
}

func remainderAfterName(raw string) string {
	idx := strings.IndexAny(raw, " \t\r\n")
	if idx == -1 {
		return ""
	}
	return strings.TrimSpace(raw[idx:])
}
