// Package deploy opens a terminal emulator running the roulette deploy command.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/schema"
)

// DefaultTerminals is the Linux probe order.
var DefaultTerminals = []string{"gnome-terminal", "konsole", "xfce4-terminal", "xterm"}

// ErrNoTerminal is returned when no terminal emulator could be started.
var ErrNoTerminal = errors.New("no terminal emulator found")

const holdOpen = " ; read -p 'Press Enter to close...'"

// Launcher starts deploy commands in a new terminal window.
type Launcher struct {
	GOOS      string
	Terminals []string
	// Start launches cmd without waiting for it.
	Start func(cmd *exec.Cmd) error
	// LookPath resolves a terminal binary.
	LookPath func(file string) (string, error)
}

// NewLauncher returns a launcher for the running platform.
func NewLauncher(terminals []string) *Launcher {
	if len(terminals) == 0 {
		terminals = DefaultTerminals
	}
	return &Launcher{
		GOOS:      runtime.GOOS,
		Terminals: terminals,
		Start:     startDetached,
		LookPath:  exec.LookPath,
	}
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Launch opens a terminal in directory running command and returns a status line.
func (l *Launcher) Launch(ctx context.Context, directory, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", schema.ErrEmptyCommand
	}
	log := pslog.Ctx(ctx).With("directory", directory)
	switch l.GOOS {
	case "darwin":
		args := OSAScriptArgs(directory, command)
		if err := l.Start(exec.Command(args[0], args[1:]...)); err != nil {
			return "", fmt.Errorf("failed to open terminal: %w", err)
		}
		log.Info("deploy launched", "terminal", "Terminal")
		return "Command launched in Terminal", nil
	case "windows":
		args := CmdArgs(directory, command)
		if err := l.Start(exec.Command(args[0], args[1:]...)); err != nil {
			return "", fmt.Errorf("failed to open terminal: %w", err)
		}
		log.Info("deploy launched", "terminal", "cmd")
		return "Command launched in Command Prompt", nil
	}
	for _, term := range l.Terminals {
		if l.LookPath != nil {
			if _, err := l.LookPath(term); err != nil {
				continue
			}
		}
		args := TerminalArgs(term, directory, command)
		if err := l.Start(exec.Command(args[0], args[1:]...)); err != nil {
			log.Debug("deploy terminal failed", "terminal", term, "err", err)
			continue
		}
		log.Info("deploy launched", "terminal", term)
		return "Command launched in " + term, nil
	}
	return "", ErrNoTerminal
}

// ShellQuote escapes single quotes for use inside a single-quoted shell string.
func ShellQuote(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

// Script is the shell line run inside the terminal.
func Script(directory, command string) string {
	return fmt.Sprintf("cd '%s' && %s%s", ShellQuote(directory), ShellQuote(command), holdOpen)
}

// TerminalArgs returns argv for a Linux terminal emulator.
func TerminalArgs(term, directory, command string) []string {
	script := Script(directory, command)
	switch term {
	case "gnome-terminal":
		return []string{term, "--", "bash", "-c", script}
	case "konsole":
		return []string{term, "-e", "bash", "-c", script}
	}
	return []string{term, "-e", script}
}

// OSAScriptArgs returns argv driving Terminal.app.
func OSAScriptArgs(directory, command string) []string {
	appleQuote := func(s string) string { return strings.ReplaceAll(ShellQuote(s), `"`, `\"`) }
	script := fmt.Sprintf("tell application \"Terminal\"\n    activate\n    do script \"cd '%s' && %s\"\nend tell",
		appleQuote(directory), appleQuote(command))
	return []string{"osascript", "-e", script}
}

// CmdArgs returns argv opening a new Command Prompt.
func CmdArgs(directory, command string) []string {
	var b strings.Builder
	for _, r := range command {
		switch r {
		case '^', '&', '|', '<', '>', '"', '%':
			b.WriteByte('^')
		}
		b.WriteRune(r)
	}
	line := fmt.Sprintf(`cd /d "%s" && %s`, strings.ReplaceAll(directory, `"`, `""`), b.String())
	return []string{"cmd", "/C", "start", "cmd", "/K", line}
}
