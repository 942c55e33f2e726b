package deploy

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pkt.systems/swissblade/schema"
)

func TestScriptQuoting(t *testing.T) {
	got := Script("/tmp/it's here", "echo 'hi'")
	want := `cd '/tmp/it'\''s here' && echo '\''hi'\'' ; read -p 'Press Enter to close...'`
	if got != want {
		t.Fatalf("want %q got %q", want, got)
	}
}

func TestTerminalArgs(t *testing.T) {
	script := Script("./", "make deploy")
	cases := map[string][]string{
		"gnome-terminal": {"gnome-terminal", "--", "bash", "-c", script},
		"konsole":        {"konsole", "-e", "bash", "-c", script},
		"xterm":          {"xterm", "-e", script},
	}
	for term, want := range cases {
		if diff := cmp.Diff(want, TerminalArgs(term, "./", "make deploy")); diff != "" {
			t.Fatalf("%s args mismatch (-want +got):\n%s", term, diff)
		}
	}
}

func TestCmdArgsEscapes(t *testing.T) {
	args := CmdArgs(`C:\a"b`, "npm run x & echo %PATH%")
	want := `cd /d "C:\a""b" && npm run x ^& echo ^%PATH^%`
	if args[len(args)-1] != want {
		t.Fatalf("want %q got %q", want, args[len(args)-1])
	}
}

func TestLaunchPicksFirstAvailableTerminal(t *testing.T) {
	var started [][]string
	l := &Launcher{
		GOOS:      "linux",
		Terminals: []string{"gnome-terminal", "xterm"},
		LookPath: func(file string) (string, error) {
			if file == "xterm" {
				return "/usr/bin/xterm", nil
			}
			return "", exec.ErrNotFound
		},
		Start: func(cmd *exec.Cmd) error {
			started = append(started, cmd.Args)
			return nil
		},
	}
	msg, err := l.Launch(context.Background(), "./", "npm run deploy:staging")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if msg != "Command launched in xterm" || len(started) != 1 || started[0][0] != "xterm" {
		t.Fatalf("unexpected launch: %q %v", msg, started)
	}
}

func TestLaunchErrors(t *testing.T) {
	l := &Launcher{
		GOOS:      "linux",
		Terminals: []string{"xterm"},
		Start:     func(*exec.Cmd) error { return errors.New("no display") },
	}
	if _, err := l.Launch(context.Background(), "./", "  "); !errors.Is(err, schema.ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
	if _, err := l.Launch(context.Background(), "./", "deploy"); !errors.Is(err, ErrNoTerminal) {
		t.Fatalf("expected ErrNoTerminal, got %v", err)
	}
}
