package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errNoInput = errors.New("no input: pass it as an argument or pipe it on stdin")

// readInput joins args, or reads stdin when it is not a terminal.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errNoInput
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimRight(string(data), "\r\n")
	if strings.TrimSpace(text) == "" {
		return "", errNoInput
	}
	return text, nil
}

type outputOptions struct {
	json bool
	copy bool
}

func (o *outputOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.json, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVar(&o.copy, "copy", false, "copy the output to the clipboard")
}

// copyToClipboard is swapped in tests.
var copyToClipboard = clipboard.WriteAll

// emit prints text when available (unless --json), otherwise indented JSON.
func (o *outputOptions) emit(cmd *cobra.Command, value any, text string) error {
	out := text
	if o.json || out == "" {
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		out = string(data)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if o.copy {
		if err := copyToClipboard(out); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
	}
	return nil
}
