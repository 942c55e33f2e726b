package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/swissblade"
	"pkt.systems/swissblade/internal/appconfig"
	"pkt.systems/swissblade/internal/tui"
)

const tuiLogFile = "tui.log"

func newTUICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
				return fmt.Errorf("create state dir: %w", err)
			}
			logFile, err := os.OpenFile(filepath.Join(cfg.StateDir, tuiLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("open tui log: %w", err)
			}
			defer logFile.Close()
			// The terminal belongs to the UI; logs go to the state dir.
			logger := pslog.NewWithOptions(logFile, pslog.Options{
				Mode:    pslog.ModeStructured,
				NoColor: true,
			})
			ctx := pslog.ContextWithLogger(cmd.Context(), logger)

			app, err := swissblade.OpenApp(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()
			logger.Info("tui started", "state_dir", cfg.StateDir)
			return tui.Run(ctx, tui.Options{Service: app.Service, Tools: app.Tools})
		},
	}
}
