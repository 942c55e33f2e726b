package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/swissblade"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	var basePath string
	var noWatch bool
	var sshAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and, when enabled, the SSH terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			serverCfg := app.ServerConfig()
			if addr != "" {
				serverCfg.HTTP.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				serverCfg.HTTP.BasePath = basePath
			}
			if sshAddr != "" {
				serverCfg.SSH.Addr = sshAddr
				if serverCfg.SSH.HostKeyPath == "" {
					serverCfg.SSH.HostKeyPath = app.Config.SSH.HostKeyPath
					serverCfg.SSH.AuthorizedKeysPath = app.Config.SSH.AuthorizedKeysPath
				}
			}
			if noWatch {
				serverCfg.WatchDir = ""
			}
			server, err := swissblade.New(serverCfg, app.ServerDeps())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("http server listening", "addr", serverCfg.HTTP.Addr, "ssh_addr", serverCfg.SSH.Addr, "state_backend", app.Config.State.Backend)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "mount the API under this path prefix")
	cmd.Flags().StringVar(&sshAddr, "ssh", "", "serve the terminal UI over SSH on this address (overrides ssh.addr)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload state changed by other processes")
	return cmd
}
