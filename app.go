package swissblade

import (
	"fmt"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/core"
	"pkt.systems/swissblade/httpapi"
	"pkt.systems/swissblade/internal/appconfig"
	"pkt.systems/swissblade/internal/catalog"
	"pkt.systems/swissblade/internal/certcheck"
	"pkt.systems/swissblade/internal/deploy"
	"pkt.systems/swissblade/internal/persist"
	"pkt.systems/swissblade/internal/relay"
	"pkt.systems/swissblade/internal/toolkit"
	"pkt.systems/swissblade/internal/whistle"
	"pkt.systems/swissblade/schema"
	"pkt.systems/swissblade/sshserver"
)

// App bundles the stores and tools built from one configuration.
type App struct {
	Config   appconfig.Config
	Service  *core.Service
	Tools    *toolkit.Toolkit
	Launcher *deploy.Launcher
}

// OpenApp opens the configured state backend and builds the stores and tools.
func OpenApp(cfg appconfig.Config, logger pslog.Logger) (*App, error) {
	backend, err := OpenBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	service := core.NewService(core.Deps{
		Backend:   backend,
		Logger:    logger,
		KnownTool: catalog.Known,
		Settings: &schema.Settings{
			Theme:    schema.ThemeName(cfg.UI.DefaultTheme),
			Language: cfg.UI.DefaultLanguage,
		},
	})
	return &App{
		Config:   cfg,
		Service:  service,
		Tools:    NewToolkit(cfg),
		Launcher: deploy.NewLauncher(cfg.Deploy.Terminals),
	}, nil
}

// OpenBackend opens the state backend named by cfg.State.Backend.
func OpenBackend(cfg appconfig.Config, logger pslog.Logger) (persist.Backend, error) {
	switch cfg.State.Backend {
	case appconfig.BackendFile, "":
		return persist.NewFileStoreWithLogger(cfg.StateDir, logger)
	case appconfig.BackendSQLite:
		return persist.OpenSQLite(cfg.State.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unsupported state backend %q", cfg.State.Backend)
	}
}

// NewToolkit builds the tool dispatcher with the configured network limits.
func NewToolkit(cfg appconfig.Config) *toolkit.Toolkit {
	certs := certcheck.New()
	if cfg.CertCheck.TimeoutSeconds > 0 {
		certs.Timeout = time.Duration(cfg.CertCheck.TimeoutSeconds) * time.Second
	}
	if len(cfg.CertCheck.Ports) > 0 {
		certs.Ports = cfg.CertCheck.Ports
	}
	certs.AllowPrivate = cfg.CertCheck.AllowPrivate
	tc := toolkit.Config{
		Relay: relay.New(relay.Config{
			Timeout:          time.Duration(cfg.Relay.TimeoutSeconds) * time.Second,
			MaxResponseBytes: cfg.Relay.MaxResponseBytes,
			RatePerSecond:    cfg.Relay.RatePerSecond,
			Burst:            cfg.Relay.Burst,
		}),
		Certs: certs,
	}
	if cfg.Whistle.Enabled {
		tc.Whistle = whistle.New()
	}
	return toolkit.New(tc)
}

// ServerConfig derives the compositor settings for a.
func (a *App) ServerConfig() ServerConfig {
	out := ServerConfig{
		HTTP: httpapi.Config{
			Addr:           a.Config.HTTP.Addr,
			BasePath:       a.Config.HTTP.BasePath,
			MaxBodyBytes:   a.Config.HTTP.MaxBodyBytes,
			WhistleEnabled: a.Config.Whistle.Enabled,
		},
	}
	if a.Config.SSH.Enabled {
		out.SSH = sshserver.Config{
			Addr:               a.Config.SSH.Addr,
			HostKeyPath:        a.Config.SSH.HostKeyPath,
			AuthorizedKeysPath: a.Config.SSH.AuthorizedKeysPath,
		}
	}
	if a.Config.State.Watch && a.Config.State.Backend != appconfig.BackendSQLite {
		out.WatchDir = a.Config.StateDir
	}
	return out
}

// ServerDeps returns the collaborators the compositor needs.
func (a *App) ServerDeps() ServerDeps {
	return ServerDeps{Service: a.Service, Tools: a.Tools, Launcher: a.Launcher}
}

// Close releases the tools and the state backend.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	a.Tools.Close()
	return a.Service.Close()
}
