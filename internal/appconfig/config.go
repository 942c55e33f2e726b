package appconfig

import (
	"os"
	"path/filepath"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	State         StateConfig     `mapstructure:"state" yaml:"state"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
	SSH           SSHConfig       `mapstructure:"ssh" yaml:"ssh"`
	Relay         RelayConfig     `mapstructure:"relay" yaml:"relay"`
	CertCheck     CertCheckConfig `mapstructure:"certcheck" yaml:"certcheck"`
	Whistle       WhistleConfig   `mapstructure:"whistle" yaml:"whistle"`
	Deploy        DeployConfig    `mapstructure:"deploy" yaml:"deploy"`
	UI            UIConfig        `mapstructure:"ui" yaml:"ui"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Backend names for StateConfig.Backend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// StateConfig selects where stores persist.
type StateConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	// Watch reloads stores when the file backend changes on disk.
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr         string `mapstructure:"addr" yaml:"addr"`
	BasePath     string `mapstructure:"base_path" yaml:"base_path"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// SSHConfig configures the terminal UI served over SSH.
type SSHConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr               string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath        string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path" yaml:"authorized_keys_path"`
}

// RelayConfig configures the HTTP relay.
type RelayConfig struct {
	TimeoutSeconds   int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxResponseBytes int64   `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
	RatePerSecond    float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst            int     `mapstructure:"burst" yaml:"burst"`
}

// CertCheckConfig configures the certificate inspector.
type CertCheckConfig struct {
	TimeoutSeconds int   `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Ports          []int `mapstructure:"ports" yaml:"ports"`
	AllowPrivate   bool  `mapstructure:"allow_private" yaml:"allow_private"`
}

// WhistleConfig gates the raw socket tool.
type WhistleConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DeployConfig configures deploy roulette launches.
type DeployConfig struct {
	Terminals []string `mapstructure:"terminals" yaml:"terminals"`
}

// UIConfig holds defaults applied when no settings were persisted yet.
type UIConfig struct {
	DefaultTheme    string `mapstructure:"default_theme" yaml:"default_theme"`
	DefaultLanguage string `mapstructure:"default_language" yaml:"default_language"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".swissblade", "state"),
		State: StateConfig{
			Backend:    BackendFile,
			SQLitePath: filepath.Join(home, ".swissblade", "state", "swissblade.db"),
			Watch:      true,
		},
		HTTP: HTTPConfig{
			Addr:         "127.0.0.1:27490",
			BasePath:     "",
			MaxBodyBytes: 1 << 20,
		},
		SSH: SSHConfig{
			Enabled:            false,
			Addr:               "127.0.0.1:27491",
			HostKeyPath:        filepath.Join(home, ".swissblade", "ssh_host_ed25519"),
			AuthorizedKeysPath: filepath.Join(home, ".ssh", "authorized_keys"),
		},
		Relay: RelayConfig{
			TimeoutSeconds:   30,
			MaxResponseBytes: 10 << 20,
			RatePerSecond:    0,
			Burst:            0,
		},
		CertCheck: CertCheckConfig{
			TimeoutSeconds: 8,
			Ports:          []int{443, 8443},
			AllowPrivate:   false,
		},
		Whistle: WhistleConfig{
			Enabled: false,
		},
		Deploy: DeployConfig{
			Terminals: []string{"gnome-terminal", "konsole", "xfce4-terminal", "xterm"},
		},
		UI: UIConfig{
			DefaultTheme:    "system",
			DefaultLanguage: "en",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".swissblade", "config.yaml"), nil
}
