package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"pkt.systems/swissblade/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SWISSBLADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("state.backend", cfg.State.Backend)
	v.SetDefault("state.sqlite_path", cfg.State.SQLitePath)
	v.SetDefault("state.watch", cfg.State.Watch)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.max_body_bytes", cfg.HTTP.MaxBodyBytes)
	v.SetDefault("ssh.enabled", cfg.SSH.Enabled)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("ssh.authorized_keys_path", cfg.SSH.AuthorizedKeysPath)
	v.SetDefault("relay.timeout_seconds", cfg.Relay.TimeoutSeconds)
	v.SetDefault("relay.max_response_bytes", cfg.Relay.MaxResponseBytes)
	v.SetDefault("relay.rate_per_second", cfg.Relay.RatePerSecond)
	v.SetDefault("relay.burst", cfg.Relay.Burst)
	v.SetDefault("certcheck.timeout_seconds", cfg.CertCheck.TimeoutSeconds)
	v.SetDefault("certcheck.ports", cfg.CertCheck.Ports)
	v.SetDefault("certcheck.allow_private", cfg.CertCheck.AllowPrivate)
	v.SetDefault("whistle.enabled", cfg.Whistle.Enabled)
	v.SetDefault("deploy.terminals", cfg.Deploy.Terminals)
	v.SetDefault("ui.default_theme", cfg.UI.DefaultTheme)
	v.SetDefault("ui.default_language", cfg.UI.DefaultLanguage)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.State.Backend {
	case BackendFile:
	case BackendSQLite:
		if strings.TrimSpace(cfg.State.SQLitePath) == "" {
			return fmt.Errorf("state.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unsupported state.backend %q", cfg.State.Backend)
	}
	if strings.TrimSpace(cfg.StateDir) == "" {
		return fmt.Errorf("state_dir is required")
	}
	if err := validateHTTPConfig(cfg.HTTP); err != nil {
		return err
	}
	if cfg.SSH.Enabled {
		if strings.TrimSpace(cfg.SSH.Addr) == "" {
			return fmt.Errorf("ssh.addr is required when ssh is enabled")
		}
		if strings.TrimSpace(cfg.SSH.HostKeyPath) == "" {
			return fmt.Errorf("ssh.host_key_path is required when ssh is enabled")
		}
	}
	if cfg.Relay.TimeoutSeconds < 0 || cfg.Relay.MaxResponseBytes < 0 || cfg.Relay.RatePerSecond < 0 || cfg.Relay.Burst < 0 {
		return fmt.Errorf("relay limits must not be negative")
	}
	for _, port := range cfg.CertCheck.Ports {
		if port < 1 || port > 65535 {
			return fmt.Errorf("certcheck.ports: invalid port %d", port)
		}
	}
	if _, ok := schema.NormalizeThemeName(cfg.UI.DefaultTheme); !ok {
		return fmt.Errorf("ui.default_theme: unsupported theme %q", cfg.UI.DefaultTheme)
	}
	if _, err := schema.NormalizeLanguage(cfg.UI.DefaultLanguage); err != nil {
		return fmt.Errorf("ui.default_language: %w", err)
	}
	return nil
}

func validateHTTPConfig(cfg HTTPConfig) error {
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	if cfg.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must not be negative")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.State.SQLitePath = expandEnv(cfg.State.SQLitePath)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.SSH.AuthorizedKeysPath = expandEnv(cfg.SSH.AuthorizedKeysPath)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	if value == "~" || strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = filepath.Join(home, strings.TrimPrefix(value, "~"))
		}
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
