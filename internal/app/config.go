package app

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/raysh454/browserfetch/internal/session"
)

// EnvPrefix prefixes every environment variable LoadConfig reads, e.g.
// BROWSERFETCH_SESSION_BACKEND.
const EnvPrefix = "BROWSERFETCH"

// Config contains the runtime configuration of the service and the CLI.
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Session session.Config `mapstructure:"session"`
	Log     LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string `mapstructure:"listen_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8080",
		},
		Session: session.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig layers an optional config file (any format viper reads) and
// BROWSERFETCH_* environment variables over DefaultConfig. An empty path
// skips the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("session.backend", string(d.Session.Backend))
	v.SetDefault("session.headless", d.Session.Headless)
	v.SetDefault("session.exec_path", d.Session.ExecPath)
	v.SetDefault("session.remote_url", d.Session.RemoteURL)
	v.SetDefault("session.start_url", d.Session.StartURL)
	v.SetDefault("session.user_agent", d.Session.UserAgent)
	v.SetDefault("session.script_timeout", d.Session.ScriptTimeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate rejects configurations no session could be built from.
func (c *Config) Validate() error {
	backend := strings.ToLower(string(c.Session.Backend))
	if backend != "" && !slices.Contains(session.ListBackends(), backend) {
		return fmt.Errorf("unknown session backend %q (available: %s)",
			c.Session.Backend, strings.Join(session.ListBackends(), ", "))
	}
	if c.Session.ScriptTimeout < time.Millisecond {
		return errors.New("session script timeout must be at least 1ms")
	}
	return nil
}
