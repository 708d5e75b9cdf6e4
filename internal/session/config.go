package session

import "time"

type Backend string

const (
	BackendChromedp Backend = "chromedp"
	BackendGoja     Backend = "goja"
)

// Config selects and configures a session backend.
type Config struct {
	Backend Backend `mapstructure:"backend"`

	// Headless runs a locally launched Chrome without a window.
	Headless bool `mapstructure:"headless"`

	// ExecPath overrides the Chrome binary; empty lets chromedp find one.
	ExecPath string `mapstructure:"exec_path"`

	// RemoteURL attaches to an already running browser's DevTools endpoint
	// (ws://host:port/...) instead of launching one.
	RemoteURL string `mapstructure:"remote_url"`

	// StartURL is loaded before any script runs, so fetches originate from
	// that page. The goja backend resolves relative URLs against it.
	StartURL string `mapstructure:"start_url"`

	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string `mapstructure:"user_agent"`

	// ScriptTimeout bounds every script call.
	ScriptTimeout time.Duration `mapstructure:"script_timeout"`

	// Flags are extra Chrome command line switches.
	Flags map[string]any `mapstructure:"flags"`
}

// DefaultConfig returns a headless chromedp configuration.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendChromedp,
		Headless:      true,
		ScriptTimeout: 30 * time.Second,
	}
}
