// Package cli implements the browserfetch command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/raysh454/browserfetch/internal/app"
	"github.com/raysh454/browserfetch/internal/fetchopts"
	"github.com/raysh454/browserfetch/internal/logging"
	"github.com/raysh454/browserfetch/internal/session"
)

// Exit codes.
const (
	exitFailure    = 1
	exitNoResponse = 2
	exitInvalid    = 3
)

// ExitCode is an error carrying the process exit status.
type ExitCode struct {
	error
	Code int
}

func (e ExitCode) Unwrap() error { return e.error }

// errNoResponse is returned when the browser produced no response.
var errNoResponse = ExitCode{error: errors.New("no response"), Code: exitNoResponse}

// rootCommand keeps the global flags and the output streams every
// subcommand writes to.
type rootCommand struct {
	cmd    *cobra.Command
	stdout io.Writer
	stderr io.Writer

	configPath string
	backend    string
	headless   bool
	startURL   string
	remoteURL  string
	timeout    time.Duration
	logLevel   string
}

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &rootCommand{stdout: stdout, stderr: stderr}
	c.cmd = &cobra.Command{
		Use:           "browserfetch [command]",
		Short:         "Run fetch() inside a real browser page",
		Long:          `Perform HTTP requests with the browser's own fetch API so cookies, origin and TLS fingerprint are the browser's.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  browserfetch fetch https://example.com/api -H accept=application/json
  browserfetch fetch https://example.com/api -X POST --json '{"a":1}' --start-url https://example.com/
  browserfetch user-agent --backend goja
  browserfetch serve --config browserfetch.yaml`,
	}
	c.cmd.SetOut(stdout)
	c.cmd.SetErr(stderr)
	c.cmd.PersistentFlags().AddFlagSet(c.persistentFlagSet())

	c.cmd.AddCommand(
		c.fetchCmd(),
		c.userAgentCmd(),
		c.serveCmd(),
	)
	return c.cmd
}

func (c *rootCommand) persistentFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (yaml, json or toml)")
	flags.StringVar(&c.backend, "backend", "", "session backend: chromedp or goja")
	flags.BoolVar(&c.headless, "headless", true, "run a launched Chrome without a window")
	flags.StringVar(&c.startURL, "start-url", "", "page to load before fetching; requests originate from it")
	flags.StringVar(&c.remoteURL, "remote-url", "", "DevTools websocket URL of a running browser to attach to")
	flags.DurationVar(&c.timeout, "timeout", 0, "script timeout (default from config, 30s)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	return flags
}

// loadConfig reads the config file and environment, then applies the flags
// the user set explicitly.
func (c *rootCommand) loadConfig(cmd *cobra.Command) (*app.Config, error) {
	cfg, err := app.LoadConfig(c.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Session.Backend = session.Backend(c.backend)
	}
	if flags.Changed("headless") {
		cfg.Session.Headless = c.headless
	}
	if flags.Changed("start-url") {
		cfg.Session.StartURL = c.startURL
	}
	if flags.Changed("remote-url") {
		cfg.Session.RemoteURL = c.remoteURL
	}
	if flags.Changed("timeout") {
		cfg.Session.ScriptTimeout = c.timeout
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *rootCommand) newApplication(cmd *cobra.Command) (*app.Application, error) {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return nil, ExitCode{error: err, Code: exitInvalid}
	}
	logger, err := logging.NewLogrusLogger(c.stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, ExitCode{error: err, Code: exitInvalid}
	}
	return app.NewApplication(cfg, logger), nil
}

// withSession runs fn on a fresh session and tears everything down after.
func (c *rootCommand) withSession(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application, id string) error) error {
	a, err := c.newApplication(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Shutdown(context.Background()) }()

	id, err := a.Sessions.Create()
	if err != nil {
		return err
	}
	return fn(cmd.Context(), a, id)
}

// exitCodeFor picks the process exit status for an error returned by a
// command.
func exitCodeFor(err error) int {
	var ec ExitCode
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ec):
		return ec.Code
	case errors.Is(err, fetchopts.ErrInvalidOption):
		return exitInvalid
	default:
		return exitFailure
	}
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := NewRootCommand(os.Stdout, os.Stderr)
	err := cmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errNoResponse) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitCodeFor(err)
}
