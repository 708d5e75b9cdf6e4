package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/raysh454/browserfetch/internal/app"
	"github.com/raysh454/browserfetch/internal/bridge"
	"github.com/raysh454/browserfetch/internal/fetchopts"
)

type fetchFlags struct {
	method         string
	headers        []string
	data           string
	jsonBody       string
	mode           string
	credentials    string
	cache          string
	redirect       string
	referrer       string
	referrerPolicy string
	integrity      string
	priority       string
	keepalive      bool
	include        bool
	dump           bool
}

func (c *rootCommand) fetchCmd() *cobra.Command {
	f := &fetchFlags{}
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Fetch a URL from inside the browser and print the response body",
		Long: `Fetch a URL with the browser's fetch API. The body is printed to stdout.
Exits with status 2 when the browser produced no response (network error,
CORS rejection, blocked redirect).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(cmd.Flags())
			if err != nil {
				return ExitCode{error: err, Code: exitInvalid}
			}
			return c.withSession(cmd, func(ctx context.Context, a *app.Application, id string) error {
				resp, err := a.Sessions.Fetch(ctx, id, args[0], opts)
				if err != nil {
					return err
				}
				if resp == nil {
					fmt.Fprintln(c.stderr, "no response: the browser could not complete the request")
					return errNoResponse
				}
				return f.print(c, resp)
			})
		},
		Example: `  browserfetch fetch https://example.com/
  browserfetch fetch https://example.com/api -X POST -H x-token=abc --json '{"q":"x"}'
  browserfetch fetch https://example.com/ --redirect manual --include`,
	}

	f.register(cmd.Flags())
	cmd.MarkFlagsMutuallyExclusive("data", "json")
	cmd.MarkFlagsMutuallyExclusive("include", "dump")

	return cmd
}

func (f *fetchFlags) register(flags *pflag.FlagSet) {
	flags.StringVarP(&f.method, "request", "X", "GET", "request method: "+joinEnum(fetchopts.Methods)+"; POST when a body is given")
	flags.StringArrayVarP(&f.headers, "header", "H", nil, "request header as name=value (repeatable)")
	flags.StringVarP(&f.data, "data", "d", "", "request body, sent as is")
	flags.StringVar(&f.jsonBody, "json", "", "JSON request body; sets content-type: application/json")
	flags.StringVar(&f.mode, "mode", "", "request mode: "+joinEnum(fetchopts.Modes))
	flags.StringVar(&f.credentials, "credentials", "", "credentials: "+joinEnum(fetchopts.CredentialsValues))
	flags.StringVar(&f.cache, "cache", "", "cache mode: "+joinEnum(fetchopts.Caches))
	flags.StringVar(&f.redirect, "redirect", "", "redirect mode: "+joinEnum(fetchopts.Redirects))
	flags.StringVar(&f.referrer, "referrer", "", "no-referrer, client or an absolute URL")
	flags.StringVar(&f.referrerPolicy, "referrer-policy", "", "referrer policy")
	flags.StringVar(&f.integrity, "integrity", "", "subresource integrity value")
	flags.StringVar(&f.priority, "priority", "", "priority: "+joinEnum(fetchopts.Priorities))
	flags.BoolVar(&f.keepalive, "keepalive", false, "allow the request to outlive the page")
	flags.BoolVarP(&f.include, "include", "i", false, "print status line and headers before the body")
	flags.BoolVar(&f.dump, "dump", false, "print the whole response as JSON")
}

func joinEnum[T ~string](set []T) string {
	out := make([]string, len(set))
	for i, v := range set {
		out[i] = string(v)
	}
	return strings.Join(out, "|")
}

// options builds validated fetch options from the flags. Optional fields
// stay unset unless their flag was given.
func (f *fetchFlags) options(flags *pflag.FlagSet) (*fetchopts.Options, error) {
	m := f.method
	if !flags.Changed("request") && (flags.Changed("data") || flags.Changed("json")) {
		m = string(fetchopts.MethodPost)
	}
	method, err := fetchopts.ParseMethod(m)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(f.headers))
	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: header %q must be name=value", fetchopts.ErrInvalidOption, h)
		}
		headers[name] = value
	}

	setters := []fetchopts.Option{fetchopts.WithHeaders(headers)}
	switch {
	case flags.Changed("json"):
		if !json.Valid([]byte(f.jsonBody)) {
			return nil, fmt.Errorf("%w: --json body is not valid JSON", fetchopts.ErrInvalidOption)
		}
		setters = append(setters, fetchopts.WithBody(json.RawMessage(f.jsonBody)))
	case flags.Changed("data"):
		setters = append(setters, fetchopts.WithBody(f.data))
	}
	if f.mode != "" {
		setters = append(setters, fetchopts.WithMode(fetchopts.Mode(f.mode)))
	}
	if f.credentials != "" {
		setters = append(setters, fetchopts.WithCredentials(fetchopts.Credentials(f.credentials)))
	}
	if f.cache != "" {
		setters = append(setters, fetchopts.WithCache(fetchopts.Cache(f.cache)))
	}
	if f.redirect != "" {
		setters = append(setters, fetchopts.WithRedirect(fetchopts.Redirect(f.redirect)))
	}
	if f.referrer != "" {
		setters = append(setters, fetchopts.WithReferrer(fetchopts.Referrer(f.referrer)))
	}
	if f.priority != "" {
		setters = append(setters, fetchopts.WithPriority(fetchopts.Priority(f.priority)))
	}
	if flags.Changed("referrer-policy") {
		setters = append(setters, fetchopts.WithReferrerPolicy(f.referrerPolicy))
	}
	if flags.Changed("integrity") {
		setters = append(setters, fetchopts.WithIntegrity(f.integrity))
	}
	if flags.Changed("keepalive") {
		setters = append(setters, fetchopts.WithKeepalive(f.keepalive))
	}
	return fetchopts.New(method, setters...)
}

func (f *fetchFlags) print(c *rootCommand, resp *bridge.Response) error {
	if f.dump {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	if f.include {
		fmt.Fprintf(c.stdout, "%d %s\n", resp.Status.Code, resp.Status.Text.String)
		names := make([]string, 0, len(resp.Headers))
		for name := range resp.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(c.stdout, "%s: %s\n", name, resp.Headers[name])
		}
		fmt.Fprintln(c.stdout)
	}
	_, err := fmt.Fprint(c.stdout, resp.Text)
	return err
}
