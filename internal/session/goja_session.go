package session

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/raysh454/browserfetch/internal/logging"
)

//go:embed js/polyfill.js
var polyfillSource string

const (
	defaultEmulatedUserAgent = "Mozilla/5.0 (compatible; browserfetch-goja)"
	maxRedirects             = 20
)

type redirectModeKey struct{}

// ScriptSession is an emulated browser context: a goja runtime with a fetch
// that goes out through resty. It has no DOM and no CORS; it exists so the
// in-browser scripts can run where no Chrome is available.
type ScriptSession struct {
	id     string
	cfg    Config
	logger logging.Logger
	client *resty.Client
	base   *url.URL

	// goja runtimes are not goroutine-safe; mu serializes script calls.
	mu      sync.Mutex
	vm      *goja.Runtime
	callCtx context.Context
	pending *completion
	closed  bool
}

// NewScriptSession builds an emulated session. ctx is unused; the runtime
// holds no background resources.
func NewScriptSession(cfg Config, logger logging.Logger) (*ScriptSession, error) {
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = DefaultConfig().ScriptTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultEmulatedUserAgent
	}

	s := &ScriptSession{
		id:  uuid.NewString(),
		cfg: cfg,
	}
	s.logger = logging.OrNop(logger).With(
		logging.F("backend", string(BackendGoja)),
		logging.F("session_id", s.id),
	)

	if cfg.StartURL != "" {
		base, err := url.Parse(cfg.StartURL)
		if err != nil {
			return nil, fmt.Errorf("goja session: parse start url: %w", err)
		}
		s.base = base
	}

	s.client = resty.New().
		SetHeader("User-Agent", ua).
		SetRedirectPolicy(resty.RedirectPolicyFunc(checkRedirect)).
		SetLogger(restyLogger{s.logger})

	vm := goja.New()
	if err := vm.Set("__userAgent", ua); err != nil {
		return nil, fmt.Errorf("goja session: %w", err)
	}
	if err := vm.Set("__hostFetch", s.hostFetch); err != nil {
		return nil, fmt.Errorf("goja session: %w", err)
	}
	if err := vm.Set("__complete", s.complete); err != nil {
		return nil, fmt.Errorf("goja session: %w", err)
	}
	if _, err := vm.RunString(polyfillSource); err != nil {
		return nil, fmt.Errorf("goja session: install polyfill: %w", err)
	}
	s.vm = vm

	s.logger.Info("goja session started", logging.F("start_url", cfg.StartURL))
	return s, nil
}

func (s *ScriptSession) ID() string { return s.id }

func (s *ScriptSession) ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	argv, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScriptTimeout)
	defer cancel()

	var raw json.RawMessage
	err = s.runLocked(ctx, argv, func(args string) string {
		return fmt.Sprintf("JSON.stringify((function(){\n%s\n}).apply(globalThis, %s))", script, args)
	}, func(v goja.Value) {
		if v != nil && !goja.IsUndefined(v) {
			raw = json.RawMessage(v.String())
		}
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// ExecuteAsyncScript runs script with a trailing callback argument. Promise
// jobs are drained before RunString returns, so a callback that has not
// fired by then never will: that is reported as ErrScriptTimeout right away
// rather than after waiting out the timeout.
func (s *ScriptSession) ExecuteAsyncScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	argv, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScriptTimeout)
	defer cancel()

	c := newCompletion()
	s.pending = c
	defer func() { s.pending = nil }()

	err = s.runLocked(ctx, argv, func(args string) string {
		return fmt.Sprintf(
			"(function(){\n%s\n}).apply(globalThis, %s.concat([function(v){ __complete(v === undefined ? 'null' : JSON.stringify(v)); }]))",
			script, args)
	}, nil)
	if err != nil {
		return nil, err
	}

	raw, ok := c.result()
	if !ok {
		return nil, fmt.Errorf("%w: callback never invoked", ErrScriptTimeout)
	}
	return raw, nil
}

// runLocked evaluates the wrapped script with an interrupt armed on ctx.
func (s *ScriptSession) runLocked(ctx context.Context, argv string, wrap func(args string) string, onValue func(goja.Value)) error {
	s.callCtx = ctx
	defer func() { s.callCtx = nil }()

	stop := s.watch(ctx)
	v, err := s.vm.RunString(wrap(argv))
	stop()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) || ctx.Err() != nil {
		return timeoutOr(ctx)
	}
	if err != nil {
		return &ScriptError{Message: err.Error()}
	}
	if onValue != nil {
		onValue(v)
	}
	return nil
}

// watch interrupts the runtime when ctx ends. The returned stop waits for the
// watcher to exit before clearing any interrupt, so nothing leaks into the
// next call.
func (s *ScriptSession) watch(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			s.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		s.vm.ClearInterrupt()
	}
}

func (s *ScriptSession) complete(v string) {
	if s.pending != nil {
		s.pending.resolve(json.RawMessage(v))
	}
}

type hostRequest struct {
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	Body     *string           `json:"body"`
	Redirect string            `json:"redirect"`
}

type hostResponse struct {
	Status     int         `json:"status"`
	StatusText string      `json:"statusText"`
	Headers    [][2]string `json:"headers"`
	Body       string      `json:"body"`
	URL        string      `json:"url"`
	Redirected bool        `json:"redirected"`
	Type       string      `json:"type"`
}

// hostFetch performs the network half of the polyfilled fetch. A returned
// error surfaces in the script as a thrown exception, which rejects the
// fetch promise the way a network error does in a browser.
func (s *ScriptSession) hostFetch(rawURL, wire string) (string, error) {
	var in hostRequest
	if err := json.Unmarshal([]byte(wire), &in); err != nil {
		return "", fmt.Errorf("TypeError: bad fetch options: %w", err)
	}

	if in.Body != nil && (in.Method == http.MethodGet || in.Method == http.MethodHead) {
		return "", errors.New("TypeError: Request with GET/HEAD method cannot have body")
	}

	target, err := s.resolve(rawURL)
	if err != nil {
		return "", err
	}

	ctx := s.callCtx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, redirectModeKey{}, in.Redirect)

	req := s.client.R().SetContext(ctx).SetHeaders(in.Headers)
	if in.Body != nil {
		req.SetBody(*in.Body)
	}

	s.logger.Debug("emulated fetch",
		logging.F("method", in.Method),
		logging.F("url", target))

	resp, err := req.Execute(in.Method, target)
	if err != nil {
		return "", fmt.Errorf("TypeError: Failed to fetch: %w", err)
	}

	out := hostResponse{
		Status:     resp.StatusCode(),
		StatusText: strings.TrimPrefix(resp.Status(), strconv.Itoa(resp.StatusCode())+" "),
		Headers:    flattenHeaders(resp.Header()),
		Body:       resp.String(),
		URL:        target,
		Type:       "basic",
	}
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		out.URL = resp.RawResponse.Request.URL.String()
		out.Redirected = out.URL != target
	}
	if in.Redirect == "manual" && resp.StatusCode() >= 300 && resp.StatusCode() < 400 {
		out = hostResponse{Type: "opaqueredirect", URL: target, Headers: [][2]string{}}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *ScriptSession) resolve(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("TypeError: Failed to parse URL from %s", rawURL)
	}
	if !u.IsAbs() {
		if s.base == nil {
			return "", fmt.Errorf("TypeError: Failed to parse URL from %s", rawURL)
		}
		u = s.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("TypeError: URL scheme %q is not supported", u.Scheme)
	}
	return u.String(), nil
}

// checkRedirect applies the request's fetch redirect mode.
func checkRedirect(req *http.Request, via []*http.Request) error {
	mode, _ := req.Context().Value(redirectModeKey{}).(string)
	switch mode {
	case "manual":
		return http.ErrUseLastResponse
	case "error":
		return errors.New("redirect mode is set to error")
	}
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

// flattenHeaders mirrors Headers iteration: lower-cased names, sorted,
// repeated values joined with ", ".
func flattenHeaders(h http.Header) [][2]string {
	out := make([][2]string, 0, len(h))
	for k, vs := range h {
		out = append(out, [2]string{strings.ToLower(k), strings.Join(vs, ", ")})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func (s *ScriptSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("goja session closed")
	return nil
}

// restyLogger routes resty's own diagnostics through the session logger.
type restyLogger struct {
	l logging.Logger
}

func (r restyLogger) Errorf(format string, v ...any) { r.l.Error(fmt.Sprintf(format, v...)) }
func (r restyLogger) Warnf(format string, v ...any)  { r.l.Warn(fmt.Sprintf(format, v...)) }
func (r restyLogger) Debugf(format string, v ...any) { r.l.Debug(fmt.Sprintf(format, v...)) }
