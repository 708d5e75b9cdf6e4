package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/raysh454/browserfetch/internal/logging"
)

// ChromeSession runs scripts in a Chrome tab over the DevTools protocol.
type ChromeSession struct {
	id     string
	cfg    Config
	logger logging.Logger

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewChromeSession launches Chrome (or attaches to cfg.RemoteURL) and opens a
// tab. The session lives until Close or until ctx is cancelled.
func NewChromeSession(ctx context.Context, cfg Config, logger logging.Logger) (*ChromeSession, error) {
	if ctx == nil {
		return nil, errors.New("chromedp session: context is required")
	}
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = DefaultConfig().ScriptTimeout
	}

	id := uuid.NewString()
	logger = logging.OrNop(logger).With(
		logging.F("backend", string(BackendChromedp)),
		logging.F("session_id", id),
	)

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("mute-audio", true),
		)
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		if cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
		}
		for name, value := range cfg.Flags {
			opts = append(opts, chromedp.Flag(name, value))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	logf := func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logf), chromedp.WithErrorf(logf))

	// Prime the browser process.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp session: start: %w", err)
	}

	if cfg.StartURL != "" {
		navCtx, navCancel := context.WithTimeout(tabCtx, cfg.ScriptTimeout)
		err := chromedp.Run(navCtx, chromedp.Navigate(cfg.StartURL))
		navCancel()
		if err != nil {
			cancel()
			allocCancel()
			return nil, fmt.Errorf("chromedp session: navigate to %s: %w", cfg.StartURL, err)
		}
	}

	logger.Info("chromedp session started",
		logging.F("remote", cfg.RemoteURL != ""),
		logging.F("start_url", cfg.StartURL))

	return &ChromeSession{
		id:          id,
		cfg:         cfg,
		logger:      logger,
		allocCancel: allocCancel,
		ctx:         tabCtx,
		cancel:      cancel,
	}, nil
}

func (s *ChromeSession) ID() string { return s.id }

// Navigate loads url in the session's tab.
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *ChromeSession) ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	argv, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf("(function(){\n%s\n}).apply(globalThis, %s)", script, argv)
	return s.evaluate(ctx, expr, false)
}

// ExecuteAsyncScript turns the completion callback into a Promise resolver
// and has Chrome await it, so the callback's first invocation is the result.
func (s *ChromeSession) ExecuteAsyncScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	argv, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf(
		"new Promise(function(__done){(function(){\n%s\n}).apply(globalThis, %s.concat([__done]));})",
		script, argv)
	return s.evaluate(ctx, expr, true)
}

func (s *ChromeSession) evaluate(ctx context.Context, expr string, await bool) (json.RawMessage, error) {
	var raw []byte
	opts := []chromedp.EvaluateOption{}
	if await {
		opts = append(opts, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		})
	}
	if err := s.run(ctx, chromedp.Evaluate(expr, &raw, opts...)); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// run executes action on the tab, bounded by the script timeout and by the
// caller's ctx.
func (s *ChromeSession) run(ctx context.Context, action chromedp.Action) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.ScriptTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	err := chromedp.Run(runCtx, action)
	s.logger.Debug("cdp action finished",
		logging.F("elapsed", time.Since(start).String()),
		logging.Err(err))
	if err == nil {
		return nil
	}

	var exc *runtime.ExceptionDetails
	if errors.As(err, &exc) {
		return &ScriptError{Message: exc.Error()}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if runCtx.Err() != nil {
		return timeoutOr(runCtx)
	}
	return fmt.Errorf("cdp: %w", err)
}

// Close closes the tab and, for launched browsers, the browser process.
func (s *ChromeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	s.allocCancel()
	s.logger.Info("chromedp session closed")
	return nil
}
