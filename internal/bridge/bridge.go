package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/browserfetch/internal/fetchopts"
	"github.com/raysh454/browserfetch/internal/logging"
	"github.com/raysh454/browserfetch/internal/session"
)

// Fetch performs a fetch of url inside s and decodes what the browser saw.
//
// A nil Response with a nil error means the browser produced no response:
// the request failed on the page (network error, CORS, invalid URL) and the
// script reported null. Session failures are returned wrapped, and a result
// that is not a well-formed response is a *DecodeError.
//
// Fetch does no locking of its own; see session.Session.
func Fetch(ctx context.Context, s session.Session, url string, opts *fetchopts.Options) (*Response, error) {
	p, err := fetchopts.Normalize(url, opts)
	if err != nil {
		return nil, err
	}
	raw, err := s.ExecuteAsyncScript(ctx, fetchScript, p.URL, p.Options)
	if err != nil {
		return nil, fmt.Errorf("run fetch script: %w", err)
	}
	return decodeResponse(raw)
}

// Executor runs fetches with logging and remembers each session's user agent.
type Executor struct {
	logger logging.Logger
	agents *UserAgentCache
}

func NewExecutor(logger logging.Logger) *Executor {
	return &Executor{
		logger: logging.OrNop(logger).With(logging.F("component", "bridge")),
		agents: NewUserAgentCache(),
	}
}

func (e *Executor) Fetch(ctx context.Context, s session.Session, url string, opts *fetchopts.Options) (*Response, error) {
	start := time.Now()
	log := e.logger.With(logging.F("session", s.ID()), logging.F("url", url))
	log.Debug("fetch started")

	resp, err := Fetch(ctx, s, url, opts)
	elapsed := logging.F("elapsed", time.Since(start).String())
	switch {
	case errors.Is(err, ErrDecode):
		log.Warn("malformed fetch result", logging.Err(err), elapsed)
	case errors.Is(err, session.ErrScriptTimeout):
		log.Warn("fetch timed out", logging.Err(err), elapsed)
	case err != nil:
		log.Debug("fetch failed", logging.Err(err), elapsed)
	case resp == nil:
		log.Debug("no response", elapsed)
	default:
		log.Debug("fetch complete", logging.F("status", resp.Status.Code), elapsed)
	}
	return resp, err
}

// UserAgent returns the user agent of s, cached per session.
func (e *Executor) UserAgent(ctx context.Context, s session.Session) (string, error) {
	return e.agents.Lookup(ctx, s)
}

// Forget drops everything remembered about a session. Call it when the
// session closes.
func (e *Executor) Forget(sessionID string) {
	e.agents.Invalidate(sessionID)
}
