package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/raysh454/browserfetch/internal/bridge"
	"github.com/raysh454/browserfetch/internal/fetchopts"
	"github.com/raysh454/browserfetch/internal/logging"
	"github.com/raysh454/browserfetch/internal/session"
)

// ErrSessionNotFound is returned for IDs the manager does not hold.
var ErrSessionNotFound = errors.New("session not found")

type managedSession struct {
	// mu serializes every bridge call on the session.
	mu sync.Mutex
	s  session.Session
}

// Manager owns the live browser sessions and routes fetches to them.
type Manager struct {
	cfg    session.Config
	exec   *bridge.Executor
	logger logging.Logger

	// ctx parents every session; it is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*managedSession
}

func NewManager(cfg session.Config, exec *bridge.Executor, logger logging.Logger) *Manager {
	logger = logging.OrNop(logger)
	if exec == nil {
		exec = bridge.NewExecutor(logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		exec:     exec,
		logger:   logger.With(logging.F("component", "manager")),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*managedSession),
	}
}

// Create starts a session and returns its ID.
func (m *Manager) Create() (string, error) {
	if err := m.ctx.Err(); err != nil {
		return "", fmt.Errorf("manager closed: %w", err)
	}
	s, err := session.New(m.ctx, m.cfg, m.logger)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		_ = s.Close()
		return "", fmt.Errorf("manager closed: %w", m.ctx.Err())
	}
	m.sessions[s.ID()] = &managedSession{s: s}
	m.mu.Unlock()

	m.logger.Info("session created", logging.F("session_id", s.ID()), logging.F("backend", string(m.cfg.Backend)))
	return s.ID(), nil
}

// List returns the IDs of the open sessions, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether session id is open.
func (m *Manager) Has(id string) bool {
	_, err := m.get(id)
	return err == nil
}

func (m *Manager) get(id string) (*managedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return ms, nil
}

// Fetch runs a fetch in the session id. Calls on one session run one at a
// time; different sessions proceed in parallel. See bridge.Fetch for the
// meaning of a nil response.
func (m *Manager) Fetch(ctx context.Context, id, url string, opts *fetchopts.Options) (*bridge.Response, error) {
	ms, err := m.get(id)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return m.exec.Fetch(ctx, ms.s, url, opts)
}

// UserAgent returns the user agent of session id.
func (m *Manager) UserAgent(ctx context.Context, id string) (string, error) {
	ms, err := m.get(id)
	if err != nil {
		return "", err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return m.exec.UserAgent(ctx, ms.s)
}

// CloseSession closes session id and forgets its cached user agent. It waits
// for an in-flight call on the session to finish.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return m.closeOne(id, ms)
}

func (m *Manager) closeOne(id string, ms *managedSession) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	m.exec.Forget(id)
	if err := ms.s.Close(); err != nil {
		m.logger.Warn("closing session", logging.F("session_id", id), logging.Err(err))
		return fmt.Errorf("closing session %s: %w", id, err)
	}
	m.logger.Info("session closed", logging.F("session_id", id))
	return nil
}

// Close closes every session and refuses new ones.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.cancel()
	sessions := m.sessions
	m.sessions = make(map[string]*managedSession)
	m.mu.Unlock()

	var errs *multierror.Error
	for id, ms := range sessions {
		if err := m.closeOne(id, ms); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
