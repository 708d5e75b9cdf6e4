package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/raysh454/browserfetch/internal/logging"
)

// BackendConstructor builds a Session for the given config.
type BackendConstructor func(ctx context.Context, cfg Config, logger logging.Logger) (Session, error)

var (
	mu       sync.RWMutex
	registry = map[string]BackendConstructor{}
)

// RegisterBackend registers a named backend constructor. Names are
// lower-cased; registering an existing name replaces it.
func RegisterBackend(name string, ctor BackendConstructor) {
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = ctor
}

// New constructs a session with the configured backend. An empty backend
// means chromedp. ctx must outlive the session when the backend launches a
// browser process.
func New(ctx context.Context, cfg Config, logger logging.Logger) (Session, error) {
	backend := strings.ToLower(strings.TrimSpace(string(cfg.Backend)))
	if backend == "" {
		backend = string(BackendChromedp)
	}

	mu.RLock()
	ctor, ok := registry[backend]
	mu.RUnlock()
	if !ok || ctor == nil {
		return nil, fmt.Errorf("session backend %q not registered: available backends=%v", backend, ListBackends())
	}

	s, err := ctor(ctx, cfg, logging.OrNop(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to construct session backend %q: %w", backend, err)
	}
	if s == nil {
		return nil, errors.New("session constructor returned nil")
	}
	return s, nil
}

// ListBackends returns the registered backend names, sorted.
func ListBackends() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterBackend(string(BackendChromedp), func(ctx context.Context, cfg Config, logger logging.Logger) (Session, error) {
		return NewChromeSession(ctx, cfg, logger)
	})
	RegisterBackend(string(BackendGoja), func(_ context.Context, cfg Config, logger logging.Logger) (Session, error) {
		return NewScriptSession(cfg, logger)
	})
}
