// Package session provides the script-execution facilities the fetch bridge
// runs on: a real Chrome driven over CDP, or an emulated browser context.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrScriptTimeout is returned when an asynchronous script does not invoke
	// its completion callback before the script timeout elapses.
	ErrScriptTimeout = errors.New("script timeout")

	// ErrClosed is returned by every call made after Close.
	ErrClosed = errors.New("session closed")
)

// Session is a live browser context that can run scripts.
//
// Calls are not serialized by the session; callers sharing one session across
// goroutines must do their own locking.
type Session interface {
	// ID identifies the session for its whole lifetime.
	ID() string

	// ExecuteScript runs script as a function body with args as its
	// arguments and returns the JSON encoding of its return value. An
	// undefined result is returned as nil.
	ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error)

	// ExecuteAsyncScript runs script as a function body with args followed by
	// a completion callback. It blocks until the callback fires and returns
	// the JSON encoding of the value passed to it, or fails with
	// ErrScriptTimeout.
	ExecuteAsyncScript(ctx context.Context, script string, args ...any) (json.RawMessage, error)

	// Close releases the browser context.
	Close() error
}

// ScriptError is a script that raised before completing.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script error: %s", e.Message)
}

// completion is the host-side handle for one asynchronous script. The first
// resolve wins; later ones are dropped.
type completion struct {
	once  sync.Once
	done  chan struct{}
	value json.RawMessage
}

func newCompletion() *completion {
	return &completion{done: make(chan struct{})}
}

func (c *completion) resolve(v json.RawMessage) {
	c.once.Do(func() {
		c.value = v
		close(c.done)
	})
}

// result returns the resolved value and whether resolve was ever called.
func (c *completion) result() (json.RawMessage, bool) {
	select {
	case <-c.done:
		return c.value, true
	default:
		return nil, false
	}
}

// encodeArgs renders args as a JSON array literal for injection into a script.
func encodeArgs(args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode script arguments: %w", err)
	}
	return string(b), nil
}

// timeoutOr maps an expired context to ErrScriptTimeout and passes
// cancellation through.
func timeoutOr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: callback not invoked in time", ErrScriptTimeout)
	}
	return ctx.Err()
}
