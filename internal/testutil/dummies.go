// Package testutil provides shared test doubles for use across package tests.
// The dummies satisfy the production interfaces structurally, so they can be
// injected without real browsers or side effects.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/raysh454/browserfetch/internal/logging"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string

	// Fields holds the fields of every call, keyed by message.
	Fields map[string][]logging.Field
}

func (l *DummyLogger) record(msg string, fields []logging.Field) {
	if l.Fields == nil {
		l.Fields = map[string][]logging.Field{}
	}
	l.Fields[msg] = append(l.Fields[msg], fields...)
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
	l.record(msg, fields)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
	l.record(msg, fields)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
	l.record(msg, fields)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
	l.record(msg, fields)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// FieldsFor returns the fields logged with msg.
func (l *DummyLogger) FieldsFor(msg string) []logging.Field {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logging.Field(nil), l.Fields[msg]...)
}

// WarnCount returns how many warnings were logged.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── Session ───────────────────────────────────────────────────────────

// ScriptCall records one script invocation.
type ScriptCall struct {
	Script string
	Args   []any
}

// FakeSession implements session.Session with canned results.
// AsyncFunc, when set, takes precedence over AsyncResult/AsyncErr.
type FakeSession struct {
	SessionID string

	SyncResult json.RawMessage
	SyncErr    error

	AsyncResult json.RawMessage
	AsyncErr    error
	AsyncFunc   func(script string, args []any) (json.RawMessage, error)

	mu         sync.Mutex
	SyncCalls  []ScriptCall
	AsyncCalls []ScriptCall
	closed     bool
}

var errFakeClosed = errors.New("fake session closed")

func (f *FakeSession) ID() string {
	if f.SessionID == "" {
		return "fake-session"
	}
	return f.SessionID
}

func (f *FakeSession) ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errFakeClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.SyncCalls = append(f.SyncCalls, ScriptCall{Script: script, Args: args})
	return f.SyncResult, f.SyncErr
}

func (f *FakeSession) ExecuteAsyncScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, errFakeClosed
	}
	if err := ctx.Err(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.AsyncCalls = append(f.AsyncCalls, ScriptCall{Script: script, Args: args})
	fn := f.AsyncFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(script, args)
	}
	return f.AsyncResult, f.AsyncErr
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Calls returns copies of the recorded sync and async calls.
func (f *FakeSession) Calls() (syncCalls, asyncCalls []ScriptCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ScriptCall(nil), f.SyncCalls...), append([]ScriptCall(nil), f.AsyncCalls...)
}
