package session_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raysh454/browserfetch/internal/session"
	"github.com/raysh454/browserfetch/internal/testutil"
)

// newChromeSession starts a headless Chrome, skipping the test where none
// can be launched.
func newChromeSession(t *testing.T, cfg session.Config) *session.ChromeSession {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping chromedp test in short mode")
	}
	cfg.Headless = true
	s, err := session.NewChromeSession(context.Background(), cfg, &testutil.DummyLogger{})
	if err != nil {
		t.Skipf("Skipping chromedp test (environment does not support chromedp): %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestChromeSession_ExecuteScript(t *testing.T) {
	t.Parallel()
	s := newChromeSession(t, session.Config{UserAgent: "chrome-test/1"})

	raw, err := s.ExecuteScript(context.Background(), "return navigator.userAgent")
	if err != nil {
		t.Fatalf("ExecuteScript: %v", err)
	}
	if string(raw) != `"chrome-test/1"` {
		t.Errorf("unexpected user agent %s", raw)
	}
}

func TestChromeSession_AsyncFetch(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "from chrome")
	}))
	defer ts.Close()

	s := newChromeSession(t, session.Config{StartURL: ts.URL})
	raw, err := s.ExecuteAsyncScript(context.Background(), `
		var cb = arguments[arguments.length - 1];
		fetch(arguments[0]).then(function (r) { return r.text(); }).then(cb, function () { cb(null); });
	`, ts.URL)
	if err != nil {
		t.Fatalf("ExecuteAsyncScript: %v", err)
	}
	if string(raw) != `"from chrome"` {
		t.Errorf("unexpected body %s", raw)
	}
}

func TestChromeSession_CallbackNeverFiredTimesOut(t *testing.T) {
	t.Parallel()
	s := newChromeSession(t, session.Config{ScriptTimeout: 200 * time.Millisecond})

	_, err := s.ExecuteAsyncScript(context.Background(), `var unused = arguments[0];`)
	if !errors.Is(err, session.ErrScriptTimeout) {
		t.Fatalf("expected ErrScriptTimeout, got %v", err)
	}
}

func TestChromeSession_ClosedSessionFails(t *testing.T) {
	t.Parallel()
	s := newChromeSession(t, session.Config{})
	_ = s.Close()
	if _, err := s.ExecuteScript(context.Background(), "return 1"); !errors.Is(err, session.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
