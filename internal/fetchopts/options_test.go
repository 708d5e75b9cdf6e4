package fetchopts_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/raysh454/browserfetch/internal/fetchopts"
)

func TestNew_AllEnumerationCombinations(t *testing.T) {
	t.Parallel()
	for _, m := range fetchopts.Methods {
		for _, mode := range fetchopts.Modes {
			for _, cred := range fetchopts.CredentialsValues {
				for _, cache := range fetchopts.Caches {
					for _, redir := range fetchopts.Redirects {
						for _, prio := range fetchopts.Priorities {
							_, err := fetchopts.New(m,
								fetchopts.WithMode(mode),
								fetchopts.WithCredentials(cred),
								fetchopts.WithCache(cache),
								fetchopts.WithRedirect(redir),
								fetchopts.WithPriority(prio),
							)
							if err != nil {
								t.Fatalf("New(%s, %s, %s, %s, %s, %s): %v", m, mode, cred, cache, redir, prio, err)
							}
						}
					}
				}
			}
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	o, err := fetchopts.New(fetchopts.MethodGet)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if o.Mode != fetchopts.ModeCORS || o.Cache != fetchopts.CacheDefault ||
		o.Redirect != fetchopts.RedirectFollow || o.Priority != fetchopts.PriorityAuto {
		t.Errorf("unexpected defaults: %+v", o)
	}
	if o.Credentials != "" || o.Referrer != "" || o.Keepalive.Valid || o.Integrity.Valid || o.ReferrerPolicy.Valid {
		t.Errorf("optional fields should start unset: %+v", o)
	}
}

func TestNew_RejectsOutOfSetValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		method fetchopts.Method
		opt    fetchopts.Option
		field  string
	}{
		{"method", "HEAD", nil, "method"},
		{"lowercase method", "get", nil, "method"},
		{"mode", fetchopts.MethodGet, fetchopts.WithMode("cross-origin"), "mode"},
		{"credentials", fetchopts.MethodGet, fetchopts.WithCredentials("always"), "credentials"},
		{"cache", fetchopts.MethodGet, fetchopts.WithCache("forever"), "cache"},
		{"redirect", fetchopts.MethodGet, fetchopts.WithRedirect("loop"), "redirect"},
		{"priority", fetchopts.MethodGet, fetchopts.WithPriority("urgent"), "priority"},
		{"referrer literal", fetchopts.MethodGet, fetchopts.WithReferrer("same-origin"), "referrer"},
		{"referrer scheme", fetchopts.MethodGet, fetchopts.WithReferrer("ftp://example.com/"), "referrer"},
		{"referrer relative", fetchopts.MethodGet, fetchopts.WithReferrer("/relative/path"), "referrer"},
		{"referrer no host", fetchopts.MethodGet, fetchopts.WithReferrer("https://"), "referrer"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var setters []fetchopts.Option
			if tt.opt != nil {
				setters = append(setters, tt.opt)
			}
			for i := 0; i < 2; i++ {
				o, err := fetchopts.New(tt.method, setters...)
				if err == nil {
					t.Fatalf("expected error, got %+v", o)
				}
				if !errors.Is(err, fetchopts.ErrInvalidOption) {
					t.Errorf("expected ErrInvalidOption, got %v", err)
				}
				var ve *fetchopts.ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.field {
					t.Errorf("expected ValidationError on %s, got %v", tt.field, err)
				}
			}
		})
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	t.Parallel()
	o := &fetchopts.Options{Method: "TRACE", Mode: "x", Cache: "y"}
	err := o.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"method", "mode", "cache"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidate_AcceptsReferrers(t *testing.T) {
	t.Parallel()
	for _, r := range []fetchopts.Referrer{
		fetchopts.ReferrerNone,
		fetchopts.ReferrerClient,
		"https://example.com/page?q=1",
		"http://127.0.0.1:8080/",
		"http://[::1]/",
		"https://bücher.example/",
	} {
		if _, err := fetchopts.New(fetchopts.MethodGet, fetchopts.WithReferrer(r)); err != nil {
			t.Errorf("referrer %q rejected: %v", r, err)
		}
	}
}

func TestParseMethod(t *testing.T) {
	t.Parallel()
	m, err := fetchopts.ParseMethod(" patch ")
	if err != nil || m != fetchopts.MethodPatch {
		t.Fatalf("ParseMethod: %v, %v", m, err)
	}
	if _, err := fetchopts.ParseMethod("OPTIONS"); !errors.Is(err, fetchopts.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	t.Parallel()
	o, _ := fetchopts.New(fetchopts.MethodGet, fetchopts.WithHeader("accept", "text/html"))
	c := o.Clone()
	c.Headers["accept"] = "application/json"
	c.Headers["x-extra"] = "1"

	if o.Headers["accept"] != "text/html" || len(o.Headers) != 1 {
		t.Errorf("original mutated through clone: %v", o.Headers)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	o, err := fetchopts.Parse([]byte(`{"method":"post","headers":{"x-a":"1"},"body":{"n":12345678901234567890},"keepalive":false}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if o.Method != fetchopts.MethodPost || o.Mode != fetchopts.ModeCORS || o.Headers["x-a"] != "1" {
		t.Fatalf("unexpected options: %+v", o)
	}
	if !o.Keepalive.Valid || o.Keepalive.Bool {
		t.Fatalf("keepalive should be explicitly false, got %+v", o.Keepalive)
	}
	p, err := fetchopts.Normalize("https://x", o)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !strings.Contains(p.Options, `12345678901234567890`) {
		t.Fatalf("large number lost precision: %s", p.Options)
	}

	o, err = fetchopts.Parse([]byte(`{}`))
	if err != nil || o.Method != fetchopts.MethodGet {
		t.Fatalf("empty object should default to GET, got %+v, %v", o, err)
	}

	for _, bad := range []string{`{"method":"TRACE"}`, `{"mode":"bogus"}`, `{"nope":1}`, `not json`} {
		if _, err := fetchopts.Parse([]byte(bad)); !errors.Is(err, fetchopts.ErrInvalidOption) {
			t.Errorf("Parse(%s) = %v, want ErrInvalidOption", bad, err)
		}
	}
}
