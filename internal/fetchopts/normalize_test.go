package fetchopts_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/raysh454/browserfetch/internal/fetchopts"
	"gopkg.in/guregu/null.v3"
)

func decodeWire(t *testing.T, text string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		t.Fatalf("options text is not JSON: %v (%s)", err, text)
	}
	return m
}

func TestNormalize_MapBodyBecomesJSON(t *testing.T) {
	t.Parallel()
	o, err := fetchopts.New(fetchopts.MethodPost, fetchopts.WithBody(map[string]any{"a": 1}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p, err := fetchopts.Normalize("https://example.com/api", o)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if p.URL != "https://example.com/api" {
		t.Errorf("url changed: %s", p.URL)
	}

	wire := decodeWire(t, p.Options)
	headers, _ := wire["headers"].(map[string]any)
	if headers["content-type"] != "application/json" {
		t.Errorf("expected content-type application/json, got %v", headers)
	}
	body, ok := wire["body"].(string)
	if !ok {
		t.Fatalf("body should be text, got %T", wire["body"])
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil || decoded["a"] != float64(1) {
		t.Errorf("body %q does not encode {\"a\": 1}", body)
	}

	if o.Body.(map[string]any)["a"] != 1 || len(o.Headers) != 0 {
		t.Errorf("caller's options were mutated: %+v", o)
	}
}

func TestNormalize_SliceAndStructBodies(t *testing.T) {
	t.Parallel()
	type payload struct {
		Name string `json:"name"`
	}
	for name, body := range map[string]any{
		"slice":  []any{1, "two", true},
		"struct": payload{Name: "x"},
		"ptr":    &payload{Name: "y"},
		"raw":    json.RawMessage(`{"pre":"encoded"}`),
	} {
		o, _ := fetchopts.New(fetchopts.MethodPut, fetchopts.WithBody(body))
		p, err := fetchopts.Normalize("/x", o)
		if err != nil {
			t.Fatalf("%s: Normalize: %v", name, err)
		}
		wire := decodeWire(t, p.Options)
		if _, ok := wire["body"].(string); !ok {
			t.Errorf("%s: body should be JSON text, got %T", name, wire["body"])
		}
		if wire["headers"].(map[string]any)["content-type"] != "application/json" {
			t.Errorf("%s: missing json content-type", name)
		}
	}
}

func TestNormalize_StringBodyUntouched(t *testing.T) {
	t.Parallel()
	o, _ := fetchopts.New(fetchopts.MethodPost,
		fetchopts.WithBody("a=1&b=2"),
		fetchopts.WithHeader("Content-Type", "application/x-www-form-urlencoded"),
	)
	p, err := fetchopts.Normalize("/form", o)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	wire := decodeWire(t, p.Options)
	if wire["body"] != "a=1&b=2" {
		t.Errorf("body changed: %v", wire["body"])
	}
	headers := wire["headers"].(map[string]any)
	if len(headers) != 1 || headers["Content-Type"] != "application/x-www-form-urlencoded" {
		t.Errorf("headers changed: %v", headers)
	}
}

func TestNormalize_SingleContentTypeRegardlessOfCase(t *testing.T) {
	t.Parallel()
	o, _ := fetchopts.New(fetchopts.MethodPost,
		fetchopts.WithHeader("Content-Type", "text/plain"),
		fetchopts.WithHeader("CONTENT-TYPE", "text/csv"),
		fetchopts.WithHeader("Accept", "*/*"),
		fetchopts.WithBody([]int{1, 2}),
	)
	p, err := fetchopts.Normalize("/x", o)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	headers := decodeWire(t, p.Options)["headers"].(map[string]any)

	count := 0
	for k := range headers {
		if strings.EqualFold(k, "content-type") {
			count++
		}
	}
	if count != 1 || headers["content-type"] != "application/json" || headers["Accept"] != "*/*" {
		t.Errorf("expected exactly one json content-type, got %v", headers)
	}
}

func TestNormalize_OmitsUnsetFields(t *testing.T) {
	t.Parallel()
	o := &fetchopts.Options{Method: fetchopts.MethodGet}
	p, err := fetchopts.Normalize("/x", o)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if p.Options != `{"method":"GET"}` {
		t.Errorf("expected only method, got %s", p.Options)
	}

	d, _ := fetchopts.New(fetchopts.MethodGet)
	p, _ = fetchopts.Normalize("/x", d)
	wire := decodeWire(t, p.Options)
	for _, key := range []string{"body", "credentials", "referrer", "referrerPolicy", "integrity", "keepalive", "headers"} {
		if _, ok := wire[key]; ok {
			t.Errorf("unset field %q present in %s", key, p.Options)
		}
	}
	for key, want := range map[string]string{"mode": "cors", "cache": "default", "redirect": "follow", "priority": "auto"} {
		if wire[key] != want {
			t.Errorf("%s = %v, want %s", key, wire[key], want)
		}
	}

	type payload struct {
		A int `json:"a"`
	}
	nilBodies := map[string]any{
		"nil pointer":     (*payload)(nil),
		"nil map":         map[string]any(nil),
		"nil slice":       []int(nil),
		"nil bytes":       []byte(nil),
		"nil raw message": json.RawMessage(nil),
	}
	for name, body := range nilBodies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			o := &fetchopts.Options{Method: fetchopts.MethodGet, Body: body}
			p, err := fetchopts.Normalize("/x", o)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if p.Options != `{"method":"GET"}` {
				t.Errorf("nil body should be omitted, got %s", p.Options)
			}
		})
	}
}

func TestNormalize_NilOptionsIsInvalid(t *testing.T) {
	t.Parallel()
	_, err := fetchopts.Normalize("/x", nil)
	if !errors.Is(err, fetchopts.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
}

func TestNormalize_KeepsExplicitFalsyValues(t *testing.T) {
	t.Parallel()
	o, _ := fetchopts.New(fetchopts.MethodPost,
		fetchopts.WithKeepalive(false),
		fetchopts.WithReferrerPolicy(""),
		fetchopts.WithBody(""),
	)
	p, err := fetchopts.Normalize("/x", o)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	wire := decodeWire(t, p.Options)
	if v, ok := wire["keepalive"]; !ok || v != false {
		t.Errorf("keepalive false should be kept: %s", p.Options)
	}
	if v, ok := wire["referrerPolicy"]; !ok || v != "" {
		t.Errorf("explicit empty referrerPolicy should be kept: %s", p.Options)
	}
	if v, ok := wire["body"]; !ok || v != "" {
		t.Errorf("explicit empty body should be kept: %s", p.Options)
	}
}

func TestNormalize_AllFieldsOnWire(t *testing.T) {
	t.Parallel()
	o := &fetchopts.Options{
		Method:         fetchopts.MethodDelete,
		Headers:        map[string]string{"x-a": "1"},
		Body:           "gone",
		Mode:           fetchopts.ModeSameOrigin,
		Credentials:    fetchopts.CredentialsInclude,
		Cache:          fetchopts.CacheNoStore,
		Redirect:       fetchopts.RedirectManual,
		Referrer:       "https://example.com/",
		ReferrerPolicy: null.StringFrom("origin"),
		Integrity:      null.StringFrom("sha256-abc"),
		Keepalive:      null.BoolFrom(true),
		Priority:       fetchopts.PriorityHigh,
	}
	p, err := fetchopts.Normalize("/x", o)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	var back fetchopts.Options
	if err := json.Unmarshal([]byte(p.Options), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Method != o.Method || back.Mode != o.Mode || back.Credentials != o.Credentials ||
		back.Cache != o.Cache || back.Redirect != o.Redirect || back.Referrer != o.Referrer ||
		back.ReferrerPolicy != o.ReferrerPolicy || back.Integrity != o.Integrity ||
		back.Keepalive != o.Keepalive || back.Priority != o.Priority ||
		back.Body != "gone" || back.Headers["x-a"] != "1" {
		t.Errorf("wire form lost information:\n got %+v\nwant %+v", back, o)
	}
}

func TestNormalize_RejectsInvalidAndUnencodable(t *testing.T) {
	t.Parallel()
	if _, err := fetchopts.Normalize("/x", &fetchopts.Options{Method: "CONNECT"}); !errors.Is(err, fetchopts.ErrInvalidOption) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := fetchopts.Normalize("/x", nil); err == nil {
		t.Error("expected error for nil options")
	}

	o, _ := fetchopts.New(fetchopts.MethodPost, fetchopts.WithBody(map[string]any{"ch": make(chan int)}))
	if _, err := fetchopts.Normalize("/x", o); !errors.Is(err, fetchopts.ErrBodyEncoding) {
		t.Errorf("expected ErrBodyEncoding, got %v", err)
	}
}

func TestNormalize_BytesBodyIsText(t *testing.T) {
	t.Parallel()
	o, _ := fetchopts.New(fetchopts.MethodPost, fetchopts.WithBody([]byte("raw bytes")))
	p, err := fetchopts.Normalize("/x", o)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	wire := decodeWire(t, p.Options)
	if wire["body"] != "raw bytes" {
		t.Errorf("expected text body, got %v", wire["body"])
	}
	if _, ok := wire["headers"]; ok {
		t.Errorf("no content-type should be injected for bytes: %s", p.Options)
	}
}
