package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/guregu/null.v3"
)

// ErrDecode is wrapped by every DecodeError.
var ErrDecode = errors.New("malformed fetch result")

// DecodeError is a script result that was neither null nor a well-formed
// response.
type DecodeError struct {
	Raw json.RawMessage
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %v", ErrDecode, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// Status is the HTTP status of a Response. Text is null when the browser
// reported no status text.
type Status struct {
	Code int         `json:"code"`
	Text null.String `json:"text"`
}

// Response is a fetch response as observed by the browser.
type Response struct {
	Headers map[string]string `json:"headers"`
	OK      bool              `json:"ok"`
	Status  Status            `json:"status"`
	Text    string            `json:"text"`
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal([]byte(r.Text), v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Document parses the response body as HTML.
func (r *Response) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(r.Text))
	if err != nil {
		return nil, fmt.Errorf("parse response body: %w", err)
	}
	return doc, nil
}

type wireStatus struct {
	Code json.RawMessage `json:"code"`
	Text null.String     `json:"text"`
}

type wireResponse struct {
	Headers *map[string]string `json:"headers"`
	OK      *bool              `json:"ok"`
	Status  *wireStatus        `json:"status"`
	Text    *string            `json:"text"`
}

// decodeResponse turns a callback value into a Response. A null or empty
// value means no response and yields (nil, nil).
func decodeResponse(raw json.RawMessage) (*Response, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	fail := func(err error) error {
		return &DecodeError{Raw: raw, Err: err}
	}

	var w wireResponse
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return nil, fail(err)
	}
	switch {
	case w.Headers == nil:
		return nil, fail(errors.New("missing headers"))
	case w.OK == nil:
		return nil, fail(errors.New("missing ok"))
	case w.Status == nil:
		return nil, fail(errors.New("missing status"))
	case w.Text == nil:
		return nil, fail(errors.New("missing text"))
	}
	code, err := statusCode(w.Status.Code)
	if err != nil {
		return nil, fail(err)
	}

	return &Response{
		Headers: *w.Headers,
		OK:      *w.OK,
		Status:  Status{Code: code, Text: w.Status.Text},
		Text:    *w.Text,
	}, nil
}

func statusCode(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("missing status code")
	}
	if raw[0] == '"' {
		return 0, fmt.Errorf("status code %s is not a number", raw)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("status code: %w", err)
	}
	code, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("status code %s is not an integer", n)
	}
	return int(code), nil
}
