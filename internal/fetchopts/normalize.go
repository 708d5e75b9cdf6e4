package fetchopts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

const (
	contentTypeHeader = "content-type"
	jsonContentType   = "application/json"
)

// Prepared is the exact pair handed across the bridge.
type Prepared struct {
	URL     string
	Options string
}

// Normalize validates opts and turns it into the serialized options text the
// in-browser script expects. Structured bodies are JSON-encoded and get a
// single content-type: application/json header. opts itself is not modified.
func Normalize(url string, opts *Options) (*Prepared, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: nil options", ErrInvalidOption)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	out := opts.Clone()
	if isNilBody(out.Body) {
		out.Body = nil
	}

	switch body := out.Body.(type) {
	case json.RawMessage:
		out.Body = string(body)
		setJSONContentType(out)
	case []byte:
		out.Body = string(body)
	default:
		if isStructured(body) {
			text, err := encodeJSON(body)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrBodyEncoding, err)
			}
			out.Body = text
			setJSONContentType(out)
		}
	}

	text, err := encodeJSON(out)
	if err != nil {
		return nil, fmt.Errorf("encode fetch options: %w", err)
	}
	return &Prepared{URL: url, Options: text}, nil
}

// setJSONContentType drops every casing of content-type before setting it, so
// exactly one entry reaches the browser.
func setJSONContentType(o *Options) {
	if o.Headers == nil {
		o.Headers = map[string]string{}
	}
	for k := range o.Headers {
		if strings.EqualFold(k, contentTypeHeader) {
			delete(o.Headers, k)
		}
	}
	o.Headers[contentTypeHeader] = jsonContentType
}

// isNilBody reports whether body holds no value, including typed nils such as
// a nil pointer, map or slice stored in the interface.
func isNilBody(body any) bool {
	if body == nil {
		return true
	}
	switch rv := reflect.ValueOf(body); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func isStructured(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Struct, reflect.Array:
		return true
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	}
	return false
}

// encodeJSON marshals without HTML escaping and without a trailing newline.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
