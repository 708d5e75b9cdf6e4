// Package fetchopts describes a single browser fetch: the validated request
// options and their normalization into the text handed to the in-browser
// script.
package fetchopts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/net/idna"
	"gopkg.in/guregu/null.v3"
)

// Options is the full set of options for one fetch call. The JSON form is the
// wire shape read by the in-browser script: unset fields are dropped entirely
// so the browser applies its own defaults for them.
type Options struct {
	Method         Method            `json:"method"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           any               `json:"body,omitempty"`
	Mode           Mode              `json:"mode,omitempty"`
	Credentials    Credentials       `json:"credentials,omitempty"`
	Cache          Cache             `json:"cache,omitempty"`
	Redirect       Redirect          `json:"redirect,omitempty"`
	Referrer       Referrer          `json:"referrer,omitempty"`
	ReferrerPolicy null.String       `json:"referrerPolicy,omitzero"`
	Integrity      null.String       `json:"integrity,omitzero"`
	Keepalive      null.Bool         `json:"keepalive,omitzero"`
	Priority       Priority          `json:"priority,omitempty"`
}

// Option mutates Options during New.
type Option func(*Options)

// New builds validated Options for method. Mode, cache, redirect and priority
// start at cors, default, follow and auto; everything else starts unset.
func New(method Method, setters ...Option) (*Options, error) {
	o := &Options{Method: method}
	o.ApplyDefaults()
	for _, set := range setters {
		set(o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Parse decodes options from their JSON wire shape. Unknown keys are
// rejected, a missing method means GET, and the result is defaulted and
// validated exactly as New does.
func Parse(data []byte) (*Options, error) {
	o := &Options{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(o); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}
	if o.Method == "" {
		o.Method = MethodGet
	}
	o.ApplyDefaults()
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// ApplyDefaults fills the defaulted enumerations that are still empty.
func (o *Options) ApplyDefaults() {
	if o.Headers == nil {
		o.Headers = map[string]string{}
	}
	if o.Mode == "" {
		o.Mode = ModeCORS
	}
	if o.Cache == "" {
		o.Cache = CacheDefault
	}
	if o.Redirect == "" {
		o.Redirect = RedirectFollow
	}
	if o.Priority == "" {
		o.Priority = PriorityAuto
	}
}

func WithHeader(name, value string) Option {
	return func(o *Options) {
		if o.Headers == nil {
			o.Headers = map[string]string{}
		}
		o.Headers[name] = value
	}
}

func WithHeaders(h map[string]string) Option {
	return func(o *Options) {
		for k, v := range h {
			WithHeader(k, v)(o)
		}
	}
}

// WithBody sets the body. Maps, slices and structs are sent as JSON; strings
// and other scalars are handed to fetch as they are.
func WithBody(body any) Option {
	return func(o *Options) { o.Body = body }
}

func WithMode(m Mode) Option               { return func(o *Options) { o.Mode = m } }
func WithCredentials(c Credentials) Option { return func(o *Options) { o.Credentials = c } }
func WithCache(c Cache) Option             { return func(o *Options) { o.Cache = c } }
func WithRedirect(r Redirect) Option       { return func(o *Options) { o.Redirect = r } }
func WithReferrer(r Referrer) Option       { return func(o *Options) { o.Referrer = r } }
func WithPriority(p Priority) Option       { return func(o *Options) { o.Priority = p } }

func WithReferrerPolicy(policy string) Option {
	return func(o *Options) { o.ReferrerPolicy = null.StringFrom(policy) }
}

func WithIntegrity(integrity string) Option {
	return func(o *Options) { o.Integrity = null.StringFrom(integrity) }
}

func WithKeepalive(keepalive bool) Option {
	return func(o *Options) { o.Keepalive = null.BoolFrom(keepalive) }
}

// Validate reports every field outside its allowed set. Empty enumerations
// are unset and therefore valid; the method is required.
func (o *Options) Validate() error {
	var errs *multierror.Error

	if !o.Method.Valid() {
		errs = multierror.Append(errs, invalid("method", string(o.Method), enumStrings(Methods)))
	}
	if o.Mode != "" && !o.Mode.Valid() {
		errs = multierror.Append(errs, invalid("mode", string(o.Mode), enumStrings(Modes)))
	}
	if o.Credentials != "" && !o.Credentials.Valid() {
		errs = multierror.Append(errs, invalid("credentials", string(o.Credentials), enumStrings(CredentialsValues)))
	}
	if o.Cache != "" && !o.Cache.Valid() {
		errs = multierror.Append(errs, invalid("cache", string(o.Cache), enumStrings(Caches)))
	}
	if o.Redirect != "" && !o.Redirect.Valid() {
		errs = multierror.Append(errs, invalid("redirect", string(o.Redirect), enumStrings(Redirects)))
	}
	if o.Priority != "" && !o.Priority.Valid() {
		errs = multierror.Append(errs, invalid("priority", string(o.Priority), enumStrings(Priorities)))
	}
	if o.Referrer != "" {
		if err := validateReferrer(o.Referrer); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if errs == nil {
		return nil
	}
	errs.ErrorFormat = func(es []error) string {
		parts := make([]string, len(es))
		for i, e := range es {
			parts[i] = e.Error()
		}
		return "invalid fetch options: " + strings.Join(parts, "; ")
	}
	return errs
}

func validateReferrer(r Referrer) error {
	if r == ReferrerNone || r == ReferrerClient {
		return nil
	}
	fail := func(reason string) error {
		return &ValidationError{Field: "referrer", Value: string(r), Reason: reason}
	}

	u, err := url.Parse(string(r))
	if err != nil {
		return fail("is not a URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fail("must be no-referrer, client or an absolute http(s) URL")
	}
	host := u.Hostname()
	if host == "" {
		return fail("has no host")
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if _, err := idna.Lookup.ToASCII(host); err != nil {
		return fail("has an invalid host")
	}
	return nil
}

// Clone returns a copy whose header map can be changed without touching o.
// The body value is shared; normalization replaces it rather than mutating it.
func (o *Options) Clone() *Options {
	c := *o
	if o.Headers != nil {
		c.Headers = make(map[string]string, len(o.Headers))
		for k, v := range o.Headers {
			c.Headers[k] = v
		}
	}
	return &c
}
