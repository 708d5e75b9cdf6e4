package fetchopts

import "strings"

// Method is the HTTP method handed to the browser's fetch.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// Methods lists every accepted method.
var Methods = []Method{MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete}

// ParseMethod upper-cases s and checks it against Methods.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", invalid("method", s, enumStrings(Methods))
	}
	return m, nil
}

func (m Method) Valid() bool { return contains(Methods, m) }

// UnmarshalText accepts any casing; membership is checked by Validate.
func (m *Method) UnmarshalText(b []byte) error {
	*m = Method(strings.ToUpper(string(b)))
	return nil
}

// Mode mirrors Request.mode.
type Mode string

const (
	ModeCORS       Mode = "cors"
	ModeNoCORS     Mode = "no-cors"
	ModeSameOrigin Mode = "same-origin"
	ModeNavigate   Mode = "navigate"
)

var Modes = []Mode{ModeCORS, ModeNoCORS, ModeSameOrigin, ModeNavigate}

func (m Mode) Valid() bool { return contains(Modes, m) }

// Credentials mirrors Request.credentials.
type Credentials string

const (
	CredentialsOmit       Credentials = "omit"
	CredentialsSameOrigin Credentials = "same-origin"
	CredentialsInclude    Credentials = "include"
)

var CredentialsValues = []Credentials{CredentialsOmit, CredentialsSameOrigin, CredentialsInclude}

func (c Credentials) Valid() bool { return contains(CredentialsValues, c) }

// Cache mirrors Request.cache.
//
// See https://developer.mozilla.org/en-US/docs/Web/API/Request/cache#value
type Cache string

const (
	CacheDefault      Cache = "default"
	CacheNoStore      Cache = "no-store"
	CacheReload       Cache = "reload"
	CacheNoCache      Cache = "no-cache"
	CacheForceCache   Cache = "force-cache"
	CacheOnlyIfCached Cache = "only-if-cached"
)

var Caches = []Cache{CacheDefault, CacheNoStore, CacheReload, CacheNoCache, CacheForceCache, CacheOnlyIfCached}

func (c Cache) Valid() bool { return contains(Caches, c) }

// Redirect mirrors Request.redirect.
type Redirect string

const (
	RedirectFollow Redirect = "follow"
	RedirectError  Redirect = "error"
	RedirectManual Redirect = "manual"
)

var Redirects = []Redirect{RedirectFollow, RedirectError, RedirectManual}

func (r Redirect) Valid() bool { return contains(Redirects, r) }

// Referrer is either one of the literal referrer values or an absolute URL.
// Validity is checked by validateReferrer since URLs are open-ended.
type Referrer string

const (
	ReferrerNone   Referrer = "no-referrer"
	ReferrerClient Referrer = "client"
)

// Priority mirrors Request.priority.
type Priority string

const (
	PriorityHigh Priority = "high"
	PriorityLow  Priority = "low"
	PriorityAuto Priority = "auto"
)

var Priorities = []Priority{PriorityHigh, PriorityLow, PriorityAuto}

func (p Priority) Valid() bool { return contains(Priorities, p) }

func contains[T ~string](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func enumStrings[T ~string](set []T) []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}
