// Package bridge performs a fetch inside a browser session and brings the
// response back to Go.
package bridge

import _ "embed"

// fetchScript is run as an async script with the URL, the serialized options
// and a completion callback as its arguments. The callback fires exactly once:
// with {headers, ok, status, text} on success, with null on any failure.
//
//go:embed js/fetch.js
var fetchScript string

// Script returns the in-browser fetch script.
func Script() string { return fetchScript }

const userAgentScript = "return navigator.userAgent;"
