package server

import (
	"encoding/json"

	"github.com/raysh454/browserfetch/internal/bridge"
)

// CreateSessionResponse carries the ID of a new session.
type CreateSessionResponse struct {
	ID string `json:"id"`
}

// ListSessionsResponse lists the open session IDs.
type ListSessionsResponse struct {
	Sessions []string `json:"sessions"`
}

// UserAgentResponse reports a session's navigator.userAgent.
type UserAgentResponse struct {
	UserAgent string `json:"userAgent"`
}

// FetchRequest asks a session to fetch URL. Options uses the fetch options
// wire shape; omitted means a plain GET.
type FetchRequest struct {
	URL     string          `json:"url"`
	Options json.RawMessage `json:"options,omitempty"`
}

// FetchResponse holds the browser's response, or null when the browser
// produced none. Error is only set on WebSocket replies.
type FetchResponse struct {
	Response *bridge.Response `json:"response"`
	Error    string           `json:"error,omitempty"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}
