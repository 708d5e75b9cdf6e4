package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/browserfetch/internal/app"
	"github.com/raysh454/browserfetch/internal/bridge"
	"github.com/raysh454/browserfetch/internal/fetchopts"
	"github.com/raysh454/browserfetch/internal/logging"
	"github.com/raysh454/browserfetch/internal/session"
)

// maxRequestBody bounds fetch request bodies read by the API.
const maxRequestBody = 8 << 20

// Server is the HTTP + WebSocket API over the session manager.
type Server struct {
	cfg      Config
	sessions *app.Manager
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("server: session manager is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	s := &Server{
		cfg:      cfg,
		sessions: cfg.Sessions,
		router:   chi.NewRouter(),
		logger:   logger,
		upgrader: websocket.Upgrader{
			// TODO: take allowed origins from config once the API is exposed beyond localhost.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/sessions", s.optionsHandler("GET, POST"))
	r.Options("/sessions/{id}", s.optionsHandler("DELETE"))
	r.Options("/sessions/{id}/user-agent", s.optionsHandler("GET"))
	r.Options("/sessions/{id}/fetch", s.optionsHandler("POST"))

	r.Post("/sessions", s.handleCreateSession)
	r.Get("/sessions", s.handleListSessions)
	r.Delete("/sessions/{id}", s.handleCloseSession)
	r.Get("/sessions/{id}/user-agent", s.handleUserAgent)
	r.Post("/sessions/{id}/fetch", s.handleFetch)

	r.Get("/ws/sessions/{id}/fetch", s.handleFetchWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		logging.F("method", r.Method),
		logging.F("path", r.URL.Path),
	}
	s.logger.Info("http_request", fields...)

	if r.Body != nil && r.Method == http.MethodPost {
		bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.logger.Warn("http_request_body_too_large", append(fields, logging.F("limit", tooLarge.Limit))...)
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			s.logger.Warn("http_request_body_unreadable", append(fields, logging.Err(err))...)
			writeError(w, http.StatusBadRequest, "unreadable request body")
			return
		}
		s.logger.Debug("http_request_body", append(fields, logging.F("size", len(bodyBytes)))...)
		r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // fetches run as long as the script timeout allows
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps a manager or bridge error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, fetchopts.ErrInvalidOption), errors.Is(err, fetchopts.ErrBodyEncoding):
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrDecode):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrScriptTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// --- HTTP handlers ---

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessions.Create()
	if err != nil {
		s.logger.Warn("creating session", logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("created session", logging.F("session_id", id))
	writeJSON(w, http.StatusCreated, CreateSessionResponse{ID: id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := s.sessions.List()
	s.logger.Info("listed sessions", logging.F("count", len(ids)))
	writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: ids})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.CloseSession(id); err != nil {
		s.logger.Warn("closing session", logging.F("session_id", id), logging.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("closed session", logging.F("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ua, err := s.sessions.UserAgent(r.Context(), id)
	if err != nil {
		s.logger.Warn("reading user agent", logging.F("session_id", id), logging.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, UserAgentResponse{UserAgent: ua})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body FetchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&body); err != nil {
		s.logger.Warn("decoding fetch body", logging.Err(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	resp, err := s.fetch(r.Context(), id, body)
	if err != nil {
		s.logger.Warn("fetch", logging.F("session_id", id), logging.F("url", body.URL), logging.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	if resp == nil {
		s.logger.Info("fetch produced no response", logging.F("session_id", id), logging.F("url", body.URL))
	}
	writeJSON(w, http.StatusOK, FetchResponse{Response: resp})
}

// fetch validates a FetchRequest and runs it on session id.
func (s *Server) fetch(ctx context.Context, id string, req FetchRequest) (*bridge.Response, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, fmt.Errorf("%w: url is required", fetchopts.ErrInvalidOption)
	}
	raw := req.Options
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage(`{}`)
	}
	opts, err := fetchopts.Parse(raw)
	if err != nil {
		return nil, err
	}
	return s.sessions.Fetch(ctx, id, req.URL, opts)
}

// WebSockets

// handleFetchWS runs one fetch per text frame and answers each with a
// FetchResponse frame, in order.
func (s *Server) handleFetchWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sessions.Has(id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%v: %s", app.ErrSessionNotFound, id))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBody)

	ctx := r.Context()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read", logging.F("session_id", id), logging.Err(err))
			}
			return
		}

		var reply FetchResponse
		var req FetchRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			reply.Error = "invalid JSON"
		} else if resp, err := s.fetch(ctx, id, req); err != nil {
			reply.Error = err.Error()
		} else {
			reply.Response = resp
		}

		if err := conn.WriteJSON(reply); err != nil {
			s.logger.Debug("websocket write", logging.F("session_id", id), logging.Err(err))
			return
		}
	}
}
