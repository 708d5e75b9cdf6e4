// Package demoserver is a small local site for trying browser fetches:
// plain and HTML pages, a request echo, arbitrary statuses, redirects,
// cookies and CORS on and off.
package demoserver

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// DemoServer serves the demo pages and counts the requests it sees.
type DemoServer struct {
	cfg    Config
	router chi.Router

	mu   sync.RWMutex
	hits map[string]int // path -> request count
}

// EchoedRequest is what /echo reports back.
type EchoedRequest struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   string            `json:"query,omitempty"`
	Headers map[string]string `json:"headers"`
	Cookies map[string]string `json:"cookies"`
	Body    string            `json:"body"`
}

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config) *DemoServer {
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}
	s := &DemoServer{
		cfg:    cfg,
		router: chi.NewRouter(),
		hits:   make(map[string]int),
	}
	s.routes()
	return s
}

func (s *DemoServer) routes() {
	r := s.router
	r.Use(s.countHits)

	r.Get("/", s.indexHandler)
	r.Get("/hello", s.helloHandler)
	r.HandleFunc("/echo", s.echoHandler)
	r.Get("/status/{code}", s.statusHandler)
	r.Get("/redirect", http.RedirectHandler("/hello", http.StatusFound).ServeHTTP)
	r.Get("/cookies/set", s.setCookieHandler)
	r.Get("/slow", s.slowHandler)

	// The same echo with and without CORS headers, for cross-origin pages.
	r.HandleFunc("/cors/open", s.corsOpen(s.echoHandler))
	r.HandleFunc("/cors/closed", s.echoHandler)

	r.Get("/demo/hits", s.hitsHandler)
	r.Post("/demo/reset", s.resetHandler)
}

// Handler returns the demo site as an http.Handler.
func (s *DemoServer) Handler() http.Handler { return s.router }

// Start starts the demo server.
func (s *DemoServer) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo server starting on http://localhost%s\n", addr)
	fmt.Printf("Request counters at http://localhost%s/demo/hits\n", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *DemoServer) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/demo/") {
			s.mu.Lock()
			s.hits[r.URL.Path]++
			s.mu.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

// Hits returns how many requests path has received.
func (s *DemoServer) Hits(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits[path]
}

func (s *DemoServer) indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = indexTemplate.Execute(w, struct{ Host string }{Host: r.Host})
}

func (s *DemoServer) helloHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Demo", "hello")
	_, _ = io.WriteString(w, "hello")
}

func (s *DemoServer) echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))

	out := EchoedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: make(map[string]string, len(r.Header)),
		Cookies: make(map[string]string),
		Body:    string(body),
	}
	for name, values := range r.Header {
		out.Headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	for _, c := range r.Cookies() {
		out.Cookies[c.Name] = c.Value
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *DemoServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil || code < 200 || code > 599 {
		http.Error(w, "status must be 200-599", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, "status %d", code)
}

func (s *DemoServer) setCookieHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "demo"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    r.URL.Query().Get("value"),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *DemoServer) slowHandler(w http.ResponseWriter, r *http.Request) {
	ms, _ := strconv.Atoi(r.URL.Query().Get("ms"))
	delay := min(time.Duration(ms)*time.Millisecond, s.cfg.MaxDelay)

	select {
	case <-time.After(delay):
	case <-r.Context().Done():
		return
	}
	_, _ = fmt.Fprintf(w, "slept %s", delay)
}

func (s *DemoServer) corsOpen(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// hitsHandler returns the request counters.
func (s *DemoServer) hitsHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type pathHits struct {
		Path string `json:"path"`
		Hits int    `json:"hits"`
	}
	out := make([]pathHits, 0, len(s.hits))
	for path, n := range s.hits {
		out = append(out, pathHits{Path: path, Hits: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// resetHandler clears the request counters.
func (s *DemoServer) resetHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits = make(map[string]int)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>browserfetch demo</title></head>
<body>
<h1>browserfetch demo</h1>
<p>Open a session with <code>--start-url http://{{.Host}}/</code> and fetch:</p>
<ul>
  <li><a href="/hello">/hello</a> plain text</li>
  <li><a href="/echo">/echo</a> the request as JSON</li>
  <li><a href="/status/404">/status/{code}</a> any status</li>
  <li><a href="/redirect">/redirect</a> 302 to /hello</li>
  <li><a href="/cookies/set?name=demo&amp;value=1">/cookies/set</a> sets a cookie</li>
  <li><a href="/slow?ms=500">/slow?ms=</a> delayed answer</li>
  <li><a href="/cors/open">/cors/open</a> and <a href="/cors/closed">/cors/closed</a> echo with and without CORS</li>
</ul>
</body>
</html>
`))
