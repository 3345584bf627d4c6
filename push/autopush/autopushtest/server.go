// Package autopushtest provides an in-process autopush server for tests.
package autopushtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/fxaccount/internal/uuid"
)

// UserAgent is a registration known to the server.
type UserAgent struct {
	SenderID string
	Token    string
	Secret   string
	Channels map[string]string // chid -> application server key
}

// Failure is an error response injected for the next matching request.
type Failure struct {
	Status  int
	Errno   int
	Message string
}

// Server is a fake autopush endpoint. Close it when done.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	userAgents map[string]*UserAgent
	failures   map[string][]Failure
}

// NewServer starts an empty Server.
func NewServer() *Server {
	s := &Server{
		userAgents: make(map[string]*UserAgent),
		failures:   make(map[string][]Failure),
	}
	r := chi.NewRouter()
	r.Route("/v1/gcm/{senderID}/registration", func(r chi.Router) {
		r.Post("/", s.handleRegister)
		r.Route("/{uaid}", func(r chi.Router) {
			r.Use(s.authenticate)
			r.Put("/", s.handleReregister)
			r.Delete("/", s.handleUnregister)
			r.Post("/subscription", s.handleSubscribe)
			r.Delete("/subscription/{chid}", s.handleUnsubscribe)
		})
	})
	s.Server = httptest.NewServer(r)
	return s
}

// UserAgent returns a copy of the registration for uaid, or nil.
func (s *Server) UserAgent(uaid string) *UserAgent {
	s.mu.Lock()
	defer s.mu.Unlock()
	ua, ok := s.userAgents[uaid]
	if !ok {
		return nil
	}
	c := *ua
	c.Channels = make(map[string]string, len(ua.Channels))
	for k, v := range ua.Channels {
		c.Channels[k] = v
	}
	return &c
}

// Forget drops uaid as if the server had expired it.
func (s *Server) Forget(uaid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userAgents, uaid)
}

// FailNext makes the next request with the given method fail with f.
func (s *Server) FailNext(method string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = append(s.failures[method], f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status, errno int, message string) {
	writeJSON(w, status, map[string]any{
		"code":    status,
		"errno":   errno,
		"error":   http.StatusText(status),
		"message": message,
	})
}

func (s *Server) intercept(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	queue := s.failures[r.Method]
	if len(queue) == 0 {
		s.mu.Unlock()
		return false
	}
	f := queue[0]
	s.failures[r.Method] = queue[1:]
	s.mu.Unlock()
	writeError(w, f.Status, f.Errno, f.Message)
	return true
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.intercept(w, r) {
			return
		}
		uaid := chi.URLParam(r, "uaid")
		secret, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		ua, ok := s.userAgents[uaid]
		s.mu.Unlock()
		switch {
		case !ok:
			writeError(w, http.StatusGone, 103, "unknown user agent")
		case ua.Secret != secret:
			writeError(w, http.StatusUnauthorized, 109, "invalid authentication")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

type tokenBody struct {
	Token string `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.intercept(w, r) {
		return
	}
	var body tokenBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		writeError(w, http.StatusBadRequest, 101, "missing token")
		return
	}
	uaid := strings.ReplaceAll(uuid.New(), "-", "")
	ua := &UserAgent{
		SenderID: chi.URLParam(r, "senderID"),
		Token:    body.Token,
		Secret:   strings.ReplaceAll(uuid.New(), "-", ""),
		Channels: make(map[string]string),
	}
	s.mu.Lock()
	s.userAgents[uaid] = ua
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"uaid": uaid, "secret": ua.Secret})
}

func (s *Server) handleReregister(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		writeError(w, http.StatusBadRequest, 101, "missing token")
		return
	}
	s.mu.Lock()
	s.userAgents[chi.URLParam(r, "uaid")].Token = body.Token
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	s.Forget(chi.URLParam(r, "uaid"))
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, 101, "invalid body")
			return
		}
	}
	uaid := chi.URLParam(r, "uaid")
	chid := uuid.New()

	s.mu.Lock()
	ua, ok := s.userAgents[uaid]
	if ok {
		ua.Channels[chid] = body.Key
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusGone, 103, "unknown user agent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"channelID": chid,
		"endpoint":  s.URL + "/wpush/v2/" + chid,
	})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	uaid, chid := chi.URLParam(r, "uaid"), chi.URLParam(r, "chid")
	s.mu.Lock()
	ua, ok := s.userAgents[uaid]
	known := false
	if ok {
		_, known = ua.Channels[chid]
		delete(ua.Channels, chid)
	}
	s.mu.Unlock()
	if !ok || !known {
		writeError(w, http.StatusNotFound, 106, "unknown channel")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}
