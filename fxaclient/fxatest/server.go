// Package fxatest provides an in-process Firefox Accounts auth server for
// tests. It speaks enough of the protocol for fxaclient: login, key fetch
// and certificate signing.
package fxatest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/fxaccount/crypto"
	"github.com/jmcleod/fxaccount/internal/util"
	"github.com/jmcleod/fxaccount/internal/uuid"
	"github.com/jmcleod/fxaccount/key"
)

const namespace = "identity.mozilla.com/picl/v1/"

// Account is a user known to the server.
type Account struct {
	Email    string
	Password string
	UID      string
	KA       key.Key
	WrapKB   key.Key
	Verified bool
}

// KB returns the kB a client holding the right password recovers.
func (a *Account) KB() (key.Key, error) {
	qs, err := crypto.QuickStretch(a.Email, []byte(a.Password))
	if err != nil {
		return key.Key{}, err
	}
	unwrap, err := crypto.UnwrapKB(qs)
	if err != nil {
		return key.Key{}, err
	}
	return crypto.KBFromWrapKB(a.WrapKB, unwrap)
}

type token struct {
	email   string
	raw     key.Key
	revoked bool
}

// Failure is an error response injected for the next matching request.
type Failure struct {
	Status  int
	Errno   int
	Message string
	Body    string // raw body, overrides the structured error when set
}

// Server is a fake auth server. Close it when done.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	accounts  map[string]*Account
	sessions  map[string]*token
	keyFetch  map[string]*token
	failures  map[string][]Failure
	requests  map[string]int
	issuer    *ecdsa.PrivateKey
	issuerURL string
}

// NewServer starts a Server with no accounts.
func NewServer() *Server {
	issuer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("fxatest: generating issuer key: %v", err))
	}
	s := &Server{
		accounts: make(map[string]*Account),
		sessions: make(map[string]*token),
		keyFetch: make(map[string]*token),
		failures: make(map[string][]Failure),
		requests: make(map[string]int),
		issuer:   issuer,
	}

	r := chi.NewRouter()
	r.Post("/v1/account/login", s.handleLogin)
	r.Get("/v1/account/keys", s.handleKeys)
	r.Post("/v1/certificate/sign", s.handleSign)
	s.Server = httptest.NewServer(r)
	s.issuerURL = strings.TrimPrefix(s.URL, "http://")
	return s
}

// IssuerKey is the public key certificates are signed with.
func (s *Server) IssuerKey() *ecdsa.PublicKey {
	return &s.issuer.PublicKey
}

// AddAccount registers an account with random keys and returns it.
func (s *Server) AddAccount(email, password string, verified bool) *Account {
	kA, _ := util.RandomBytes(key.Size)
	wrapKB, _ := util.RandomBytes(key.Size)
	a := &Account{
		Email:    email,
		Password: password,
		UID:      strings.ReplaceAll(uuid.New(), "-", ""),
		Verified: verified,
	}
	a.KA, _ = key.New(key.KA, kA)
	a.WrapKB, _ = key.New(key.WrapKB, wrapKB)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = a
	return a
}

// Verify marks an account as verified.
func (s *Server) Verify(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[email]; ok {
		a.Verified = true
	}
}

// RevokeSessions invalidates every session token issued for email.
func (s *Server) RevokeSessions(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.sessions {
		if t.email == email {
			t.revoked = true
		}
	}
}

// FailNext makes the next request to path fail with f.
func (s *Server) FailNext(path string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], f)
}

// Requests returns how many requests path has received.
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// intercept records the request and writes an injected failure if one is
// queued. It reports whether the handler should stop.
func (s *Server) intercept(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	s.requests[r.URL.Path]++
	queue := s.failures[r.URL.Path]
	var f *Failure
	if len(queue) > 0 {
		f = &queue[0]
		s.failures[r.URL.Path] = queue[1:]
	}
	s.mu.Unlock()

	if f == nil {
		return false
	}
	if f.Body != "" {
		w.WriteHeader(f.Status)
		w.Write([]byte(f.Body))
		return true
	}
	writeError(w, f.Status, f.Errno, f.Message)
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status, errno int, message string) {
	writeJSON(w, status, map[string]any{
		"code":    status,
		"errno":   errno,
		"error":   http.StatusText(status),
		"message": message,
	})
}

func tokenID(raw key.Key, info string, n int) (string, []byte) {
	derived, _ := util.HKDFLen(raw.Bytes(), nil, []byte(namespace+info), n*key.Size)
	return util.HexEncode(derived[:key.Size]), derived
}

func newToken(t key.Type) key.Key {
	raw, _ := util.RandomBytes(key.Size)
	k, _ := key.New(t, raw)
	return k
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.intercept(w, r) {
		return
	}
	var req struct {
		Email  string `json:"email"`
		AuthPW string `json:"authPW"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, 107, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[req.Email]
	if !ok {
		writeError(w, http.StatusBadRequest, 102, "Unknown account")
		return
	}
	qs, _ := crypto.QuickStretch(a.Email, []byte(a.Password))
	authPW, _ := crypto.AuthPW(qs)
	if !hmac.Equal([]byte(util.HexEncode(authPW)), []byte(req.AuthPW)) {
		writeError(w, http.StatusBadRequest, 103, "Incorrect password")
		return
	}

	session := newToken(key.SessionToken)
	sessionID, _ := tokenID(session, "sessionToken", 2)
	s.sessions[sessionID] = &token{email: a.Email, raw: session}

	resp := map[string]any{
		"uid":          a.UID,
		"sessionToken": session.Hex(),
		"verified":     a.Verified,
		"authAt":       time.Now().Unix(),
	}
	if r.URL.Query().Get("keys") == "true" {
		kft := newToken(key.KeyFetchToken)
		kftID, _ := tokenID(kft, "keyFetchToken", 3)
		s.keyFetch[kftID] = &token{email: a.Email, raw: kft}
		resp["keyFetchToken"] = kft.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

func hawkID(r *http.Request) (string, bool) {
	rest, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Hawk ")
	if !ok {
		return "", false
	}
	for _, part := range strings.Split(rest, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && name == "id" {
			id, err := strconv.Unquote(value)
			return id, err == nil
		}
	}
	return "", false
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	if s.intercept(w, r) {
		return
	}
	id, ok := hawkID(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	t, found := s.keyFetch[id]
	if !ok || !found {
		writeError(w, http.StatusUnauthorized, 110, "Invalid authentication token")
		return
	}
	delete(s.keyFetch, id)
	a := s.accounts[t.email]
	if !a.Verified {
		writeError(w, http.StatusBadRequest, 104, "Unverified account")
		return
	}

	_, derived := tokenID(t.raw, "keyFetchToken", 3)
	keyRequestKey := derived[2*key.Size:]
	respKeys, _ := util.HKDFLen(keyRequestKey, nil, []byte(namespace+"account/keys"), 3*key.Size)
	hmacKey, xorKey := respKeys[:key.Size], respKeys[key.Size:]

	ciphertext, _ := util.Xor(append(a.KA.Bytes(), a.WrapKB.Bytes()...), xorKey)
	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(ciphertext)
	writeJSON(w, http.StatusOK, map[string]string{"bundle": util.HexEncode(mac.Sum(ciphertext))})
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	if s.intercept(w, r) {
		return
	}
	var req struct {
		PublicKey json.RawMessage `json:"publicKey"`
		Duration  int64           `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.PublicKey) == 0 {
		writeError(w, http.StatusBadRequest, 107, "invalid request body")
		return
	}
	id, ok := hawkID(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	t, found := s.sessions[id]
	if !ok || !found || t.revoked {
		writeError(w, http.StatusUnauthorized, 110, "Invalid authentication token")
		return
	}
	a := s.accounts[t.email]
	if !a.Verified {
		writeError(w, http.StatusBadRequest, 104, "Unverified account")
		return
	}

	now := time.Now()
	var publicKey map[string]any
	_ = json.Unmarshal(req.PublicKey, &publicKey)
	cert := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss":        s.issuerURL,
		"iat":        now.Unix(),
		"exp":        now.Add(time.Duration(req.Duration) * time.Millisecond).Unix(),
		"public-key": publicKey,
		"principal":  map[string]string{"email": a.UID + "@" + s.issuerURL},
	})
	signed, err := cert.SignedString(s.issuer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, 999, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cert": signed})
}
