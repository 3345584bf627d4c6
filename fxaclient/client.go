// Package fxaclient is an HTTP client for the Firefox Accounts auth server.
// It implements the network operations the login states depend on: logging
// in and fetching keys, and signing a public key into a certificate.
package fxaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmcleod/fxaccount/crypto"
	"github.com/jmcleod/fxaccount/internal/util"
	"github.com/jmcleod/fxaccount/key"
)

const (
	jsonContentType = "application/json"
	maxResponseSize = 1 << 20
	nonceBytes      = 8
)

// LoginResponse is the outcome of LoginAndGetKeys. For an unverified account
// Verified is false and no keys are returned.
type LoginResponse struct {
	UID          string
	SessionToken key.Key
	KA           key.Key
	WrapKB       key.Key
	Verified     bool
}

// Client talks to one auth server. It is safe for concurrent use.
type Client struct {
	serverURL  *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests. Timeouts are the
// HTTP client's responsibility.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithClock sets the time source used for Hawk timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New returns a Client for the auth server at serverURL, e.g.
// "https://api.accounts.firefox.com".
func New(serverURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server URL %q: unsupported scheme", serverURL)
	}
	c := &Client{
		serverURL:  u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type loginRequest struct {
	Email  string `json:"email"`
	AuthPW string `json:"authPW"`
}

type loginResponseBody struct {
	UID           string `json:"uid"`
	SessionToken  string `json:"sessionToken"`
	KeyFetchToken string `json:"keyFetchToken"`
	Verified      *bool  `json:"verified"`
}

type keysResponseBody struct {
	Bundle string `json:"bundle"`
}

// LoginAndGetKeys authenticates with the stretched password and, if the
// account is verified, fetches and unwraps kA and wrapkB.
func (c *Client) LoginAndGetKeys(ctx context.Context, emailUTF8 []byte, quickStretchedPW key.Key) (*LoginResponse, error) {
	authPW, err := authPWHex(quickStretchedPW)
	if err != nil {
		return nil, err
	}

	var body loginResponseBody
	req := loginRequest{Email: string(emailUTF8), AuthPW: authPW}
	if err := c.do(ctx, http.MethodPost, "/v1/account/login?keys=true", req, nil, &body); err != nil {
		return nil, err
	}
	if body.UID == "" || body.SessionToken == "" || body.Verified == nil {
		return nil, newMalformedError(fmt.Errorf("login response missing required fields"))
	}
	sessionToken, err := key.ParseHex(key.SessionToken, body.SessionToken)
	if err != nil {
		return nil, newMalformedError(err)
	}

	resp := &LoginResponse{UID: body.UID, SessionToken: sessionToken, Verified: *body.Verified}
	if !resp.Verified {
		c.logger.Info("account not verified; skipping key fetch", slog.String("uid", body.UID))
		return resp, nil
	}

	keyFetchToken, err := key.ParseHex(key.KeyFetchToken, body.KeyFetchToken)
	if err != nil {
		return nil, newMalformedError(err)
	}
	resp.KA, resp.WrapKB, err = c.fetchKeys(ctx, keyFetchToken)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) fetchKeys(ctx context.Context, keyFetchToken key.Key) (kA, wrapKB key.Key, err error) {
	creds, keyRequestKey, err := keyFetchCredentials(keyFetchToken)
	if err != nil {
		return key.Key{}, key.Key{}, err
	}
	defer util.WipeBytes(keyRequestKey)

	var body keysResponseBody
	if err := c.do(ctx, http.MethodGet, "/v1/account/keys", nil, &creds, &body); err != nil {
		return key.Key{}, key.Key{}, err
	}
	bundle, err := util.HexDecode(body.Bundle)
	if err != nil || body.Bundle == "" {
		return key.Key{}, key.Key{}, newMalformedError(fmt.Errorf("invalid key bundle"))
	}
	kA, wrapKB, err = openKeysBundle(keyRequestKey, bundle)
	if err != nil {
		return key.Key{}, key.Key{}, newMalformedError(err)
	}
	return kA, wrapKB, nil
}

type signRequest struct {
	PublicKey json.RawMessage `json:"publicKey"`
	Duration  int64           `json:"duration"`
}

type signResponseBody struct {
	Cert string `json:"cert"`
}

// Sign asks the server to certify publicKeyJSON for the given duration and
// returns the certificate.
func (c *Client) Sign(ctx context.Context, sessionToken key.Key, publicKeyJSON []byte, duration time.Duration) (string, error) {
	creds, err := sessionCredentials(sessionToken)
	if err != nil {
		return "", err
	}
	req := signRequest{PublicKey: publicKeyJSON, Duration: duration.Milliseconds()}
	var body signResponseBody
	if err := c.do(ctx, http.MethodPost, "/v1/certificate/sign", req, &creds, &body); err != nil {
		return "", err
	}
	if body.Cert == "" {
		return "", newMalformedError(fmt.Errorf("sign response missing certificate"))
	}
	return body.Cert, nil
}

func authPWHex(quickStretchedPW key.Key) (string, error) {
	authPW, err := crypto.AuthPW(quickStretchedPW)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(authPW)
	return util.HexEncode(authPW), nil
}

// do sends a JSON request and decodes a JSON response. Non-2xx responses
// become *RemoteError.
func (c *Client) do(ctx context.Context, method, path string, in any, creds *hawkCredentials, out any) error {
	u, err := c.serverURL.Parse(c.serverURL.Path + path)
	if err != nil {
		return fmt.Errorf("building URL for %s: %w", path, err)
	}

	var payload []byte
	if in != nil {
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}
	req.Header.Set("Accept", jsonContentType)
	if in != nil {
		req.Header.Set("Content-Type", jsonContentType)
	}
	if creds != nil {
		nonce, err := util.RandomHex(nonceBytes)
		if err != nil {
			return err
		}
		hash := ""
		if in != nil {
			hash = hawkPayloadHash(jsonContentType, payload)
		}
		req.Header.Set("Authorization", hawkHeader(*creds, c.now(), nonce, method, u, hash))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remote := &RemoteError{}
		if err := json.Unmarshal(data, remote); err != nil {
			// Proxies and load balancers answer with non-JSON bodies.
			remote = &RemoteError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		remote.HTTPStatusCode = resp.StatusCode
		c.logger.Warn("auth server error",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.Int("errno", remote.Errno))
		return remote
	}

	if err := json.Unmarshal(data, out); err != nil {
		return newMalformedError(err)
	}
	return nil
}
