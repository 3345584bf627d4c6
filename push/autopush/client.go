// Package autopush is an HTTP client for the autopush endpoint API that
// registers user agents and opens push channels.
package autopush

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

	"github.com/jmcleod/fxaccount/push"
)

const maxResponseSize = 1 << 20

// Client talks to one autopush endpoint on behalf of one sender.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ push.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
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

// New returns a Client for endpoint, e.g.
// "https://updates.push.services.mozilla.com", registering as senderID.
func New(endpoint, senderID string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing autopush endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("autopush endpoint %q: unsupported scheme", endpoint)
	}
	if senderID == "" {
		return nil, fmt.Errorf("sender id: %w", push.ErrMissingField)
	}
	c := &Client{
		baseURL:    u.String() + "/v1/gcm/" + url.PathEscape(senderID),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Factory returns a push.ClientFactory that picks senderID, or
// debugSenderID for debug registrations.
func Factory(senderID, debugSenderID string, opts ...Option) push.ClientFactory {
	return func(endpoint string, debug bool) (push.Client, error) {
		id := senderID
		if debug && debugSenderID != "" {
			id = debugSenderID
		}
		return New(endpoint, id, opts...)
	}
}

type registerRequest struct {
	Token string `json:"token"`
}

type registerResponse struct {
	UAID   string `json:"uaid"`
	Secret string `json:"secret"`
}

type subscribeRequest struct {
	Key string `json:"key,omitempty"`
}

type subscribeResponse struct {
	ChannelID string `json:"channelID"`
	Endpoint  string `json:"endpoint"`
}

func (c *Client) RegisterUserAgent(ctx context.Context, token string) (*push.RegisterResponse, error) {
	var resp registerResponse
	if err := c.do(ctx, http.MethodPost, "/registration", "", registerRequest{Token: token}, &resp); err != nil {
		return nil, err
	}
	return &push.RegisterResponse{UAID: resp.UAID, Secret: resp.Secret}, nil
}

func (c *Client) ReregisterUserAgent(ctx context.Context, uaid, secret, token string) error {
	return c.do(ctx, http.MethodPut, "/registration/"+url.PathEscape(uaid), secret, registerRequest{Token: token}, nil)
}

func (c *Client) UnregisterUserAgent(ctx context.Context, uaid, secret string) error {
	return c.do(ctx, http.MethodDelete, "/registration/"+url.PathEscape(uaid), secret, nil, nil)
}

func (c *Client) SubscribeChannel(ctx context.Context, uaid, secret, appServerKey string) (*push.SubscribeResponse, error) {
	var resp subscribeResponse
	path := "/registration/" + url.PathEscape(uaid) + "/subscription"
	if err := c.do(ctx, http.MethodPost, path, secret, subscribeRequest{Key: appServerKey}, &resp); err != nil {
		return nil, err
	}
	return &push.SubscribeResponse{ChannelID: resp.ChannelID, Endpoint: resp.Endpoint}, nil
}

func (c *Client) UnsubscribeChannel(ctx context.Context, uaid, secret, chid string) error {
	path := "/registration/" + url.PathEscape(uaid) + "/subscription/" + url.PathEscape(chid)
	return c.do(ctx, http.MethodDelete, path, secret, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, secret string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{}
		if json.Unmarshal(data, apiErr) != nil {
			apiErr = &Error{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		apiErr.StatusCode = resp.StatusCode
		c.logger.Warn("autopush error",
			slog.String("method", method),
			slog.Int("status", resp.StatusCode),
			slog.Int("errno", apiErr.Errno))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
