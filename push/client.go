package push

import "context"

// RegisterResponse is what the push server returns for a new user agent.
type RegisterResponse struct {
	UAID   string
	Secret string
}

// SubscribeResponse is what the push server returns for a new channel.
type SubscribeResponse struct {
	ChannelID string
	Endpoint  string
}

// Client is the push server contract. Errors that mean "already gone"
// should implement IsGone() bool.
type Client interface {
	RegisterUserAgent(ctx context.Context, token string) (*RegisterResponse, error)
	ReregisterUserAgent(ctx context.Context, uaid, secret, token string) error
	UnregisterUserAgent(ctx context.Context, uaid, secret string) error
	SubscribeChannel(ctx context.Context, uaid, secret, appServerKey string) (*SubscribeResponse, error)
	UnsubscribeChannel(ctx context.Context, uaid, secret, chid string) error
}

// ClientFactory returns the Client for an autopush endpoint. debug selects
// the development sender.
type ClientFactory func(endpoint string, debug bool) (Client, error)
