package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmcleod/fxaccount/internal/uuid"
	"github.com/jmcleod/fxaccount/storage"
)

// TokenClient provides the device token the push server delivers through.
type TokenClient interface {
	GetToken(ctx context.Context, senderIDs []string, forceRefresh bool) (Fetched, error)
}

// LocalTokenClient issues locally generated tokens, for hosts without a
// platform push service. A token is kept until a refresh is forced.
type LocalTokenClient struct {
	now     func() time.Time
	backend storage.Backend

	mu     sync.Mutex
	tokens map[string]Fetched
}

var _ TokenClient = (*LocalTokenClient)(nil)

// NewLocalTokenClient returns a LocalTokenClient using now as its clock, or
// time.Now when now is nil. Tokens live only as long as the client.
func NewLocalTokenClient(now func() time.Time) *LocalTokenClient {
	if now == nil {
		now = time.Now
	}
	return &LocalTokenClient{now: now, tokens: make(map[string]Fetched)}
}

// OpenLocalTokenClient returns a LocalTokenClient whose tokens are kept in
// backend, so a token survives process restarts.
func OpenLocalTokenClient(backend storage.Backend, now func() time.Time) (*LocalTokenClient, error) {
	c := NewLocalTokenClient(now)
	c.backend = backend

	data, err := backend.Load()
	if errors.Is(err, storage.ErrNotFound) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading device tokens: %w", err)
	}
	if err := json.Unmarshal(data, &c.tokens); err != nil {
		return nil, fmt.Errorf("decoding device tokens: %w", err)
	}
	if c.tokens == nil {
		c.tokens = make(map[string]Fetched)
	}
	return c, nil
}

func (c *LocalTokenClient) GetToken(ctx context.Context, senderIDs []string, forceRefresh bool) (Fetched, error) {
	if err := ctx.Err(); err != nil {
		return Fetched{}, err
	}
	k := strings.Join(senderIDs, ",")

	c.mu.Lock()
	defer c.mu.Unlock()
	if tok, ok := c.tokens[k]; ok && !forceRefresh {
		return tok, nil
	}
	tok := NewFetched(uuid.New(), c.now())
	c.tokens[k] = tok
	if c.backend != nil {
		data, err := json.Marshal(c.tokens)
		if err != nil {
			return Fetched{}, fmt.Errorf("encoding device tokens: %w", err)
		}
		if err := c.backend.Save(data); err != nil {
			return Fetched{}, fmt.Errorf("saving device tokens: %w", err)
		}
	}
	return tok, nil
}
