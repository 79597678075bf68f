package remote

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// StaticTokenSource returns a fixed token, or the content of TokenFile
// re-read on each call so an external agent can rotate it.
type StaticTokenSource struct {
	Token     string
	TokenFile string
}

func (s *StaticTokenSource) GetToken(context.Context, string) (string, error) {
	if s.Token != "" {
		return s.Token, nil
	}
	if s.TokenFile != "" {
		b, err := os.ReadFile(s.TokenFile)
		if err != nil {
			return "", fmt.Errorf("%w: read token file: %v", types.ErrUnauthorized, err)
		}
		if tok := strings.TrimSpace(string(b)); tok != "" {
			return tok, nil
		}
	}
	return "", fmt.Errorf("%w: no token configured", types.ErrUnauthorized)
}

// CachedTokenSource keeps tokens per audience for TTL. Failures are never
// cached.
type CachedTokenSource struct {
	Source types.TokenSource
	TTL    time.Duration
	Now    func() time.Time

	mu     sync.Mutex
	tokens map[string]cachedToken
}

type cachedToken struct {
	token  string
	expiry time.Time
}

func (c *CachedTokenSource) GetToken(ctx context.Context, aud string) (string, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	c.mu.Lock()
	if t, ok := c.tokens[aud]; ok && now().Before(t.expiry) {
		c.mu.Unlock()
		return t.token, nil
	}
	c.mu.Unlock()

	tok, err := c.Source.GetToken(ctx, aud)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		c.tokens = make(map[string]cachedToken)
	}
	c.tokens[aud] = cachedToken{token: tok, expiry: now().Add(c.TTL)}
	return tok, nil
}
