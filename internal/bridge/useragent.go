package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jellydator/ttlcache/v3"

	"github.com/raysh454/browserfetch/internal/session"
)

// UserAgentCache remembers navigator.userAgent per session ID. Entries never
// expire; they are removed with Invalidate when the session goes away.
type UserAgentCache struct {
	cache *ttlcache.Cache[string, string]
}

func NewUserAgentCache() *UserAgentCache {
	return &UserAgentCache{
		cache: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](ttlcache.NoTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

// Lookup returns the cached user agent for s, asking the browser on a miss.
// Concurrent misses for one session may each query the browser; the answers
// are identical.
func (c *UserAgentCache) Lookup(ctx context.Context, s session.Session) (string, error) {
	if item := c.cache.Get(s.ID()); item != nil {
		return item.Value(), nil
	}

	raw, err := s.ExecuteScript(ctx, userAgentScript)
	if err != nil {
		return "", fmt.Errorf("read user agent: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", &DecodeError{Raw: raw, Err: errors.New("no user agent")}
	}
	var ua string
	if err := json.Unmarshal(raw, &ua); err != nil {
		return "", &DecodeError{Raw: raw, Err: fmt.Errorf("user agent: %w", err)}
	}

	c.cache.Set(s.ID(), ua, ttlcache.DefaultTTL)
	return ua, nil
}

// Invalidate forgets the user agent of the given session.
func (c *UserAgentCache) Invalidate(sessionID string) {
	c.cache.Delete(sessionID)
}

// Len reports how many sessions have a cached user agent.
func (c *UserAgentCache) Len() int {
	return c.cache.Len()
}
