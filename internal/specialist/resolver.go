package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"supplyfuse/internal/domain"
)

// Resolver maps an agent type to the URL of its runtime.
type Resolver interface {
	Endpoint(ctx context.Context, agent domain.AgentType) (string, error)
}

// StaticResolver serves endpoints from configuration.
type StaticResolver map[domain.AgentType]string

func (s StaticResolver) Endpoint(_ context.Context, agent domain.AgentType) (string, error) {
	if u := strings.TrimSpace(s[agent]); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("%w for %s", domain.ErrNoEndpoint, agent)
}

// RegistryResolver looks endpoints up at GET <BaseURL>/agents/<agent>, which
// answers {"endpoint": "..."}.
type RegistryResolver struct {
	BaseURL string
	Client  *http.Client
}

func (r RegistryResolver) Endpoint(ctx context.Context, agent domain.AgentType) (string, error) {
	u, err := url.JoinPath(r.BaseURL, "agents", string(agent))
	if err != nil {
		return "", fmt.Errorf("registry url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w for %s: %v", domain.ErrNoEndpoint, agent, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w for %s: registry status %d", domain.ErrNoEndpoint, agent, resp.StatusCode)
	}
	var out struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode registry reply: %w", err)
	}
	if out.Endpoint == "" {
		return "", fmt.Errorf("%w for %s", domain.ErrNoEndpoint, agent)
	}
	return out.Endpoint, nil
}

// CachingResolver memoizes successful lookups for TTL. Failed lookups are
// not cached. It is safe for concurrent use.
type CachingResolver struct {
	next   Resolver
	cache  *expirable.LRU[domain.AgentType, string]
	misses atomic.Int64
}

func NewCachingResolver(next Resolver, ttl time.Duration) *CachingResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachingResolver{
		next:  next,
		cache: expirable.NewLRU[domain.AgentType, string](len(domain.DefaultPlan()), nil, ttl),
	}
}

func (c *CachingResolver) Endpoint(ctx context.Context, agent domain.AgentType) (string, error) {
	if u, ok := c.cache.Get(agent); ok {
		return u, nil
	}
	c.misses.Add(1)
	u, err := c.next.Endpoint(ctx, agent)
	if err != nil {
		return "", err
	}
	c.cache.Add(agent, u)
	return u, nil
}

// Invalidate drops the cached endpoint so the next call resolves again.
func (c *CachingResolver) Invalidate(agent domain.AgentType) {
	c.cache.Remove(agent)
}

// Lookups reports how many calls reached the underlying resolver.
func (c *CachingResolver) Lookups() int64 {
	return c.misses.Load()
}

// ChainResolver asks each resolver in turn and returns the first endpoint
// found. The error of the last resolver is returned when none has one.
type ChainResolver []Resolver

func (c ChainResolver) Endpoint(ctx context.Context, agent domain.AgentType) (string, error) {
	err := fmt.Errorf("%w for %s", domain.ErrNoEndpoint, agent)
	for _, r := range c {
		var u string
		if u, err = r.Endpoint(ctx, agent); err == nil {
			return u, nil
		}
	}
	return "", err
}
