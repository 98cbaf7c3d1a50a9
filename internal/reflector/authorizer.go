package reflector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zsiec/reflect/internal/option"
)

// AuthRequest is the JSON document POSTed to the authorizer URI (spec.md
// §6's Authorizer protocol): `{app, name, on, call, addr, streamid:{…}}`.
type AuthRequest struct {
	App      string            `json:"app"`
	Name     string            `json:"name"`
	On       string            `json:"on"`   // hook name: "preaccept" | "accept"
	Call     string            `json:"call"` // mode: publish/request/bidirectional
	Addr     string             `json:"addr"`
	StreamID map[string]string `json:"streamid"`
}

// cacheEntry is one TTL-cached authorizer decision.
type cacheEntry struct {
	allow     bool
	overrides *option.Map
	expiresAt time.Time
}

// Authorizer posts decision requests to an external HTTP endpoint and caches
// the response for a short TTL, keyed on the (URI, canonical body) pair.
// Grounded on original_source/src/authorizer.cpp.
type Authorizer struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewAuthorizer returns an Authorizer posting to url with the given cache
// TTL (0 disables caching, not the authorizer itself).
func NewAuthorizer(url string, ttl time.Duration) *Authorizer {
	return &Authorizer{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 5 * time.Second},
		cache:  map[string]cacheEntry{},
	}
}

// Authorize posts req and returns whether the peer is allowed and any
// option overrides to apply. A cache hit (by URI+body fingerprint) within
// TTL skips the network round trip; an unreachable upstream is cached as a
// denial for the TTL (spec.md §7: "authorizer unreachable is treated as
// deny and that decision is cached for the configured TTL, avoiding a
// thundering herd against a downed authorizer").
func (a *Authorizer) Authorize(ctx context.Context, req AuthRequest) (bool, *option.Map) {
	body, err := json.Marshal(req)
	if err != nil {
		return false, nil
	}
	key := a.url + "\x00" + string(body)

	a.mu.Lock()
	if entry, ok := a.cache[key]; ok && time.Now().Before(entry.expiresAt) {
		a.mu.Unlock()
		return entry.allow, entry.overrides
	}
	a.mu.Unlock()

	allow, overrides := a.call(ctx, body)
	if a.ttl > 0 {
		a.mu.Lock()
		a.cache[key] = cacheEntry{allow: allow, overrides: overrides, expiresAt: time.Now().Add(a.ttl)}
		a.mu.Unlock()
	}
	return allow, overrides
}

func (a *Authorizer) call(ctx context.Context, body []byte) (bool, *option.Map) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return false, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, nil
	}

	var payload struct {
		Option map[string]any `json:"option"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return true, nil
	}
	out := option.New()
	for k, v := range payload.Option {
		out.Set(k, fmt.Sprintf("%v", v))
	}
	return true, out
}
