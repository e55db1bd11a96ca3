package dnscheck

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	defaultCacheTTL  = 5 * time.Minute
	negativeCacheTTL = 1 * time.Minute
)

type lookupEntry struct {
	txt       []string
	ips       []net.IP
	err       error
	expiresAt time.Time
}

// cachingResolver memoizes individual TXT and A lookups by hostname so
// repeated assessments within a short window do not hammer the
// resolvers. Failures are cached too, with a shorter TTL so a transient
// resolver outage clears fast. Eviction is purely TTL based.
type cachingResolver struct {
	next Resolver

	mu      sync.RWMutex
	entries map[string]lookupEntry
	ttl     time.Duration
	now     func() time.Time
}

func newCachingResolver(next Resolver, ttl time.Duration) *cachingResolver {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &cachingResolver{
		next:    next,
		entries: make(map[string]lookupEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *cachingResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	key := "txt:" + name
	if entry, ok := c.get(key); ok {
		return entry.txt, entry.err
	}

	records, err := c.next.LookupTXT(ctx, name)
	c.put(key, lookupEntry{txt: records, err: err})
	return records, err
}

func (c *cachingResolver) LookupA(ctx context.Context, name string) ([]net.IP, error) {
	key := "a:" + name
	if entry, ok := c.get(key); ok {
		return entry.ips, entry.err
	}

	ips, err := c.next.LookupA(ctx, name)
	c.put(key, lookupEntry{ips: ips, err: err})
	return ips, err
}

func (c *cachingResolver) get(key string) (lookupEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return lookupEntry{}, false
	}
	return entry, true
}

func (c *cachingResolver) put(key string, entry lookupEntry) {
	ttl := c.ttl
	// A conclusive empty answer (ErrNoRecords) is a real verdict and
	// keeps the full TTL; transport failures expire quickly.
	if entry.err != nil && entry.err != ErrNoRecords {
		ttl = negativeCacheTTL
	}
	entry.expiresAt = c.now().Add(ttl)
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// invalidateDomain drops every cached lookup for the domain itself and
// for names under it (DKIM selectors, _dmarc). Blacklist-zone lookups
// live under foreign zones and simply age out.
func (c *cachingResolver) invalidateDomain(domain string) {
	suffix := "." + domain
	c.mu.Lock()
	for key := range c.entries {
		host := key[strings.Index(key, ":")+1:]
		if host == domain || strings.HasSuffix(host, suffix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}
