package dnscheck

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailmedic/internal/enum"
)

type fakeResolver struct {
	mu       sync.Mutex
	txt      map[string][]string
	a        map[string][]net.IP
	broken   map[string]bool
	txtCalls map[string]int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		txt:      make(map[string][]string),
		a:        make(map[string][]net.IP),
		broken:   make(map[string]bool),
		txtCalls: make(map[string]int),
	}
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	f.mu.Lock()
	f.txtCalls[name]++
	f.mu.Unlock()
	if f.broken[name] {
		return nil, errors.New("i/o timeout")
	}
	records, ok := f.txt[name]
	if !ok {
		return nil, ErrNoRecords
	}
	return records, nil
}

func (f *fakeResolver) LookupA(ctx context.Context, name string) ([]net.IP, error) {
	if f.broken[name] {
		return nil, errors.New("i/o timeout")
	}
	ips, ok := f.a[name]
	if !ok {
		return nil, ErrNoRecords
	}
	return ips, nil
}

func healthyResolver() *fakeResolver {
	resolver := newFakeResolver()
	resolver.txt["example.com"] = []string{"v=spf1 include:_spf.google.com ~all"}
	resolver.txt["default._domainkey.example.com"] = []string{"v=DKIM1; k=rsa; p=MIGfMA0"}
	resolver.txt["_dmarc.example.com"] = []string{"v=DMARC1; p=reject; rua=mailto:dmarc@example.com"}
	resolver.a["example.com"] = []net.IP{net.ParseIP("203.0.113.9")}
	return resolver
}

func TestCheckDomain_AllHealthy(t *testing.T) {
	// Arrange
	service := NewDNSCheckService(healthyResolver(), time.Minute)

	// Act
	check, err := service.CheckDomain(context.Background(), "example.com")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, check.SPFValid)
	assert.True(t, *check.SPFValid)
	require.NotNil(t, check.DKIMValid)
	assert.True(t, *check.DKIMValid)
	require.NotNil(t, check.DMARCPolicy)
	assert.Equal(t, "reject", *check.DMARCPolicy)
	assert.True(t, check.Blacklists.AllNotListed())
	assert.Equal(t, 100, check.Score)
}

func TestCheckDomain_MissingSPFIsFailureNotUnknown(t *testing.T) {
	resolver := healthyResolver()
	resolver.txt["example.com"] = []string{"some unrelated record"}
	service := NewDNSCheckService(resolver, time.Minute)

	check, err := service.CheckDomain(context.Background(), "example.com")

	require.NoError(t, err)
	require.NotNil(t, check.SPFValid)
	assert.False(t, *check.SPFValid)
	assert.Equal(t, 75, check.Score)
}

func TestCheckDomain_ResolverOutageLeavesSPFUnknown(t *testing.T) {
	resolver := healthyResolver()
	resolver.broken["example.com"] = true
	service := NewDNSCheckService(resolver, time.Minute)

	check, err := service.CheckDomain(context.Background(), "example.com")

	require.NoError(t, err)
	assert.Nil(t, check.SPFValid)
	// The A lookup also fails, so every blacklist probe is unreachable.
	assert.True(t, check.Blacklists.AnyUnreachable())
	assert.False(t, check.Blacklists.AllNotListed())
	// 100 - 15 (spf unknown) - 4*10 (unreachable blacklists)
	assert.Equal(t, 45, check.Score)
}

func TestCheckDomain_DMARCPolicyNone(t *testing.T) {
	resolver := healthyResolver()
	resolver.txt["_dmarc.example.com"] = []string{"v=DMARC1; p=none"}
	service := NewDNSCheckService(resolver, time.Minute)

	check, err := service.CheckDomain(context.Background(), "example.com")

	require.NoError(t, err)
	require.NotNil(t, check.DMARCPolicy)
	assert.Equal(t, "none", *check.DMARCPolicy)
	assert.Equal(t, 90, check.Score)
}

func TestCheckDomain_ConfirmedBlacklistListing(t *testing.T) {
	resolver := healthyResolver()
	// 203.0.113.9 reversed is 9.113.0.203
	resolver.a["9.113.0.203."+enum.BlacklistSpamhaus.Zone()] = []net.IP{net.ParseIP("127.0.0.2")}
	service := NewDNSCheckService(resolver, time.Minute)

	check, err := service.CheckDomain(context.Background(), "example.com")

	require.NoError(t, err)
	assert.Equal(t, enum.BlacklistConfirmed, check.Blacklists[enum.BlacklistSpamhaus])
	assert.True(t, check.Blacklists.AnyConfirmed())
	assert.Equal(t, 70, check.Score)
}

func TestCheckDomain_UnreachableBlacklistIsNotClean(t *testing.T) {
	resolver := healthyResolver()
	resolver.broken["9.113.0.203."+enum.BlacklistSpamcop.Zone()] = true
	service := NewDNSCheckService(resolver, time.Minute)

	check, err := service.CheckDomain(context.Background(), "example.com")

	require.NoError(t, err)
	assert.Equal(t, enum.BlacklistUnreachable, check.Blacklists[enum.BlacklistSpamcop])
	assert.False(t, check.Blacklists.AllNotListed())
	assert.Equal(t, 90, check.Score)
}

func TestCheckDomain_DKIMFallbackSelectors(t *testing.T) {
	resolver := healthyResolver()
	delete(resolver.txt, "default._domainkey.example.com")
	resolver.txt["google._domainkey.example.com"] = []string{"v=DKIM1; p=MIGf"}
	service := NewDNSCheckService(resolver, time.Minute)

	check, err := service.CheckDomain(context.Background(), "example.com")

	require.NoError(t, err)
	require.NotNil(t, check.DKIMValid)
	assert.True(t, *check.DKIMValid)
}

func TestCheckDomain_CachesResults(t *testing.T) {
	resolver := healthyResolver()
	service := NewDNSCheckService(resolver, time.Minute)

	first, err := service.CheckDomain(context.Background(), "example.com")
	require.NoError(t, err)

	// Break the resolver. The cached verdict should still be served.
	resolver.broken["example.com"] = true
	second, err := service.CheckDomain(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, first.Score, second.Score)

	// After invalidation the broken resolver shows through.
	service.InvalidateCache("example.com")
	third, err := service.CheckDomain(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Nil(t, third.SPFValid)
}

func TestCheckDomain_DKIMKeyOnlyRecordIsValid(t *testing.T) {
	resolver := healthyResolver()
	// Some providers publish the key without the v=DKIM1 prefix.
	resolver.txt["default._domainkey.example.com"] = []string{"k=rsa; t=s"}
	service := NewDNSCheckService(resolver, time.Minute)

	check, err := service.CheckDomain(context.Background(), "example.com")

	require.NoError(t, err)
	require.NotNil(t, check.DKIMValid)
	assert.True(t, *check.DKIMValid)
}

func TestCheckDomain_MemoizesLookupsPerHostname(t *testing.T) {
	resolver := healthyResolver()
	service := NewDNSCheckService(resolver, time.Minute)

	_, err := service.CheckDomain(context.Background(), "example.com")
	require.NoError(t, err)
	_, err = service.CheckDomain(context.Background(), "example.com")
	require.NoError(t, err)

	// Each hostname is resolved once; the second check is served from
	// the memoized lookups.
	assert.Equal(t, 1, resolver.txtCalls["example.com"])
	assert.Equal(t, 1, resolver.txtCalls["_dmarc.example.com"])
	assert.Equal(t, 1, resolver.txtCalls["default._domainkey.example.com"])
}

func TestLookupCache_TransportFailuresExpireFaster(t *testing.T) {
	resolver := healthyResolver()
	resolver.broken["flaky.com"] = true
	cache := newCachingResolver(resolver, 10*time.Minute)
	current := time.Now()
	cache.now = func() time.Time { return current }

	_, err := cache.LookupTXT(context.Background(), "example.com")
	require.NoError(t, err)
	_, err = cache.LookupTXT(context.Background(), "flaky.com")
	require.Error(t, err)
	// An empty answer is a conclusive verdict and keeps the full TTL.
	_, err = cache.LookupTXT(context.Background(), "empty.com")
	require.ErrorIs(t, err, ErrNoRecords)

	current = current.Add(negativeCacheTTL + time.Second)
	_, goodStillCached := cache.get("txt:example.com")
	_, emptyStillCached := cache.get("txt:empty.com")
	_, flakyStillCached := cache.get("txt:flaky.com")
	assert.True(t, goodStillCached)
	assert.True(t, emptyStillCached)
	assert.False(t, flakyStillCached)
}
