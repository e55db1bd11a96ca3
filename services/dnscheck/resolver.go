package dnscheck

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// ErrNoRecords means the resolver answered authoritatively that the
// name has no records of the requested type. It is a conclusive
// negative, distinct from a transport failure.
var ErrNoRecords = errors.New("no records")

// Resolver abstracts the raw DNS lookups the checker needs, so tests
// can run against a fake instead of the network.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupA(ctx context.Context, name string) ([]net.IP, error)
}

type dnsResolver struct {
	client *dns.Client
	server string
}

// NewResolver builds a resolver against the given server address, e.g.
// "1.1.1.1:53".
func NewResolver(server string, timeout time.Duration) Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &dnsResolver{
		client: &dns.Client{Timeout: timeout},
		server: server,
	}
}

func (r *dnsResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true

	response, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, errors.Wrap(err, "txt lookup failed")
	}

	switch response.Rcode {
	case dns.RcodeSuccess:
		var records []string
		for _, answer := range response.Answer {
			if txt, ok := answer.(*dns.TXT); ok {
				var record string
				for _, part := range txt.Txt {
					record += part
				}
				records = append(records, record)
			}
		}
		if len(records) == 0 {
			return nil, ErrNoRecords
		}
		return records, nil
	case dns.RcodeNameError:
		return nil, ErrNoRecords
	default:
		return nil, errors.Errorf("txt lookup for %s returned rcode %d", name, response.Rcode)
	}
}

func (r *dnsResolver) LookupA(ctx context.Context, name string) ([]net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	msg.RecursionDesired = true

	response, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, errors.Wrap(err, "a lookup failed")
	}

	switch response.Rcode {
	case dns.RcodeSuccess:
		var ips []net.IP
		for _, answer := range response.Answer {
			if a, ok := answer.(*dns.A); ok {
				ips = append(ips, a.A)
			}
		}
		if len(ips) == 0 {
			return nil, ErrNoRecords
		}
		return ips, nil
	case dns.RcodeNameError:
		return nil, ErrNoRecords
	default:
		return nil, errors.Errorf("a lookup for %s returned rcode %d", name, response.Rcode)
	}
}
