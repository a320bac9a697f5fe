package paymail

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DNSResolver looks up SRV records.
type DNSResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error)
}

// NetResolver resolves through the system resolver.
type NetResolver struct{}

func (NetResolver) LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error) {
	_, srvs, err := net.DefaultResolver.LookupSRV(ctx, service, proto, name)
	return srvs, err
}

const (
	defaultUpstream = "8.8.8.8:53"
	dnssecTimeout   = 10 * time.Second
	edns0BufSize    = 4096
)

// DNSSECResolver queries an upstream recursive resolver with the DO bit set
// and only accepts answers carrying the AD flag.
type DNSSECResolver struct {
	Upstream string
	Net      string // "udp" (default) or "tcp"
}

// NewDNSSECResolver returns a resolver for upstream, defaulting to 8.8.8.8:53.
func NewDNSSECResolver(upstream string) *DNSSECResolver {
	if upstream == "" {
		upstream = defaultUpstream
	}
	return &DNSSECResolver{Upstream: upstream}
}

func (r *DNSSECResolver) LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error) {
	qname := fmt.Sprintf("_%s._%s.%s", service, proto, name)

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(qname), dns.TypeSRV)
	msg.RecursionDesired = true
	msg.SetEdns0(edns0BufSize, true)

	client := &dns.Client{Net: r.Net, Timeout: dnssecTimeout}
	resp, _, err := client.ExchangeContext(ctx, msg, r.Upstream)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDNSLookupFailed, qname, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%w: %s: rcode %s", ErrDNSLookupFailed, qname, dns.RcodeToString[resp.Rcode])
	}
	if !resp.AuthenticatedData {
		return nil, fmt.Errorf("%w: AD flag not set for %s", ErrDNSSECValidationFailed, qname)
	}

	var srvs []*net.SRV
	for _, rr := range resp.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			srvs = append(srvs, &net.SRV{Target: srv.Target, Port: srv.Port, Priority: srv.Priority, Weight: srv.Weight})
		}
	}
	if len(srvs) == 0 {
		return nil, fmt.Errorf("%w: no SRV records for %s", ErrDNSLookupFailed, qname)
	}
	return srvs, nil
}

// serviceHost returns the host:port serving domain's bsvalias documents:
// the best _bsvalias._tcp SRV target, or domain:443 when there is none.
func serviceHost(ctx context.Context, resolver DNSResolver, domain string) string {
	srvs, err := resolver.LookupSRV(ctx, "bsvalias", "tcp", domain)
	if err != nil || len(srvs) == 0 {
		return net.JoinHostPort(domain, "443")
	}
	sort.Slice(srvs, func(i, j int) bool {
		if srvs[i].Priority != srvs[j].Priority {
			return srvs[i].Priority < srvs[j].Priority
		}
		return srvs[i].Weight > srvs[j].Weight
	})
	best := srvs[0]
	return net.JoinHostPort(strings.TrimSuffix(best.Target, "."), fmt.Sprint(best.Port))
}
