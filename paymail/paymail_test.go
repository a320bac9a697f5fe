package paymail

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libdividends-go/ledger"
)

func TestParseHandle(t *testing.T) {
	tests := []struct {
		in      string
		want    Handle
		wantErr bool
	}{
		{"alice@example.com", Handle{"alice", "example.com"}, false},
		{" Bob@Example.COM. ", Handle{"bob", "example.com"}, false},
		{"alice", Handle{}, true},
		{"@example.com", Handle{}, true},
		{"alice@", Handle{}, true},
		{"alice@localhost", Handle{}, true},
		{"a@b@example.com", Handle{}, true},
		{"alice@example.com:8080", Handle{}, true},
		{"al/ice@example.com", Handle{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHandle(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidHandle)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, IsHandle(tt.in))
		})
	}
}

type fakeDNS struct {
	srvs []*net.SRV
	err  error
}

func (f fakeDNS) LookupSRV(context.Context, string, string, string) ([]*net.SRV, error) {
	return f.srvs, f.err
}

// paymailServer serves bsvalias discovery and PKI for one handle.
func paymailServer(t *testing.T, pubHex string, caps map[string]interface{}) (*httptest.Server, fakeDNS) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)

	if caps == nil {
		caps = map[string]interface{}{capPKIURN: srv.URL + "/api/pki/{alias}@{domain.tld}"}
	}
	mux.HandleFunc("/.well-known/bsvalias", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(wellKnown{BSVAlias: "1.0", Capabilities: caps})
	})
	mux.HandleFunc("/api/pki/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pki/alice@example.com" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(pkiResponse{Handle: "alice@example.com", PubKey: pubHex})
	})

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return srv, fakeDNS{srvs: []*net.SRV{
		{Target: "unreachable.invalid.", Port: 1, Priority: 20},
		{Target: host + ".", Port: uint16(port), Priority: 10},
	}}
}

func TestClient_Resolve(t *testing.T) {
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	pub := priv.PubKey()
	want, err := ledger.AddressFromPubKeyHash(pub.Hash())
	require.NoError(t, err)

	srv, resolver := paymailServer(t, hex.EncodeToString(pub.Compressed()), nil)
	c := NewClient(WithDNSResolver(resolver), WithHTTPClient(srv.Client()))

	got, err := c.Resolve(context.Background(), "Alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = c.Resolve(context.Background(), "bob@example.com")
	assert.ErrorIs(t, err, ErrPKIResolution)
}

func TestClient_Resolve_Errors(t *testing.T) {
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	pubHex := hex.EncodeToString(priv.PubKey().Compressed())

	t.Run("no pki capability", func(t *testing.T) {
		srv, resolver := paymailServer(t, pubHex, map[string]interface{}{"f12f968c92d6": "x"})
		c := NewClient(WithDNSResolver(resolver), WithHTTPClient(srv.Client()))
		_, err := c.Resolve(context.Background(), "alice@example.com")
		assert.ErrorIs(t, err, ErrDiscovery)
	})

	t.Run("uncompressed key", func(t *testing.T) {
		srv, resolver := paymailServer(t, "04"+strings.Repeat("11", 64), nil)
		c := NewClient(WithDNSResolver(resolver), WithHTTPClient(srv.Client()))
		_, err := c.Resolve(context.Background(), "alice@example.com")
		assert.ErrorIs(t, err, ErrInvalidPubKey)
	})

	t.Run("bad handle", func(t *testing.T) {
		_, err := NewClient().Resolve(context.Background(), "nobody")
		assert.ErrorIs(t, err, ErrInvalidHandle)
	})
}

func TestServiceHost(t *testing.T) {
	got := serviceHost(context.Background(), fakeDNS{err: errors.New("nxdomain")}, "example.com")
	assert.Equal(t, "example.com:443", got)

	got = serviceHost(context.Background(), fakeDNS{srvs: []*net.SRV{
		{Target: "b.example.com.", Port: 2, Priority: 10, Weight: 1},
		{Target: "a.example.com.", Port: 1, Priority: 10, Weight: 9},
		{Target: "c.example.com.", Port: 3, Priority: 5, Weight: 0},
	}}, "example.com")
	assert.Equal(t, "c.example.com:3", got)
}

// startDNS runs an in-process DNS server answering every SRV query.
func startDNS(t *testing.T, authenticated bool) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			m.AuthenticatedData = authenticated
			m.Answer = append(m.Answer, &dns.SRV{
				Hdr:      dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 60},
				Priority: 10, Weight: 5, Port: 8443, Target: "pay.example.com.",
			})
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSSECResolver(t *testing.T) {
	assert.Equal(t, defaultUpstream, NewDNSSECResolver("").Upstream)

	r := NewDNSSECResolver(startDNS(t, true))
	srvs, err := r.LookupSRV(context.Background(), "bsvalias", "tcp", "example.com")
	require.NoError(t, err)
	require.Len(t, srvs, 1)
	assert.Equal(t, uint16(8443), srvs[0].Port)
	assert.Equal(t, "pay.example.com:8443", serviceHost(context.Background(), r, "example.com"))

	unsigned := NewDNSSECResolver(startDNS(t, false))
	_, err = unsigned.LookupSRV(context.Background(), "bsvalias", "tcp", "example.com")
	assert.ErrorIs(t, err, ErrDNSSECValidationFailed)
	assert.Equal(t, "example.com:443", serviceHost(context.Background(), unsigned, "example.com"))
}
