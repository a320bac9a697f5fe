// Package paymail resolves paymail handles to payee addresses through the
// bsvalias PKI capability.
package paymail

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/libdividends-go/internal/logger"
	"github.com/bitfsorg/libdividends-go/ledger"
)

// Capability keys accepted for the PKI endpoint.
const (
	capPKI    = "pki"
	capPKIURN = "6745385c3fc0"
)

const maxBody = 1 << 20

// Client resolves paymail handles.
type Client struct {
	dns  DNSResolver
	http *http.Client
	log  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithDNSResolver replaces the system resolver, for example with a
// DNSSECResolver.
func WithDNSResolver(r DNSResolver) Option { return func(c *Client) { c.dns = r } }

// WithHTTPClient sets the client used for discovery and PKI requests.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option { return func(c *Client) { c.log = log } }

// NewClient returns a Client using the system resolver and a 30s HTTP timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		dns:  NetResolver{},
		http: &http.Client{Timeout: 30 * time.Second},
		log:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wellKnown struct {
	BSVAlias     string                 `json:"bsvalias"`
	Capabilities map[string]interface{} `json:"capabilities"`
}

type pkiResponse struct {
	Handle string `json:"handle"`
	PubKey string `json:"pubkey"`
}

// Resolve returns the P2PKH address of the key published for handle.
func (c *Client) Resolve(ctx context.Context, handle string) (ledger.Address, error) {
	h, err := ParseHandle(handle)
	if err != nil {
		return ledger.ZeroAddress, err
	}

	host := serviceHost(ctx, c.dns, h.Domain)
	var doc wellKnown
	if err := c.getJSON(ctx, "https://"+host+"/.well-known/bsvalias", &doc); err != nil {
		return ledger.ZeroAddress, fmt.Errorf("%w: %s: %w", ErrDiscovery, h.Domain, err)
	}
	tmpl := pkiTemplate(doc.Capabilities)
	if tmpl == "" {
		return ledger.ZeroAddress, fmt.Errorf("%w: %s has no pki capability", ErrDiscovery, h.Domain)
	}

	url := strings.NewReplacer("{alias}", h.Alias, "{domain.tld}", h.Domain).Replace(tmpl)
	var pki pkiResponse
	if err := c.getJSON(ctx, url, &pki); err != nil {
		return ledger.ZeroAddress, fmt.Errorf("%w: %s: %w", ErrPKIResolution, h, err)
	}
	pub, err := parsePubKey(pki.PubKey)
	if err != nil {
		return ledger.ZeroAddress, err
	}
	addr, err := ledger.AddressFromPubKeyHash(pub.Hash())
	if err != nil {
		return ledger.ZeroAddress, err
	}
	c.log.Debug("paymail resolved", "handle", h.String(), "host", host, "address", addr.String())
	return addr, nil
}

func pkiTemplate(caps map[string]interface{}) string {
	for _, key := range []string{capPKI, capPKIURN} {
		if s, ok := caps[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) getJSON(ctx context.Context, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func parsePubKey(s string) (*ec.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 33 || (raw[0] != 0x02 && raw[0] != 0x03) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPubKey, s)
	}
	pub, err := ec.PublicKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
	}
	return pub, nil
}
