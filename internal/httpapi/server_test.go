package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/bitfsorg/libdividends-go/dividends"
	"github.com/bitfsorg/libdividends-go/gateway"
	"github.com/bitfsorg/libdividends-go/internal/logger"
	"github.com/bitfsorg/libdividends-go/internal/metrics"
	"github.com/bitfsorg/libdividends-go/ledger"
)

func makeAddr(seed byte) ledger.Address {
	var a ledger.Address
	for i := range a {
		a[i] = seed
	}
	return a
}

type flakyGateway struct{ down bool }

func (g *flakyGateway) Balance(context.Context) (uint64, error) {
	if g.down {
		return 0, errors.New("node down")
	}
	return 0, nil
}

func (g *flakyGateway) Send(context.Context, ledger.Address, uint64) error {
	return errors.New("node down")
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *dividends.Token) {
	t.Helper()
	ctx := context.Background()
	gw := gateway.NewMemory()
	tok, err := dividends.NewNative("Dividend Shares", "DIV", gw)
	require.NoError(t, err)
	require.NoError(t, tok.Mint(ctx, ledger.ZeroAddress, makeAddr(0x01), 20))
	require.NoError(t, tok.Mint(ctx, ledger.ZeroAddress, makeAddr(0x02), 80))
	require.NoError(t, gw.Deposit(1000))
	return New([]*dividends.Token{tok}, logger.Discard(), opts...), tok
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Instances(t *testing.T) {
	s, tok := newTestServer(t)

	rec := get(t, s, "/v1/instances")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []InstanceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "DIV", list[0].Symbol)
	assert.Equal(t, uint64(100), list[0].TotalSupply)
	assert.Equal(t, 2, list[0].Holders)
	assert.Equal(t, "native", list[0].Payment)
	assert.Empty(t, list[0].Asset)

	rec = get(t, s, "/v1/instances/"+tok.Address().Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	var one InstanceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, tok.Address().String(), one.Address)
}

func TestServer_Holders(t *testing.T) {
	s, tok := newTestServer(t)
	base := "/v1/instances/" + tok.Address().Hex()

	rec := get(t, s, base+"/holders/"+makeAddr(0x02).Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	var h HolderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, uint64(80), h.Shares)
	assert.Equal(t, uint64(800), h.Pending)

	rec = get(t, s, base+"/holders")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []HolderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	var total uint64
	for _, v := range all {
		total += v.Pending
	}
	assert.Equal(t, uint64(1000), total)
	assert.Equal(t, "1000", tok.TotalAccounted().String())
}

func TestServer_Errors(t *testing.T) {
	s, tok := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/v1/instances/nope").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/v1/instances/"+makeAddr(0x77).Hex()).Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/v1/instances/"+tok.Address().Hex()+"/holders/zz").Code)

	gw := &flakyGateway{}
	broken, err := dividends.NewNative("Broken", "BRK", gw)
	require.NoError(t, err)
	require.NoError(t, broken.Mint(context.Background(), ledger.ZeroAddress, makeAddr(0x01), 1))
	gw.down = true
	bs := New([]*dividends.Token{broken}, logger.Discard())
	rec := get(t, bs, "/v1/instances/"+broken.Address().Hex()+"/holders")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "node down")
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200"))
	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200")))

	rec = get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dividends_http_requests_total")
}

func TestServer_RateLimit(t *testing.T) {
	s, _ := newTestServer(t, WithRateLimit(rate.Every(time.Hour), 2))

	assert.Equal(t, http.StatusOK, get(t, s, "/v1/instances").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/v1/instances").Code)
	rec := get(t, s, "/v1/instances")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Health checks are not limited.
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)
}

func TestServer_RateLimitRefillsWithClock(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	s, _ := newTestServer(t, WithRateLimit(rate.Every(time.Minute), 1), WithClock(fc))

	assert.Equal(t, http.StatusOK, get(t, s, "/v1/instances").Code)
	rec := get(t, s, "/v1/instances")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	fc.Advance(time.Minute)
	assert.Equal(t, http.StatusOK, get(t, s, "/v1/instances").Code)
}

func TestRateLimiter_Prune(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	rl := NewRateLimiter(rate.Every(time.Hour), 1, fc)

	ok, _ := rl.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, wait := rl.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))

	fc.Advance(staleAfter + time.Second)
	ok, _ = rl.Allow("10.0.0.2")
	assert.True(t, ok)
	assert.NotContains(t, rl.limiters, "10.0.0.1")
}
