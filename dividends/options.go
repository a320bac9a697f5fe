package dividends

import (
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/bitfsorg/libdividends-go/internal/logger"
	"github.com/bitfsorg/libdividends-go/ledger"
)

// DefaultDecimals matches the usual fungible-token convention.
const DefaultDecimals = 18

// Option configures a Token.
type Option func(*options)

type options struct {
	minter    *ledger.Address
	address   *ledger.Address
	decimals  uint8
	log       *slog.Logger
	clock     clockwork.Clock
	listeners []Listener
}

func buildOptions(opts []Option) options {
	o := options{
		decimals: DefaultDecimals,
		log:      logger.Discard(),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMinter restricts Mint and Burn to the given caller. Without it anyone
// may mint and burn.
func WithMinter(addr ledger.Address) Option {
	return func(o *options) { o.minter = &addr }
}

// WithAddress overrides the derived instance address.
func WithAddress(addr ledger.Address) Option {
	return func(o *options) { o.address = &addr }
}

// WithDecimals sets the share token's display decimals.
func WithDecimals(d uint8) Option {
	return func(o *options) { o.decimals = d }
}

// WithLogger sets the logger events and failures are written to.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClock sets the clock used to timestamp events.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithListener registers a listener for every event the instance emits.
func WithListener(l Listener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}
