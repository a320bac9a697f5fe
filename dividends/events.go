package dividends

import (
	"time"

	"github.com/bitfsorg/libdividends-go/ledger"
)

// Event is something an instance emits after a state change commits.
type Event interface {
	EventName() string
}

// Listener receives events. Listeners run after the instance lock has been
// released and may call back into the instance.
type Listener func(Event)

// TransferEvent records a share balance change. Mints have a zero From,
// burns a zero To.
type TransferEvent struct {
	From   ledger.Address
	To     ledger.Address
	Amount uint64
	At     time.Time
}

func (TransferEvent) EventName() string { return "Transfer" }

// PaymentReleased records a dividend payout that left the gateway.
type PaymentReleased struct {
	To     ledger.Address
	Amount uint64
	Kind   ReleaseKind
	At     time.Time
}

func (PaymentReleased) EventName() string { return "PaymentReleased" }

// ReleaseKind names which balance a payout was drawn from.
type ReleaseKind string

const (
	KindPending  ReleaseKind = "pending"
	KindWithheld ReleaseKind = "withheld"
	KindAll      ReleaseKind = "all"
)
