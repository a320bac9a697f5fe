// Package store persists dividend-token instances and their checkpoints.
//
// A checkpoint pairs the share ledger's snapshot with the serialized
// revenue-sharing state, taken at a point where no payout was in flight.
// Restoring both halves reproduces every balance, owed amount, and
// withheld amount exactly.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/bitfsorg/libdividends-go/ledger"
)

// PaymentKind names how an instance receives and pays out funds.
type PaymentKind string

const (
	KindNative PaymentKind = "native"
	KindToken  PaymentKind = "token"
)

// Instance describes a deployed dividend-paying token.
type Instance struct {
	Address   ledger.Address
	Name      string
	Symbol    string
	Decimals  uint8
	Kind      PaymentKind
	Asset     ledger.Address // payment token; zero for native
	Minter    ledger.Address // zero when mint and burn are unrestricted
	CreatedAt time.Time
}

// Checkpoint is a point-in-time copy of an instance's state.
type Checkpoint struct {
	ID        string
	Instance  ledger.Address
	Seq       uint64
	CreatedAt time.Time
	Ledger    ledger.Snapshot
	Engine    []byte // revshare.SerializeState output
}

// Store persists instances and checkpoints.
type Store interface {
	// PutInstance registers or replaces an instance record. CreatedAt is
	// stamped if unset.
	PutInstance(inst *Instance) error

	// GetInstance returns the instance at addr.
	GetInstance(addr ledger.Address) (*Instance, error)

	// ListInstances returns all instances ordered by address.
	ListInstances() ([]*Instance, error)

	// SaveCheckpoint appends a checkpoint for a registered instance,
	// assigning its ID, Seq, and CreatedAt.
	SaveCheckpoint(cp *Checkpoint) error

	// LatestCheckpoint returns the checkpoint with the highest Seq.
	LatestCheckpoint(addr ledger.Address) (*Checkpoint, error)

	// ListCheckpoints returns all checkpoints of an instance in Seq order.
	ListCheckpoints(addr ledger.Address) ([]*Checkpoint, error)

	// Close releases resources held by the store.
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	clock clockwork.Clock
}

// WithClock sets the clock used to stamp records.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func stamp(cp *Checkpoint, seq uint64, now time.Time) {
	cp.ID = uuid.NewString()
	cp.Seq = seq
	cp.CreatedAt = now.UTC()
}

// MemStore is an in-memory Store for testing.
type MemStore struct {
	mu          sync.RWMutex
	clock       clockwork.Clock
	instances   map[ledger.Address]*Instance
	checkpoints map[ledger.Address][]*Checkpoint
	closed      bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	o := buildOptions(opts)
	return &MemStore{
		clock:       o.clock,
		instances:   make(map[ledger.Address]*Instance),
		checkpoints: make(map[ledger.Address][]*Checkpoint),
	}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) PutInstance(inst *Instance) error {
	if inst == nil {
		return ErrNilParam
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cp := *inst
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.clock.Now().UTC()
		inst.CreatedAt = cp.CreatedAt
	}
	s.instances[cp.Address] = &cp
	return nil
}

func (s *MemStore) GetInstance(addr ledger.Address) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	inst, ok := s.instances[addr]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (s *MemStore) ListInstances() ([]*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		cp := *inst
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Compare(out[j].Address) < 0 })
	return out, nil
}

func (s *MemStore) SaveCheckpoint(cp *Checkpoint) error {
	if cp == nil {
		return ErrNilParam
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.instances[cp.Instance]; !ok {
		return ErrUnknownInstance
	}
	stamp(cp, uint64(len(s.checkpoints[cp.Instance]))+1, s.clock.Now())
	stored := cloneCheckpoint(cp)
	s.checkpoints[cp.Instance] = append(s.checkpoints[cp.Instance], stored)
	return nil
}

func (s *MemStore) LatestCheckpoint(addr ledger.Address) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	list := s.checkpoints[addr]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return cloneCheckpoint(list[len(list)-1]), nil
}

func (s *MemStore) ListCheckpoints(addr ledger.Address) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	list := s.checkpoints[addr]
	out := make([]*Checkpoint, len(list))
	for i, cp := range list {
		out[i] = cloneCheckpoint(cp)
	}
	return out, nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneCheckpoint(cp *Checkpoint) *Checkpoint {
	out := *cp
	out.Ledger.Holders = append([]ledger.Holding(nil), cp.Ledger.Holders...)
	out.Ledger.Allowances = append([]ledger.Allowance(nil), cp.Ledger.Allowances...)
	out.Engine = append([]byte(nil), cp.Engine...)
	return &out
}
