package store

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libdividends-go/ledger"
)

var (
	bucketInstances   = []byte("instances")
	bucketCheckpoints = []byte("checkpoints")
)

// BoltStore persists instances and checkpoints in a bbolt database.
// Checkpoints live in one nested bucket per instance, keyed by big-endian
// sequence number so a cursor walks them in order.
type BoltStore struct {
	db    *bbolt.DB
	clock clockwork.Clock
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string, opts ...Option) (*BoltStore, error) {
	o := buildOptions(opts)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketInstances, bucketCheckpoints} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}
	return &BoltStore{db: db, clock: o.clock}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *BoltStore) Path() string { return s.db.Path() }

func (s *BoltStore) PutInstance(inst *Instance) error {
	if inst == nil {
		return ErrNilParam
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = s.clock.Now().UTC()
	}
	data, err := encodeGob(inst)
	if err != nil {
		return fmt.Errorf("store: encode instance: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketInstances).Put(inst.Address[:], data); err != nil {
			return fmt.Errorf("store: put instance: %w", err)
		}
		return nil
	})
}

func (s *BoltStore) GetInstance(addr ledger.Address) (*Instance, error) {
	var inst Instance
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketInstances).Get(addr[:])
		if data == nil {
			return ErrNotFound
		}
		return decodeGob(data, &inst)
	})
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *BoltStore) ListInstances() ([]*Instance, error) {
	var out []*Instance
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketInstances).ForEach(func(_, v []byte) error {
			var inst Instance
			if err := decodeGob(v, &inst); err != nil {
				return fmt.Errorf("store: decode instance: %w", err)
			}
			out = append(out, &inst)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) SaveCheckpoint(cp *Checkpoint) error {
	if cp == nil {
		return ErrNilParam
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketInstances).Get(cp.Instance[:]) == nil {
			return ErrUnknownInstance
		}
		b, err := tx.Bucket(bucketCheckpoints).CreateBucketIfNotExists(cp.Instance[:])
		if err != nil {
			return fmt.Errorf("store: create checkpoint bucket: %w", err)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("store: next sequence: %w", err)
		}
		stamp(cp, seq, s.clock.Now())

		data, err := encodeGob(cp)
		if err != nil {
			return fmt.Errorf("store: encode checkpoint: %w", err)
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return fmt.Errorf("store: put checkpoint: %w", err)
		}
		return nil
	})
}

func (s *BoltStore) LatestCheckpoint(addr ledger.Address) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints).Bucket(addr[:])
		if b == nil {
			return ErrNotFound
		}
		_, v := b.Cursor().Last()
		if v == nil {
			return ErrNotFound
		}
		return decodeGob(v, &cp)
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *BoltStore) ListCheckpoints(addr ledger.Address) ([]*Checkpoint, error) {
	var out []*Checkpoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints).Bucket(addr[:])
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var cp Checkpoint
			if err := decodeGob(v, &cp); err != nil {
				return fmt.Errorf("store: decode checkpoint: %w", err)
			}
			out = append(out, &cp)
			return nil
		})
	})
	return out, err
}

// seqKey encodes a sequence number as an 8-byte big-endian key for sorted storage.
func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
