package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

const (
	referencePrefix = "ref:"
	samplePrefix    = "sample:"

	sequenceBandwidth = 100
)

var sequenceKey = []byte("seq:samples")

// BadgerStore keeps samples in a badger database.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ SampleStore = (*BadgerStore)(nil)

// OpenBadgerStore opens or creates the database under dataDir.
func OpenBadgerStore(dataDir string) (*BadgerStore, error) {
	dbPath := filepath.Join(dataDir, "samples")

	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}

	return newBadgerStore(db)
}

// OpenInMemoryBadgerStore opens a badger database that lives in memory only.
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("store: open in-memory: %w", err)
	}

	return newBadgerStore(db)
}

func newBadgerStore(db *badger.DB) (*BadgerStore, error) {
	seq, err := db.GetSequence(sequenceKey, sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: sequence: %w", err)
	}

	return &BadgerStore{db: db, seq: seq}, nil
}

func referenceKey(boardID, address string) []byte {
	return []byte(referencePrefix + boardID + ":" + address)
}

func samplePrefixKey(boardID, address string) []byte {
	return []byte(samplePrefix + boardID + ":" + address + ":")
}

// sampleKey orders samples of one pair by creation time, then by sequence.
func sampleKey(s Sample, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d:%020d", samplePrefix, s.BoardID, s.Address, s.CreatedAt.UnixNano(), seq))
}

// HasReference reports whether a reference is stored for the pair.
func (s *BadgerStore) HasReference(ctx context.Context, boardID, address string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(referenceKey(boardID, address))
		return err
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("store: lookup reference: %w", err)
	}
}

// Put stores sample as the pair's reference or as a new sample.
func (s *BadgerStore) Put(ctx context.Context, sample Sample, reference bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("store: encode sample: %w", err)
	}

	if reference {
		return s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(referenceKey(sample.BoardID, sample.Address), val)
		})
	}

	seq, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("store: sequence: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sampleKey(sample, seq), val)
	})
}

// Reference returns the pair's reference, or ErrNotFound.
func (s *BadgerStore) Reference(ctx context.Context, boardID, address string) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	var sample Sample
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(referenceKey(boardID, address))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sample)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return Sample{}, fmt.Errorf("%w: reference %s %s", ErrNotFound, boardID, address)
	}
	if err != nil {
		return Sample{}, fmt.Errorf("store: load reference: %w", err)
	}

	return sample, nil
}

// Samples returns the pair's samples, oldest first.
func (s *BadgerStore) Samples(ctx context.Context, boardID, address string) ([]Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var samples []Sample
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := samplePrefixKey(boardID, address)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sample Sample
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sample)
			}); err != nil {
				return err
			}
			samples = append(samples, sample)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list samples: %w", err)
	}

	return samples, nil
}

// Close releases the sequence and closes the database.
func (s *BadgerStore) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}

