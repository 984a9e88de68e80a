package store

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

type pairKey struct {
	boardID string
	address string
}

// MemoryStore keeps samples in process memory.
type MemoryStore struct {
	references *xsync.MapOf[pairKey, Sample]
	samples    *xsync.MapOf[pairKey, []Sample]
}

var _ SampleStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		references: xsync.NewMapOf[pairKey, Sample](),
		samples:    xsync.NewMapOf[pairKey, []Sample](),
	}
}

func (m *MemoryStore) HasReference(ctx context.Context, boardID, address string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, ok := m.references.Load(pairKey{boardID, address})

	return ok, nil
}

func (m *MemoryStore) Put(ctx context.Context, s Sample, reference bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := pairKey{s.BoardID, s.Address}
	s.Data = append([]byte(nil), s.Data...)

	if reference {
		m.references.Store(key, s)
		return nil
	}

	m.samples.Compute(key, func(old []Sample, _ bool) ([]Sample, bool) {
		return append(old[:len(old):len(old)], s), false
	})

	return nil
}

func (m *MemoryStore) Reference(ctx context.Context, boardID, address string) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	s, ok := m.references.Load(pairKey{boardID, address})
	if !ok {
		return Sample{}, fmt.Errorf("%w: reference %s %s", ErrNotFound, boardID, address)
	}

	return s, nil
}

func (m *MemoryStore) Samples(ctx context.Context, boardID, address string) ([]Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples, _ := m.samples.Load(pairKey{boardID, address})

	return append([]Sample(nil), samples...), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
