package index

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/wikidump/pkg/errors"
)

// MemTable is an in-process Table. It keeps the first offset seen for each
// title and a sorted slice of distinct offsets for range queries.
type MemTable struct {
	mu      sync.RWMutex
	loaded  bool
	titles  map[string]uint64
	offsets []uint64
}

func NewMemTable() *MemTable {
	return &MemTable{}
}

func (m *MemTable) Load(ctx context.Context, fill func(insert InsertFunc) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return apperrors.ErrIndexExists
	}

	titles := make(map[string]uint64)
	seen := make(map[uint64]struct{})
	offsets := make([]uint64, 0)
	err := fill(func(rec Record) error {
		if _, ok := titles[rec.Title]; !ok {
			titles[rec.Title] = rec.Offset
		}
		if _, ok := seen[rec.Offset]; !ok {
			seen[rec.Offset] = struct{}{}
			offsets = append(offsets, rec.Offset)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	m.titles = titles
	m.offsets = offsets
	m.loaded = true
	return nil
}

func (m *MemTable) Lookup(_ context.Context, title string) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	offset, ok := m.titles[title]
	return offset, ok, nil
}

func (m *MemTable) NextOffset(_ context.Context, offset uint64) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := sort.Search(len(m.offsets), func(i int) bool {
		return m.offsets[i] > offset
	})
	if i >= len(m.offsets) {
		return 0, false, nil
	}
	return m.offsets[i], true, nil
}

func (m *MemTable) Drop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles = nil
	m.offsets = nil
	m.loaded = false
	return nil
}

// Len returns the number of distinct titles.
func (m *MemTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.titles)
}

func (m *MemTable) Close() error {
	return nil
}
