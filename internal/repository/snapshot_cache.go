package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"TrendScan/internal/domain/models"
	domrepo "TrendScan/internal/domain/repository"
	"TrendScan/pkg/cache"
)

const (
	snapshotKey   = "snapshot:latest"
	generationKey = "snapshot:generation"
	rowPrefix     = "row"
)

// SnapshotCache implements SnapshotCache on any cache.Store. The whole
// snapshot lives under one key. Rows are also stored per symbol under the
// snapshot's generation, so a row left over from an earlier week is never
// read back once a newer snapshot is in place.
type SnapshotCache struct {
	c   cache.Store
	ttl time.Duration
}

var _ domrepo.SnapshotCache = (*SnapshotCache)(nil)

func NewSnapshotCache(c cache.Store, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{c: c, ttl: ttl}
}

// generation identifies one snapshot: its run id, or its date for snapshots
// rebuilt without one.
func generation(snap *models.Snapshot) string {
	if snap.Meta.RunID != "" {
		return snap.Meta.RunID
	}
	return snap.Date.Format(time.DateOnly)
}

func rowKey(gen, symbol string) string {
	return cache.Key(rowPrefix, gen, symbol)
}

// Put stores rows before the generation pointer and the snapshot, so a
// reader never follows a pointer to rows that are not written yet.
func (s *SnapshotCache) Put(ctx context.Context, snap *models.Snapshot) error {
	gen := generation(snap)
	rows := make(map[string]interface{}, len(snap.Rows))
	for _, r := range snap.Rows {
		rows[rowKey(gen, r.Symbol)] = r
	}
	if len(rows) > 0 {
		if err := s.c.MSet(ctx, rows, s.ttl); err != nil {
			return err
		}
	}
	if err := s.c.Set(ctx, generationKey, gen, s.ttl); err != nil {
		return err
	}
	return s.c.Set(ctx, snapshotKey, snap, s.ttl)
}

func (s *SnapshotCache) Latest(ctx context.Context) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := s.c.Get(ctx, snapshotKey, &snap); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domrepo.ErrNotFound
		}
		return nil, err
	}
	return &snap, nil
}

// Rows returns the current snapshot's cached rows for symbols; unknown
// symbols are absent. With no current generation the result is empty.
func (s *SnapshotCache) Rows(ctx context.Context, symbols ...string) (map[string]models.SnapshotRow, error) {
	var gen string
	if err := s.c.Get(ctx, generationKey, &gen); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return map[string]models.SnapshotRow{}, nil
		}
		return nil, err
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = rowKey(gen, sym)
	}
	byKey, err := cache.MGetTyped[models.SnapshotRow](ctx, s.c, keys...)
	if err != nil {
		return nil, err
	}
	prefix := rowKey(gen, "")
	out := make(map[string]models.SnapshotRow, len(byKey))
	for k, r := range byKey {
		out[strings.TrimPrefix(k, prefix)] = r
	}
	return out, nil
}
