// Package cache persists joined address tables keyed by a content
// fingerprint of the join inputs, so a rerun on unchanged data skips the
// spatial join.
package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/synthpop/internal/geotable"
	"github.com/sells-group/synthpop/internal/metrics"
)

// Entry describes one cached table.
type Entry struct {
	Key       Key       `yaml:"key"`
	CRS       string    `yaml:"crs"`
	Source    string    `yaml:"source"`
	Rows      int       `yaml:"rows"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Store persists joined tables. Get returns (nil, nil) on a miss.
type Store interface {
	Get(ctx context.Context, key Key) (*geotable.Table, error)
	Put(ctx context.Context, key Key, t *geotable.Table) error
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, key Key) error
	Close() error
}

// ComputeFunc produces the table to cache on a miss.
type ComputeFunc func(ctx context.Context) (*geotable.Table, error)

// Layer is the get-or-compute front of a Store.
type Layer struct {
	store Store
	log   *zap.Logger
}

// NewLayer wraps store. A nil store behaves like NopStore.
func NewLayer(store Store) *Layer {
	if store == nil {
		store = NopStore{}
	}
	return &Layer{store: store, log: zap.L().With(zap.String("component", "cache.layer"))}
}

// GetOrCompute returns the table cached under key, or runs compute and
// persists its result before returning. The bool reports a cache hit.
// An unreadable entry is logged and recomputed.
func (l *Layer) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (*geotable.Table, bool, error) {
	t, err := l.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		l.log.Warn("cache read failed, recomputing", zap.String("key", string(key)), zap.Error(err))
	case t != nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		l.log.Info("cache hit", zap.String("key", string(key)), zap.Int("rows", t.Len()))
		return t, true, nil
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		l.log.Info("cache miss", zap.String("key", string(key)))
	}

	t, err = compute(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := l.store.Put(ctx, key, t); err != nil {
		return nil, false, eris.Wrapf(err, "cache: persist %s", key)
	}
	return t, false, nil
}

// NopStore never hits and discards writes.
type NopStore struct{}

func (NopStore) Get(context.Context, Key) (*geotable.Table, error) { return nil, nil }
func (NopStore) Put(context.Context, Key, *geotable.Table) error { return nil }
func (NopStore) List(context.Context) ([]Entry, error) { return nil, nil }
func (NopStore) Delete(context.Context, Key) error { return nil }
func (NopStore) Close() error { return nil }
