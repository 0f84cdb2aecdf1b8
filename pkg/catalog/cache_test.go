package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingCatalog struct {
	Catalog
	tables []string
	err    error
	calls  atomic.Int32
}

func (c *countingCatalog) ListTables(context.Context) ([]string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.tables, nil
}

var _ Invalidator = (*Cached)(nil)

func TestTextToSQL_Catalog_Cached(t *testing.T) {
	t.Parallel()

	t.Run("requires a positive ttl", func(t *testing.T) {
		t.Parallel()
		_, err := NewCached(&countingCatalog{}, 0)
		require.ErrorContains(t, err, "ttl must be positive")
		_, err = NewCached(nil, time.Minute)
		require.ErrorContains(t, err, "catalog is required")
	})

	t.Run("serves the table list from cache until invalidated", func(t *testing.T) {
		t.Parallel()
		inner := &countingCatalog{tables: []string{"users", "orders"}}
		cached, err := NewCached(inner, time.Hour)
		require.NoError(t, err)

		for range 3 {
			tables, err := cached.ListTables(t.Context())
			require.NoError(t, err)
			require.Equal(t, []string{"users", "orders"}, tables)
		}
		require.EqualValues(t, 1, inner.calls.Load())

		cached.Invalidate()
		_, err = cached.ListTables(t.Context())
		require.NoError(t, err)
		require.EqualValues(t, 2, inner.calls.Load())
	})

	t.Run("callers cannot mutate the cached list", func(t *testing.T) {
		t.Parallel()
		inner := &countingCatalog{tables: []string{"users"}}
		cached, err := NewCached(inner, time.Hour)
		require.NoError(t, err)

		_, err = cached.ListTables(t.Context())
		require.NoError(t, err)
		tables, err := cached.ListTables(t.Context())
		require.NoError(t, err)
		tables[0] = "mutated"

		tables, err = cached.ListTables(t.Context())
		require.NoError(t, err)
		require.Equal(t, []string{"users"}, tables)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		t.Parallel()
		inner := &countingCatalog{err: errors.New("database is locked")}
		cached, err := NewCached(inner, time.Hour)
		require.NoError(t, err)

		_, err = cached.ListTables(t.Context())
		require.ErrorContains(t, err, "database is locked")
		_, err = cached.ListTables(t.Context())
		require.Error(t, err)
		require.EqualValues(t, 2, inner.calls.Load())
	})

	t.Run("entries expire after the ttl", func(t *testing.T) {
		t.Parallel()
		inner := &countingCatalog{tables: []string{"users"}}
		cached, err := NewCached(inner, 20*time.Millisecond)
		require.NoError(t, err)

		_, err = cached.ListTables(t.Context())
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			_, err := cached.ListTables(t.Context())
			return err == nil && inner.calls.Load() >= 2
		}, time.Second, 10*time.Millisecond)
	})
}
