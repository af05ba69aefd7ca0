// Package storetest holds the conformance suite every core.DataStore backend
// runs in its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/teammesh/core"
)

// Run exercises the record semantics of the store returned by newStore. Each
// subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) core.DataStore) {
	t.Helper()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(n int) time.Time { return base.Add(time.Duration(n) * time.Second) }

	t.Run("overwrite without allowMultiple", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		id1, err := s.StoreData(ctx, core.Record{Key: "k", Content: "v1", Meta: core.Meta{Meta1: "a"}, CreatedAt: at(1)}, false)
		require.NoError(t, err)
		id2, err := s.StoreData(ctx, core.Record{Key: "k", Content: "v2", Meta: core.Meta{Meta1: "a"}, CreatedAt: at(2)}, false)
		require.NoError(t, err)
		assert.Equal(t, id1, id2)

		rec, ok, err := s.GetDataSingle(ctx, "k", core.Meta{Meta1: "a"})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v2", rec.Content)

		// Different metadata is a different record.
		id3, err := s.StoreData(ctx, core.Record{Key: "k", Content: "v3", Meta: core.Meta{Meta1: "b"}, CreatedAt: at(3)}, false)
		require.NoError(t, err)
		assert.NotEqual(t, id1, id3)

		recs, err := s.GetDataMany(ctx, "k", core.Meta{}, 0)
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("allowMultiple appends", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		for i, c := range []string{"one", "two", "three"} {
			_, err := s.StoreData(ctx, core.Record{Key: "k", Content: c, Meta: core.Meta{Meta2: "x"}, CreatedAt: at(i)}, true)
			require.NoError(t, err)
		}
		_, err := s.StoreData(ctx, core.Record{Key: "other", Content: "nope", CreatedAt: at(9)}, true)
		require.NoError(t, err)

		recs, err := s.GetDataMany(ctx, "k", core.Meta{}, 0)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "three", recs[0].Content)
		assert.Equal(t, "one", recs[2].Content)
		assert.True(t, recs[0].CreatedAt.Equal(at(2)))

		recs, err = s.GetDataMany(ctx, "k", core.Meta{Meta2: "x"}, 2)
		require.NoError(t, err)
		assert.Len(t, recs, 2)

		recs, err = s.GetDataMany(ctx, "k", core.Meta{Meta2: "y"}, 0)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		id, err := s.StoreData(ctx, core.Record{Key: "k", Content: "v"}, false)
		require.NoError(t, err)
		require.NoError(t, s.DeleteData(ctx, id))

		err = s.DeleteData(ctx, id)
		assert.True(t, errors.Is(err, core.ErrNotFound))

		_, ok, err := s.GetDataSingle(ctx, "k", core.Meta{})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := newStore(t).StoreData(context.Background(), core.Record{Content: "v"}, false)
		assert.Error(t, err)
	})
}
