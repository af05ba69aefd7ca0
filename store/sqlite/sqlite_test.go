package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/internal/storetest"
)

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.DataStore {
		s, err := Open(context.Background(), ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "teammesh.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)

	id, err := s.StoreData(ctx, core.Record{Key: "notes", Content: "hello"}, false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	rec, ok, err := s.GetDataSingle(ctx, "notes", core.Meta{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "hello", rec.Content)
}
