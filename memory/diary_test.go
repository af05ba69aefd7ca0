package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/store"
)

func TestDiary_WriteStoresAndIndexes(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	idx := NewInMemoryIndex()
	d := NewDiary(st, idx)

	id, err := d.Write(ctx, "u1", "Scout", "ops", "found three suppliers in Berlin")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	recs, err := d.Recent(ctx, "u1", "Scout", "ops", 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "diary-u1-Scout-ops", recs[0].Key)

	hits, err := idx.Search(ctx, "suppliers", core.DiaryNamespace("u1", "Scout", "ops"), nil, 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)
	assert.Equal(t, "Scout", hits[0].Metadata["agent"])
}

func TestDiary_IgnoresBlankEntries(t *testing.T) {
	st := store.NewInMemoryStore()
	id, err := NewDiary(st, nil).Write(context.Background(), "u", "a", "t", "   ")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, 0, st.Len())
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "Asked: hi there | Answered: hello", Summarize("hi\n  there", "hello", 0))

	long := Summarize(strings.Repeat("x", 100), "y", 20)
	assert.Equal(t, 20, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "…"))
}
