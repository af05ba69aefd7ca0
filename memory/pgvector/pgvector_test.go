package pgvector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/teammesh/core"
)

func TestLiteral(t *testing.T) {
	assert.Equal(t, "[]", Literal(nil))
	assert.Equal(t, "[1,0.5,-2]", Literal([]float32{1, 0.5, -2}))
}

// axisEmbedder maps texts onto three axes by keyword.
type axisEmbedder struct{}

func (axisEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := []float32{0.01, 0.01, 0.01}
		lt := strings.ToLower(t)
		if strings.Contains(lt, "rocket") {
			v[0] = 1
		}
		if strings.Contains(lt, "garden") {
			v[1] = 1
		}
		if strings.Contains(lt, "invoice") {
			v[2] = 1
		}
		out[i] = v
	}
	return out, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedder offline")
}

func connect(t *testing.T) *Index {
	t.Helper()

	dsn := os.Getenv("TEAMMESH_TEST_PGVECTOR_DSN")
	if dsn == "" {
		t.Skip("TEAMMESH_TEST_PGVECTOR_DSN not set")
	}

	table := "vectors_" + strings.ReplaceAll(core.NewID(), "-", "")
	idx, err := Connect(context.Background(), dsn, axisEmbedder{}, func(o *Options) {
		o.Dimensions = 3
		o.Table = table
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = idx.pool.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
		idx.Close()
	})

	return idx
}

func TestIndex_SearchRanksBySimilarity(t *testing.T) {
	idx := connect(t)
	ctx := context.Background()

	for _, d := range []core.SearchResult{
		{ID: "a", Content: "Rocket launch moved to May", Metadata: map[string]any{"agent": "Scout"}},
		{ID: "b", Content: "Garden watering schedule", Metadata: map[string]any{"agent": "Scout"}},
		{ID: "c", Content: "Invoice 42 paid", Metadata: map[string]any{"agent": "Clerk"}},
	} {
		require.NoError(t, idx.Index(ctx, "ns", d))
	}
	require.NoError(t, idx.Index(ctx, "other", core.SearchResult{ID: "z", Content: "rocket elsewhere"}))

	res, err := idx.Search(ctx, "when is the rocket launch?", "ns", nil, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].ID)
	assert.Greater(t, res[0].Score, res[1].Score)

	res, err = idx.Search(ctx, "rocket", "ns", map[string]any{"agent": "Clerk"}, 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "c", res[0].ID)

	require.NoError(t, idx.Delete(ctx, "ns", "a"))
	assert.True(t, errors.Is(idx.Delete(ctx, "ns", "a"), core.ErrNotFound))
}

func TestIndex_EmbedError(t *testing.T) {
	idx := &Index{embedder: failingEmbedder{}}

	err := idx.Index(context.Background(), "ns", core.SearchResult{Content: "x"})
	assert.ErrorContains(t, err, "embedder offline")

	_, err = idx.Search(context.Background(), "x", "ns", nil, 1)
	assert.ErrorContains(t, err, "embedder offline")
}
