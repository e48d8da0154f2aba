package vector

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	chromem "github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/pkg/schema"
)

// localEmbedding keeps tests offline: texts sharing vocabulary map to
// nearby unit vectors.
func localEmbedding() chromem.EmbeddingFunc {
	vocab := []string{"fed", "rates", "inflation", "stocks", "earnings"}
	return func(ctx context.Context, text string) ([]float32, error) {
		lower := strings.ToLower(text)
		vec := make([]float32, len(vocab)+1)
		vec[len(vocab)] = 0.1
		for i, word := range vocab {
			vec[i] = float32(strings.Count(lower, word))
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
		return vec, nil
	}
}

// --- Indexing ---

func TestIndex_AddAndCount(t *testing.T) {
	ix, err := NewIndex(Config{EmbeddingFunc: localEmbedding()})
	require.NoError(t, err)

	err = ix.Add(context.Background(), []Document{
		{ID: "a", Content: "fed holds rates"},
		{ID: "b", Content: "stocks rally on earnings"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Count())
}

func TestIndex_AddReplacesSameID(t *testing.T) {
	ix, err := NewIndex(Config{EmbeddingFunc: localEmbedding()})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ix.Add(ctx, []Document{{ID: "a", Content: "fed rates"}}))
	require.NoError(t, ix.Add(ctx, []Document{{ID: "a", Content: "stocks earnings"}}))
	assert.Equal(t, 1, ix.Count())

	hits, err := ix.Search(ctx, "stocks earnings", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "stocks earnings", hits[0].Content)
}

func TestIndex_AddRejectsIncompleteDocument(t *testing.T) {
	ix, err := NewIndex(Config{EmbeddingFunc: localEmbedding()})
	require.NoError(t, err)

	err = ix.Add(context.Background(), []Document{{ID: "", Content: "x"}})
	assert.Equal(t, schema.ErrCodeStore, schema.CodeOf(err))

	err = ix.Add(context.Background(), []Document{{ID: "a", Content: ""}})
	assert.Equal(t, schema.ErrCodeStore, schema.CodeOf(err))
}

// --- Search ---

func TestIndex_SearchRanksByVocabularyOverlap(t *testing.T) {
	ix, err := NewIndex(Config{EmbeddingFunc: localEmbedding()})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ix.Add(ctx, []Document{
		{ID: "macro", Content: "fed signals rates unchanged as inflation eases", Metadata: map[string]string{"source": "wire"}},
		{ID: "equities", Content: "stocks surge after blowout earnings"},
	}))

	hits, err := ix.Search(ctx, "fed rates inflation", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "macro", hits[0].ID)
	assert.Equal(t, "wire", hits[0].Metadata["source"])
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestIndex_SearchCapsKAtCollectionSize(t *testing.T) {
	ix, err := NewIndex(Config{EmbeddingFunc: localEmbedding()})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ix.Add(ctx, []Document{{ID: "a", Content: "fed rates"}}))

	hits, err := ix.Search(ctx, "fed", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestIndex_SearchEmptyIndex(t *testing.T) {
	ix, err := NewIndex(Config{EmbeddingFunc: localEmbedding()})
	require.NoError(t, err)

	hits, err := ix.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// --- Persistence ---

func TestIndex_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vec")
	cfg := Config{PersistPath: path, EmbeddingFunc: localEmbedding()}

	ix, err := NewIndex(cfg)
	require.NoError(t, err)
	require.NoError(t, ix.Add(context.Background(), []Document{{ID: "a", Content: "fed rates"}}))

	reopened, err := NewIndex(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
}
