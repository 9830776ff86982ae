package store

import (
	"strings"
	"testing"

	"rag-retrieval-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKeyLayout(t *testing.T) {
	assert.Equal(t, "rag:doc:docs:a_0", docKey("docs", "a_0"))
	assert.Equal(t, "rag:idx:collection:docs", collectionKey("docs"))
	assert.Equal(t, "rag:sources:docs", sourcesKey("docs"))
	assert.Equal(t, "rag:dim:docs", dimKey("docs"))
	assert.Equal(t, "rag:seq:docs", seqKey("docs"))
}

func TestSourceKeyHashed(t *testing.T) {
	// Source names can contain separators and spaces; the key embeds a
	// fixed-width digest instead of the raw name.
	key := sourceKey("docs", "dir/some file:v2.txt")
	assert.True(t, strings.HasPrefix(key, "rag:idx:source:docs:"))
	assert.NotContains(t, strings.TrimPrefix(key, "rag:idx:source:docs:"), "/")
	assert.Len(t, strings.TrimPrefix(key, "rag:idx:source:docs:"), 12)

	// Stable for equal inputs, distinct for different ones.
	assert.Equal(t, key, sourceKey("docs", "dir/some file:v2.txt"))
	assert.NotEqual(t, key, sourceKey("docs", "other.txt"))
}

func TestRecordCodecRoundtrip(t *testing.T) {
	original := models.VectorRecord{
		ChunkID:    "policy.txt_3",
		Vector:     []float32{0.25, -0.5, 1},
		Text:       "Short text stays uncompressed.",
		Source:     "policy.txt",
		Collection: "docs",
		Metadata:   map[string]any{"lang": "en"},
	}

	data, err := encodeRecord(original)
	require.NoError(t, err)

	decoded, err := decodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, original.ChunkID, decoded.ChunkID)
	assert.Equal(t, original.Vector, decoded.Vector)
	assert.Equal(t, original.Text, decoded.Text)
	assert.Equal(t, original.Source, decoded.Source)
	assert.Equal(t, original.Collection, decoded.Collection)
}

func TestRecordCodecCompressesLargeText(t *testing.T) {
	original := models.VectorRecord{
		ChunkID:    "big_0",
		Vector:     []float32{1},
		Text:       strings.Repeat("annual leave policy terms and conditions ", 100),
		Source:     "big.txt",
		Collection: "docs",
	}

	data, err := encodeRecord(original)
	require.NoError(t, err)

	// The raw text must not appear verbatim in the stored document.
	assert.NotContains(t, string(data), original.Text)

	decoded, err := decodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, original.Text, decoded.Text)
}

func TestDecodeRecordRejectsGarbage(t *testing.T) {
	_, err := decodeRecord([]byte("not json"))
	require.Error(t, err)
}
