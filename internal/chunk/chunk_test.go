// Copyright 2025 James Ross
package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyContentReturnsEmptySlice(t *testing.T) {
	c, err := New(DefaultPolicy())
	require.NoError(t, err)
	chunks := c.Split("", "src-1", "page", "")
	assert.Empty(t, chunks)
	assert.NotNil(t, chunks)
}

func TestSplitShortTextProducesSingleChunkWithFullOffsets(t *testing.T) {
	c, err := New(DefaultPolicy())
	require.NoError(t, err)
	text := "hello world"
	chunks := c.Split(text, "src-1", "page", "")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Offsets.Start)
	assert.Equal(t, len(text), chunks[0].Offsets.End)
	assert.Equal(t, text, chunks[0].Content)
}

func TestSplitExactChunkSizeProducesSingleChunk(t *testing.T) {
	policy := Policy{ChunkSize: 10, Overlap: 2, Version: "v1"}
	c, err := New(policy)
	require.NoError(t, err)
	text := strings.Repeat("a", 10)
	chunks := c.Split(text, "src-1", "page", "")
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Content)
}

func TestSplitMultiChunkOffsetsAreByteExact(t *testing.T) {
	policy := Policy{ChunkSize: 10, Overlap: 3, Version: "v1"}
	c, err := New(policy)
	require.NoError(t, err)
	text := strings.Repeat("abcdefghij", 5) // 50 chars
	chunks := c.Split(text, "src-1", "page", "")
	require.True(t, len(chunks) > 1)
	for i, ch := range chunks {
		assert.Equal(t, text[ch.Offsets.Start:ch.Offsets.End], ch.Content)
		assert.Equal(t, i, ch.Offsets.ChunkIndex)
	}
	step := policy.ChunkSize - policy.Overlap
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].Offsets.Start+step, chunks[i].Offsets.Start)
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	policy := Policy{ChunkSize: 7, Overlap: 1, Version: "v1"}
	c, err := New(policy)
	require.NoError(t, err)
	text := "the quick brown fox jumps over the lazy dog"
	first := c.Split(text, "src-1", "page", "")
	second := c.Split(text, "src-1", "page", "")
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestSplitChunkIDDiffersBySourceIdentity(t *testing.T) {
	policy := Policy{ChunkSize: 7, Overlap: 1, Version: "v1"}
	c, err := New(policy)
	require.NoError(t, err)
	text := "identical content, different source"
	a := c.Split(text, "src-a", "page", "")
	b := c.Split(text, "src-b", "page", "")
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.NotEqual(t, a[i].ChunkID, b[i].ChunkID)
		assert.Equal(t, a[i].Content, b[i].Content)
	}
}

func TestSplitMaxChunksPerSourceTruncates(t *testing.T) {
	policy := Policy{ChunkSize: 5, Overlap: 0, MaxChunksPerSource: 2, Version: "v1"}
	c, err := New(policy)
	require.NoError(t, err)
	text := strings.Repeat("x", 100)
	chunks := c.Split(text, "src-1", "page", "")
	assert.Len(t, chunks, 2)
}

func TestSplitStoresPolicySnapshotPerChunk(t *testing.T) {
	policy := Policy{ChunkSize: 5, Overlap: 1, Version: "v2"}
	c, err := New(policy)
	require.NoError(t, err)
	chunks := c.Split("0123456789", "src-1", "page", "")
	for _, ch := range chunks {
		assert.Equal(t, policy, ch.Policy)
	}
}

func TestPolicyValidateErrors(t *testing.T) {
	_, err := New(Policy{ChunkSize: 0, Overlap: 0})
	assert.EqualError(t, err, "chunk_size must be positive")

	_, err = New(Policy{ChunkSize: 10, Overlap: -1})
	assert.EqualError(t, err, "overlap must be non-negative")

	_, err = New(Policy{ChunkSize: 10, Overlap: 10})
	assert.EqualError(t, err, "overlap must be less than chunk_size")

	_, err = New(Policy{ChunkSize: 10, Overlap: 11})
	assert.EqualError(t, err, "overlap must be less than chunk_size")
}
