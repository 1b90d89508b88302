// Copyright 2025 James Ross

// Package chunk implements deterministic, offset-preserving text chunking:
// the same (content, source identity, policy) always yields byte-identical
// chunks with the same chunk_ids, and chunk boundaries always slice the
// original content exactly.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Policy controls how a source is windowed into chunks.
type Policy struct {
	ChunkSize          int
	Overlap            int
	MaxChunksPerSource int
	Version            string
}

// DefaultPolicy matches the reference chunker's defaults.
func DefaultPolicy() Policy {
	return Policy{ChunkSize: 2000, Overlap: 200, Version: "v1"}
}

// Validate reports the first violated constraint, matching the reference
// implementation's exact error text.
func (p Policy) Validate() error {
	if p.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if p.Overlap < 0 {
		return fmt.Errorf("overlap must be non-negative")
	}
	if p.Overlap >= p.ChunkSize {
		return fmt.Errorf("overlap must be less than chunk_size")
	}
	return nil
}

// Offsets locates a chunk within its source's original content.
type Offsets struct {
	Start      int
	End        int
	ChunkIndex int
}

// Chunk is one windowed slice of a source, with its offsets into the
// original content and the policy snapshot it was produced under.
type Chunk struct {
	ChunkID       string
	SourceID      string
	SourceType    string
	SourceRef     string
	Content       string
	ContentSHA256 string
	ByteCount     int
	Offsets       Offsets
	Policy        Policy
}

// Chunker splits content into deterministic, offset-stable windows.
type Chunker struct {
	policy Policy
}

// New builds a Chunker for policy. Pass DefaultPolicy() for the standard
// 2000/200 window.
func New(policy Policy) (*Chunker, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{policy: policy}, nil
}

// Split chunks content belonging to (sourceID, sourceType, sourceRef).
// Empty content returns an empty, non-nil slice. Offsets always
// satisfy content[start:end] == chunk.Content.
func (c *Chunker) Split(content, sourceID, sourceType, sourceRef string) []Chunk {
	if len(content) == 0 {
		return []Chunk{}
	}

	step := c.policy.ChunkSize - c.policy.Overlap
	var chunks []Chunk
	bytes := []byte(content)
	total := len(bytes)

	for start, index := 0, 0; start < total; start, index = start+step, index+1 {
		if c.policy.MaxChunksPerSource > 0 && index >= c.policy.MaxChunksPerSource {
			break
		}
		end := start + c.policy.ChunkSize
		if end > total {
			end = total
		}
		body := string(bytes[start:end])
		chunks = append(chunks, Chunk{
			ChunkID:       computeChunkID(sourceID, sourceType, index, c.policy.Version),
			SourceID:      sourceID,
			SourceType:    sourceType,
			SourceRef:     sourceRef,
			Content:       body,
			ContentSHA256: sha256Hex(body),
			ByteCount:     len(body),
			Offsets:       Offsets{Start: start, End: end, ChunkIndex: index},
			Policy:        c.policy,
		})
		if end == total {
			break
		}
	}
	if chunks == nil {
		chunks = []Chunk{}
	}
	return chunks
}

// computeChunkID derives chunk_id = sha256(source_id|source_type|chunk_index|policy.version).
// Two sources with byte-identical content but different source identity
// produce different chunk_ids.
func computeChunkID(sourceID, sourceType string, chunkIndex int, policyVersion string) string {
	input := fmt.Sprintf("%s|%s|%d|%s", sourceID, sourceType, chunkIndex, policyVersion)
	return sha256Hex(input)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
