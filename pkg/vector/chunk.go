package vector

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
)

// pointNamespace is the UUIDv5 namespace every storage identifier is derived in.
// Changing it orphans every stored point.
var pointNamespace = uuid.MustParse("8f1c7a52-3e0b-5d7e-9a41-6c2f0b9d4e13")

// Chunk is one embedded unit of a document.
type Chunk struct {
	// DocumentID identifies the document the chunk belongs to. Must be non-empty.
	DocumentID string `json:"document_id" yaml:"document_id"`

	// ChunkNumber is the position of the chunk within its document.
	ChunkNumber int `json:"chunk_number" yaml:"chunk_number"`

	// Content is the text payload of the chunk.
	Content string `json:"content" yaml:"content"`

	// Embedding is the vector representation of Content.
	// Chunks returned by queries never carry their embedding.
	Embedding []float32 `json:"embedding,omitempty" yaml:"embedding,omitempty,flow"`

	// Metadata holds arbitrary payload values stored alongside the chunk.
	Metadata map[string]any `json:"metadata" yaml:"metadata"`

	// Score represents the similarity score (higher = more similar).
	// Only populated by QuerySimilar.
	Score float32 `json:"score,omitempty" yaml:"score,omitempty"`
}

// ChunkRef names a single chunk by document and position.
type ChunkRef struct {
	DocumentID  string `json:"document_id" yaml:"document_id"`
	ChunkNumber int    `json:"chunk_number" yaml:"chunk_number"`
}

// Ref returns the reference naming c.
func (c Chunk) Ref() ChunkRef {
	return ChunkRef{DocumentID: c.DocumentID, ChunkNumber: c.ChunkNumber}
}

// PointID returns the storage identifier for c.
func (c Chunk) PointID() string {
	return PointID(c.DocumentID, c.ChunkNumber)
}

// PointID returns the storage identifier for r.
func (r ChunkRef) PointID() string {
	return PointID(r.DocumentID, r.ChunkNumber)
}

func (r ChunkRef) String() string {
	return ChunkKey(r.DocumentID, r.ChunkNumber)
}

// ChunkKey returns the human readable "{document_id}_{chunk_number}" key used
// in logs. Backends store chunks under PointID instead.
func ChunkKey(documentID string, chunkNumber int) string {
	return documentID + "_" + strconv.Itoa(chunkNumber)
}

// PointID deterministically maps (documentID, chunkNumber) to the identifier
// the chunk is stored under in every backend. The document id is length
// prefixed before hashing so that no two distinct pairs share an encoding.
func PointID(documentID string, chunkNumber int) string {
	name := strconv.Itoa(len(documentID)) + ":" + documentID + ":" + strconv.Itoa(chunkNumber)
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

// Validate reports whether c satisfies the identity invariants of the chunk model.
func (c Chunk) Validate() error {
	if c.DocumentID == "" {
		return fmt.Errorf("%w: document id is empty", ErrInvalidChunk)
	}
	if c.ChunkNumber < 0 {
		return fmt.Errorf("%w: chunk %s has negative chunk number", ErrInvalidChunk, c.Ref())
	}
	return nil
}

// MetadataOrEmpty returns c.Metadata, or an empty map if it is nil.
func (c Chunk) MetadataOrEmpty() map[string]any {
	if c.Metadata == nil {
		return map[string]any{}
	}
	return c.Metadata
}

// PrepareChunks applies the storage rules shared by every driver. Chunks with
// an empty embedding are skipped silently. Chunks whose embedding length does
// not match dimensions, or whose embedding is all zeros, are skipped with a
// warning. A chunk with an invalid identity fails the whole batch. The
// surviving chunks keep their input order.
func PrepareChunks(chunks []Chunk, dimensions uint64, logger *slog.Logger) ([]Chunk, error) {
	prepared := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return nil, err
		}

		if len(c.Embedding) == 0 {
			continue
		}

		if dimensions != 0 && uint64(len(c.Embedding)) != dimensions {
			logger.Warn("skipping chunk with mismatched embedding dimensions",
				"chunk", c.Ref().String(),
				"got", len(c.Embedding),
				"want", dimensions,
			)
			continue
		}

		if IsZeroVector(c.Embedding) {
			logger.Warn("skipping chunk with zero-norm embedding",
				"chunk", c.Ref().String(),
			)
			continue
		}

		prepared = append(prepared, c)
	}

	if len(chunks) > 0 && len(prepared) == 0 {
		logger.Warn("no embeddings to store, all chunks had empty or mismatched vectors",
			"chunks", len(chunks),
		)
	}

	return prepared, nil
}

// IsZeroVector reports whether every component of v is zero.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// CheckQueryEmbedding rejects a query vector that no backend can rank: one
// whose length differs from dimensions, or one with zero norm. A zero
// dimensions skips the length check.
func CheckQueryEmbedding(embedding []float32, dimensions uint64) error {
	if dimensions != 0 && uint64(len(embedding)) != dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), dimensions)
	}
	if IsZeroVector(embedding) {
		return ErrZeroVector
	}
	return nil
}

// PointIDs returns the storage identifiers of chunks, in order.
func PointIDs(chunks []Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.PointID()
	}
	return ids
}
