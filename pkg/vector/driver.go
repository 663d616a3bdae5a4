// Package vector provides the backend-agnostic contract for storing and
// querying embedded document chunks, and the pieces shared by its drivers.
package vector

import "context"

// Driver handles storage and retrieval of chunk embeddings in one collection
// of a backing engine.
//
// Every method reports failure through its error. On failure the result is
// always the zero value, so callers that ignore the error observe the empty
// sentinel. A nil error with an empty result means the backend answered and
// had nothing to return.
type Driver interface {
	// Initialize ensures the collection exists with the configured
	// dimensionality. It is safe to call repeatedly. If the persisted
	// dimensionality differs, the collection is dropped and recreated.
	Initialize(ctx context.Context) error

	// StoreEmbeddings upserts every chunk with a non-empty embedding and
	// returns the storage identifiers of the stored chunks, in input order.
	StoreEmbeddings(ctx context.Context, chunks []Chunk) ([]string, error)

	// QuerySimilar returns up to k chunks ranked by descending similarity to
	// embedding. When docIDs is non-empty only chunks of those documents are
	// considered. Results carry a Score and no Embedding.
	QuerySimilar(ctx context.Context, embedding []float32, k int, docIDs []string) ([]Chunk, error)

	// GetChunksByID fetches the referenced chunks. Missing chunks are absent
	// from the result and order is backend-defined.
	GetChunksByID(ctx context.Context, refs []ChunkRef) ([]Chunk, error)

	// DeleteChunksByDocumentID removes every chunk of documentID. Deleting an
	// unknown document succeeds.
	DeleteChunksByDocumentID(ctx context.Context, documentID string) error

	// Close releases any resources held by the driver.
	Close() error
}
