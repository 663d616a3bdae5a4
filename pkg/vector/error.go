package vector

import "errors"

var (
	// ErrNotFound is returned when a collection is not found in the vector store.
	ErrNotFound = errors.New("collection not found")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")

	// ErrInvalidChunk is returned when a chunk violates the chunk model invariants.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrDimensionMismatch is returned when a query vector does not match the
	// configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrZeroVector is returned for a query vector with zero norm, which has
	// no cosine similarity to anything.
	ErrZeroVector = errors.New("embedding has zero norm")

	// ErrInitialize is returned when the collection could not be made ready.
	ErrInitialize = errors.New("initializing collection failed")

	// ErrStore is returned when storing embeddings fails.
	ErrStore = errors.New("storing embeddings failed")

	// ErrQuery is returned when a similarity query fails.
	ErrQuery = errors.New("querying similar chunks failed")

	// ErrGet is returned when fetching chunks by id fails.
	ErrGet = errors.New("getting chunks failed")

	// ErrDelete is returned when deleting a document's chunks fails.
	ErrDelete = errors.New("deleting chunks failed")
)
