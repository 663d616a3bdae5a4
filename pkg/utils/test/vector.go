package testutils

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/papercomputeco/chunkstore/pkg/vector"
)

// ErrMockFailure is returned by MockVectorDriver operations set to fail.
var ErrMockFailure = errors.New("mock vector driver failure")

// MockVectorDriver is an in-memory vector.Driver ranking chunks by brute-force
// cosine similarity. It records calls and can be told to fail.
type MockVectorDriver struct {
	mu sync.Mutex

	// Dimensions is the vector size enforced on store and query. Zero
	// disables the check.
	Dimensions uint64

	// Chunks holds the stored chunks keyed by point id.
	Chunks map[string]vector.Chunk

	// Initialized reports whether Initialize has succeeded.
	Initialized bool

	// Closed reports whether Close has been called.
	Closed bool

	// LastK and LastDocIDs record the arguments of the last QuerySimilar call.
	LastK      int
	LastDocIDs []string

	FailInitialize bool
	FailStore      bool
	FailQuery      bool
	FailGet        bool
	FailDelete     bool
}

// NewMockVectorDriver creates a mock driver for the given vector size.
func NewMockVectorDriver(dimensions uint64) *MockVectorDriver {
	return &MockVectorDriver{
		Dimensions: dimensions,
		Chunks:     make(map[string]vector.Chunk),
	}
}

func (m *MockVectorDriver) Initialize(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailInitialize {
		return fmt.Errorf("%w: %w", vector.ErrInitialize, ErrMockFailure)
	}
	m.Initialized = true
	return nil
}

func (m *MockVectorDriver) StoreEmbeddings(_ context.Context, chunks []vector.Chunk) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailStore {
		return nil, fmt.Errorf("%w: %w", vector.ErrStore, ErrMockFailure)
	}

	ids := []string{}
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", vector.ErrStore, err)
		}
		if len(c.Embedding) == 0 {
			continue
		}
		if m.Dimensions != 0 && uint64(len(c.Embedding)) != m.Dimensions {
			continue
		}

		c.Metadata = c.MetadataOrEmpty()
		c.Score = 0
		m.Chunks[c.PointID()] = c
		ids = append(ids, c.PointID())
	}
	return ids, nil
}

func (m *MockVectorDriver) QuerySimilar(_ context.Context, embedding []float32, k int, docIDs []string) ([]vector.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastK = k
	m.LastDocIDs = docIDs

	if m.FailQuery {
		return nil, fmt.Errorf("%w: %w", vector.ErrQuery, ErrMockFailure)
	}
	if k <= 0 {
		return []vector.Chunk{}, nil
	}
	if err := vector.CheckQueryEmbedding(embedding, m.Dimensions); err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrQuery, err)
	}

	results := []vector.Chunk{}
	for _, c := range m.Chunks {
		if len(docIDs) > 0 && !slices.Contains(docIDs, c.DocumentID) {
			continue
		}
		c.Score = cosine(embedding, c.Embedding)
		c.Embedding = []float32{}
		results = append(results, c)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MockVectorDriver) GetChunksByID(_ context.Context, refs []vector.ChunkRef) ([]vector.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailGet {
		return nil, fmt.Errorf("%w: %w", vector.ErrGet, ErrMockFailure)
	}

	chunks := []vector.Chunk{}
	for _, r := range refs {
		c, ok := m.Chunks[r.PointID()]
		if !ok {
			continue
		}
		c.Embedding = []float32{}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func (m *MockVectorDriver) DeleteChunksByDocumentID(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailDelete {
		return fmt.Errorf("%w: %w", vector.ErrDelete, ErrMockFailure)
	}

	for id, c := range m.Chunks {
		if c.DocumentID == documentID {
			delete(m.Chunks, id)
		}
	}
	return nil
}

func (m *MockVectorDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ vector.Driver = (*MockVectorDriver)(nil)
