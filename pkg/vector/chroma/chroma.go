// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/chunkstore/pkg/vector"
	"github.com/papercomputeco/chunkstore/pkg/vector/retry"
)

const (
	// DefaultCollectionName is the default collection name for storing chunk embeddings.
	DefaultCollectionName = "chunkstore_embeddings"

	collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"

	fieldDocumentID  = "document_id"
	fieldChunkNumber = "chunk_number"
	fieldMetadata    = "chunkstore:metadata"
	fieldDimensions  = "chunkstore:dimensions"
)

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the size of the embedding vectors. Required.
	Dimensions uint64

	// Retry configures the executor wrapping every remote call.
	Retry retry.Config
}

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL        string
	collectionName string
	dimensions     uint64
	httpClient     *http.Client
	exec           *retry.Executor
	logger         *slog.Logger

	mu           sync.Mutex
	collectionID string
}

// NewDriver creates a new Chroma driver. The collection is not touched until
// Initialize is called.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("chroma embedding dimensions cannot be 0, must be configured")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}

	logger = logger.With("collection", collectionName)
	logger.Info("initialized chroma client", "url", c.URL)

	return &Driver{
		baseURL:        strings.TrimRight(c.URL, "/"),
		collectionName: collectionName,
		dimensions:     c.Dimensions,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		exec:   retry.New(c.Retry, logger),
		logger: logger,
	}, nil
}

// Initialize ensures the collection exists with the configured dimensions
// and caches its id.
func (d *Driver) Initialize(ctx context.Context) error {
	d.setCollectionID("")

	if err := vector.EnsureCollection(ctx, d, d.collectionName, d.dimensions, d.exec, d.logger); err != nil {
		d.logger.Error("error initializing chroma store", "error", err)
		return err
	}

	id, err := retry.Value(ctx, d.exec, "get collection", d.resolveCollection)
	if err != nil {
		d.logger.Error("error initializing chroma store", "error", err)
		return fmt.Errorf("%w: resolving %q: %w", vector.ErrInitialize, d.collectionName, err)
	}

	d.logger.Debug("resolved chroma collection", "collection_id", id)
	return nil
}

// ListCollections returns the names of every collection in the default database.
func (d *Driver) ListCollections(ctx context.Context) ([]string, error) {
	var collections []chromaCollection
	if err := d.do(ctx, http.MethodGet, collectionsPath, nil, &collections); err != nil {
		return nil, err
	}

	names := make([]string, len(collections))
	for i, c := range collections {
		names[i] = c.Name
	}
	return names, nil
}

// CollectionDimensions returns the vector size of the collection. Chroma only
// records the dimension after the first insert, so the size declared at
// creation is read from the collection metadata as a fallback.
func (d *Driver) CollectionDimensions(ctx context.Context, name string) (uint64, error) {
	c, err := d.getCollection(ctx, name)
	if err != nil {
		return 0, err
	}

	if c.Dimension != nil {
		return *c.Dimension, nil
	}
	if dims, ok := c.Metadata[fieldDimensions].(float64); ok && dims > 0 {
		return uint64(dims), nil
	}
	return 0, nil
}

// CreateCollection creates a cosine-distance collection.
func (d *Driver) CreateCollection(ctx context.Context, name string, dimensions uint64) error {
	var created chromaCollection
	err := d.do(ctx, http.MethodPost, collectionsPath, chromaCreateRequest{
		Name: name,
		Metadata: map[string]any{
			"hnsw:space":    "cosine",
			fieldDimensions: dimensions,
		},
	}, &created)
	if err != nil {
		return err
	}

	if name == d.collectionName {
		d.setCollectionID(created.ID)
	}
	return nil
}

// DeleteCollection drops the collection.
func (d *Driver) DeleteCollection(ctx context.Context, name string) error {
	if err := d.do(ctx, http.MethodDelete, collectionsPath+"/"+url.PathEscape(name), nil, nil); err != nil {
		return err
	}

	if name == d.collectionName {
		d.setCollectionID("")
	}
	return nil
}

// StoreEmbeddings upserts chunks as records and returns their ids.
func (d *Driver) StoreEmbeddings(ctx context.Context, chunks []vector.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}

	prepared, err := vector.PrepareChunks(chunks, d.dimensions, d.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrStore, err)
	}
	if len(prepared) == 0 {
		return []string{}, nil
	}

	req := chromaUpsertRequest{
		IDs:        vector.PointIDs(prepared),
		Embeddings: make([][]float32, len(prepared)),
		Metadatas:  make([]map[string]any, len(prepared)),
		Documents:  make([]string, len(prepared)),
	}
	for i, c := range prepared {
		meta, err := json.Marshal(c.MetadataOrEmpty())
		if err != nil {
			d.logger.Error("error encoding chunk metadata", "chunk", c.Ref().String(), "error", err)
			return nil, fmt.Errorf("%w: encoding metadata for %s: %w", vector.ErrStore, c.Ref(), err)
		}

		req.Embeddings[i] = c.Embedding
		req.Documents[i] = c.Content
		req.Metadatas[i] = map[string]any{
			fieldDocumentID:  c.DocumentID,
			fieldChunkNumber: c.ChunkNumber,
			fieldMetadata:    string(meta),
		}
	}

	err = d.exec.Do(ctx, "upsert records", func(ctx context.Context) error {
		return d.collectionDo(ctx, "upsert", req, nil)
	})
	if err != nil {
		d.logger.Error("error storing embeddings in chroma", "error", err)
		return nil, fmt.Errorf("%w: %w", vector.ErrStore, err)
	}

	d.logger.Info("stored embeddings in chroma", "count", len(prepared))

	return req.IDs, nil
}

// QuerySimilar returns the k nearest chunks, optionally restricted to docIDs.
func (d *Driver) QuerySimilar(ctx context.Context, embedding []float32, k int, docIDs []string) ([]vector.Chunk, error) {
	if k <= 0 {
		return []vector.Chunk{}, nil
	}

	if err := vector.CheckQueryEmbedding(embedding, d.dimensions); err != nil {
		err = fmt.Errorf("%w: %w", vector.ErrQuery, err)
		d.logger.Error("error querying similar chunks from chroma", "error", err)
		return nil, err
	}

	req := chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        k,
		Include:         []string{"metadatas", "documents", "distances"},
	}
	if len(docIDs) > 0 {
		req.Where = map[string]any{
			fieldDocumentID: map[string]any{"$in": docIDs},
		}
	}

	resp, err := retry.Value(ctx, d.exec, "query records", func(ctx context.Context) (chromaQueryResponse, error) {
		var resp chromaQueryResponse
		err := d.collectionDo(ctx, "query", req, &resp)
		return resp, err
	})
	if err != nil {
		d.logger.Error("error querying similar chunks from chroma", "error", err)
		return nil, fmt.Errorf("%w: %w", vector.ErrQuery, err)
	}

	chunks := []vector.Chunk{}
	if len(resp.IDs) == 0 {
		return chunks, nil
	}

	for i := range resp.IDs[0] {
		c, err := recordChunk(at(resp.Metadatas, i), at(resp.Documents, i))
		if err != nil {
			d.logger.Error("error decoding chroma record", "id", resp.IDs[0][i], "error", err)
			return nil, fmt.Errorf("%w: %w", vector.ErrQuery, err)
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			c.Score = float32(1 - resp.Distances[0][i])
		}
		chunks = append(chunks, c)
	}

	d.logger.Debug("queried chroma", "results", len(chunks))

	return chunks, nil
}

// GetChunksByID fetches the referenced chunks.
func (d *Driver) GetChunksByID(ctx context.Context, refs []vector.ChunkRef) ([]vector.Chunk, error) {
	if len(refs) == 0 {
		return []vector.Chunk{}, nil
	}

	req := chromaGetRequest{
		IDs:     make([]string, len(refs)),
		Include: []string{"metadatas", "documents"},
	}
	for i, r := range refs {
		req.IDs[i] = r.PointID()
	}

	resp, err := retry.Value(ctx, d.exec, "get records", func(ctx context.Context) (chromaGetResponse, error) {
		var resp chromaGetResponse
		err := d.collectionDo(ctx, "get", req, &resp)
		return resp, err
	})
	if err != nil {
		d.logger.Error("error retrieving chunks by id from chroma", "error", err)
		return nil, fmt.Errorf("%w: %w", vector.ErrGet, err)
	}

	chunks := make([]vector.Chunk, 0, len(resp.IDs))
	for i, id := range resp.IDs {
		var (
			meta map[string]any
			doc  *string
		)
		if i < len(resp.Metadatas) {
			meta = resp.Metadatas[i]
		}
		if i < len(resp.Documents) {
			doc = resp.Documents[i]
		}

		c, err := recordChunk(meta, doc)
		if err != nil {
			d.logger.Error("error decoding chroma record", "id", id, "error", err)
			return nil, fmt.Errorf("%w: %w", vector.ErrGet, err)
		}
		chunks = append(chunks, c)
	}

	d.logger.Debug("retrieved chunks from chroma", "count", len(chunks))

	return chunks, nil
}

// DeleteChunksByDocumentID deletes every record of documentID.
func (d *Driver) DeleteChunksByDocumentID(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: %w: document id is empty", vector.ErrDelete, vector.ErrInvalidChunk)
	}

	err := d.exec.Do(ctx, "delete records", func(ctx context.Context) error {
		return d.collectionDo(ctx, "delete", chromaDeleteRequest{
			Where: map[string]any{fieldDocumentID: documentID},
		}, nil)
	})
	if err != nil {
		d.logger.Error("error deleting chunks from chroma", "document_id", documentID, "error", err)
		return fmt.Errorf("%w: document %q: %w", vector.ErrDelete, documentID, err)
	}

	d.logger.Info("deleted chunks from chroma", "document_id", documentID)

	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}

func (d *Driver) setCollectionID(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.collectionID = id
}

// resolveCollection returns the cached collection id, looking it up by name
// on first use.
func (d *Driver) resolveCollection(ctx context.Context) (string, error) {
	d.mu.Lock()
	id := d.collectionID
	d.mu.Unlock()
	if id != "" {
		return id, nil
	}

	c, err := d.getCollection(ctx, d.collectionName)
	if err != nil {
		return "", err
	}
	d.setCollectionID(c.ID)
	return c.ID, nil
}

func (d *Driver) getCollection(ctx context.Context, name string) (chromaCollection, error) {
	var c chromaCollection
	err := d.do(ctx, http.MethodGet, collectionsPath+"/"+url.PathEscape(name), nil, &c)
	return c, err
}

// collectionDo posts body to a record endpoint of the configured collection.
func (d *Driver) collectionDo(ctx context.Context, action string, body, out any) error {
	id, err := d.resolveCollection(ctx)
	if err != nil {
		return err
	}

	err = d.do(ctx, http.MethodPost, collectionsPath+"/"+id+"/"+action, body, out)
	if errors.Is(err, vector.ErrNotFound) {
		// The collection may have been recreated under a new id.
		d.setCollectionID("")
	}
	return err
}

// do sends a JSON request and decodes the response into out. Client errors
// other than 429 are not retried.
func (d *Driver) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshaling request: %w", err))
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sending request: %w", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(method, path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	msg := strings.TrimSpace(string(raw))
	var body chromaError
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		msg = body.Message
	}

	err := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return retry.Permanent(fmt.Errorf("%w: %w", vector.ErrNotFound, err))
	case resp.StatusCode == http.StatusTooManyRequests:
		return err
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Permanent(err)
	default:
		return err
	}
}

// recordChunk rebuilds a chunk from a record's metadata and document.
func recordChunk(meta map[string]any, doc *string) (vector.Chunk, error) {
	documentID, ok := meta[fieldDocumentID].(string)
	if !ok || documentID == "" {
		return vector.Chunk{}, fmt.Errorf("record has no %s", fieldDocumentID)
	}

	// JSON numbers decode as float64.
	number, ok := meta[fieldChunkNumber].(float64)
	if !ok {
		return vector.Chunk{}, fmt.Errorf("record %s has no %s", documentID, fieldChunkNumber)
	}

	c := vector.Chunk{
		DocumentID:  documentID,
		ChunkNumber: int(number),
		Embedding:   []float32{},
		Metadata:    map[string]any{},
	}
	if doc != nil {
		c.Content = *doc
	}
	if raw, ok := meta[fieldMetadata].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Metadata); err != nil {
			return vector.Chunk{}, fmt.Errorf("decoding metadata of %s: %w", c.Ref(), err)
		}
		c.Metadata = c.MetadataOrEmpty()
	}
	return c, nil
}

// at returns the i-th entry of the first query group.
func at[T any](groups [][]T, i int) T {
	var zero T
	if len(groups) == 0 || i >= len(groups[0]) {
		return zero
	}
	return groups[0][i]
}

var (
	_ vector.Driver          = (*Driver)(nil)
	_ vector.CollectionAdmin = (*Driver)(nil)
)
