// Package qdrant provides a Qdrant vector database driver implementation.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	qc "github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/chunkstore/pkg/vector"
	"github.com/papercomputeco/chunkstore/pkg/vector/retry"
)

const (
	// DefaultHost is the default Qdrant host.
	DefaultHost = "localhost"

	// DefaultPort is the default Qdrant gRPC port.
	DefaultPort = 6334

	// DefaultCollectionName is the default collection name for storing chunk embeddings.
	DefaultCollectionName = "chunkstore_embeddings"
)

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Host is the Qdrant server host. Defaults to DefaultHost if empty.
	Host string

	// Port is the Qdrant gRPC port. Defaults to DefaultPort if zero.
	Port int

	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the size of the embedding vectors. Required.
	Dimensions uint64

	// Retry configures the executor wrapping every remote call.
	Retry retry.Config
}

// client is the subset of *qc.Client the driver uses.
type client interface {
	ListCollections(ctx context.Context) ([]string, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qc.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qc.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qc.UpsertPoints) (*qc.UpdateResult, error)
	Query(ctx context.Context, request *qc.QueryPoints) ([]*qc.ScoredPoint, error)
	Get(ctx context.Context, request *qc.GetPoints) ([]*qc.RetrievedPoint, error)
	Delete(ctx context.Context, request *qc.DeletePoints) (*qc.UpdateResult, error)
	Close() error
}

// Driver implements vector.Driver using Qdrant's gRPC API.
type Driver struct {
	client         client
	collectionName string
	dimensions     uint64
	exec           *retry.Executor
	logger         *slog.Logger
}

// NewDriver creates a new Qdrant driver. The collection is not touched until
// Initialize is called.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host := c.Host
	if host == "" {
		host = DefaultHost
	}

	port := c.Port
	if port == 0 {
		port = DefaultPort
	}

	qclient, err := qc.NewClient(&qc.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client for %s:%d: %w", vector.ErrConnection, host, port, err)
	}

	logger.Info("initialized qdrant client",
		"host", host,
		"port", port,
	)

	return newDriver(c, qclient, logger), nil
}

func newDriver(c Config, cl client, logger *slog.Logger) *Driver {
	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}

	return &Driver{
		client:         cl,
		collectionName: collectionName,
		dimensions:     c.Dimensions,
		exec:           retry.New(c.Retry, logger),
		logger:         logger.With("collection", collectionName),
	}
}

// Initialize ensures the collection exists with the configured dimensions.
func (d *Driver) Initialize(ctx context.Context) error {
	if err := vector.EnsureCollection(ctx, d, d.collectionName, d.dimensions, d.exec, d.logger); err != nil {
		d.logger.Error("error initializing qdrant store", "error", err)
		return err
	}
	return nil
}

// ListCollections returns the names of every collection on the server.
func (d *Driver) ListCollections(ctx context.Context) ([]string, error) {
	return d.client.ListCollections(ctx)
}

// CollectionDimensions returns the vector size the collection was created with.
func (d *Driver) CollectionDimensions(ctx context.Context, name string) (uint64, error) {
	info, err := d.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, err
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, retry.Permanent(fmt.Errorf("collection %q has no single unnamed vector config", name))
	}
	return params.GetSize(), nil
}

// CreateCollection creates a cosine-distance collection with the given vector size.
func (d *Driver) CreateCollection(ctx context.Context, name string, dimensions uint64) error {
	return d.client.CreateCollection(ctx, &qc.CreateCollection{
		CollectionName: name,
		VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
			Size:     dimensions,
			Distance: qc.Distance_Cosine,
		}),
	})
}

// DeleteCollection drops the collection.
func (d *Driver) DeleteCollection(ctx context.Context, name string) error {
	return d.client.DeleteCollection(ctx, name)
}

// StoreEmbeddings upserts chunks as points and returns their ids.
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

	points := make([]*qc.PointStruct, len(prepared))
	for i, c := range prepared {
		payload, err := chunkPayload(c)
		if err != nil {
			d.logger.Error("error encoding chunk payload", "chunk", c.Ref().String(), "error", err)
			return nil, fmt.Errorf("%w: encoding payload for %s: %w", vector.ErrStore, c.Ref(), err)
		}

		points[i] = &qc.PointStruct{
			Id:      qc.NewID(c.PointID()),
			Vectors: qc.NewVectors(c.Embedding...),
			Payload: payload,
		}
	}

	err = d.exec.Do(ctx, "upsert points", func(ctx context.Context) error {
		_, err := d.client.Upsert(ctx, &qc.UpsertPoints{
			CollectionName: d.collectionName,
			Wait:           qc.PtrOf(true),
			Points:         points,
		})
		return err
	})
	if err != nil {
		d.logger.Error("error storing embeddings in qdrant", "error", err)
		return nil, fmt.Errorf("%w: %w", vector.ErrStore, err)
	}

	d.logger.Info("stored embeddings in qdrant", "count", len(points))

	return vector.PointIDs(prepared), nil
}

// QuerySimilar finds the k points closest to embedding, optionally restricted
// to the given documents.
func (d *Driver) QuerySimilar(ctx context.Context, embedding []float32, k int, docIDs []string) ([]vector.Chunk, error) {
	if k <= 0 {
		return []vector.Chunk{}, nil
	}

	if err := vector.CheckQueryEmbedding(embedding, d.dimensions); err != nil {
		err = fmt.Errorf("%w: %w", vector.ErrQuery, err)
		d.logger.Error("error querying similar chunks from qdrant", "error", err)
		return nil, err
	}

	req := &qc.QueryPoints{
		CollectionName: d.collectionName,
		Query:          qc.NewQuery(embedding...),
		Limit:          qc.PtrOf(uint64(k)),
		WithPayload:    qc.NewWithPayload(true),
		WithVectors:    qc.NewWithVectors(false),
	}
	if len(docIDs) > 0 {
		req.Filter = &qc.Filter{
			Must: []*qc.Condition{
				qc.NewMatchKeywords(fieldDocumentID, docIDs...),
			},
		}
	}

	points, err := retry.Value(ctx, d.exec, "query points", func(ctx context.Context) ([]*qc.ScoredPoint, error) {
		return d.client.Query(ctx, req)
	})
	if err != nil {
		d.logger.Error("error querying similar chunks from qdrant", "error", err)
		return nil, fmt.Errorf("%w: %w", vector.ErrQuery, err)
	}

	chunks := make([]vector.Chunk, 0, len(points))
	for _, p := range points {
		c, err := payloadChunk(p.GetPayload())
		if err != nil {
			d.logger.Warn("skipping point with malformed payload", "id", p.GetId().GetUuid(), "error", err)
			continue
		}
		c.Score = p.GetScore()
		chunks = append(chunks, c)
	}

	d.logger.Debug("queried qdrant", "results", len(chunks))

	return chunks, nil
}

// GetChunksByID retrieves the referenced chunks.
func (d *Driver) GetChunksByID(ctx context.Context, refs []vector.ChunkRef) ([]vector.Chunk, error) {
	if len(refs) == 0 {
		return []vector.Chunk{}, nil
	}

	ids := make([]*qc.PointId, len(refs))
	for i, r := range refs {
		ids[i] = qc.NewID(r.PointID())
	}

	points, err := retry.Value(ctx, d.exec, "retrieve points", func(ctx context.Context) ([]*qc.RetrievedPoint, error) {
		return d.client.Get(ctx, &qc.GetPoints{
			CollectionName: d.collectionName,
			Ids:            ids,
			WithPayload:    qc.NewWithPayload(true),
			WithVectors:    qc.NewWithVectors(false),
		})
	})
	if err != nil {
		d.logger.Error("error retrieving chunks by id from qdrant", "error", err)
		return nil, fmt.Errorf("%w: %w", vector.ErrGet, err)
	}

	chunks := make([]vector.Chunk, 0, len(points))
	for _, p := range points {
		if len(p.GetPayload()) == 0 {
			continue
		}
		c, err := payloadChunk(p.GetPayload())
		if err != nil {
			d.logger.Warn("skipping point with malformed payload", "id", p.GetId().GetUuid(), "error", err)
			continue
		}
		chunks = append(chunks, c)
	}

	d.logger.Debug("retrieved chunks from qdrant", "count", len(chunks))

	return chunks, nil
}

// DeleteChunksByDocumentID deletes every point whose payload matches documentID.
func (d *Driver) DeleteChunksByDocumentID(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: %w: document id is empty", vector.ErrDelete, vector.ErrInvalidChunk)
	}

	err := d.exec.Do(ctx, "delete points", func(ctx context.Context) error {
		_, err := d.client.Delete(ctx, &qc.DeletePoints{
			CollectionName: d.collectionName,
			Wait:           qc.PtrOf(true),
			Points: qc.NewPointsSelectorFilter(&qc.Filter{
				Must: []*qc.Condition{
					qc.NewMatch(fieldDocumentID, documentID),
				},
			}),
		})
		return err
	})
	if err != nil {
		d.logger.Error("error deleting chunks from qdrant", "document_id", documentID, "error", err)
		return fmt.Errorf("%w: document %q: %w", vector.ErrDelete, documentID, err)
	}

	d.logger.Info("deleted chunks from qdrant", "document_id", documentID)

	return nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	if err := d.client.Close(); err != nil {
		d.logger.Error("error closing qdrant client", "error", err)
		return errors.Join(vector.ErrConnection, err)
	}
	d.logger.Info("closed qdrant client connection")
	return nil
}

var (
	_ vector.Driver          = (*Driver)(nil)
	_ vector.CollectionAdmin = (*Driver)(nil)
)
