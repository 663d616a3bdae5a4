package vectorutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/chunkstore/pkg/vector"
	"github.com/papercomputeco/chunkstore/pkg/vector/chroma"
	"github.com/papercomputeco/chunkstore/pkg/vector/pgvector"
	"github.com/papercomputeco/chunkstore/pkg/vector/qdrant"
	"github.com/papercomputeco/chunkstore/pkg/vector/retry"
	"github.com/papercomputeco/chunkstore/pkg/vector/sqlitevec"
)

const (
	ProviderQdrant   = "qdrant"
	ProviderPGVector = "pgvector"
	ProviderSQLite   = "sqlite"
	ProviderChroma   = "chroma"
)

// Providers lists every supported vector store provider.
var Providers = []string{ProviderQdrant, ProviderPGVector, ProviderSQLite, ProviderChroma}

type NewVectorDriverOpts struct {
	ProviderType   string
	CollectionName string
	Dimensions     uint64
	Retry          retry.Config

	// Qdrant
	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string
	QdrantUseTLS bool

	// PostgreSQL
	PostgresDSN string

	// SQLite
	SQLitePath string

	// Chroma
	ChromaURL string

	Logger *slog.Logger
}

// NewVectorDriver constructs the driver for o.ProviderType. The returned
// driver is not initialized.
func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	logger := o.Logger.With("provider", o.ProviderType)

	switch o.ProviderType {
	case ProviderQdrant:
		d, err := qdrant.NewDriver(qdrant.Config{
			Host:           o.QdrantHost,
			Port:           o.QdrantPort,
			APIKey:         o.QdrantAPIKey,
			UseTLS:         o.QdrantUseTLS,
			CollectionName: o.CollectionName,
			Dimensions:     o.Dimensions,
			Retry:          o.Retry,
		}, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	case ProviderPGVector:
		d, err := pgvector.NewDriver(ctx, pgvector.Config{
			DSN:        o.PostgresDSN,
			TableName:  o.CollectionName,
			Dimensions: o.Dimensions,
			Retry:      o.Retry,
		}, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	case ProviderSQLite:
		d, err := sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:         o.SQLitePath,
			CollectionName: o.CollectionName,
			Dimensions:     o.Dimensions,
			Retry:          o.Retry,
		}, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	case ProviderChroma:
		d, err := chroma.NewDriver(chroma.Config{
			URL:            o.ChromaURL,
			CollectionName: o.CollectionName,
			Dimensions:     o.Dimensions,
			Retry:          o.Retry,
		}, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
