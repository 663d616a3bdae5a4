package vector

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/papercomputeco/chunkstore/pkg/vector/retry"
)

// CollectionAdmin is the schema surface a driver exposes so the collection
// lifecycle can be driven the same way for every backend.
type CollectionAdmin interface {
	// ListCollections returns the names of the collections in the backend.
	ListCollections(ctx context.Context) ([]string, error)

	// CollectionDimensions returns the persisted vector size of the collection.
	CollectionDimensions(ctx context.Context, name string) (uint64, error)

	// CreateCollection creates the collection with cosine distance.
	CreateCollection(ctx context.Context, name string, dimensions uint64) error

	// DeleteCollection drops the collection and all of its data.
	DeleteCollection(ctx context.Context, name string) error
}

// EnsureCollection makes the named collection ready for the configured
// dimensions. An existing collection with matching dimensions is left
// untouched. One with different dimensions is dropped and recreated, losing
// its data. A missing collection is created. A failure to list collections is
// treated as a missing collection.
func EnsureCollection(
	ctx context.Context,
	admin CollectionAdmin,
	name string,
	dimensions uint64,
	exec *retry.Executor,
	logger *slog.Logger,
) error {
	logger.Info("initializing collection",
		"collection", name,
		"dimensions", dimensions,
	)

	collections, err := retry.Value(ctx, exec, "list collections", admin.ListCollections)
	if err != nil {
		logger.Warn("could not list collections, assuming collection is missing",
			"collection", name,
			"error", err,
		)
	}
	exists := err == nil && slices.Contains(collections, name)

	if exists {
		current, err := retry.Value(ctx, exec, "get collection", func(ctx context.Context) (uint64, error) {
			return admin.CollectionDimensions(ctx, name)
		})
		if err != nil {
			return fmt.Errorf("%w: reading dimensions of %q: %w", ErrInitialize, name, err)
		}

		if current == dimensions {
			logger.Info("collection already exists with correct dimensions",
				"collection", name,
			)
			return nil
		}

		logger.Warn("vector dimensions changed, recreating collection: all existing vector data will be deleted",
			"collection", name,
			"from", current,
			"to", dimensions,
		)

		err = exec.Do(ctx, "delete collection", func(ctx context.Context) error {
			return admin.DeleteCollection(ctx, name)
		})
		if err != nil {
			return fmt.Errorf("%w: deleting %q: %w", ErrInitialize, name, err)
		}
		logger.Info("deleted existing collection", "collection", name)
	}

	err = exec.Do(ctx, "create collection", func(ctx context.Context) error {
		return admin.CreateCollection(ctx, name, dimensions)
	})
	if err != nil {
		return fmt.Errorf("%w: creating %q: %w", ErrInitialize, name, err)
	}

	logger.Info("created collection",
		"collection", name,
		"dimensions", dimensions,
	)
	return nil
}
