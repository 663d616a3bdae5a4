// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/chunkstore/pkg/vector"
	"github.com/papercomputeco/chunkstore/pkg/vector/retry"
)

const (
	// DefaultCollectionName is the default collection name for storing chunk embeddings.
	DefaultCollectionName = "chunkstore_embeddings"
)

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Driver implements vector.Driver using SQLite with sqlite-vec.
//
// A collection is a pair of tables: {name}_chunks holds the payload and
// {name}_vec is a vec0 virtual table keyed by the same rowid. The
// dimensions of every collection are recorded in chunkstore_collections.
type Driver struct {
	db             *sql.DB
	collectionName string
	dimensions     uint64
	exec           *retry.Executor
	logger         *slog.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// CollectionName is the table prefix of the collection. Must be a plain
	// SQL identifier. Defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the number of dimensions for the embedding vectors. Required.
	Dimensions uint64

	// Retry configures the executor wrapping every database call.
	Retry retry.Config
}

// NewDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}
	if !collectionNamePattern.MatchString(collectionName) {
		return nil, fmt.Errorf("invalid collection name %q: must be a plain SQL identifier", collectionName)
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chunkstore_collections (
			name TEXT PRIMARY KEY,
			dimensions INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating collections table: %w", err)
	}

	logger = logger.With("collection", collectionName)
	logger.Info("sqlite-vec vector driver opened",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"vec_version", vecVersion,
	)

	return &Driver{
		db:             db,
		collectionName: collectionName,
		dimensions:     c.Dimensions,
		exec:           retry.New(c.Retry, logger),
		logger:         logger,
	}, nil
}

func chunksTable(name string) string { return `"` + name + `_chunks"` }
func vecTable(name string) string    { return `"` + name + `_vec"` }

// Initialize ensures the collection exists with the configured dimensions.
func (d *Driver) Initialize(ctx context.Context) error {
	if err := vector.EnsureCollection(ctx, d, d.collectionName, d.dimensions, d.exec, d.logger); err != nil {
		d.logger.Error("error initializing sqlite-vec store", "error", err)
		return err
	}
	return nil
}

// ListCollections returns the registered collection names.
func (d *Driver) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT name FROM chunkstore_collections`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CollectionDimensions returns the registered dimensions of the collection.
func (d *Driver) CollectionDimensions(ctx context.Context, name string) (uint64, error) {
	var dims int64
	err := d.db.QueryRowContext(ctx,
		`SELECT dimensions FROM chunkstore_collections WHERE name = ?`, name,
	).Scan(&dims)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", vector.ErrNotFound, name)
	}
	if err != nil {
		return 0, err
	}
	return uint64(dims), nil
}

// CreateCollection creates the payload and vec0 tables and registers them.
func (d *Driver) CreateCollection(ctx context.Context, name string, dimensions uint64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE %s (
				rowid INTEGER PRIMARY KEY AUTOINCREMENT,
				point_id TEXT NOT NULL UNIQUE,
				document_id TEXT NOT NULL,
				chunk_number INTEGER NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				metadata TEXT NOT NULL DEFAULT '{}'
			)
		`, chunksTable(name)),
		fmt.Sprintf(`CREATE INDEX "%s_document_id_idx" ON %s (document_id)`, name, chunksTable(name)),
		fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING vec0(embedding float[%d] distance_metric=cosine)`, vecTable(name), dimensions),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating collection %s: %w", name, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chunkstore_collections(name, dimensions) VALUES (?, ?)`,
		name, dimensions,
	); err != nil {
		return fmt.Errorf("registering collection %s: %w", name, err)
	}

	return tx.Commit()
}

// DeleteCollection drops the collection's tables and registration.
func (d *Driver) DeleteCollection(ctx context.Context, name string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS ` + vecTable(name),
		`DROP TABLE IF EXISTS ` + chunksTable(name),
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dropping collection %s: %w", name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunkstore_collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("unregistering collection %s: %w", name, err)
	}

	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// StoreEmbeddings upserts chunks in one transaction and returns their ids.
// An existing chunk keeps its rowid; its payload is updated and its
// embedding replaced.
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

	metadata := make([]string, len(prepared))
	for i, c := range prepared {
		raw, err := json.Marshal(c.MetadataOrEmpty())
		if err != nil {
			return nil, fmt.Errorf("%w: encoding metadata for %s: %w", vector.ErrStore, c.Ref(), err)
		}
		metadata[i] = string(raw)
	}

	err = d.exec.Do(ctx, "upsert chunks", func(ctx context.Context) error {
		return d.upsert(ctx, prepared, metadata)
	})
	if err != nil {
		d.logger.Error("error storing embeddings in sqlite-vec", "error", err)
		return nil, fmt.Errorf("%w: %w", vector.ErrStore, err)
	}

	d.logger.Debug("stored embeddings in sqlite-vec", "count", len(prepared))

	return vector.PointIDs(prepared), nil
}

func (d *Driver) upsert(ctx context.Context, chunks []vector.Chunk, metadata []string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	chunksT, vecT := chunksTable(d.collectionName), vecTable(d.collectionName)

	for i, c := range chunks {
		pointID := c.PointID()
		embBlob := serializeFloat32(c.Embedding)

		var rowID int64
		err := tx.QueryRowContext(ctx,
			`SELECT rowid FROM `+chunksT+` WHERE point_id = ?`, pointID,
		).Scan(&rowID)

		switch err {
		case nil:
			if _, err := tx.ExecContext(ctx,
				`UPDATE `+chunksT+` SET content = ?, metadata = ? WHERE rowid = ?`,
				c.Content, metadata[i], rowID,
			); err != nil {
				return fmt.Errorf("updating chunk %s: %w", c.Ref(), err)
			}

			// vec0 does not support UPDATE
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM `+vecT+` WHERE rowid = ?`, rowID,
			); err != nil {
				return fmt.Errorf("deleting old embedding for chunk %s: %w", c.Ref(), err)
			}
		case sql.ErrNoRows:
			result, err := tx.ExecContext(ctx,
				`INSERT INTO `+chunksT+`(point_id, document_id, chunk_number, content, metadata) VALUES (?, ?, ?, ?, ?)`,
				pointID, c.DocumentID, c.ChunkNumber, c.Content, metadata[i],
			)
			if err != nil {
				return fmt.Errorf("inserting chunk %s: %w", c.Ref(), err)
			}

			rowID, err = result.LastInsertId()
			if err != nil {
				return fmt.Errorf("getting rowid for chunk %s: %w", c.Ref(), err)
			}
		default:
			return fmt.Errorf("checking for existing chunk %s: %w", c.Ref(), err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+vecT+`(rowid, embedding) VALUES (?, ?)`,
			rowID, embBlob,
		); err != nil {
			return fmt.Errorf("inserting embedding for chunk %s: %w", c.Ref(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// QuerySimilar finds the k chunks closest to embedding by cosine distance.
// Unfiltered queries use the vec0 KNN index; document-filtered queries
// compute distances over the matching rows.
func (d *Driver) QuerySimilar(ctx context.Context, embedding []float32, k int, docIDs []string) ([]vector.Chunk, error) {
	if k <= 0 {
		return []vector.Chunk{}, nil
	}

	if err := vector.CheckQueryEmbedding(embedding, d.dimensions); err != nil {
		err = fmt.Errorf("%w: %w", vector.ErrQuery, err)
		d.logger.Error("error querying similar chunks from sqlite-vec", "error", err)
		return nil, err
	}

	chunksT, vecT := chunksTable(d.collectionName), vecTable(d.collectionName)
	queryBlob := serializeFloat32(embedding)

	var (
		query string
		args  []any
	)
	if len(docIDs) == 0 {
		query = `
			SELECT c.document_id, c.chunk_number, c.content, c.metadata, v.distance
			FROM ` + vecT + ` v
			INNER JOIN ` + chunksT + ` c ON c.rowid = v.rowid
			WHERE v.embedding MATCH ?
				AND v.k = ?
			ORDER BY v.distance
		`
		args = []any{queryBlob, k}
	} else {
		query = `
			SELECT c.document_id, c.chunk_number, c.content, c.metadata,
				vec_distance_cosine(v.embedding, ?) AS distance
			FROM ` + chunksT + ` c
			INNER JOIN ` + vecT + ` v ON v.rowid = c.rowid
			WHERE c.document_id IN (` + placeholders(len(docIDs)) + `)
			ORDER BY distance IS NULL, distance
			LIMIT ?
		`
		args = append(args, queryBlob)
		for _, id := range docIDs {
			args = append(args, id)
		}
		args = append(args, k)
	}

	chunks, err := retry.Value(ctx, d.exec, "query chunks", func(ctx context.Context) ([]vector.Chunk, error) {
		return d.scanChunks(ctx, true, query, args...)
	})
	if err != nil {
		d.logger.Error("error querying similar chunks from sqlite-vec", "error", err)
		return nil, fmt.Errorf("%w: %w", vector.ErrQuery, err)
	}

	d.logger.Debug("queried sqlite-vec", "results", len(chunks))

	return chunks, nil
}

// GetChunksByID retrieves the referenced chunks.
func (d *Driver) GetChunksByID(ctx context.Context, refs []vector.ChunkRef) ([]vector.Chunk, error) {
	if len(refs) == 0 {
		return []vector.Chunk{}, nil
	}

	args := make([]any, len(refs))
	for i, r := range refs {
		args[i] = r.PointID()
	}

	query := `
		SELECT document_id, chunk_number, content, metadata
		FROM ` + chunksTable(d.collectionName) + `
		WHERE point_id IN (` + placeholders(len(refs)) + `)
	`

	chunks, err := retry.Value(ctx, d.exec, "get chunks", func(ctx context.Context) ([]vector.Chunk, error) {
		return d.scanChunks(ctx, false, query, args...)
	})
	if err != nil {
		d.logger.Error("error retrieving chunks by id from sqlite-vec", "error", err)
		return nil, fmt.Errorf("%w: %w", vector.ErrGet, err)
	}

	return chunks, nil
}

func (d *Driver) scanChunks(ctx context.Context, withDistance bool, query string, args ...any) ([]vector.Chunk, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := []vector.Chunk{}
	for rows.Next() {
		var (
			c        vector.Chunk
			metadata string
			distance sql.NullFloat64
		)
		dest := []any{&c.DocumentID, &c.ChunkNumber, &c.Content, &metadata}
		if withDistance {
			dest = append(dest, &distance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, retry.Permanent(fmt.Errorf("scanning chunk: %w", err))
		}

		if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
			return nil, retry.Permanent(fmt.Errorf("decoding metadata of chunk %s: %w", c.Ref(), err))
		}
		c.Metadata = c.MetadataOrEmpty()
		c.Embedding = []float32{}

		// cosine distance is 1 - cosine similarity; it is NULL against a
		// zero-norm vector, which scores 0
		if withDistance && distance.Valid {
			c.Score = float32(1 - distance.Float64)
		}

		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// DeleteChunksByDocumentID removes every chunk of documentID.
func (d *Driver) DeleteChunksByDocumentID(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: %w: document id is empty", vector.ErrDelete, vector.ErrInvalidChunk)
	}

	err := d.exec.Do(ctx, "delete chunks", func(ctx context.Context) error {
		return d.deleteDocument(ctx, documentID)
	})
	if err != nil {
		d.logger.Error("error deleting chunks from sqlite-vec", "document_id", documentID, "error", err)
		return fmt.Errorf("%w: document %q: %w", vector.ErrDelete, documentID, err)
	}

	d.logger.Debug("deleted chunks from sqlite-vec", "document_id", documentID)

	return nil
}

func (d *Driver) deleteDocument(ctx context.Context, documentID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	chunksT, vecT := chunksTable(d.collectionName), vecTable(d.collectionName)

	// First, get the rowids of the embeddings to delete from vec0
	rows, err := tx.QueryContext(ctx,
		`SELECT rowid FROM `+chunksT+` WHERE document_id = ?`, documentID,
	)
	if err != nil {
		return fmt.Errorf("querying rowids for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+vecT+` WHERE rowid = ?`, rowID,
		); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+chunksT+` WHERE document_id = ?`, documentID,
	); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

var (
	_ vector.Driver          = (*Driver)(nil)
	_ vector.CollectionAdmin = (*Driver)(nil)
)
