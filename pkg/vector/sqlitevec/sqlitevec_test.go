package sqlitevec_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chunkstore/pkg/logger"
	"github.com/papercomputeco/chunkstore/pkg/vector"
	"github.com/papercomputeco/chunkstore/pkg/vector/retry"
	"github.com/papercomputeco/chunkstore/pkg/vector/sqlitevec"
)

var _ = Describe("Driver", func() {
	var ctx context.Context

	testRetry := retry.Config{MaxRetries: 2, Delay: time.Millisecond}

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("NewDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: "", Dimensions: 3}, logger.Nop())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:"}, logger.Nop())
			Expect(err).To(HaveOccurred())
		})

		It("should reject collection names that are not identifiers", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{
				DBPath:         ":memory:",
				Dimensions:     3,
				CollectionName: `chunks"; DROP TABLE x; --`,
			}, logger.Nop())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("invalid collection name"))
		})

		It("should create a driver with an in-memory database", func() {
			driver, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:", Dimensions: 3}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.Close()).To(Succeed())
		})
	})

	Describe("Initialize", func() {
		var dbPath string

		BeforeEach(func() {
			dbPath = filepath.Join(GinkgoT().TempDir(), "chunks.db")
		})

		open := func(dims uint64) *sqlitevec.Driver {
			d, err := sqlitevec.NewDriver(sqlitevec.Config{
				DBPath:     dbPath,
				Dimensions: dims,
				Retry:      testRetry,
			}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			return d
		}

		It("is idempotent and keeps data across reinitialization", func() {
			d := open(3)
			defer d.Close()

			Expect(d.Initialize(ctx)).To(Succeed())
			_, err := d.StoreEmbeddings(ctx, []vector.Chunk{
				{DocumentID: "doc-A", Content: "kept", Embedding: []float32{1, 0, 0}},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(d.Initialize(ctx)).To(Succeed())

			chunks, err := d.GetChunksByID(ctx, []vector.ChunkRef{{DocumentID: "doc-A"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(HaveLen(1))
		})

		It("drops the data and recreates the collection when dimensions change", func() {
			first := open(4)
			Expect(first.Initialize(ctx)).To(Succeed())
			_, err := first.StoreEmbeddings(ctx, []vector.Chunk{
				{DocumentID: "doc-A", Embedding: []float32{1, 0, 0, 0}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Close()).To(Succeed())

			second := open(3)
			defer second.Close()
			Expect(second.Initialize(ctx)).To(Succeed())

			dims, err := second.CollectionDimensions(ctx, sqlitevec.DefaultCollectionName)
			Expect(err).NotTo(HaveOccurred())
			Expect(dims).To(Equal(uint64(3)))

			chunks, err := second.GetChunksByID(ctx, []vector.ChunkRef{{DocumentID: "doc-A"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(BeEmpty())

			Expect(second.Initialize(ctx)).To(Succeed())
		})
	})

	Describe("QuerySimilar over a stored zero-norm vector", func() {
		It("scores it 0 instead of failing the scan", func() {
			dbPath := filepath.Join(GinkgoT().TempDir(), "chunks.db")
			driver, err := sqlitevec.NewDriver(sqlitevec.Config{
				DBPath:     dbPath,
				Dimensions: 3,
				Retry:      testRetry,
			}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			defer driver.Close()
			Expect(driver.Initialize(ctx)).To(Succeed())

			_, err = driver.StoreEmbeddings(ctx, []vector.Chunk{
				{DocumentID: "doc-A", ChunkNumber: 0, Content: "first", Embedding: []float32{1, 0, 0}},
			})
			Expect(err).NotTo(HaveOccurred())

			// Written behind the driver's back, as an older database could hold it.
			raw, err := sql.Open("sqlite3", dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer raw.Close()
			res, err := raw.Exec(
				`INSERT INTO "chunkstore_embeddings_chunks"(point_id, document_id, chunk_number, content) VALUES (?, ?, ?, ?)`,
				vector.PointID("doc-Z", 0), "doc-Z", 0, "zero",
			)
			Expect(err).NotTo(HaveOccurred())
			rowID, err := res.LastInsertId()
			Expect(err).NotTo(HaveOccurred())
			_, err = raw.Exec(`INSERT INTO "chunkstore_embeddings_vec"(rowid, embedding) VALUES (?, ?)`, rowID, make([]byte, 12))
			Expect(err).NotTo(HaveOccurred())

			results, err := driver.QuerySimilar(ctx, []float32{1, 0, 0}, 5, []string{"doc-A", "doc-Z"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].DocumentID).To(Equal("doc-A"))
			Expect(results[0].Score).To(BeNumerically("~", 1.0, 1e-5))

			var zero vector.Chunk
			for _, r := range results {
				if r.DocumentID == "doc-Z" {
					zero = r
				}
			}
			Expect(zero.Score).To(BeZero())
		})
	})

	Context("with an initialized collection", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			var err error
			driver, err = sqlitevec.NewDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 3,
				Retry:      testRetry,
			}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.Initialize(ctx)).To(Succeed())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		storeScenario := func() {
			ids, err := driver.StoreEmbeddings(ctx, []vector.Chunk{
				{DocumentID: "doc-A", ChunkNumber: 0, Content: "first", Embedding: []float32{1, 0, 0}, Metadata: map[string]any{"page": 1}},
				{DocumentID: "doc-A", ChunkNumber: 1, Content: "second", Embedding: []float32{0, 1, 0}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{vector.PointID("doc-A", 0), vector.PointID("doc-A", 1)}))
		}

		Describe("StoreEmbeddings", func() {
			It("should do nothing when given empty chunks", func() {
				ids, err := driver.StoreEmbeddings(ctx, []vector.Chunk{})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids).To(BeEmpty())
			})

			It("skips chunks without embeddings", func() {
				ids, err := driver.StoreEmbeddings(ctx, []vector.Chunk{
					{DocumentID: "doc-A", ChunkNumber: 0},
					{DocumentID: "doc-A", ChunkNumber: 1, Embedding: []float32{0, 1, 0}},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids).To(Equal([]string{vector.PointID("doc-A", 1)}))
			})

			It("skips a zero-norm embedding so later queries still work", func() {
				ids, err := driver.StoreEmbeddings(ctx, []vector.Chunk{
					{DocumentID: "doc-A", ChunkNumber: 0, Embedding: []float32{1, 0, 0}},
					{DocumentID: "doc-Z", ChunkNumber: 0, Embedding: []float32{0, 0, 0}},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids).To(Equal([]string{vector.PointID("doc-A", 0)}))

				results, err := driver.QuerySimilar(ctx, []float32{1, 0, 0}, 5, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(1))
				Expect(results[0].DocumentID).To(Equal("doc-A"))

				results, err = driver.QuerySimilar(ctx, []float32{1, 0, 0}, 5, []string{"doc-A", "doc-Z"})
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(1))
			})

			It("should update an existing chunk", func() {
				storeScenario()

				_, err := driver.StoreEmbeddings(ctx, []vector.Chunk{
					{DocumentID: "doc-A", ChunkNumber: 0, Content: "first-updated", Embedding: []float32{0, 0, 1}},
				})
				Expect(err).NotTo(HaveOccurred())

				chunks, err := driver.GetChunksByID(ctx, []vector.ChunkRef{{DocumentID: "doc-A", ChunkNumber: 0}})
				Expect(err).NotTo(HaveOccurred())
				Expect(chunks).To(HaveLen(1))
				Expect(chunks[0].Content).To(Equal("first-updated"))

				results, err := driver.QuerySimilar(ctx, []float32{0, 0, 1}, 1, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(1))
				Expect(results[0].ChunkNumber).To(Equal(0))
			})

			It("fails the batch for an invalid chunk", func() {
				_, err := driver.StoreEmbeddings(ctx, []vector.Chunk{
					{DocumentID: "", Embedding: []float32{0, 1, 0}},
				})
				Expect(errors.Is(err, vector.ErrStore)).To(BeTrue())
				Expect(errors.Is(err, vector.ErrInvalidChunk)).To(BeTrue())
			})
		})

		Describe("QuerySimilar", func() {
			It("returns the closest chunk first with a score and no embedding", func() {
				storeScenario()

				results, err := driver.QuerySimilar(ctx, []float32{1, 0, 0}, 1, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(1))
				Expect(results[0].DocumentID).To(Equal("doc-A"))
				Expect(results[0].ChunkNumber).To(Equal(0))
				Expect(results[0].Score).To(BeNumerically("~", 1.0, 1e-5))
				Expect(results[0].Embedding).To(BeEmpty())
				Expect(results[0].Metadata).To(HaveKeyWithValue("page", float64(1)))
			})

			It("returns at most k results ordered by descending score", func() {
				storeScenario()
				_, err := driver.StoreEmbeddings(ctx, []vector.Chunk{
					{DocumentID: "doc-B", Embedding: []float32{0.7, 0.7, 0}},
				})
				Expect(err).NotTo(HaveOccurred())

				results, err := driver.QuerySimilar(ctx, []float32{1, 0.1, 0}, 2, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(2))
				Expect(results[0].Score).To(BeNumerically(">=", results[1].Score))
			})

			It("restricts results to the requested documents", func() {
				storeScenario()
				_, err := driver.StoreEmbeddings(ctx, []vector.Chunk{
					{DocumentID: "doc-B", Embedding: []float32{1, 0, 0}},
					{DocumentID: "doc-C", Embedding: []float32{0.5, 0.5, 0}},
				})
				Expect(err).NotTo(HaveOccurred())

				results, err := driver.QuerySimilar(ctx, []float32{1, 0, 0}, 10, []string{"doc-B", "doc-C"})
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(2))
				Expect(results[0].DocumentID).To(Equal("doc-B"))
				Expect(results[1].DocumentID).To(Equal("doc-C"))
				Expect(results[0].Score).To(BeNumerically(">", results[1].Score))
			})

			It("rejects a query vector of the wrong size", func() {
				_, err := driver.QuerySimilar(ctx, []float32{1, 0}, 1, nil)
				Expect(errors.Is(err, vector.ErrDimensionMismatch)).To(BeTrue())
			})

			It("rejects a zero-norm query vector", func() {
				storeScenario()

				_, err := driver.QuerySimilar(ctx, []float32{0, 0, 0}, 1, nil)
				Expect(errors.Is(err, vector.ErrQuery)).To(BeTrue())
				Expect(errors.Is(err, vector.ErrZeroVector)).To(BeTrue())
			})
		})

		Describe("GetChunksByID", func() {
			It("returns exactly the referenced chunk", func() {
				storeScenario()

				chunks, err := driver.GetChunksByID(ctx, []vector.ChunkRef{{DocumentID: "doc-A", ChunkNumber: 1}})
				Expect(err).NotTo(HaveOccurred())
				Expect(chunks).To(HaveLen(1))
				Expect(chunks[0].Content).To(Equal("second"))
				Expect(chunks[0].Score).To(BeZero())
				Expect(chunks[0].Metadata).To(BeEmpty())
			})

			It("omits missing chunks", func() {
				chunks, err := driver.GetChunksByID(ctx, []vector.ChunkRef{{DocumentID: "nope"}})
				Expect(err).NotTo(HaveOccurred())
				Expect(chunks).To(BeEmpty())
			})
		})

		Describe("DeleteChunksByDocumentID", func() {
			It("removes the document from queries and fetches", func() {
				storeScenario()

				Expect(driver.DeleteChunksByDocumentID(ctx, "doc-A")).To(Succeed())

				results, err := driver.QuerySimilar(ctx, []float32{1, 0, 0}, 1, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(BeEmpty())

				chunks, err := driver.GetChunksByID(ctx, []vector.ChunkRef{{DocumentID: "doc-A", ChunkNumber: 1}})
				Expect(err).NotTo(HaveOccurred())
				Expect(chunks).To(BeEmpty())
			})

			It("succeeds for an unknown document", func() {
				Expect(driver.DeleteChunksByDocumentID(ctx, "missing")).To(Succeed())
			})

			It("leaves other documents in place", func() {
				storeScenario()
				_, err := driver.StoreEmbeddings(ctx, []vector.Chunk{
					{DocumentID: "doc-B", Embedding: []float32{1, 0, 0}},
				})
				Expect(err).NotTo(HaveOccurred())

				Expect(driver.DeleteChunksByDocumentID(ctx, "doc-A")).To(Succeed())

				results, err := driver.QuerySimilar(ctx, []float32{1, 0, 0}, 5, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(1))
				Expect(results[0].DocumentID).To(Equal("doc-B"))
			})
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver interface", func() {
			var _ vector.Driver = (*sqlitevec.Driver)(nil)
		})
	})
})
