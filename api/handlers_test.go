package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chunkstore/pkg/eventstream"
	"github.com/papercomputeco/chunkstore/pkg/logger"
	testutils "github.com/papercomputeco/chunkstore/pkg/utils/test"
	"github.com/papercomputeco/chunkstore/pkg/vector"
)

func doRequest(s *Server, method, path, body string) *http.Response {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.app.Test(req)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.ChunkEvent
	fail   bool
	block  bool
}

func (p *recordingPublisher) Publish(ctx context.Context, event *eventstream.ChunkEvent) error {
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []*eventstream.ChunkEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.ChunkEvent(nil), p.events...)
}

func decodeBody[T any](resp *http.Response) T {
	var out T
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(body, &out)).To(Succeed())
	return out
}

var _ = Describe("Server", func() {
	var (
		server *Server
		driver *testutils.MockVectorDriver
	)

	BeforeEach(func() {
		driver = testutils.NewMockVectorDriver(3)

		var err error
		server, err = NewServer(Config{ListenAddr: ":0"}, driver, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	seed := func() {
		_, err := driver.StoreEmbeddings(context.Background(), []vector.Chunk{
			{DocumentID: "a", ChunkNumber: 0, Content: "alpha", Embedding: []float32{1, 0, 0}},
			{DocumentID: "a", ChunkNumber: 1, Content: "alpha two", Embedding: []float32{0.8, 0.2, 0}},
			{DocumentID: "b", ChunkNumber: 0, Content: "beta", Embedding: []float32{0, 1, 0}},
		})
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("NewServer", func() {
		It("returns an error when vector driver is nil", func() {
			_, err := NewServer(Config{}, nil, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("vector driver is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := NewServer(Config{}, driver, nil)
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			resp := doRequest(server, http.MethodGet, "/ping", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(decodeBody[string](resp)).To(Equal("pong"))
		})
	})

	Describe("POST /v1/collection/init", func() {
		It("initializes the store", func() {
			resp := doRequest(server, http.MethodPost, "/v1/collection/init", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(driver.Initialized).To(BeTrue())
		})

		It("returns 500 when initialization fails", func() {
			driver.FailInitialize = true

			resp := doRequest(server, http.MethodPost, "/v1/collection/init", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
			Expect(decodeBody[ErrorResponse](resp).Error).To(ContainSubstring(vector.ErrInitialize.Error()))
		})
	})

	Describe("POST /v1/chunks", func() {
		It("stores chunks and returns their point ids", func() {
			resp := doRequest(server, http.MethodPost, "/v1/chunks", `{"chunks":[
				{"document_id":"a","chunk_number":0,"content":"alpha","embedding":[1,0,0],"metadata":{"lang":"en"}},
				{"document_id":"a","chunk_number":1,"content":"no vector"}
			]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			out := decodeBody[StoreResponse](resp)
			Expect(out.Count).To(Equal(1))
			Expect(out.IDs).To(ConsistOf(vector.ChunkRef{DocumentID: "a", ChunkNumber: 0}.PointID()))
			Expect(driver.Chunks).To(HaveLen(1))
		})

		It("returns 400 for malformed JSON", func() {
			resp := doRequest(server, http.MethodPost, "/v1/chunks", `{"chunks":`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 400 for an invalid chunk", func() {
			resp := doRequest(server, http.MethodPost, "/v1/chunks",
				`{"chunks":[{"document_id":"","chunk_number":0,"embedding":[1,0,0]}]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(decodeBody[ErrorResponse](resp).Error).To(ContainSubstring(vector.ErrInvalidChunk.Error()))
		})

		It("returns 500 when the store fails", func() {
			driver.FailStore = true

			resp := doRequest(server, http.MethodPost, "/v1/chunks",
				`{"chunks":[{"document_id":"a","chunk_number":0,"embedding":[1,0,0]}]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
		})
	})

	Describe("POST /v1/query", func() {
		BeforeEach(seed)

		It("returns the closest chunks first", func() {
			resp := doRequest(server, http.MethodPost, "/v1/query", `{"embedding":[1,0,0],"k":2}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			out := decodeBody[ChunksResponse](resp)
			Expect(out.Count).To(Equal(2))
			Expect(out.Chunks[0].Content).To(Equal("alpha"))
			Expect(out.Chunks[0].Score).To(BeNumerically(">", out.Chunks[1].Score))
			Expect(out.Chunks[0].Embedding).To(BeEmpty())
		})

		It("defaults k to 5", func() {
			resp := doRequest(server, http.MethodPost, "/v1/query", `{"embedding":[1,0,0]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(driver.LastK).To(Equal(5))
		})

		It("returns an empty list for k = 0", func() {
			resp := doRequest(server, http.MethodPost, "/v1/query", `{"embedding":[1,0,0],"k":0}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			out := decodeBody[ChunksResponse](resp)
			Expect(out.Chunks).To(BeEmpty())
			Expect(driver.LastK).To(Equal(0))
		})

		It("filters by document id", func() {
			resp := doRequest(server, http.MethodPost, "/v1/query", `{"embedding":[1,0,0],"document_ids":["b"]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			out := decodeBody[ChunksResponse](resp)
			Expect(out.Chunks).To(HaveLen(1))
			Expect(out.Chunks[0].DocumentID).To(Equal("b"))
		})

		It("returns 400 for a negative k", func() {
			resp := doRequest(server, http.MethodPost, "/v1/query", `{"embedding":[1,0,0],"k":-1}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 400 for a missing embedding", func() {
			resp := doRequest(server, http.MethodPost, "/v1/query", `{"k":2}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 400 for a zero-norm embedding", func() {
			resp := doRequest(server, http.MethodPost, "/v1/query", `{"embedding":[0,0,0]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(decodeBody[ErrorResponse](resp).Error).To(ContainSubstring(vector.ErrZeroVector.Error()))
		})

		It("returns 400 for a dimension mismatch", func() {
			resp := doRequest(server, http.MethodPost, "/v1/query", `{"embedding":[1,0]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(decodeBody[ErrorResponse](resp).Error).To(ContainSubstring(vector.ErrDimensionMismatch.Error()))
		})

		It("returns 500 when the query fails", func() {
			driver.FailQuery = true

			resp := doRequest(server, http.MethodPost, "/v1/query", `{"embedding":[1,0,0]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
		})
	})

	Describe("POST /v1/chunks/get", func() {
		BeforeEach(seed)

		It("returns existing chunks and omits missing ones", func() {
			resp := doRequest(server, http.MethodPost, "/v1/chunks/get", `{"refs":[
				{"document_id":"a","chunk_number":1},
				{"document_id":"zzz","chunk_number":0}
			]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			out := decodeBody[ChunksResponse](resp)
			Expect(out.Count).To(Equal(1))
			Expect(out.Chunks[0].Content).To(Equal("alpha two"))
		})

		It("returns 500 when the lookup fails", func() {
			driver.FailGet = true

			resp := doRequest(server, http.MethodPost, "/v1/chunks/get", `{"refs":[{"document_id":"a","chunk_number":0}]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
		})
	})

	Describe("DELETE /v1/documents/:id", func() {
		BeforeEach(seed)

		It("removes every chunk of the document", func() {
			resp := doRequest(server, http.MethodDelete, "/v1/documents/a", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))
			Expect(driver.Chunks).To(HaveLen(1))
		})

		It("succeeds for an unknown document", func() {
			resp := doRequest(server, http.MethodDelete, "/v1/documents/missing", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))
			Expect(driver.Chunks).To(HaveLen(3))
		})

		It("returns 500 when the delete fails", func() {
			driver.FailDelete = true

			resp := doRequest(server, http.MethodDelete, "/v1/documents/a", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
		})
	})

	Describe("change events", func() {
		var (
			publisher *recordingPublisher
			evServer  *Server
		)

		BeforeEach(func() {
			publisher = &recordingPublisher{}

			var err error
			evServer, err = NewServer(Config{
				Collection: "docs",
				Publisher:  publisher,
				DisableMCP: true,
			}, driver, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
		})

		It("publishes a stored event naming only the written documents", func() {
			resp := doRequest(evServer, http.MethodPost, "/v1/chunks", `{"chunks":[
				{"document_id":"a","chunk_number":0,"content":"alpha","embedding":[1,0,0]},
				{"document_id":"a","chunk_number":1,"content":"alpha two","embedding":[0,1,0]},
				{"document_id":"b","chunk_number":0,"content":"no vector"}
			]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].EventType).To(Equal(eventstream.EventTypeChunksStored))
			Expect(events[0].Collection).To(Equal("docs"))
			Expect(events[0].DocumentIDs).To(Equal([]string{"a"}))
			Expect(events[0].PointIDs).To(HaveLen(2))
		})

		It("does not publish when nothing was stored", func() {
			resp := doRequest(evServer, http.MethodPost, "/v1/chunks",
				`{"chunks":[{"document_id":"a","chunk_number":0,"content":"no vector"}]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(publisher.Events()).To(BeEmpty())
		})

		It("publishes a deleted event", func() {
			resp := doRequest(evServer, http.MethodDelete, "/v1/documents/a", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].EventType).To(Equal(eventstream.EventTypeDocumentDeleted))
			Expect(events[0].DocumentIDs).To(Equal([]string{"a"}))
		})

		It("does not publish when the delete fails", func() {
			driver.FailDelete = true

			resp := doRequest(evServer, http.MethodDelete, "/v1/documents/a", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
			Expect(publisher.Events()).To(BeEmpty())
		})

		It("bounds a stalled publisher by the publish timeout", func() {
			publisher.block = true
			stalled, err := NewServer(Config{
				Publisher:      publisher,
				PublishTimeout: 20 * time.Millisecond,
				DisableMCP:     true,
			}, driver, logger.Nop())
			Expect(err).NotTo(HaveOccurred())

			start := time.Now()
			resp := doRequest(stalled, http.MethodDelete, "/v1/documents/a", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))
			Expect(time.Since(start)).To(BeNumerically("<", 500*time.Millisecond))
		})

		It("defaults the publish timeout", func() {
			Expect(evServer.config.PublishTimeout).To(Equal(DefaultPublishTimeout))
		})

		It("keeps the request successful when publishing fails", func() {
			publisher.fail = true

			resp := doRequest(evServer, http.MethodPost, "/v1/chunks",
				`{"chunks":[{"document_id":"a","chunk_number":0,"embedding":[1,0,0]}]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(decodeBody[StoreResponse](resp).Count).To(Equal(1))
		})
	})

	Describe("/mcp", func() {
		It("is not mounted when MCP is disabled", func() {
			noMCP, err := NewServer(Config{DisableMCP: true}, driver, logger.Nop())
			Expect(err).NotTo(HaveOccurred())

			resp := doRequest(noMCP, http.MethodPost, "/mcp", `{}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})
})
