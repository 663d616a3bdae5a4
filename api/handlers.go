package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chunkstore/pkg/eventstream"
	"github.com/papercomputeco/chunkstore/pkg/vector"
)

const defaultK = 5

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StoreRequest is the body of POST /v1/chunks.
type StoreRequest struct {
	Chunks []vector.Chunk `json:"chunks"`
}

// StoreResponse lists the point IDs written by a store request.
type StoreResponse struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Embedding []float32 `json:"embedding"`

	// K defaults to 5 when omitted.
	K *int `json:"k,omitempty"`

	DocumentIDs []string `json:"document_ids,omitempty"`
}

// GetChunksRequest is the body of POST /v1/chunks/get.
type GetChunksRequest struct {
	Refs []vector.ChunkRef `json:"refs"`
}

// ChunksResponse carries the chunks returned by query and get requests.
type ChunksResponse struct {
	Chunks []vector.Chunk `json:"chunks"`
	Count  int            `json:"count"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleInitialize ensures the configured collection exists with the
// configured dimensions.
func (s *Server) handleInitialize(c *fiber.Ctx) error {
	if err := s.driver.Initialize(c.UserContext()); err != nil {
		s.logger.Error("failed to initialize collection", "error", err)
		return s.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// handleStore upserts the chunks in the request body.
func (s *Server) handleStore(c *fiber.Ctx) error {
	var req StoreRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	ids, err := s.driver.StoreEmbeddings(c.UserContext(), req.Chunks)
	if err != nil {
		s.logger.Error("failed to store chunks", "chunks", len(req.Chunks), "error", err)
		return s.errorResponse(c, err)
	}
	if ids == nil {
		ids = []string{}
	}
	if len(ids) > 0 {
		s.publish(c, eventstream.NewChunksStoredEvent(s.config.Collection, storedDocumentIDs(req.Chunks, ids), ids))
	}

	return c.JSON(StoreResponse{IDs: ids, Count: len(ids)})
}

// handleQuery returns the chunks closest to the request embedding.
func (s *Server) handleQuery(c *fiber.Ctx) error {
	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if len(req.Embedding) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "embedding is required"})
	}

	k := defaultK
	if req.K != nil {
		if *req.K < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "k must not be negative"})
		}
		k = *req.K
	}

	chunks, err := s.driver.QuerySimilar(c.UserContext(), req.Embedding, k, req.DocumentIDs)
	if err != nil {
		s.logger.Error("failed to query chunks", "k", k, "error", err)
		return s.errorResponse(c, err)
	}

	return c.JSON(chunksResponse(chunks))
}

// handleGetChunks fetches chunks by reference. Missing chunks are omitted.
func (s *Server) handleGetChunks(c *fiber.Ctx) error {
	var req GetChunksRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	chunks, err := s.driver.GetChunksByID(c.UserContext(), req.Refs)
	if err != nil {
		s.logger.Error("failed to get chunks", "refs", len(req.Refs), "error", err)
		return s.errorResponse(c, err)
	}

	return c.JSON(chunksResponse(chunks))
}

// handleDeleteDocument removes every chunk of a document.
func (s *Server) handleDeleteDocument(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "document id parameter required"})
	}

	if err := s.driver.DeleteChunksByDocumentID(c.UserContext(), id); err != nil {
		s.logger.Error("failed to delete document", "document_id", id, "error", err)
		return s.errorResponse(c, err)
	}
	s.publish(c, eventstream.NewDocumentDeletedEvent(s.config.Collection, id))

	return c.SendStatus(fiber.StatusNoContent)
}

// errorResponse maps a driver error onto an HTTP status.
func (s *Server) errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, vector.ErrInvalidChunk), errors.Is(err, vector.ErrDimensionMismatch), errors.Is(err, vector.ErrZeroVector):
		status = fiber.StatusBadRequest
	case errors.Is(err, vector.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, vector.ErrConnection):
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

func chunksResponse(chunks []vector.Chunk) ChunksResponse {
	if chunks == nil {
		chunks = []vector.Chunk{}
	}
	return ChunksResponse{Chunks: chunks, Count: len(chunks)}
}

// publish emits a change event within the publish timeout. Failures are
// logged and never fail the request.
func (s *Server) publish(c *fiber.Ctx, event *eventstream.ChunkEvent) {
	ctx, cancel := context.WithTimeout(c.UserContext(), s.config.PublishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish change event",
			"event_type", event.EventType,
			"event_id", event.EventID,
			"error", err,
		)
	}
}

// storedDocumentIDs returns the document IDs of the chunks whose point IDs
// were written.
func storedDocumentIDs(chunks []vector.Chunk, ids []string) []string {
	written := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		written[id] = struct{}{}
	}

	docs := make([]string, 0, len(ids))
	for _, c := range chunks {
		if _, ok := written[c.PointID()]; ok {
			docs = append(docs, c.DocumentID)
		}
	}
	return docs
}
