package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/chunkstore/pkg/vector"
)

var (
	querySimilarToolName    = "query_similar"
	querySimilarDescription = "Find the chunks whose embeddings are most similar to the given embedding. Optionally restrict the search to a set of document IDs. Results are ordered by descending similarity score."

	getChunksToolName    = "get_chunks"
	getChunksDescription = "Fetch chunks by document ID and chunk number. Chunks that do not exist are omitted from the result."
)

const defaultK = 5

// QueryInput represents the input arguments for the query_similar tool.
type QueryInput struct {
	Embedding   []float32 `json:"embedding" jsonschema:"the query embedding, with the same dimensionality as the store"`
	K           int       `json:"k,omitempty" jsonschema:"number of results to return (default: 5)"`
	DocumentIDs []string  `json:"document_ids,omitempty" jsonschema:"restrict results to these document IDs"`
}

// GetChunksInput represents the input arguments for the get_chunks tool.
type GetChunksInput struct {
	Refs []vector.ChunkRef `json:"refs" jsonschema:"the chunks to fetch, by document_id and chunk_number"`
}

// ChunksOutput represents the output of both chunk tools.
type ChunksOutput struct {
	Chunks []vector.Chunk `json:"chunks"`
	Count  int            `json:"count"`
}

// handleQuerySimilar processes a query_similar request.
func (s *Server) handleQuerySimilar(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, ChunksOutput, error) {
	logger := s.config.Logger

	k := input.K
	if k <= 0 {
		k = defaultK
	}

	logger.Debug("MCP query request",
		"dimensions", len(input.Embedding),
		"k", k,
		"document_ids", input.DocumentIDs,
	)

	chunks, err := s.config.Driver.QuerySimilar(ctx, input.Embedding, k, input.DocumentIDs)
	if err != nil {
		logger.Error("failed to query vector store", "error", err)
		return errorResult("Failed to query vector store: %v", err), ChunksOutput{}, nil
	}

	return s.chunksResult(chunks)
}

// handleGetChunks processes a get_chunks request.
func (s *Server) handleGetChunks(ctx context.Context, _ *mcp.CallToolRequest, input GetChunksInput) (*mcp.CallToolResult, ChunksOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP get chunks request", "refs", len(input.Refs))

	chunks, err := s.config.Driver.GetChunksByID(ctx, input.Refs)
	if err != nil {
		logger.Error("failed to get chunks", "error", err)
		return errorResult("Failed to get chunks: %v", err), ChunksOutput{}, nil
	}

	return s.chunksResult(chunks)
}

// chunksResult serializes the structured output as JSON for the text field.
// Tools returning structured content also return it as a TextContent block
// for clients that only read text.
func (s *Server) chunksResult(chunks []vector.Chunk) (*mcp.CallToolResult, ChunksOutput, error) {
	if chunks == nil {
		chunks = []vector.Chunk{}
	}

	output := ChunksOutput{
		Chunks: chunks,
		Count:  len(chunks),
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		s.config.Logger.Error("failed to marshal chunks output", "error", err)
		return errorResult("Failed to serialize results: %v", err), ChunksOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

func errorResult(format string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, err)},
		},
	}
}
