package api

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chunkstore/api/mcp"
	"github.com/papercomputeco/chunkstore/pkg/eventstream"
	"github.com/papercomputeco/chunkstore/pkg/eventstream/nop"
	"github.com/papercomputeco/chunkstore/pkg/vector"
)

// Server is the API server fronting a single vector store.
type Server struct {
	config    Config
	driver    vector.Driver
	publisher eventstream.Publisher
	logger    *slog.Logger
	app       *fiber.App
}

// NewServer creates a new API server.
// The driver is injected so the caller owns its lifecycle.
func NewServer(config Config, driver vector.Driver, logger *slog.Logger) (*Server, error) {
	if driver == nil {
		return nil, errors.New("vector driver is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	publisher := config.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = DefaultPublishTimeout
	}

	s := &Server{
		config:    config,
		driver:    driver,
		publisher: publisher,
		logger:    logger,
		app:       app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/v1/collection/init", s.handleInitialize)
	app.Post("/v1/chunks", s.handleStore)
	app.Post("/v1/chunks/get", s.handleGetChunks)
	app.Post("/v1/query", s.handleQuery)
	app.Delete("/v1/documents/:id", s.handleDeleteDocument)

	if !config.DisableMCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Driver: driver,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating MCP server: %w", err)
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"mcp", !s.config.DisableMCP,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
