// Package api provides an HTTP API server for storing and querying chunks.
package api

import (
	"time"

	"github.com/papercomputeco/chunkstore/pkg/eventstream"
)

// DefaultPublishTimeout bounds how long a request waits on the publisher.
const DefaultPublishTimeout = 2 * time.Second

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// DisableMCP skips mounting the MCP server at /mcp.
	DisableMCP bool

	// Collection names the collection in published change events.
	Collection string

	// Publisher receives change events after stores and deletes.
	// A nil Publisher disables events.
	Publisher eventstream.Publisher

	// PublishTimeout bounds each Publish call. Zero means DefaultPublishTimeout.
	PublishTimeout time.Duration
}
