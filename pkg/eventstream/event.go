// Package eventstream describes the change events emitted after chunks are
// written to or removed from a collection.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeChunksStored is emitted after a batch of chunks is upserted.
	EventTypeChunksStored = "chunkstore.chunks.stored"

	// EventTypeDocumentDeleted is emitted after a document's chunks are removed.
	EventTypeDocumentDeleted = "chunkstore.document.deleted"
)

// ChunkEvent is a transport-neutral event payload for a collection change.
type ChunkEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	Collection    string    `json:"collection,omitempty"`

	// DocumentIDs lists the distinct documents touched, in first-seen order.
	DocumentIDs []string `json:"document_ids"`

	// PointIDs lists the stored point IDs. Empty for deletions.
	PointIDs []string `json:"point_ids,omitempty"`
}

// NewChunksStoredEvent builds the event for a successful store of the given
// documents' chunks.
func NewChunksStoredEvent(collection string, documentIDs, pointIDs []string) *ChunkEvent {
	return newEvent(EventTypeChunksStored, collection, distinct(documentIDs), pointIDs)
}

// NewDocumentDeletedEvent builds the event for a document deletion.
func NewDocumentDeletedEvent(collection, documentID string) *ChunkEvent {
	return newEvent(EventTypeDocumentDeleted, collection, []string{documentID}, nil)
}

// Key returns the partitioning key of the event: its first document ID.
func (e *ChunkEvent) Key() string {
	if len(e.DocumentIDs) == 0 {
		return ""
	}
	return e.DocumentIDs[0]
}

func newEvent(eventType, collection string, documentIDs, pointIDs []string) *ChunkEvent {
	return &ChunkEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Collection:    collection,
		DocumentIDs:   documentIDs,
		PointIDs:      pointIDs,
	}
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
