package extract

import (
	"context"
	"time"
)

// LookupMatch is one row of a collection lookup result.
type LookupMatch struct {
	ID        string
	CreatedAt time.Time
}

// CreateResult is the graph service's response to a create request.
type CreateResult struct {
	ID        string
	CreatedAt time.Time
}

// GraphClient is the consumer-side contract against the external graph
// service (spec §6.2). internal/graphclient provides the production HTTP
// implementation and an in-memory fake for tests; any type satisfying this
// interface can drive the check-create protocol and the orchestrator.
type GraphClient interface {
	// GetEntity fetches an entity with relationship previews expanded.
	GetEntity(ctx context.Context, id string) (*Entity, error)

	// GetContent fetches the chunk's content payload when neither
	// properties.text nor properties.content is populated.
	GetContent(ctx context.Context, id string) (string, error)

	// Lookup requests up to limit entities matching (label, type) in
	// collection, exact-match case-insensitive on label.
	Lookup(ctx context.Context, collection, label, entityType string, limit int) ([]LookupMatch, error)

	// CreateEntity posts a new entity. syncIndex requests the server block
	// until the record is index-visible.
	CreateEntity(ctx context.Context, collection, entityType string, properties map[string]interface{}, syncIndex bool) (CreateResult, error)

	// DeleteEntity best-effort deletes an entity (used on the check-create
	// loser path).
	DeleteEntity(ctx context.Context, id string) error

	// PostAdditiveUpdates submits one batch (at most 1000 entries) to the
	// additive-update endpoint.
	PostAdditiveUpdates(ctx context.Context, updates []AdditiveUpdate) (accepted int, err error)
}
