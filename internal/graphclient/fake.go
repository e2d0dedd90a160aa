package graphclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arke-institute/kgextractor/internal/extract"
)

// Fake is an in-memory extract.GraphClient for deterministic tests,
// standing in for the graph service's HTTP contract without a network
// dependency. Grounded on the teacher's hand-rolled in-package test doubles
// (e.g. kag_test.go's fixtures) rather than a mocking library, since the
// pack never imports one.
type Fake struct {
	mu       sync.Mutex
	entities map[string]*extract.Entity
	content  map[string]string
	updates  map[string][]extract.AdditiveUpdate
	nextID   int
}

// NewFake constructs an empty in-memory graph.
func NewFake() *Fake {
	return &Fake{
		entities: map[string]*extract.Entity{},
		content:  map[string]string{},
		updates:  map[string][]extract.AdditiveUpdate{},
	}
}

var _ extract.GraphClient = (*Fake)(nil)

// Seed installs an entity directly, bypassing CreateEntity, for test setup.
func (f *Fake) Seed(e *extract.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[e.ID] = e
}

// SeedContent installs a content payload for GetContent fallback tests.
func (f *Fake) SeedContent(id, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content[id] = text
}

func (f *Fake) GetEntity(_ context.Context, id string) (*extract.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[id]
	if !ok {
		return nil, extract.ErrEntityNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *Fake) GetContent(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content[id], nil
}

func (f *Fake) Lookup(_ context.Context, _, label, entityType string, limit int) ([]extract.LookupMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []extract.LookupMatch
	for _, e := range f.entities {
		if e.Type != entityType {
			continue
		}
		if v, _ := e.Properties["label"].(string); v == label {
			out = append(out, extract.LookupMatch{ID: e.ID, CreatedAt: e.CreatedAt})
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) CreateEntity(_ context.Context, _, entityType string, properties map[string]interface{}, _ bool) (extract.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("fake-%d", f.nextID)
	createdAt := time.Now()
	f.entities[id] = &extract.Entity{ID: id, Type: entityType, Properties: properties, CreatedAt: createdAt}
	return extract.CreateResult{ID: id, CreatedAt: createdAt}, nil
}

func (f *Fake) DeleteEntity(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entities, id)
	return nil
}

func (f *Fake) PostAdditiveUpdates(_ context.Context, updates []extract.AdditiveUpdate) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		f.updates[u.EntityID] = append(f.updates[u.EntityID], u)
		entity, ok := f.entities[u.EntityID]
		if !ok {
			continue
		}
		if entity.Properties == nil {
			entity.Properties = map[string]interface{}{}
		}
		for k, v := range u.Properties {
			entity.Properties[k] = v
		}
	}
	return len(updates), nil
}

// UpdatesFor returns every AdditiveUpdate posted against id, in post order.
func (f *Fake) UpdatesFor(id string) []extract.AdditiveUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]extract.AdditiveUpdate(nil), f.updates[id]...)
}
