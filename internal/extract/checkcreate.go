package extract

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arke-institute/kgextractor/internal/observability"
)

// CheckCreateTiming holds the jittered-sleep constants from spec §4.5.
// Production defaults match the spec exactly; tests override these to
// near-zero so the protocol's race-resolution logic can be exercised
// without real wall-clock delay.
type CheckCreateTiming struct {
	SettleBase     time.Duration
	SettleJitter   time.Duration
	RetryBase      time.Duration
	RetryJitter    time.Duration
	LookupNLimit   int
	LookupNRetries int
}

// DefaultCheckCreateTiming returns the spec-fixed production timing.
func DefaultCheckCreateTiming() CheckCreateTiming {
	return CheckCreateTiming{
		SettleBase:     100 * time.Millisecond,
		SettleJitter:   100 * time.Millisecond,
		RetryBase:      150 * time.Millisecond,
		RetryJitter:    100 * time.Millisecond,
		LookupNLimit:   10,
		LookupNRetries: 2,
	}
}

// CheckCreateEngine implements the check-create-check-delete race
// resolution protocol (spec §4.5) — the hardest subsystem in this worker.
// Many jobs run concurrently against the same graph collection, whose
// lookup index is only eventually consistent; this engine makes sure that
// at most one of them ever survives as "new" per (collection, label, type).
type CheckCreateEngine struct {
	graph       GraphClient
	timing      CheckCreateTiming
	concurrency int
	cache       *ResolutionCache // optional, may be nil
	logger      zerolog.Logger
}

// NewCheckCreateEngine constructs an engine. cache may be nil to disable
// the optional resolution cache entirely.
func NewCheckCreateEngine(graph GraphClient, timing CheckCreateTiming, concurrency int, cache *ResolutionCache) *CheckCreateEngine {
	if concurrency <= 0 {
		concurrency = 20
	}
	return &CheckCreateEngine{
		graph:       graph,
		timing:      timing,
		concurrency: concurrency,
		cache:       cache,
		logger:      observability.Logger("extract.checkcreate"),
	}
}

func jitter(base, spread time.Duration) time.Duration {
	if spread <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(spread)))
}

// CheckCreate resolves one (collection, label, type) request per the
// protocol in spec §4.5.
func (e *CheckCreateEngine) CheckCreate(ctx context.Context, collection, label, entityType string) (CheckCreateResult, error) {
	L := Normalize(label)

	// Lookup-1: a prior winner already exists.
	if e.cache != nil {
		if cached, ok := e.cache.GetResolved(collection, L, entityType); ok {
			return CheckCreateResult{EntityID: cached, IsNew: false, Label: L, Type: entityType}, nil
		}
	}
	existing, err := e.graph.Lookup(ctx, collection, L, entityType, 1)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrCheckCreateLookupFailed, err)
		fields := map[string]interface{}{"collection": collection, "label": L, "type": entityType}
		if body, ok := ResponseBody(wrapped); ok {
			fields["response_body"] = observability.SanitizeBody(body)
		}
		observability.LogError(e.logger, wrapped, "lookup-1 failed, treating as not found", fields)
		existing = nil
	}
	if len(existing) > 0 {
		if e.cache != nil {
			e.cache.PutResolved(collection, L, entityType, existing[0].ID)
		}
		return CheckCreateResult{EntityID: existing[0].ID, IsNew: false, Label: L, Type: entityType}, nil
	}

	// Create: sync_index=true blocks until our entity is index-visible.
	created, err := e.graph.CreateEntity(ctx, collection, entityType, map[string]interface{}{"label": L}, true)
	if err != nil {
		return CheckCreateResult{}, fmt.Errorf("%w: %w", ErrCheckCreateFailed, err)
	}

	// Settle: let racing peers finish their own create+index before we
	// re-check.
	select {
	case <-ctx.Done():
		return CheckCreateResult{}, ctx.Err()
	case <-time.After(jitter(e.timing.SettleBase, e.timing.SettleJitter)):
	}

	matches, err := e.lookupNWithRetry(ctx, collection, L, entityType, created.ID)
	if err != nil {
		fields := map[string]interface{}{"collection": collection, "label": L, "type": entityType}
		if body, ok := ResponseBody(err); ok {
			fields["response_body"] = observability.SanitizeBody(body)
		}
		observability.LogError(e.logger, err, "lookup-N failed, proceeding as sole creator", fields)
		matches = []LookupMatch{{ID: created.ID, CreatedAt: created.CreatedAt}}
	}

	if len(matches) <= 1 {
		if e.cache != nil {
			e.cache.PutResolved(collection, L, entityType, created.ID)
		}
		return CheckCreateResult{EntityID: created.ID, IsNew: true, Label: L, Type: entityType}, nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	winner := matches[0]

	observability.LogEvent(e.logger, observability.EventRaceDetected, map[string]interface{}{
		"collection": collection, "label": L, "type": entityType, "candidates": len(matches),
	})

	if winner.ID == created.ID {
		if e.cache != nil {
			e.cache.PutResolved(collection, L, entityType, created.ID)
		}
		return CheckCreateResult{EntityID: created.ID, IsNew: true, Label: L, Type: entityType}, nil
	}

	observability.LogEvent(e.logger, observability.EventRaceLost, map[string]interface{}{
		"collection": collection, "label": L, "type": entityType, "ours": created.ID, "winner": winner.ID,
	})
	if err := e.graph.DeleteEntity(ctx, created.ID); err != nil {
		fields := map[string]interface{}{"entity_id": created.ID}
		if body, ok := ResponseBody(err); ok {
			fields["response_body"] = observability.SanitizeBody(body)
		}
		observability.LogError(e.logger, err, "best-effort delete of losing duplicate failed", fields)
	}
	if e.cache != nil {
		e.cache.PutResolved(collection, L, entityType, winner.ID)
	}
	return CheckCreateResult{EntityID: winner.ID, IsNew: false, Label: L, Type: entityType}, nil
}

// lookupNWithRetry implements the Lookup-N step, including the "exactly
// one entity and it is ours" retry path that guards against a lagging
// index hiding concurrent peer creations.
func (e *CheckCreateEngine) lookupNWithRetry(ctx context.Context, collection, label, entityType, ourID string) ([]LookupMatch, error) {
	limit := e.timing.LookupNLimit
	if limit <= 0 {
		limit = 10
	}
	matches, err := e.graph.Lookup(ctx, collection, label, entityType, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckCreateLookupFailed, err)
	}

	retries := e.timing.LookupNRetries
	if retries <= 0 {
		retries = 2
	}
	for i := 0; i < retries; i++ {
		if !(len(matches) == 1 && matches[0].ID == ourID) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jitter(e.timing.RetryBase, e.timing.RetryJitter)):
		}
		next, err := e.graph.Lookup(ctx, collection, label, entityType, limit)
		if err != nil {
			return matches, nil // degrade to the prior result rather than fail
		}
		matches = next
	}
	return matches, nil
}

// entityRequest is one deduplicated (label, type) pair submitted to
// BatchCheckCreate.
type entityRequest struct {
	Label string
	Type  string
}

// BatchCheckCreate deduplicates entities by (type, normalize(label)) and
// resolves each via CheckCreate with a bounded concurrency ceiling,
// following the sync.WaitGroup + semaphore-channel idiom used for batch
// embedding generation. Results are keyed by normalized label so the
// caller can look them up regardless of completion order.
func (e *CheckCreateEngine) BatchCheckCreate(ctx context.Context, collection string, creates []CreateOp) (map[string]CheckCreateResult, error) {
	dedup := make(map[string]entityRequest)
	for _, c := range creates {
		key := Normalize(c.Label) + "\x00" + c.EntityType
		if _, seen := dedup[key]; !seen {
			dedup[key] = entityRequest{Label: c.Label, Type: c.EntityType}
		}
	}

	results := make(map[string]CheckCreateResult, len(dedup))
	var mu sync.Mutex
	var firstErr error

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, e.concurrency)

	for _, req := range dedup {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(req entityRequest) {
			defer wg.Done()
			defer func() { <-semaphore }()

			result, err := e.CheckCreate(ctx, collection, req.Label, req.Type)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results[result.Label] = result
		}(req)
	}
	wg.Wait()

	if firstErr != nil {
		return results, firstErr
	}
	return results, nil
}
