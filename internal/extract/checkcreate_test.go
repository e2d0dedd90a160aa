package extract

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCheckCreateSingleCreate(t *testing.T) {
	graph := newFakeGraphClient()
	timing := DefaultCheckCreateTiming()
	timing.SettleBase, timing.SettleJitter = time.Millisecond, time.Millisecond
	timing.RetryBase, timing.RetryJitter = time.Millisecond, time.Millisecond
	engine := NewCheckCreateEngine(graph, timing, 4, nil)

	result, err := engine.CheckCreate(context.Background(), "moby-dick", "Starbuck", "person")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsNew {
		t.Error("expected the first check-create for a fresh label to report isNew=true")
	}
	if result.Label != "starbuck" {
		t.Errorf("expected normalized label, got %q", result.Label)
	}
}

func TestCheckCreateSecondCallFindsExisting(t *testing.T) {
	graph := newFakeGraphClient()
	timing := DefaultCheckCreateTiming()
	timing.SettleBase, timing.SettleJitter = time.Millisecond, time.Millisecond
	timing.RetryBase, timing.RetryJitter = time.Millisecond, time.Millisecond
	engine := NewCheckCreateEngine(graph, timing, 4, nil)

	first, err := engine.CheckCreate(context.Background(), "moby-dick", "Starbuck", "person")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := engine.CheckCreate(context.Background(), "moby-dick", "starbuck", "person")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.IsNew {
		t.Error("expected the second check-create for the same label to report isNew=false")
	}
	if second.EntityID != first.EntityID {
		t.Errorf("expected the same entity id, got %q and %q", first.EntityID, second.EntityID)
	}
}

// TestCheckCreateRaceExactlyOneWinner exercises P2: many concurrent
// check_create calls for the same (label, type) must converge on exactly one
// surviving entity and exactly one isNew=true result.
func TestCheckCreateRaceExactlyOneWinner(t *testing.T) {
	graph := newFakeGraphClient()
	timing := DefaultCheckCreateTiming()
	timing.SettleBase, timing.SettleJitter = 2*time.Millisecond, time.Millisecond
	timing.RetryBase, timing.RetryJitter = time.Millisecond, time.Millisecond
	engine := NewCheckCreateEngine(graph, timing, 20, nil)

	const concurrency = 12
	results := make([]CheckCreateResult, concurrency)
	errs := make([]error, concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.CheckCreate(context.Background(), "moby-dick", "Queequeg", "person")
		}(i)
	}
	wg.Wait()

	newCount := 0
	winnerIDs := map[string]bool{}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d returned an error: %v", i, err)
		}
		if results[i].IsNew {
			newCount++
		}
		winnerIDs[results[i].EntityID] = true
	}
	if newCount != 1 {
		t.Errorf("expected exactly one isNew=true result, got %d", newCount)
	}
	if len(winnerIDs) != 1 {
		t.Errorf("expected every call to converge on the same entity id, got %v", winnerIDs)
	}

	surviving, err := graph.Lookup(context.Background(), "moby-dick", "queequeg", "person", 10)
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if len(surviving) != 1 {
		t.Errorf("expected exactly one surviving entity after the race settles, got %d", len(surviving))
	}
}

func TestBatchCheckCreateDeduplicates(t *testing.T) {
	graph := newFakeGraphClient()
	timing := DefaultCheckCreateTiming()
	timing.SettleBase, timing.SettleJitter = time.Millisecond, time.Millisecond
	timing.RetryBase, timing.RetryJitter = time.Millisecond, time.Millisecond
	engine := NewCheckCreateEngine(graph, timing, 4, nil)

	creates := []CreateOp{
		{Label: "Captain Ahab", EntityType: "person"},
		{Label: "captain ahab", EntityType: "person"},
		{Label: "Moby Dick", EntityType: "animal"},
	}

	results, err := engine.BatchCheckCreate(context.Background(), "moby-dick", creates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 deduplicated results, got %d: %+v", len(results), results)
	}
	if !results["captain ahab"].IsNew || !results["moby dick"].IsNew {
		t.Errorf("expected both results to be new creates, got %+v", results)
	}
}

func TestCheckCreateUnreachableResolutionCacheDegrades(t *testing.T) {
	graph := newFakeGraphClient()
	timing := DefaultCheckCreateTiming()
	timing.SettleBase, timing.SettleJitter = time.Millisecond, time.Millisecond
	timing.RetryBase, timing.RetryJitter = time.Millisecond, time.Millisecond

	cache := NewResolutionCache(DefaultResolutionCacheConfig())
	engine := NewCheckCreateEngine(graph, timing, 4, cache)

	first, err := engine.CheckCreate(context.Background(), "moby-dick", "Pip", "person")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A Redis-less cache must degrade silently: the second call still
	// resolves correctly even though every cache op is a miss/no-op.
	second, err := engine.CheckCreate(context.Background(), "moby-dick", "Pip", "person")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.EntityID != first.EntityID {
		t.Errorf("expected consistent entity id with a cache present but unreachable, got %q and %q", first.EntityID, second.EntityID)
	}
}
