package extract

import (
	"fmt"
	"time"
)

// BuildUpdates converts parsed operations plus resolved (label, type)->id
// results into the consolidated additive-update batch described in spec
// §4.6. resolved is keyed by normalized label. source identifies the chunk
// being processed; chunkText is the raw text the quotes are extracted from.
// Grounded on go-light-rag's accumulate-by-id merge pattern for graph
// entities/relationships, adapted here to build outgoing AdditiveUpdate
// records instead of merging in-process state.
func BuildUpdates(parsed ParsedOperations, resolved map[string]CheckCreateResult, source SourceRef, chunkText string, now time.Time) []AdditiveUpdate {
	byEntity := make(map[string]*AdditiveUpdate)
	touched := make(map[string]bool)
	referencedAsTarget := make(map[string]bool)

	entityFor := func(id string) *AdditiveUpdate {
		u, ok := byEntity[id]
		if !ok {
			u = &AdditiveUpdate{EntityID: id, Properties: map[string]interface{}{}}
			byEntity[id] = u
		}
		touched[id] = true
		return u
	}

	// 1. Seed every resolved entity up front, so a create op that is never
	// referenced by any property or relationship op still gets an
	// extracted_from edge below (I3/P4: every entity created during a job
	// has an outgoing extracted_from relationship).
	for _, result := range resolved {
		entityFor(result.EntityID)
	}

	// 2. add_property ops.
	for _, p := range parsed.Properties {
		result, ok := resolved[Normalize(p.Entity)]
		if !ok {
			continue
		}
		u := entityFor(result.EntityID)
		u.Properties[p.Key] = p.Value
	}

	// 3. add_relationship ops: outgoing edge from subject to target, plus
	// bookkeeping for the orphan-attachment pass.
	firstReferencer := make(map[string]AddRelationshipOp)
	for _, rel := range parsed.Relationships {
		subject, ok := resolved[Normalize(rel.Subject)]
		if !ok {
			continue
		}
		target, ok := resolved[Normalize(rel.Target)]
		if !ok {
			continue
		}

		props := map[string]interface{}{
			"description": rel.Description,
			"source":      source,
			"context":     rel.Predicate,
			"confidence":  1.0,
		}
		if rel.QuoteStart != "" && rel.QuoteEnd != "" {
			if quote, ok := ExtractQuote(chunkText, rel.QuoteStart, rel.QuoteEnd); ok {
				props["source_text"] = quote
			}
		}

		u := entityFor(subject.EntityID)
		u.RelationshipsAdd = append(u.RelationshipsAdd, RelationshipAdd{
			Predicate:  rel.Predicate,
			Peer:       target.EntityID,
			PeerLabel:  rel.Target,
			Direction:  DirectionOutgoing,
			Properties: props,
		})

		referencedAsTarget[target.EntityID] = true
		if _, seen := firstReferencer[target.EntityID]; !seen {
			firstReferencer[target.EntityID] = rel
		}
		// Ensure the target itself is touched even if it never becomes a
		// subject, so it still receives a provenance edge below.
		entityFor(target.EntityID)
	}

	// 4. Orphan attachment: every referenced target that never appears as a
	// subject gets a referenced_by edge back to its first referencer.
	subjects := make(map[string]bool)
	for _, rel := range parsed.Relationships {
		if subject, ok := resolved[Normalize(rel.Subject)]; ok {
			subjects[subject.EntityID] = true
		}
	}
	for targetID := range referencedAsTarget {
		if subjects[targetID] {
			continue
		}
		rel := firstReferencer[targetID]
		subject, ok := resolved[Normalize(rel.Subject)]
		if !ok {
			continue
		}
		u := entityFor(targetID)
		u.RelationshipsAdd = append(u.RelationshipsAdd, RelationshipAdd{
			Predicate: "referenced_by",
			Peer:      subject.EntityID,
			PeerLabel: rel.Subject,
			Direction: DirectionOutgoing,
			Properties: map[string]interface{}{
				"context": rel.Predicate,
			},
		})
	}

	// 5. Provenance edge: every touched entity gets an extracted_from edge
	// to the source chunk.
	extractedAt := now.UTC().Format(time.RFC3339)
	for id := range touched {
		u := entityFor(id)
		u.RelationshipsAdd = append(u.RelationshipsAdd, RelationshipAdd{
			Predicate: "extracted_from",
			Peer:      source.ID,
			PeerLabel: source.Label,
			Direction: DirectionOutgoing,
			Properties: map[string]interface{}{
				"extracted_at": extractedAt,
				"source":       source,
			},
		})
	}

	updates := make([]AdditiveUpdate, 0, len(byEntity)+2)
	for _, u := range byEntity {
		updates = append(updates, *u)
	}

	// 6. Source backlinks: one synthetic update on the chunk itself.
	if len(resolved) > 0 {
		backlink := AdditiveUpdate{EntityID: source.ID}
		for _, r := range resolved {
			backlink.RelationshipsAdd = append(backlink.RelationshipsAdd, RelationshipAdd{
				Predicate: "extracted_entity",
				Peer:      r.EntityID,
				PeerLabel: r.Label,
				Direction: DirectionOutgoing,
				Properties: map[string]interface{}{
					"extracted_at": extractedAt,
					"entity_type":  r.Type,
				},
			})
		}
		updates = append(updates, backlink)
	}

	return updates
}

// BuildCollectionAudit returns the synthetic §4.6 step-7 update recording
// that collectionID processed sourceID, appended by the orchestrator once
// per job alongside BuildUpdates' output.
func BuildCollectionAudit(collectionID string, source SourceRef, now time.Time) AdditiveUpdate {
	return AdditiveUpdate{
		EntityID: collectionID,
		RelationshipsAdd: []RelationshipAdd{
			{
				Predicate: "contains",
				Peer:      source.ID,
				PeerLabel: source.Label,
				Direction: DirectionOutgoing,
				Properties: map[string]interface{}{
					"relationship_type": "processed_chunk",
					"processed_at":      now.UTC().Format(time.RFC3339),
				},
			},
		},
	}
}

// BatchUpdates splits updates into POST-sized batches of at most
// batchSize entries (spec §4.6/§4.7: 1000 per request).
func BatchUpdates(updates []AdditiveUpdate, batchSize int) [][]AdditiveUpdate {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var batches [][]AdditiveUpdate
	for i := 0; i < len(updates); i += batchSize {
		end := i + batchSize
		if end > len(updates) {
			end = len(updates)
		}
		batches = append(batches, updates[i:end])
	}
	return batches
}

// describeBatch is a small logging helper used by the orchestrator when
// reporting per-batch outcomes asynchronously.
func describeBatch(index int, batch []AdditiveUpdate) string {
	return fmt.Sprintf("batch %d (%d entities)", index, len(batch))
}
