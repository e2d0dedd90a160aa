package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arke-institute/kgextractor/internal/observability"
)

const (
	minChunkTextLength  = 50
	maxChunkTextLength  = 500 * 1024
	warnChunkTextLength = 100 * 1024

	updateBatchSize = 1000
)

// PipelineOrchestrator sequences the job described in spec §4.7: fetch the
// target entity and its text, call the LLM, parse and dedupe its output,
// check-create every referenced entity, build and fire additive updates,
// and hand back the set of entities this job actually created.
type PipelineOrchestrator struct {
	graph       GraphClient
	provider    Provider
	checkCreate *CheckCreateEngine
	logger      zerolog.Logger
}

// NewPipelineOrchestrator wires the orchestrator's collaborators.
func NewPipelineOrchestrator(graph GraphClient, provider Provider, checkCreate *CheckCreateEngine) *PipelineOrchestrator {
	return &PipelineOrchestrator{
		graph:       graph,
		provider:    provider,
		checkCreate: checkCreate,
		logger:      observability.Logger("extract.pipeline"),
	}
}

// Run executes one job end to end and returns the §6.4 result.
func (p *PipelineOrchestrator) Run(ctx context.Context, req JobRequest) (JobResult, error) {
	logger := p.logger.With().Str("job_id", req.JobID).Logger()

	if req.TargetEntity == "" {
		return JobResult{}, fmt.Errorf("%w", ErrMissingTargetEntity)
	}

	target, err := p.graph.GetEntity(ctx, req.TargetEntity)
	if err != nil {
		return JobResult{}, fmt.Errorf("fetching target entity: %w", err)
	}

	chunkText, warnings, err := p.resolveText(ctx, target)
	if err != nil {
		return JobResult{}, err
	}

	ec := EntityContext{
		ID:            target.ID,
		Type:          target.Type,
		Label:         target.Label(),
		Description:   stringProp(target.Properties, "description"),
		Properties:    target.Properties,
		Relationships: target.Relationships,
	}
	userPrompt := BuildUserPrompt(ec, chunkText)

	callResult, err := p.provider.Call(ctx, ExtractionSystemPrompt, userPrompt)
	if err != nil {
		return JobResult{}, fmt.Errorf("calling LLM provider: %w", err)
	}

	parsed, err := ParseOperations(callResult.Content)
	if err != nil {
		return JobResult{}, err
	}
	warnings = append(warnings, parsed.Warnings...)

	// Step 4: auto-append generic creates for referenced-but-undeclared
	// labels, so relationship targets the model forgot to declare still
	// resolve to a real entity.
	declared := make(map[string]bool, len(parsed.Creates))
	for _, c := range parsed.Creates {
		declared[Normalize(c.Label)] = true
	}
	for label := range CollectReferencedLabels(parsed) {
		if declared[label] {
			continue
		}
		parsed.Creates = append(parsed.Creates, CreateOp{Label: label, EntityType: "entity"})
		declared[label] = true
	}

	if len(parsed.Creates) == 0 {
		observability.LogEvent(logger, observability.EventJobCompleted, map[string]interface{}{
			"job_id": req.JobID, "new_entities": 0,
		})
		return JobResult{NewEntityIDs: []string{}, Usage: callResult.Usage, InfoMessages: warnings}, nil
	}

	// Step 5: batch check-create. Extracted entities are placed into
	// target_collection (spec §6.1: "where to place extracted entities"),
	// which is distinct from job_collection (the collection the source
	// chunk itself lives in). Fall back to job_collection only if the host
	// omitted target_collection, for single-collection jobs.
	targetCollection := req.TargetCollection
	if targetCollection == "" {
		targetCollection = req.JobCollection
	}
	resolved, err := p.checkCreate.BatchCheckCreate(ctx, targetCollection, parsed.Creates)
	if err != nil {
		fields := map[string]interface{}{"job_id": req.JobID}
		if body, ok := ResponseBody(err); ok {
			fields["response_body"] = observability.SanitizeBody(body)
		}
		observability.LogError(logger, err, "batch check-create reported a failure", fields)
		return JobResult{}, fmt.Errorf("check-create: %w", err)
	}

	// Step 6: build and fire updates, not awaiting the outcome. The
	// collection audit's "contains" edge records that the source chunk's
	// own collection (job_collection) processed this chunk, independent of
	// where any newly extracted entities landed.
	source := SourceRef{ID: target.ID, Type: target.Type, Label: target.Label()}
	now := time.Now()
	updates := BuildUpdates(parsed, resolved, source, chunkText, now)
	updates = append(updates, BuildCollectionAudit(req.JobCollection, source, now))

	p.fireUpdates(ctx, updates, logger)

	// Step 7: handoff is every entity this job actually created.
	newIDs := make([]string, 0, len(resolved))
	for _, r := range resolved {
		if r.IsNew {
			newIDs = append(newIDs, r.EntityID)
		}
	}

	observability.LogEvent(logger, observability.EventJobCompleted, map[string]interface{}{
		"job_id": req.JobID, "new_entities": len(newIDs),
	})

	return JobResult{NewEntityIDs: newIDs, Usage: callResult.Usage, InfoMessages: warnings}, nil
}

// resolveText implements spec §4.7 step 2: prefer properties.text, fall
// back to properties.content, else fetch from the content endpoint.
func (p *PipelineOrchestrator) resolveText(ctx context.Context, target *Entity) (string, []string, error) {
	var warnings []string

	text := stringProp(target.Properties, "text")
	if text == "" {
		text = stringProp(target.Properties, "content")
	}
	if text == "" {
		fetched, err := p.graph.GetContent(ctx, target.ID)
		if err != nil {
			return "", nil, fmt.Errorf("fetching content: %w", err)
		}
		text = fetched
	}

	if text == "" {
		return "", nil, fmt.Errorf("%w", ErrNoExtractableText)
	}
	if len(text) < minChunkTextLength {
		return "", nil, fmt.Errorf("%w", ErrTextTooShort)
	}
	if len(text) > maxChunkTextLength {
		return "", nil, fmt.Errorf("%w", ErrTextTooLarge)
	}
	if len(text) > warnChunkTextLength {
		warnings = append(warnings, fmt.Sprintf("chunk text is %d bytes, above the %d byte warning threshold", len(text), warnChunkTextLength))
	}

	return text, warnings, nil
}

// fireUpdates posts updates in batches without awaiting completion; each
// batch runs against a detached context so job cancellation never interrupts
// an update that is already on the wire.
func (p *PipelineOrchestrator) fireUpdates(ctx context.Context, updates []AdditiveUpdate, logger zerolog.Logger) {
	batches := BatchUpdates(updates, updateBatchSize)
	for i, batch := range batches {
		go func(i int, batch []AdditiveUpdate) {
			detached := context.WithoutCancel(ctx)
			accepted, err := p.graph.PostAdditiveUpdates(detached, batch)
			if err != nil {
				fields := map[string]interface{}{"batch": describeBatch(i, batch)}
				if body, ok := ResponseBody(err); ok {
					fields["response_body"] = observability.SanitizeBody(body)
				}
				observability.LogError(logger, err, "update batch failed", fields)
				observability.LogEvent(logger, observability.EventBatchFailed, map[string]interface{}{
					"batch_index": i, "size": len(batch),
				})
				return
			}
			observability.LogEvent(logger, observability.EventBatchPosted, map[string]interface{}{
				"batch_index": i, "size": len(batch), "accepted": accepted,
			})
		}(i, batch)
	}
}

func stringProp(props map[string]interface{}, key string) string {
	if props == nil {
		return ""
	}
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
