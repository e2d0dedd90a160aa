// Package extract implements the knowledge-graph extraction pipeline: label
// normalization, quote extraction, LLM invocation, operation parsing,
// check-create deduplication, update batch construction, and the job
// orchestrator that sequences them.
package extract

import "time"

// SourceRef identifies the source chunk an entity or edge was extracted
// from. Embedded in every provenance property block.
type SourceRef struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

// Entity mirrors the graph service's entity shape as seen by this worker.
type Entity struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Properties    map[string]interface{} `json:"properties"`
	Relationships []Relationship         `json:"relationships,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Label returns the entity's normalized label property, if present.
func (e *Entity) Label() string {
	if e.Properties == nil {
		return ""
	}
	if v, ok := e.Properties["label"].(string); ok {
		return v
	}
	return ""
}

// Direction is the orientation of a Relationship from the subject's view.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// Relationship is a directed edge carried on an Entity or an AdditiveUpdate.
type Relationship struct {
	Predicate  string                 `json:"predicate"`
	Peer       string                 `json:"peer"`
	PeerLabel  string                 `json:"peer_label,omitempty"`
	Direction  Direction              `json:"direction"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	// PeerPreview carries a shallow copy of the peer entity when the graph
	// service expands `relationships:preview`.
	PeerPreview *Entity `json:"peer_preview,omitempty"`
}

// OperationKind tags the three variants an Operation Parser can produce.
type OperationKind string

const (
	OpCreate          OperationKind = "create"
	OpAddRelationship OperationKind = "add_relationship"
	OpAddProperty     OperationKind = "add_property" // legacy/compatibility form
)

// CreateOp is the "create entity" operation emitted by the LLM.
type CreateOp struct {
	Label       string            `json:"label"`
	EntityType  string            `json:"entity_type"`
	Description string            `json:"description"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// AddRelationshipOp is the "connect two entities" operation.
type AddRelationshipOp struct {
	Subject     string `json:"subject"`
	Predicate   string `json:"predicate"`
	Target      string `json:"target"`
	Description string `json:"description"`
	QuoteStart  string `json:"quote_start,omitempty"`
	QuoteEnd    string `json:"quote_end,omitempty"`
}

// AddPropertyOp is the legacy "set a property on an existing entity"
// operation, kept for backward compatibility with older prompts.
type AddPropertyOp struct {
	Entity string `json:"entity"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// ParsedOperations is the parser's output: three lists, one per variant.
type ParsedOperations struct {
	Creates       []CreateOp
	Properties    []AddPropertyOp
	Relationships []AddRelationshipOp
	// Warnings accumulates non-fatal validation notices, surfaced to the
	// job's info messages per the error taxonomy.
	Warnings []string
}

// CheckCreateResult is the outcome of resolving one (label, type) pair
// against the graph's check-create-check-delete protocol.
type CheckCreateResult struct {
	EntityID string
	IsNew    bool
	Label    string // normalized
	Type     string
}

// RelationshipAdd is one edge inside an AdditiveUpdate's relationships_add
// list.
type RelationshipAdd struct {
	Predicate  string                 `json:"predicate"`
	Peer       string                 `json:"peer"`
	PeerLabel  string                 `json:"peer_label,omitempty"`
	Direction  Direction              `json:"direction"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// AdditiveUpdate is the wire shape the graph service's batch ingress
// (POST /updates/additive) consumes. Updates are strictly additive: no
// property is ever cleared and no relationship is ever replaced, only
// upserted by (entity, predicate, peer).
type AdditiveUpdate struct {
	EntityID         string                 `json:"entity_id"`
	Properties       map[string]interface{} `json:"properties,omitempty"`
	RelationshipsAdd []RelationshipAdd      `json:"relationships_add,omitempty"`
}

// EntityContext is what the Pipeline Orchestrator hands to the prompt
// builder: the target entity plus enough of its neighborhood for the LLM
// to reason about connectivity.
type EntityContext struct {
	ID            string
	Type          string
	Label         string
	Description   string
	Properties    map[string]interface{}
	Relationships []Relationship
}

// JobRequest is the host-delivered record described in spec §6.1.
type JobRequest struct {
	JobID            string                 `json:"job_id"`
	JobCollection    string                 `json:"job_collection"`
	TargetEntity     string                 `json:"target_entity"`
	TargetCollection string                 `json:"target_collection"`
	APIBase          string                 `json:"api_base"`
	Network          string                 `json:"network"`
	Rhiza            map[string]interface{} `json:"rhiza,omitempty"`
}

// JobResult is the §6.4 job output: the set of newly created entity ids,
// the handoff the host uses to schedule downstream workflow steps.
type JobResult struct {
	NewEntityIDs []string      `json:"new_entity_ids"`
	Usage        ProviderUsage `json:"usage"`
	InfoMessages []string      `json:"info_messages,omitempty"`
}

// ProviderUsage carries token accounting and informational cost for one LLM
// call.
type ProviderUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// CallResult is what the LLM client returns for a single call() round-trip.
type CallResult struct {
	Content string
	Usage   ProviderUsage
}
