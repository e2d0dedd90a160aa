// Package graphclient implements the consumer side of the external graph
// service contract (spec §6.2): entity lookup, check-create support, and
// additive batch updates. The protocol itself is owned by the graph
// service; this package only talks to it over plain HTTP/JSON.
package graphclient

import "time"

// entityWire is the GET /entities/{id} response shape.
type entityWire struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Properties    map[string]interface{} `json:"properties"`
	Relationships []relationshipWire     `json:"relationships"`
	CreatedAt     time.Time              `json:"created_at"`
}

type relationshipWire struct {
	Predicate   string                 `json:"predicate"`
	Peer        string                 `json:"peer"`
	PeerLabel   string                 `json:"peer_label"`
	Direction   string                 `json:"direction"`
	Properties  map[string]interface{} `json:"properties"`
	PeerPreview *entityWire            `json:"peer_preview,omitempty"`
}

// lookupResponseWire is the GET .../entities/lookup response shape.
type lookupResponseWire struct {
	Entities []lookupEntityWire `json:"entities"`
}

type lookupEntityWire struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// createRequestWire is the POST /entities body.
type createRequestWire struct {
	Type       string                 `json:"type"`
	Collection string                 `json:"collection"`
	Properties map[string]interface{} `json:"properties"`
	SyncIndex  bool                   `json:"sync_index,omitempty"`
}

// createResponseWire is the POST /entities response.
type createResponseWire struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// additiveUpdatesRequestWire is the POST /updates/additive body. It reuses
// extract.AdditiveUpdate's JSON tags directly rather than redeclaring the
// shape, since the wire format and the in-process type are identical.
type additiveUpdatesRequestWire struct {
	Updates interface{} `json:"updates"`
}

type additiveUpdatesResponseWire struct {
	Accepted int `json:"accepted"`
}
