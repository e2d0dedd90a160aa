package graphclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/arke-institute/kgextractor/internal/extract"
)

// Config configures one graph service connection.
type Config struct {
	APIBase        string
	RequestTimeout time.Duration
}

// DefaultConfig returns the spec's fixed defaults.
func DefaultConfig() Config {
	return Config{RequestTimeout: 30 * time.Second}
}

// Client is the production implementation of extract.GraphClient: plain
// net/http + encoding/json against the contract in spec §6.2. Structured the
// way the teacher's AnthropicProvider builds requests manually rather than
// through a generated SDK, since the graph service here is bespoke.
type Client struct {
	apiBase string
	http    *http.Client
}

// New constructs a Client. apiBase overrides cfg.APIBase when non-empty.
func New(cfg Config, apiBase string) *Client {
	base := apiBase
	if base == "" {
		base = cfg.APIBase
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiBase: base,
		http:    &http.Client{Timeout: timeout},
	}
}

var _ extract.GraphClient = (*Client)(nil)

func (c *Client) url(pathFmt string, args ...interface{}) string {
	return c.apiBase + fmt.Sprintf(pathFmt, args...)
}

func (c *Client) do(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", extract.ErrGraphRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return extract.ErrEntityNotFound
	}
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &extract.GraphHTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func toEntity(w entityWire) *extract.Entity {
	rels := make([]extract.Relationship, 0, len(w.Relationships))
	for _, r := range w.Relationships {
		rel := extract.Relationship{
			Predicate:  r.Predicate,
			Peer:       r.Peer,
			PeerLabel:  r.PeerLabel,
			Direction:  extract.Direction(r.Direction),
			Properties: r.Properties,
		}
		if r.PeerPreview != nil {
			rel.PeerPreview = toEntity(*r.PeerPreview)
		}
		rels = append(rels, rel)
	}
	return &extract.Entity{
		ID:            w.ID,
		Type:          w.Type,
		Properties:    w.Properties,
		Relationships: rels,
		CreatedAt:     w.CreatedAt,
	}
}

// GetEntity fetches an entity with relationship previews expanded.
func (c *Client) GetEntity(ctx context.Context, id string) (*extract.Entity, error) {
	var wire entityWire
	err := c.do(ctx, http.MethodGet, c.url("/entities/%s?expand=relationships:preview", url.PathEscape(id)), nil, &wire)
	if err != nil {
		return nil, err
	}
	return toEntity(wire), nil
}

// GetContent fetches the chunk's content payload.
func (c *Client) GetContent(ctx context.Context, id string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/entities/%s/content?key=content", url.PathEscape(id)), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", extract.ErrGraphRequestFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &extract.GraphHTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read content body: %w", err)
	}
	return string(body), nil
}

// Lookup requests up to limit entities matching (label, type) in collection.
func (c *Client) Lookup(ctx context.Context, collection, label, entityType string, limit int) ([]extract.LookupMatch, error) {
	q := url.Values{}
	q.Set("label", label)
	q.Set("type", entityType)
	q.Set("limit", strconv.Itoa(limit))

	var wire lookupResponseWire
	err := c.do(ctx, http.MethodGet, c.url("/collections/%s/entities/lookup?%s", url.PathEscape(collection), q.Encode()), nil, &wire)
	if err != nil {
		return nil, err
	}
	matches := make([]extract.LookupMatch, 0, len(wire.Entities))
	for _, e := range wire.Entities {
		matches = append(matches, extract.LookupMatch{ID: e.ID, CreatedAt: e.CreatedAt})
	}
	return matches, nil
}

// CreateEntity posts a new entity.
func (c *Client) CreateEntity(ctx context.Context, collection, entityType string, properties map[string]interface{}, syncIndex bool) (extract.CreateResult, error) {
	reqBody := createRequestWire{
		Type:       entityType,
		Collection: collection,
		Properties: properties,
		SyncIndex:  syncIndex,
	}
	var wire createResponseWire
	if err := c.do(ctx, http.MethodPost, c.url("/entities"), reqBody, &wire); err != nil {
		return extract.CreateResult{}, err
	}
	return extract.CreateResult{ID: wire.ID, CreatedAt: wire.CreatedAt}, nil
}

// DeleteEntity best-effort deletes an entity.
func (c *Client) DeleteEntity(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.url("/entities/%s", url.PathEscape(id)), nil, nil)
}

// PostAdditiveUpdates submits one batch to the additive-update endpoint.
func (c *Client) PostAdditiveUpdates(ctx context.Context, updates []extract.AdditiveUpdate) (int, error) {
	reqBody := additiveUpdatesRequestWire{Updates: updates}
	var wire additiveUpdatesResponseWire
	if err := c.do(ctx, http.MethodPost, c.url("/updates/additive"), reqBody, &wire); err != nil {
		return 0, err
	}
	return wire.Accepted, nil
}
