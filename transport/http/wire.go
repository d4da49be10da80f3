// Package http carries the replication protocol over net/http: POST
// /pull and POST /append, with timestamps accepted in either their
// string or object wire form on ingest and always emitted as strings.
package http

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/hlc"
)

// WireTimestamp decodes an Hlc from either wire form and always
// encodes the canonical string form.
type WireTimestamp hlc.Timestamp

// UnmarshalJSON implements json.Unmarshaler, accepting either
// `"<wall>:<logical>:<node>"` or `{"wall":..,"logical":..,"node":..}`.
func (w *WireTimestamp) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("transport/http: decoding hlc string: %w", err)
		}
		ts, err := hlc.Parse(s)
		if err != nil {
			return err
		}
		*w = WireTimestamp(ts)
		return nil
	}

	var obj struct {
		Wall    uint64 `json:"wall"`
		Logical uint32 `json:"logical"`
		Node    string `json:"node"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return fmt.Errorf("transport/http: decoding hlc object: %w", err)
	}
	*w = WireTimestamp(hlc.Timestamp{Wall: obj.Wall, Logical: obj.Logical, Node: obj.Node})
	return nil
}

// MarshalJSON implements json.Marshaler, always emitting the
// canonical string form.
func (w WireTimestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(hlc.Timestamp(w).String())
}

// WireChange is Change's wire shape. Field names are part of the
// protocol; every transport preserves them exactly.
type WireChange struct {
	Stream   string                    `json:"stream"`
	Entity   string                    `json:"entity"`
	EntityID string                    `json:"entity_id"`
	Kind     string                    `json:"kind"`
	Patch    map[string]any            `json:"patch"`
	Tags     map[string]WireTimestamp  `json:"tags"`
	Hlc      WireTimestamp             `json:"hlc"`
}

// ToChange converts a WireChange into the core's change.Change.
func (wc WireChange) ToChange() change.Change {
	tags := make(map[string]hlc.Timestamp, len(wc.Tags))
	for k, v := range wc.Tags {
		tags[k] = hlc.Timestamp(v)
	}
	return change.Change{
		Stream:   wc.Stream,
		Entity:   wc.Entity,
		EntityID: wc.EntityID,
		Kind:     change.Kind(wc.Kind),
		Patch:    wc.Patch,
		Tags:     tags,
		HLC:      hlc.Timestamp(wc.Hlc),
	}
}

// FromChange converts a change.Change into its wire shape.
func FromChange(c change.Change) WireChange {
	tags := make(map[string]WireTimestamp, len(c.Tags))
	for k, v := range c.Tags {
		tags[k] = WireTimestamp(v)
	}
	return WireChange{
		Stream:   c.Stream,
		Entity:   c.Entity,
		EntityID: c.EntityID,
		Kind:     string(c.Kind),
		Patch:    c.Patch,
		Tags:     tags,
		Hlc:      WireTimestamp(c.HLC),
	}
}

// PullRequestBody is the wire request body for POST /pull.
type PullRequestBody struct {
	Stream string  `json:"stream"`
	Cursor *string `json:"cursor"`
	Limit  int     `json:"limit,omitempty"`
}

// PullResponseBody is the wire response body for POST /pull.
type PullResponseBody struct {
	Changes    []WireChange `json:"changes"`
	NextCursor *string      `json:"next_cursor"`
}

// AppendRequestBody is the wire request body for POST /append.
type AppendRequestBody struct {
	Stream         string       `json:"stream"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	Changes        []WireChange `json:"changes"`
}

// AppendResponseBody is the wire response body for POST /append.
type AppendResponseBody struct {
	Accepted int             `json:"accepted"`
	Hlc      *WireTimestamp  `json:"hlc,omitempty"`
}
