package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/drblury/eventgateway/internal/runtime/jsoncodec"
)

// ErrMalformed is matched by every error returned from Deserialize.
var ErrMalformed = errors.New("event: malformed payload")

// DeserializationError describes why a payload could not be decoded.
type DeserializationError struct {
	Reason string
	Err    error
}

func (e *DeserializationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("event: malformed payload: %s", e.Reason)
	}
	return fmt.Sprintf("event: malformed payload: %s: %v", e.Reason, e.Err)
}

func (e *DeserializationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformed}
	}
	return []error{ErrMalformed, e.Err}
}

func malformed(reason string, err error) error {
	return &DeserializationError{Reason: reason, Err: err}
}

type wireEvent struct {
	Schema         int             `json:"schema,omitempty"`
	ID             string          `json:"id,omitempty"`
	Type           string          `json:"type,omitempty"`
	StreamPosition string          `json:"streamPosition,omitempty"`
	Timestamp      *Time           `json:"timestamp,omitempty"`
	Resource       json.RawMessage `json:"resource"`
}

// envelopeFields are the envelope keys wireEvent models.
var envelopeFields = map[string]struct{}{
	"schema":         {},
	"id":             {},
	"type":           {},
	"streamPosition": {},
	"timestamp":      {},
	"resource":       {},
}

type wireNode struct {
	Tag              string           `json:"@type,omitempty"`
	ID               string           `json:"id,omitempty"`
	Name             string           `json:"name,omitempty"`
	NodeType         string           `json:"nodeType"`
	IsFile           bool             `json:"isFile"`
	IsFolder         bool             `json:"isFolder"`
	PrimaryHierarchy []HierarchyEntry `json:"primaryHierarchy"`
	Properties       map[string]any   `json:"properties,omitempty"`
}

type wireCommon struct {
	Tag              string           `json:"@type,omitempty"`
	ID               string           `json:"id,omitempty"`
	PrimaryHierarchy []HierarchyEntry `json:"primaryHierarchy,omitempty"`
}

// UnmarshalJSON accepts both {"id": "..."} and a bare "..." string.
func (h *HierarchyEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		id, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		h.ID = id
		return nil
	}
	var entry struct {
		ID string `json:"id"`
	}
	if err := jsoncodec.Unmarshal(data, &entry); err != nil {
		return err
	}
	h.ID = entry.ID
	return nil
}

// Deserialize decodes a wire payload. Any failure wraps ErrMalformed.
func Deserialize(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Event{}, malformed("empty payload", nil)
	}
	if trimmed[0] != '{' {
		return Event{}, malformed("payload is not a JSON object", nil)
	}

	var wire wireEvent
	if err := jsoncodec.Unmarshal(trimmed, &wire); err != nil {
		return Event{}, malformed("decode envelope", err)
	}
	var fields map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(trimmed, &fields); err != nil {
		return Event{}, malformed("decode envelope", err)
	}
	raw := bytes.TrimSpace(wire.Resource)
	if len(raw) == 0 {
		return Event{}, malformed("resource is missing", nil)
	}
	if raw[0] != '{' {
		return Event{}, malformed("resource is not a JSON object", nil)
	}

	res, err := decodeResource(raw)
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		Schema:         wire.Schema,
		ID:             wire.ID,
		Type:           wire.Type,
		StreamPosition: wire.StreamPosition,
		Resource:       res,
	}
	if wire.Timestamp != nil {
		ev.Timestamp = *wire.Timestamp
	}
	for key, value := range fields {
		if _, ok := envelopeFields[key]; ok {
			continue
		}
		if ev.extra == nil {
			ev.extra = make(map[string]json.RawMessage)
		}
		ev.extra[key] = value
	}
	return ev, nil
}

func decodeResource(raw []byte) (Resource, error) {
	var fields map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(raw, &fields); err != nil {
		return Resource{}, malformed("decode resource", err)
	}

	var tag string
	if t, ok := fields["@type"]; ok {
		// A non-string tag cannot name a known variant.
		_ = jsoncodec.Unmarshal(t, &tag)
	}
	_, hasNodeType := fields["nodeType"]

	kept := append([]byte(nil), raw...)

	if isNodeTag(tag) || (tag == "" && hasNodeType) {
		var node wireNode
		if err := jsoncodec.Unmarshal(raw, &node); err != nil {
			return Resource{}, malformed("decode node resource", err)
		}
		return Resource{
			Kind:             KindNode,
			Tag:              tag,
			ID:               node.ID,
			PrimaryHierarchy: node.PrimaryHierarchy,
			Node: &NodeResource{
				Name:       node.Name,
				NodeType:   node.NodeType,
				IsFile:     node.IsFile,
				IsFolder:   node.IsFolder,
				Properties: node.Properties,
			},
			raw: kept,
		}, nil
	}

	res := Resource{Kind: KindUnrecognized, Tag: tag, raw: kept}
	if id, ok := fields["id"]; ok {
		_ = jsoncodec.Unmarshal(id, &res.ID)
	}
	if h, ok := fields["primaryHierarchy"]; ok {
		var hierarchy []HierarchyEntry
		if jsoncodec.Unmarshal(h, &hierarchy) == nil {
			res.PrimaryHierarchy = hierarchy
		}
	}
	return res, nil
}

func isNodeTag(tag string) bool {
	return tag == TagNodeResource || tag == TagNodeResourceV1
}

// Serialize writes ev in the wire schema. For an event obtained from
// Deserialize the resource is written back from the JSON it was decoded from
// and unmodelled envelope fields are carried over, so forwarding is lossless.
func Serialize(ev Event) ([]byte, error) {
	raw, err := encodeResource(ev.Resource)
	if err != nil {
		return nil, fmt.Errorf("event: encode resource: %w", err)
	}
	wire := wireEvent{
		Schema:         ev.Schema,
		ID:             ev.ID,
		Type:           ev.Type,
		StreamPosition: ev.StreamPosition,
		Resource:       raw,
	}
	if wire.Schema == 0 {
		wire.Schema = CurrentSchema
	}
	if ev.Timestamp.present() {
		ts := ev.Timestamp
		wire.Timestamp = &ts
	}
	out, err := jsoncodec.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("event: encode envelope: %w", err)
	}
	if len(ev.extra) == 0 {
		return out, nil
	}
	return mergeEnvelope(out, ev.extra)
}

// mergeEnvelope adds extra to the encoded envelope. Modelled fields win.
func mergeEnvelope(encoded []byte, extra map[string]json.RawMessage) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(encoded, &fields); err != nil {
		return nil, fmt.Errorf("event: encode envelope: %w", err)
	}
	for key, value := range extra {
		if _, ok := fields[key]; !ok {
			fields[key] = value
		}
	}
	out, err := jsoncodec.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("event: encode envelope: %w", err)
	}
	return out, nil
}

func encodeResource(r Resource) ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	if r.Kind == KindNode && r.Node != nil {
		hierarchy := r.PrimaryHierarchy
		if hierarchy == nil {
			hierarchy = []HierarchyEntry{}
		}
		return jsoncodec.Marshal(wireNode{
			Tag:              r.Tag,
			ID:               r.ID,
			Name:             r.Node.Name,
			NodeType:         r.Node.NodeType,
			IsFile:           r.Node.IsFile,
			IsFolder:         r.Node.IsFolder,
			PrimaryHierarchy: hierarchy,
			Properties:       r.Node.Properties,
		})
	}
	return jsoncodec.Marshal(wireCommon{
		Tag:              r.Tag,
		ID:               r.ID,
		PrimaryHierarchy: r.PrimaryHierarchy,
	})
}
