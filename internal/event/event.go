// Package event models the repository change events consumed by the gateway
// and translates them to and from their JSON wire form.
//
// Events are values: the pipeline, predicates, and handlers receive copies and
// must treat the hierarchy and property collections as read-only.
package event

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// CurrentSchema is the envelope schema version written by Serialize.
const CurrentSchema = 1

// Resource variant tags carried in the "@type" field.
const (
	TagNodeResource   = "NodeResource"
	TagNodeResourceV1 = "NodeResourceV1"
)

// Kind discriminates the Resource union.
type Kind int

const (
	// KindUnrecognized is any resource variant this gateway does not route on.
	KindUnrecognized Kind = iota
	// KindNode is a repository node (content, folder, ...).
	KindNode
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	default:
		return "unrecognized"
	}
}

// Event is the envelope of a single change notification.
type Event struct {
	Schema         int
	ID             string
	Type           string
	StreamPosition string
	Timestamp      Time
	Resource       Resource

	// extra holds received envelope fields that are not modelled above, such
	// as "principal", so forwarding writes them back.
	extra map[string]json.RawMessage
}

// HierarchyEntry references one ancestor of a resource.
type HierarchyEntry struct {
	ID string `json:"id"`
}

// Resource is the subject of an event. Node is set iff Kind is KindNode.
type Resource struct {
	Kind Kind
	// Tag is the "@type" value as received; empty when the producer omitted it.
	Tag              string
	ID               string
	PrimaryHierarchy []HierarchyEntry
	Node             *NodeResource

	// raw keeps the received JSON so re-serialization is lossless.
	raw []byte
}

// NodeResource holds the node specific attributes.
type NodeResource struct {
	Name       string
	NodeType   string
	IsFile     bool
	IsFolder   bool
	Properties map[string]any
}

// NodeType returns the node type and whether the resource is a node at all.
func (r Resource) NodeType() (string, bool) {
	if r.Kind != KindNode || r.Node == nil {
		return "", false
	}
	return r.Node.NodeType, true
}

// NewNode builds a node resource, mainly for producers and tests.
func NewNode(id, nodeType string, ancestors ...string) Resource {
	hierarchy := make([]HierarchyEntry, len(ancestors))
	for i, a := range ancestors {
		hierarchy[i] = HierarchyEntry{ID: a}
	}
	return Resource{
		Kind:             KindNode,
		Tag:              TagNodeResource,
		ID:               id,
		PrimaryHierarchy: hierarchy,
		Node:             &NodeResource{NodeType: nodeType},
	}
}

// Time is the event timestamp. Producers send epoch milliseconds or an ISO
// 8601 string. The timestamp plays no part in routing, so a value that cannot
// be parsed leaves Time zero and is kept verbatim for serialization.
type Time struct {
	time.Time
	millis bool
	// raw is the received token when it is not written back as RFC 3339 or
	// whole milliseconds.
	raw []byte
}

// timeLayouts are tried in order after RFC 3339. The zone-less form is read as UTC.
var timeLayouts = []string{
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999",
}

// UnixMilli builds a Time that serializes as epoch milliseconds.
func UnixMilli(ms int64) Time {
	return Time{Time: time.UnixMilli(ms).UTC(), millis: true}
}

// Raw returns the received token when it was kept verbatim.
func (t Time) Raw() []byte {
	return t.raw
}

func (t Time) present() bool {
	return !t.IsZero() || len(t.raw) > 0
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	kept := append([]byte(nil), data...)
	if len(data) > 0 && data[0] != '"' {
		if ms, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			*t = UnixMilli(ms)
			return nil
		}
		f, err := strconv.ParseFloat(string(data), 64)
		if err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			*t = Time{Time: time.UnixMilli(int64(f)).UTC(), raw: kept}
			return nil
		}
		*t = Time{raw: kept}
		return nil
	}
	s, err := strconv.Unquote(string(data))
	if err != nil {
		*t = Time{raw: kept}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*t = Time{Time: parsed}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Time{Time: parsed, raw: kept}
			return nil
		}
	}
	*t = Time{raw: kept}
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if len(t.raw) > 0 {
		return t.raw, nil
	}
	if t.millis {
		return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
	}
	return []byte(strconv.Quote(t.Format(time.RFC3339Nano))), nil
}
