package jsoncodec

import (
	"encoding/json"
	"strings"
	"testing"
)

type testPayload struct {
	ID    string          `json:"id"`
	Extra json.RawMessage `json:"extra,omitempty"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := testPayload{ID: "node-1", Extra: json.RawMessage(`{"a":1}`)}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"id":"node-1","extra":{"a":1}}` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var out testPayload
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.ID != in.ID || string(out.Extra) != `{"a":1}` {
		t.Fatalf("expected round trip to match, got %#v", out)
	}
}

func TestDecode(t *testing.T) {
	var out testPayload
	if err := Decode(strings.NewReader(`{"id":"x"}`), &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.ID != "x" {
		t.Fatalf("unexpected id %q", out.ID)
	}

	if err := Decode(strings.NewReader(`{"id":`), &out); err == nil {
		t.Fatal("expected error for truncated input")
	}
}

func TestValid(t *testing.T) {
	if !Valid([]byte(`{"entry":{}}`)) {
		t.Fatal("expected object to be valid")
	}
	if Valid([]byte(`not json`)) {
		t.Fatal("expected garbage to be invalid")
	}
}
