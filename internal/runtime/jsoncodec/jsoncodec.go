// Package jsoncodec is the single JSON implementation used by the gateway for
// event payloads and descriptor responses.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// std keeps encoding/json compatible behaviour (sorted map keys, HTML
// escaping, json.RawMessage support) so serialized events stay stable.
var std = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return std.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return std.Unmarshal(data, v)
}

// Decode reads a single JSON value from r, typically an HTTP response body.
func Decode(r io.Reader, v any) error {
	return std.NewDecoder(r).Decode(v)
}

// Valid reports whether data is syntactically valid JSON.
func Valid(data []byte) bool {
	return std.Valid(data)
}
