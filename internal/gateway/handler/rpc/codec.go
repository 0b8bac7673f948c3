package rpc

import (
	"encoding/json"

	"ultraflow/internal/util/jsonutil"
)

// jsonCodec lets connect carry plain Go structs. It registers under the
// "json" name so it serves application/json and application/connect+json.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return jsonutil.MarshalNoEscape(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
