package serialize

import (
	"github.com/bluefin-robotics/middleware/pkg/scheme"
	"github.com/clarketm/json"
)

// RegisterStructured installs the Structured codec for T: schema-described
// structured data, encoded with clarketm/json, a drop-in encoding/json
// replacement that preserves the declared struct field order on the wire
// instead of json's alphabetical re-sort. The round-trip tests (spec §8
// invariant 5) compare the decoded value with the original, not the
// encoded bytes.
func RegisterStructured[T any](reg *Registry, typeName string) {
	Register[T](reg, scheme.Structured, typeName,
		func(v T) ([]byte, error) {
			return json.Marshal(v)
		},
		func(b []byte) (T, error) {
			var v T
			err := json.Unmarshal(b, &v)
			return v, err
		},
	)
}
