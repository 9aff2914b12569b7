package serialize

import (
	"github.com/bluefin-robotics/middleware/pkg/scheme"
	"github.com/fxamacker/cbor/v2"
)

// RegisterCompact installs the CompactEncoded codec for T: wire-compact
// encoded data via CBOR (RFC 8949), a self-describing binary encoding
// considerably denser than Structured's JSON — the role DCCL plays in the
// original over an acoustic link.
func RegisterCompact[T any](reg *Registry, typeName string) {
	Register[T](reg, scheme.CompactEncoded, typeName,
		func(v T) ([]byte, error) {
			return cbor.Marshal(v)
		},
		func(b []byte) (T, error) {
			var v T
			err := cbor.Unmarshal(b, &v)
			return v, err
		},
	)
}
