package serialize

import (
	"bytes"
	"encoding/gob"

	"github.com/bluefin-robotics/middleware/pkg/scheme"
)

// RegisterColumnar installs the Columnar codec for T. No example in the
// corpus vendors a columnar/schema-binary library (Cap'n Proto and
// similar are absent from every go.mod in the pack); encoding/gob is used
// here as the narrowest possible stdlib fallback for this one scheme,
// justified in DESIGN.md.
func RegisterColumnar[T any](reg *Registry, typeName string) {
	Register[T](reg, scheme.Columnar, typeName,
		func(v T) ([]byte, error) {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		func(b []byte) (T, error) {
			var v T
			err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v)
			return v, err
		},
	)
}
