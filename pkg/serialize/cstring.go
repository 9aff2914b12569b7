package serialize

import "github.com/bluefin-robotics/middleware/pkg/scheme"

// RegisterCString installs the CString codec for string-valued groups:
// plain bytes with a trailing NUL, per the original's CSTR scheme. No
// third-party codec is warranted here: the transform is a one-line byte
// conversion, not a serialization format (see DESIGN.md).
func RegisterCString(reg *Registry, typeName string) {
	Register[string](reg, scheme.CString, typeName,
		func(v string) ([]byte, error) {
			b := make([]byte, len(v)+1)
			copy(b, v)
			return b, nil
		},
		func(b []byte) (string, error) {
			if len(b) == 0 {
				return "", nil
			}
			return string(b[:len(b)-1]), nil
		},
	)
}
