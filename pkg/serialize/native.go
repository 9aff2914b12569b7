package serialize

import (
	"errors"

	"github.com/bluefin-robotics/middleware/pkg/scheme"
)

// ErrNativeObjectNoWireForm is returned if a NativeObject-scheme value is
// ever asked to cross the wire; by definition (spec §3, §4.1) it has no
// wire form and is only ever delivered in-process.
var ErrNativeObjectNoWireForm = errors.New("serialize: native object scheme has no wire form")

// RegisterNative installs a NativeObject "codec" for T that carries only a
// type name: the value is shared by handle within one process (spec §9,
// "shared ownership of payloads") and Serialize/Parse for this scheme
// always fail loudly rather than silently drop data.
func RegisterNative[T any](reg *Registry, typeName string) {
	Register[T](reg, scheme.NativeObject, typeName,
		func(T) ([]byte, error) { return nil, ErrNativeObjectNoWireForm },
		func([]byte) (T, error) {
			var zero T
			return zero, ErrNativeObjectNoWireForm
		},
	)
}
