// Package serialize implements the Serialization Registry (spec §4.1): a
// compile-time and runtime dispatch table that, given a user type and a
// numeric scheme tag, produces {serialize, parse} and a canonical type
// name. The registry distinguishes static codecs, registered per concrete
// Go type via generics, from the dynamic (Runtime-scheme) path in
// dynamic.go, which dispatches through a process-wide type-descriptor
// pool keyed by type name.
package serialize

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/bluefin-robotics/middleware/pkg/scheme"
)

// entry is the type-erased form of a registered static codec.
type entry struct {
	typeName  string
	serialize func(v any) ([]byte, error)
	parse     func(b []byte) (any, error)
}

// Registry is the process-wide (or test-scoped) table of static codecs.
// The zero value is not usable; construct with NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	byType   map[reflect.Type]map[scheme.Scheme]entry
	defaults map[reflect.Type]scheme.Scheme
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:   make(map[reflect.Type]map[scheme.Scheme]entry),
		defaults: make(map[reflect.Type]scheme.Scheme),
	}
}

func typeOf[T any]() reflect.Type {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		// T is an interface type; reflect.TypeOf(zero) on a nil
		// interface value returns nil, so fall back to the type
		// parameter's static type via a typed nil pointer.
		t = reflect.TypeOf((*T)(nil)).Elem()
	}
	return t
}

// Register installs a static codec for (T, s). The first scheme
// registered for a given T becomes its default scheme (spec §4.1
// "scheme(T) → default scheme tag"); later registrations for the same T
// under other schemes do not change the default.
func Register[T any](reg *Registry, s scheme.Scheme, typeName string,
	serializeFn func(T) ([]byte, error), parseFn func([]byte) (T, error)) {
	t := typeOf[T]()

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.byType[t] == nil {
		reg.byType[t] = make(map[scheme.Scheme]entry)
	}
	reg.byType[t][s] = entry{
		typeName: typeName,
		serialize: func(v any) ([]byte, error) {
			return serializeFn(v.(T))
		},
		parse: func(b []byte) (any, error) {
			return parseFn(b)
		},
	}
	if _, ok := reg.defaults[t]; !ok {
		reg.defaults[t] = s
	}
}

// Serialize encodes v under scheme s, using the codec registered via
// Register[T].
func Serialize[T any](reg *Registry, s scheme.Scheme, v T) ([]byte, error) {
	e, err := reg.lookup(typeOf[T](), s)
	if err != nil {
		return nil, err
	}
	b, err := e.serialize(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialize, err)
	}
	return b, nil
}

// Parse decodes bytes produced by Serialize[T] for the same (T, s).
func Parse[T any](reg *Registry, s scheme.Scheme, b []byte) (T, error) {
	var zero T
	e, err := reg.lookup(typeOf[T](), s)
	if err != nil {
		return zero, err
	}
	v, err := e.parse(b)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return v.(T), nil
}

// TypeName returns the canonical type name registered for (T, s).
func TypeName[T any](reg *Registry, s scheme.Scheme) (string, error) {
	e, err := reg.lookup(typeOf[T](), s)
	if err != nil {
		return "", err
	}
	return e.typeName, nil
}

// DefaultScheme returns the scheme established by the first Register[T]
// call for T, i.e. scheme(T) from spec §4.1.
func DefaultScheme[T any](reg *Registry) (scheme.Scheme, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	s, ok := reg.defaults[typeOf[T]()]
	return s, ok
}

func (reg *Registry) lookup(t reflect.Type, s scheme.Scheme) (entry, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	byScheme, ok := reg.byType[t]
	if !ok {
		return entry{}, fmt.Errorf("%w: scheme %s", ErrUnsupportedScheme, s)
	}
	e, ok := byScheme[s]
	if !ok {
		return entry{}, fmt.Errorf("%w: scheme %s", ErrUnsupportedScheme, s)
	}
	return e, nil
}
