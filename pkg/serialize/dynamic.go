package serialize

import (
	"fmt"
	"reflect"
	"time"

	"github.com/clarketm/json"
	gocache "github.com/patrickmn/go-cache"
)

// descriptor is one entry in a DynamicPool: enough to parse or serialize
// an opaque value by type name alone, without a compile-time type
// parameter at the call site.
type descriptor struct {
	typeName  string
	goType    reflect.Type
	marshal   func(v any) ([]byte, error)
	unmarshal func(b []byte) (any, error)
}

// DynamicPool is the process-wide type-descriptor pool behind the Runtime
// scheme (spec §4.1, §9 "Dynamic dispatch replacement"). It stands in for
// the source language's runtime reflection: callers register a concrete Go
// type under a stable name once, and any later holder of just the name can
// parse bytes into an opaque value and read it back out through the pool.
//
// Built on patrickmn/go-cache rather than a bare map so the pool can also
// serve as a soft cache for descriptors registered with a bounded lifetime
// (e.g. a test harness that registers scratch types per test case); most
// callers register with no expiration and never evict.
type DynamicPool struct {
	cache *gocache.Cache
}

// NewDynamicPool returns an empty pool.
func NewDynamicPool() *DynamicPool {
	return &DynamicPool{cache: gocache.New(gocache.NoExpiration, time.Minute)}
}

// RegisterDynamic installs T into the pool under typeName using
// clarketm/json for the wire bytes, matching the Structured codec's wire
// format so a Runtime subscriber and a Structured subscriber of the same
// logical type can interoperate.
func RegisterDynamic[T any](pool *DynamicPool, typeName string) {
	pool.cache.Set(typeName, descriptor{
		typeName: typeName,
		goType:   reflect.TypeOf((*T)(nil)).Elem(),
		marshal: func(v any) ([]byte, error) {
			return json.Marshal(v)
		},
		unmarshal: func(b []byte) (any, error) {
			var v T
			if err := json.Unmarshal(b, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}, gocache.NoExpiration)
}

// RegisterDynamicFor registers typeName with an explicit expiration,
// allowing short-lived descriptors (e.g. scratch registrations in tests)
// to be evicted instead of accumulating forever.
func RegisterDynamicFor[T any](pool *DynamicPool, typeName string, ttl time.Duration) {
	RegisterDynamic[T](pool, typeName)
	if d, ok := pool.cache.Get(typeName); ok {
		pool.cache.Set(typeName, d, ttl)
	}
}

// Parse decodes bytes into an opaque value using the descriptor registered
// under typeName, failing with ErrUnknownType if none is registered.
func (p *DynamicPool) Parse(typeName string, b []byte) (any, error) {
	d, err := p.lookup(typeName)
	if err != nil {
		return nil, err
	}
	v, err := d.unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return v, nil
}

// Serialize encodes an opaque value using the descriptor registered under
// typeName.
func (p *DynamicPool) Serialize(typeName string, v any) ([]byte, error) {
	d, err := p.lookup(typeName)
	if err != nil {
		return nil, err
	}
	b, err := d.marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	return b, nil
}

// Has reports whether typeName is registered.
func (p *DynamicPool) Has(typeName string) bool {
	_, ok := p.cache.Get(typeName)
	return ok
}

func (p *DynamicPool) lookup(typeName string) (descriptor, error) {
	v, ok := p.cache.Get(typeName)
	if !ok {
		return descriptor{}, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}
	return v.(descriptor), nil
}
