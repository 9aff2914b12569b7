package serialize

import "errors"

// Error taxonomy per spec §4.1 / §7. These are sentinel errors so callers
// can test with errors.Is across scheme-specific wrapping.
var (
	// ErrParse is returned when bytes cannot be parsed under the named
	// scheme and type.
	ErrParse = errors.New("serialize: parse error")
	// ErrSerialize is returned when a value cannot be encoded under the
	// named scheme. Distinct from ErrParse: this is an encode-side
	// failure, reported to the publishing caller, not a decode-side
	// failure on incoming bytes (spec §7).
	ErrSerialize = errors.New("serialize: serialize error")
	// ErrUnsupportedScheme is returned for a scheme tag the registry has
	// no codec for.
	ErrUnsupportedScheme = errors.New("serialize: unsupported scheme")
	// ErrUnknownType is returned by the dynamic (Runtime) path when the
	// requested type name is not in the process-wide descriptor pool.
	ErrUnknownType = errors.New("serialize: unknown type")
)
