// Package subscription defines the polymorphic subscription record (spec
// §3 SubscriptionRecord, §9 "tagged-variant over {typed, regex}") used by
// the Interprocess Portal. Dispatch closures are a uniform "bytes-in"
// function type so the Portal's receive loop (pkg/interprocess) never
// needs to know which scheme-specific parser a subscriber installed.
package subscription

import (
	"regexp"

	"github.com/bluefin-robotics/middleware/pkg/group"
	"github.com/bluefin-robotics/middleware/pkg/scheme"
	"github.com/bluefin-robotics/middleware/pkg/wire"
)

// Action distinguishes a subscribe record from an unsubscribe record.
// Forwarded requests on forward_group (pkg/interprocess
// SerializationSubscription) carry a Subscribe bool instead.
type Action int

const (
	Subscribe Action = iota
	Unsubscribe
)

// Dispatch is the uniform bytes-in dispatch closure every subscription
// variant stores. It owns the scheme-specific parse internally and never
// returns a value to its caller; parse/handler errors are the dispatch
// closure's own responsibility to log.
type Dispatch func(payload []byte)

// Typed is a subscription keyed by an exact (scheme, type, group).
type Typed struct {
	Group    group.Group
	Scheme   scheme.Scheme
	TypeName string
	ThreadID int64
	Action   Action
	Dispatch Dispatch
}

// Key returns the portal-prefix key this subscription installs a SUB
// filter for: "/group/scheme/type/".
func (t Typed) Key() string {
	return wire.PortalPrefix(t.Group, t.Scheme, t.TypeName)
}

// Regex is a subscription that matches on a scheme set and regular
// expressions over the type name and group name, rather than an exact
// key. A single matching frame invokes a regex subscription's Dispatch at
// most once, even if the subscription's own predicates would "match
// twice" for some reason (spec §4.3).
type Regex struct {
	Schemes    map[scheme.Scheme]bool
	TypeRegex  *regexp.Regexp
	GroupRegex *regexp.Regexp
	ThreadID   int64
	Action     Action
	Dispatch   func(id wire.Identifier, payload []byte)
}

// Matches reports whether id satisfies r's scheme set and regexes.
func (r Regex) Matches(id wire.Identifier) bool {
	if len(r.Schemes) > 0 && !r.Schemes[scheme.AllSchemes] && !r.Schemes[id.Scheme] {
		return false
	}
	if r.TypeRegex != nil && !r.TypeRegex.MatchString(id.Type) {
		return false
	}
	if r.GroupRegex != nil && !r.GroupRegex.MatchString(id.Group.Name()) {
		return false
	}
	return true
}
