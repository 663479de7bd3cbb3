// Package auth is the authorization gate in front of the snippet API.
//
// The server holds one shared secret. Each API operation is either open
// or protected; a protected operation needs the secret in the X-API-Key
// request header. The snippet store itself knows nothing about any of
// this: the gate runs at the HTTP boundary, before any lookup.
package auth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sakif/sipp/internal/apperror"
)

// HeaderName carries the caller's credential.
const HeaderName = "X-API-Key"

// Operation names one gated API operation.
type Operation string

const (
	OpList   Operation = "list"
	OpCreate Operation = "create"
	OpGet    Operation = "get"
	OpDelete Operation = "delete"
	OpUpdate Operation = "update"
)

// AllOperations lists every gated operation.
var AllOperations = []Operation{OpList, OpCreate, OpGet, OpDelete, OpUpdate}

// DefaultProtected applies when a secret is configured but no protected
// set is.
var DefaultProtected = []Operation{OpDelete, OpList}

// ParseOperations turns configured names into a protected set.
//
// Accepted names are api_list, api_create, api_get, api_delete and
// api_update, the same without the api_ prefix, and the aggregates all and
// none. Names are read left to right: all adds every operation and none
// clears whatever came before it. Matching ignores case. An unknown name is
// an error rather than being skipped, so a typo cannot silently leave an
// operation open.
func ParseOperations(names []string) (map[Operation]bool, error) {
	set := make(map[Operation]bool)
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "":
			continue
		case "all":
			for _, op := range AllOperations {
				set[op] = true
			}
			continue
		case "none":
			set = make(map[Operation]bool)
			continue
		}

		op := Operation(strings.TrimPrefix(name, "api_"))
		if !op.valid() {
			return nil, fmt.Errorf("auth: unknown protected operation %q", raw)
		}
		set[op] = true
	}
	return set, nil
}

func (op Operation) valid() bool {
	for _, known := range AllOperations {
		if op == known {
			return true
		}
	}
	return false
}

// Gate decides per operation whether a credential is needed and valid.
// It is immutable after construction and safe for concurrent use.
type Gate struct {
	secret    *Secret
	protected map[Operation]bool
}

// NewGate builds a gate. An empty secret yields an open gate that allows
// everything, whatever protected says. A nil protected slice means
// "unconfigured" and selects DefaultProtected.
func NewGate(secret string, protected []string) (*Gate, error) {
	g := &Gate{protected: make(map[Operation]bool)}
	if secret == "" {
		return g, nil
	}

	s, err := NewSecret(secret)
	if err != nil {
		return nil, err
	}
	g.secret = s

	if protected == nil {
		for _, op := range DefaultProtected {
			g.protected[op] = true
		}
		return g, nil
	}

	set, err := ParseOperations(protected)
	if err != nil {
		return nil, err
	}
	g.protected = set
	return g, nil
}

// Open reports whether the gate has no secret and therefore allows
// every operation.
func (g *Gate) Open() bool { return g.secret == nil }

// Protects reports whether op needs a credential.
func (g *Gate) Protects(op Operation) bool {
	return !g.Open() && g.protected[op]
}

// Protected returns the protected operations, sorted, for logging.
func (g *Gate) Protected() []string {
	if g.Open() {
		return nil
	}
	out := make([]string, 0, len(g.protected))
	for op := range g.protected {
		out = append(out, string(op))
	}
	sort.Strings(out)
	return out
}

// Authorize returns nil when op may proceed with the supplied credential
// and an apperror.ErrUnauthorized otherwise. The message never mentions the
// addressed resource.
func (g *Gate) Authorize(op Operation, supplied string) error {
	if !g.Protects(op) {
		return nil
	}
	if supplied == "" {
		return apperror.Unauthorized("missing API key")
	}
	if !g.secret.Matches(supplied) {
		return apperror.Unauthorized("invalid API key")
	}
	return nil
}
