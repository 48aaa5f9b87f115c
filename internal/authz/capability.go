package authz

import (
	"encoding/json"
	"sort"
	"strings"
)

// Capability is one grantable permission: a (module, resource, action)
// triple such as (vendor, material-mapping, create). Matching is exact on
// all three fields; there is no wildcard expansion.
type Capability struct {
	Module   string
	Resource string
	Action   string
}

// String renders the storage form "module:resource:action".
func (c Capability) String() string {
	return c.Module + ":" + c.Resource + ":" + c.Action
}

// ParseCapability parses the storage form. All three parts must be present
// and non-empty.
func ParseCapability(s string) (Capability, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return Capability{}, false
	}
	c := Capability{
		Module:   strings.TrimSpace(parts[0]),
		Resource: strings.TrimSpace(parts[1]),
		Action:   strings.TrimSpace(parts[2]),
	}
	if c.Module == "" || c.Resource == "" || c.Action == "" {
		return Capability{}, false
	}
	return c, true
}

// CapabilitySet is an immutable-by-convention snapshot of granted
// capabilities for one request.
type CapabilitySet map[Capability]struct{}

// Has is an exact-match containment check.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Keys returns the sorted storage-form keys.
func (s CapabilitySet) Keys() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c.String())
	}
	sort.Strings(out)
	return out
}

// DecodeCapabilityList decodes a stored JSON permission list. Malformed or
// missing input resolves to the empty set, never to an error and never to
// implicit full access. Entries that do not parse as triples are skipped.
func DecodeCapabilityList(raw []byte) CapabilitySet {
	set := make(CapabilitySet)
	if len(raw) == 0 {
		return set
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return set
	}
	for _, key := range keys {
		if c, ok := ParseCapability(key); ok {
			set[c] = struct{}{}
		}
	}
	return set
}

// EncodeCapabilityList normalizes and encodes permission keys for storage,
// rejecting entries that are not well-formed triples.
func EncodeCapabilityList(keys []string) ([]byte, error) {
	seen := make(map[Capability]struct{}, len(keys))
	normalized := make([]string, 0, len(keys))
	for _, key := range keys {
		c, ok := ParseCapability(key)
		if !ok {
			return nil, ErrInvalidInput
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		normalized = append(normalized, c.String())
	}
	sort.Strings(normalized)
	return json.Marshal(normalized)
}
