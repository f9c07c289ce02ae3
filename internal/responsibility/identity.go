package responsibility

import (
	"strconv"
	"strings"
)

// ParseOutcome tags the result of interpreting a loosely typed identity field.
type ParseOutcome int

const (
	Empty ParseOutcome = iota
	Valid
	Unparseable
)

func (o ParseOutcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case Unparseable:
		return "unparseable"
	default:
		return "empty"
	}
}

// ParsedIdentity is the tagged result of ParseIdentity. ID is only meaningful
// when Outcome is Valid.
type ParsedIdentity struct {
	Outcome ParseOutcome
	ID      int64
	Raw     string
}

// ParseIdentity interprets free-form text as a user identity. Surrounding
// whitespace is ignored; anything that is not a positive base-10 integer is
// reported as Unparseable rather than coerced.
func ParseIdentity(raw string) ParsedIdentity {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ParsedIdentity{Outcome: Empty, Raw: raw}
	}

	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || id <= 0 {
		return ParsedIdentity{Outcome: Unparseable, Raw: raw}
	}

	return ParsedIdentity{Outcome: Valid, ID: id, Raw: raw}
}

// IdentitySet is an insertion-ordered set of user identities. The zero value
// is ready to use.
type IdentitySet struct {
	order []int64
	seen  map[int64]struct{}
}

// NewIdentitySet returns a set holding ids, skipping non-positive values.
func NewIdentitySet(ids ...int64) *IdentitySet {
	s := &IdentitySet{}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was not already present.
// Non-positive identities are never stored.
func (s *IdentitySet) Add(id int64) bool {
	if id <= 0 {
		return false
	}
	if s.seen == nil {
		s.seen = make(map[int64]struct{})
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Union adds every member of other to s and returns s.
func (s *IdentitySet) Union(other *IdentitySet) *IdentitySet {
	if other == nil {
		return s
	}
	for _, id := range other.order {
		s.Add(id)
	}
	return s
}

// Without returns a copy of s lacking id.
func (s *IdentitySet) Without(id int64) *IdentitySet {
	out := &IdentitySet{}
	for _, member := range s.order {
		if member != id {
			out.Add(member)
		}
	}
	return out
}

func (s *IdentitySet) Contains(id int64) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *IdentitySet) Len() int {
	return len(s.order)
}

// Slice returns the members in insertion order.
func (s *IdentitySet) Slice() []int64 {
	out := make([]int64, len(s.order))
	copy(out, s.order)
	return out
}
