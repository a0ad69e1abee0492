package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies one category of upstream repository activity.
type Kind string

const (
	KindCommit      Kind = "commit"
	KindIssue       Kind = "issue"
	KindPullRequest Kind = "pull_request"
	KindRelease     Kind = "release"
	// KindAll is a subscription-level shorthand that expands to every concrete kind.
	KindAll Kind = "all"
)

// ConcreteKinds lists the fetchable kinds in their canonical order.
var ConcreteKinds = []Kind{KindCommit, KindIssue, KindPullRequest, KindRelease}

// ParseKind converts a string to a Kind. The legacy plural spellings
// ("commits", "issues", "pull_requests", "releases") are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "commit", "commits":
		return KindCommit, nil
	case "issue", "issues":
		return KindIssue, nil
	case "pull_request", "pull_requests", "pr", "prs":
		return KindPullRequest, nil
	case "release", "releases":
		return KindRelease, nil
	case "all":
		return KindAll, nil
	default:
		return "", fmt.Errorf("unknown update kind %q", s)
	}
}

// KindSet is a set over the closed Kind enumeration, stored as a bitmask.
type KindSet uint8

const (
	kindBitCommit KindSet = 1 << iota
	kindBitIssue
	kindBitPullRequest
	kindBitRelease
	kindBitAll
)

func kindBit(k Kind) KindSet {
	switch k {
	case KindCommit:
		return kindBitCommit
	case KindIssue:
		return kindBitIssue
	case KindPullRequest:
		return kindBitPullRequest
	case KindRelease:
		return kindBitRelease
	case KindAll:
		return kindBitAll
	default:
		return 0
	}
}

// NewKindSet builds a KindSet from the given kinds. Unknown kinds are ignored.
func NewKindSet(kinds ...Kind) KindSet {
	var s KindSet
	for _, k := range kinds {
		s |= kindBit(k)
	}
	return s
}

// Has reports whether k is a member of the set. A set containing KindAll
// has every concrete kind.
func (s KindSet) Has(k Kind) bool {
	bit := kindBit(k)
	if bit == 0 {
		return false
	}
	if s&kindBitAll != 0 {
		return true
	}
	return s&bit != 0
}

// IsEmpty reports whether no kind is enabled.
func (s KindSet) IsEmpty() bool { return s == 0 }

// Concrete returns the concrete kinds to fetch, in canonical order.
func (s KindSet) Concrete() []Kind {
	kinds := make([]Kind, 0, len(ConcreteKinds))
	for _, k := range ConcreteKinds {
		if s.Has(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Members returns the kinds explicitly in the set, including KindAll.
func (s KindSet) Members() []Kind {
	if s&kindBitAll != 0 {
		return []Kind{KindAll}
	}
	return s.Concrete()
}

// String renders the set as a comma-separated list.
func (s KindSet) String() string {
	members := s.Members()
	parts := make([]string, len(members))
	for i, k := range members {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

// MarshalJSON encodes the set as a JSON array of kind names.
func (s KindSet) MarshalJSON() ([]byte, error) {
	members := s.Members()
	names := make([]string, len(members))
	for i, k := range members {
		names[i] = string(k)
	}
	return json.Marshal(names)
}

// UnmarshalJSON decodes a JSON array of kind names.
func (s *KindSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set, err := ParseKindSet(names)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// ParseKindSet parses kind names into a KindSet, rejecting unknown names.
func ParseKindSet(names []string) (KindSet, error) {
	var set KindSet
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return 0, err
		}
		set |= kindBit(k)
	}
	return set, nil
}
