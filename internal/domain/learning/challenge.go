package learning

import (
	"fmt"
	"sort"
	"strings"
)

type Challenge string

const (
	ChallengeDyslexia    Challenge = "dyslexia"
	ChallengeADHD        Challenge = "adhd"
	ChallengeAutism      Challenge = "autism"
	ChallengeDyscalculia Challenge = "dyscalculia"
	ChallengeDysgraphia  Challenge = "dysgraphia"
)

var knownChallenges = map[Challenge]struct{}{
	ChallengeDyslexia:    {},
	ChallengeADHD:        {},
	ChallengeAutism:      {},
	ChallengeDyscalculia: {},
	ChallengeDysgraphia:  {},
}

// ChallengeSet is an order-independent set of challenge tags. The zero value
// is the empty set. Members are kept sorted so Key is canonical.
type ChallengeSet struct {
	tags []Challenge
}

func NewChallengeSet(tags ...string) (ChallengeSet, error) {
	seen := make(map[Challenge]struct{}, len(tags))
	out := make([]Challenge, 0, len(tags))
	for _, raw := range tags {
		c := Challenge(strings.ToLower(strings.TrimSpace(raw)))
		if c == "" {
			continue
		}
		if _, ok := knownChallenges[c]; !ok {
			return ChallengeSet{}, fmt.Errorf("unknown challenge %q", raw)
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return ChallengeSet{tags: out}, nil
}

// MustChallengeSet panics on unknown tags. Only for literals.
func MustChallengeSet(tags ...string) ChallengeSet {
	cs, err := NewChallengeSet(tags...)
	if err != nil {
		panic(err)
	}
	return cs
}

// ParseChallengeKey is the inverse of Key.
func ParseChallengeKey(key string) (ChallengeSet, error) {
	if strings.TrimSpace(key) == "" {
		return ChallengeSet{}, nil
	}
	return NewChallengeSet(strings.Split(key, ",")...)
}

func (cs ChallengeSet) Len() int      { return len(cs.tags) }
func (cs ChallengeSet) IsEmpty() bool { return len(cs.tags) == 0 }

func (cs ChallengeSet) Has(c Challenge) bool {
	i := sort.Search(len(cs.tags), func(i int) bool { return cs.tags[i] >= c })
	return i < len(cs.tags) && cs.tags[i] == c
}

// Key is the canonical sorted, comma-joined form. Two sets are equal iff
// their keys are equal; the empty set has the empty key.
func (cs ChallengeSet) Key() string {
	parts := make([]string, len(cs.tags))
	for i, c := range cs.tags {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func (cs ChallengeSet) Equal(other ChallengeSet) bool {
	return cs.Key() == other.Key()
}

func (cs ChallengeSet) Strings() []string {
	out := make([]string, len(cs.tags))
	for i, c := range cs.tags {
		out[i] = string(c)
	}
	return out
}
