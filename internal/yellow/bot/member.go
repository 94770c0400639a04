package bot

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
)

// DefaultMemberLimit is the number of ranked members returned when the
// message does not ask for a specific limit.
const DefaultMemberLimit = 4

// MatchKind tells how a member search was resolved.
type MatchKind int

const (
	// MatchEmpty means there were no members to search.
	MatchEmpty MatchKind = iota
	// MatchExactAlias means a member's alias equals the search term.
	MatchExactAlias
	// MatchRanked means members are ordered by name similarity.
	MatchRanked
)

// MemberMatch is the result of ResolveMember.
type MemberMatch struct {
	Kind    MatchKind
	Members []Member
}

// ResolveMember finds the members term refers to. An exact alias match wins
// outright; otherwise members are ranked by Jaro similarity between term and
// their name and the best limit members are returned.
func ResolveMember(term string, limit int, members []Member) MemberMatch {
	if len(members) == 0 {
		return MemberMatch{Kind: MatchEmpty}
	}

	for _, m := range members {
		if m.Alias == term {
			return MemberMatch{Kind: MatchExactAlias, Members: []Member{m}}
		}
	}

	if limit <= 0 {
		limit = DefaultMemberLimit
	}

	term = strings.ToLower(term)
	type scored struct {
		member Member
		score  float64
	}
	ranked := make([]scored, len(members))
	for i, m := range members {
		ranked[i] = scored{member: m, score: float64(edlib.JaroSimilarity(term, strings.ToLower(m.Name)))}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]Member, limit)
	for i := range out {
		out[i] = ranked[i].member
	}
	return MemberMatch{Kind: MatchRanked, Members: out}
}
