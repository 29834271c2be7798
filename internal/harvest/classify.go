package harvest

import (
	"sort"

	"github.com/odysseycaravels/ranking-scraper/internal/models"
	"github.com/odysseycaravels/ranking-scraper/internal/provider"
)

type formatFamily int

const (
	familyUnrecognized formatFamily = iota
	familyElimination
	familyLadder
	familyUntracked
)

var bracketFamilies = map[string]formatFamily{
	"SINGLE_ELIMINATION": familyElimination,
	"DOUBLE_ELIMINATION": familyElimination,
	"ROUND_ROBIN":        familyElimination,
	"SWISS":              familyElimination,
	"MATCHMAKING":        familyLadder,
	"EXHIBITION":         familyUntracked,
	"RACE":               familyUntracked,
	"CUSTOM_SCHEDULE":    familyUntracked,
	"ELIMINATION_ROUND":  familyUntracked,
}

// ClassifyFormat derives an event's bracket format from its phases.
// Every phase must fall in the same family; mixed, untracked or unrecognized
// labels, and an event without phases, classify as unknown.
func ClassifyFormat(phases []provider.Phase) models.EventFormat {
	if len(phases) == 0 {
		return models.EventFormatUnknown
	}

	families := make(map[formatFamily]struct{})
	for _, phase := range phases {
		families[bracketFamilies[phase.BracketType]] = struct{}{}
	}
	if len(families) != 1 {
		return models.EventFormatUnknown
	}

	for family := range families {
		switch family {
		case familyElimination:
			return models.EventFormatElimination
		case familyLadder:
			return models.EventFormatLadder
		}
	}
	return models.EventFormatUnknown
}

// IsDisqualification reports whether either side of a set has an absent or negative score
func IsDisqualification(set *provider.Set) bool {
	for i := range set.Slots {
		score, ok := set.Slots[i].ScoreValue()
		if !ok || score < 0 {
			return true
		}
	}
	return false
}

// SortByStart orders sets by start time, the best available approximation of
// play order. Sets without a start time keep their relative order at the end.
func SortByStart(sets []provider.Set) {
	sort.SliceStable(sets, func(i, j int) bool {
		a, b := sets[i].StartedAt, sets[j].StartedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}
