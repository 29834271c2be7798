package harvest

import (
	"testing"

	"github.com/odysseycaravels/ranking-scraper/internal/models"
	"github.com/odysseycaravels/ranking-scraper/internal/provider"

	"github.com/stretchr/testify/assert"
)

func phases(labels ...string) []provider.Phase {
	out := make([]provider.Phase, 0, len(labels))
	for i, l := range labels {
		out = append(out, provider.Phase{ID: provider.RemoteID(i + 1), BracketType: l})
	}
	return out
}

func TestClassifyFormat(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   models.EventFormat
	}{
		{"single and double elimination", []string{"SINGLE_ELIMINATION", "DOUBLE_ELIMINATION"}, models.EventFormatElimination},
		{"pools into bracket", []string{"ROUND_ROBIN", "DOUBLE_ELIMINATION"}, models.EventFormatElimination},
		{"swiss", []string{"SWISS"}, models.EventFormatElimination},
		{"matchmaking", []string{"MATCHMAKING"}, models.EventFormatLadder},
		{"two ladder phases", []string{"MATCHMAKING", "MATCHMAKING"}, models.EventFormatLadder},
		{"mixed elimination and ladder", []string{"SINGLE_ELIMINATION", "MATCHMAKING"}, models.EventFormatUnknown},
		{"exhibition", []string{"EXHIBITION"}, models.EventFormatUnknown},
		{"race and custom schedule", []string{"RACE", "CUSTOM_SCHEDULE"}, models.EventFormatUnknown},
		{"elimination round", []string{"ELIMINATION_ROUND"}, models.EventFormatUnknown},
		{"unrecognized label", []string{"DOUBLE_ELIMINATION", "SOMETHING_NEW"}, models.EventFormatUnknown},
		{"no phases", nil, models.EventFormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFormat(phases(tt.labels...)))
		})
	}
}

func TestIsDisqualification(t *testing.T) {
	noScore := slot(2, 0, "b", 2, true)
	noScore.Standing.Stats.Score.Value = nil
	noStanding := slot(2, 0, "b", 2, true)
	noStanding.Standing = nil

	tests := []struct {
		name string
		set  provider.Set
		want bool
	}{
		{"regular", newSet(1, 0, slot(1, 3, "a", 1, true), slot(2, 1, "b", 2, true)), false},
		{"zero score", newSet(1, 0, slot(1, 2, "a", 1, true), slot(2, 0, "b", 2, true)), false},
		{"negative score", newSet(1, 0, slot(1, 0, "a", 1, true), slot(2, -1, "b", 2, true)), true},
		{"null score", newSet(1, 0, slot(1, 2, "a", 1, true), noScore), true},
		{"no standing", newSet(1, 0, slot(1, 2, "a", 1, true), noStanding), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDisqualification(&tt.set))
		})
	}
}

func TestSortByStart(t *testing.T) {
	sets := []provider.Set{
		newSet(1, 300),
		newSet(2, 0),
		newSet(3, 100),
		newSet(4, 0),
		newSet(5, 200),
	}

	SortByStart(sets)

	ids := make([]provider.RemoteID, 0, len(sets))
	for _, s := range sets {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []provider.RemoteID{3, 5, 1, 2, 4}, ids)
}
