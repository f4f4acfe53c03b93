package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestParticipantEntrant(t *testing.T) {
	tests := []struct {
		name string
		p    Participant
		want EntrantRef
	}{
		{"solo", Participant{UserID: intPtr(7)}, EntrantRef{Kind: EntrantUser, ID: 7}},
		{"team", Participant{TeamID: intPtr(3)}, EntrantRef{Kind: EntrantTeam, ID: 3}},
		{"clan", Participant{UserID: intPtr(7), ClanID: intPtr(5)}, EntrantRef{Kind: EntrantClan, ID: 5}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.p.Entrant())
		})
	}
}

func TestEntrantMatchesFormat(t *testing.T) {
	assert.True(t, EntrantRef{Kind: EntrantUser, ID: 1}.MatchesFormat(FormatSolo))
	assert.True(t, EntrantRef{Kind: EntrantTeam, ID: 1}.MatchesFormat(FormatTeam))
	assert.True(t, EntrantRef{Kind: EntrantClan, ID: 1}.MatchesFormat(FormatClan))

	assert.False(t, EntrantRef{Kind: EntrantTeam, ID: 1}.MatchesFormat(FormatSolo))
	assert.False(t, EntrantRef{Kind: EntrantUser, ID: 1}.MatchesFormat(FormatTeam))
}

func TestMatchHelpers(t *testing.T) {
	bye := Match{P1ParticipantID: 1}
	assert.True(t, bye.IsBye())
	assert.True(t, bye.HasParticipant(1))
	assert.False(t, bye.HasParticipant(2))

	full := Match{P1ParticipantID: 1, P2ParticipantID: intPtr(2)}
	assert.False(t, full.IsBye())
	assert.True(t, full.HasParticipant(2))
	assert.False(t, full.HasParticipant(3))
}

func TestTournamentStatusTerminal(t *testing.T) {
	assert.False(t, TournamentUpcoming.Terminal())
	assert.False(t, TournamentActive.Terminal())
	assert.True(t, TournamentCompleted.Terminal())
	assert.True(t, TournamentCancelled.Terminal())
}
