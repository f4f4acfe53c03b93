package models

import "time"

type MatchStatus string

const (
	MatchScheduled MatchStatus = "scheduled"
	MatchActive    MatchStatus = "active"
	MatchCompleted MatchStatus = "completed"
)

// Match is one node of the elimination tree. P2ParticipantID is nil for a
// bye, which is recorded as an immediately completed auto-win for P1.
type Match struct {
	ID                  int         `json:"id" db:"id"`
	TournamentID        int         `json:"tournament_id" db:"tournament_id"`
	Round               int         `json:"round" db:"round"`
	P1ParticipantID     int         `json:"p1_participant_id" db:"p1_participant_id"`
	P2ParticipantID     *int        `json:"p2_participant_id,omitempty" db:"p2_participant_id"`
	WinnerParticipantID *int        `json:"winner_participant_id,omitempty" db:"winner_participant_id"`
	Score               *string     `json:"score,omitempty" db:"score"`
	Status              MatchStatus `json:"status" db:"status"`
	CompletedAt         *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
}

// IsBye reports whether the match is a walkover with no second entrant.
func (m *Match) IsBye() bool {
	return m.P2ParticipantID == nil
}

// HasParticipant reports whether participantID plays in the match.
func (m *Match) HasParticipant(participantID int) bool {
	if m.P1ParticipantID == participantID {
		return true
	}
	return m.P2ParticipantID != nil && *m.P2ParticipantID == participantID
}
