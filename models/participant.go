package models

import "time"

// ParticipantStatus tracks an entrant's progress through the bracket.
type ParticipantStatus string

const (
	ParticipantRegistered ParticipantStatus = "registered"
	ParticipantActive     ParticipantStatus = "active"
	ParticipantEliminated ParticipantStatus = "eliminated"
	ParticipantWinner     ParticipantStatus = "winner"
)

// Participant is one registered entrant in one tournament. Exactly one of
// UserID/TeamID identifies the entrant for solo/team formats; clan entries
// carry UserID (the registering player) plus ClanID.
type Participant struct {
	ID           int               `json:"id" db:"id"`
	TournamentID int               `json:"tournament_id" db:"tournament_id"`
	UserID       *int              `json:"user_id,omitempty" db:"user_id"`
	TeamID       *int              `json:"team_id,omitempty" db:"team_id"`
	ClanID       *int              `json:"clan_id,omitempty" db:"clan_id"`
	Seed         *int              `json:"seed,omitempty" db:"seed"`
	Status       ParticipantStatus `json:"status" db:"status"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`

	Team *Team `json:"team,omitempty" db:"-"`
}

// Entrant returns the tagged entrant reference behind the nullable columns.
func (p *Participant) Entrant() EntrantRef {
	switch {
	case p.TeamID != nil:
		return EntrantRef{Kind: EntrantTeam, ID: *p.TeamID}
	case p.ClanID != nil:
		return EntrantRef{Kind: EntrantClan, ID: *p.ClanID}
	case p.UserID != nil:
		return EntrantRef{Kind: EntrantUser, ID: *p.UserID}
	}
	return EntrantRef{}
}
