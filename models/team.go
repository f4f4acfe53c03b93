package models

import "time"

type TeamRole string

const (
	RoleCaptain TeamRole = "captain"
	RoleMember  TeamRole = "member"
)

// Team groups users for one team-format tournament. A user belongs to at
// most one team per tournament.
type Team struct {
	ID           int       `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Tag          string    `json:"tag" db:"tag"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	CaptainID    int       `json:"captain_id" db:"captain_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	Members []TeamMember `json:"members,omitempty" db:"-"`
}

type TeamMember struct {
	TeamID   int       `json:"team_id" db:"team_id"`
	UserID   int       `json:"user_id" db:"user_id"`
	Role     TeamRole  `json:"role" db:"role"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}

// HasMember reports whether userID is on the team roster.
func (t *Team) HasMember(userID int) bool {
	for _, m := range t.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
