package models

import "time"

// TournamentStatus mirrors the tournament_status ENUM in the database.
type TournamentStatus string

const (
	TournamentUpcoming  TournamentStatus = "upcoming"
	TournamentActive    TournamentStatus = "active"
	TournamentCompleted TournamentStatus = "completed"
	TournamentCancelled TournamentStatus = "cancelled"
)

// TournamentFormat defines what kind of entrant the tournament accepts.
type TournamentFormat string

const (
	FormatSolo TournamentFormat = "solo"
	FormatTeam TournamentFormat = "team"
	FormatClan TournamentFormat = "clan"
)

// BracketType names the progression scheme. Only single elimination is
// implemented; the other values are accepted on creation but rejected at
// start time.
type BracketType string

const (
	BracketSingleElimination BracketType = "single_elimination"
	BracketDoubleElimination BracketType = "double_elimination"
	BracketRoundRobin        BracketType = "round_robin"
	BracketSwiss             BracketType = "swiss"
)

type Tournament struct {
	ID              int              `json:"id" db:"id"`
	Name            string           `json:"name" db:"name"`
	Game            string           `json:"game" db:"game"`
	Format          TournamentFormat `json:"format" db:"format"`
	BracketType     BracketType      `json:"bracket_type" db:"bracket_type"`
	MaxParticipants int              `json:"max_participants" db:"max_participants"`
	EntryFee        int              `json:"entry_fee" db:"entry_fee"`
	PrizePool       int              `json:"prize_pool" db:"prize_pool"`
	Status          TournamentStatus `json:"status" db:"status"`
	StartDate       time.Time        `json:"start_date" db:"start_date"`
	EndDate         *time.Time       `json:"end_date,omitempty" db:"end_date"`
	CreatorID       int              `json:"creator_id" db:"creator_id"`

	// WinnerParticipantID is set exactly once, by the completion resolver.
	WinnerParticipantID *int `json:"winner_participant_id,omitempty" db:"winner_participant_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	BannerKey *string `json:"-" db:"banner_key"`
	BannerURL *string `json:"banner_url,omitempty" db:"-"`

	// Optional related entities, loaded on demand.
	Participants []Participant `json:"participants,omitempty" db:"-"`
	Matches      []Match       `json:"matches,omitempty" db:"-"`
}

func (f TournamentFormat) Valid() bool {
	switch f {
	case FormatSolo, FormatTeam, FormatClan:
		return true
	}
	return false
}

func (b BracketType) Valid() bool {
	switch b {
	case BracketSingleElimination, BracketDoubleElimination, BracketRoundRobin, BracketSwiss:
		return true
	}
	return false
}

// Terminal reports whether no further status transition is legal.
func (s TournamentStatus) Terminal() bool {
	return s == TournamentCompleted || s == TournamentCancelled
}
