package models

// EntrantKind discriminates what an EntrantRef points at.
type EntrantKind string

const (
	EntrantUser EntrantKind = "user"
	EntrantTeam EntrantKind = "team"
	EntrantClan EntrantKind = "clan"
)

// EntrantRef is a tagged reference to whoever plays a bracket slot: a user,
// a team, or a clan. It replaces juggling three nullable foreign keys in the
// format-specific validation paths.
type EntrantRef struct {
	Kind EntrantKind `json:"kind"`
	ID   int         `json:"id"`
}

func (r EntrantRef) IsZero() bool {
	return r.Kind == "" || r.ID == 0
}

// MatchesFormat reports whether the entrant kind is what the tournament
// format requires.
func (r EntrantRef) MatchesFormat(f TournamentFormat) bool {
	switch f {
	case FormatSolo:
		return r.Kind == EntrantUser
	case FormatTeam:
		return r.Kind == EntrantTeam
	case FormatClan:
		return r.Kind == EntrantClan
	}
	return false
}
