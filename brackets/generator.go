package brackets

import (
	"errors"
	"math/rand"

	"github.com/playverse/tournament-engine/models"
)

var ErrBracketTypeUnsupported = errors.New("unsupported bracket type")

// Pairing is one slot-assignment produced by a pairing pass. A Bye pairing
// has no second entrant and resolves immediately as a walkover for P1.
type Pairing struct {
	P1  *models.Participant
	P2  *models.Participant
	Bye bool
}

// Generator seeds a field of participants and pairs entrants into matches.
// The same pairing rule is applied to round 1 and to the winners of each
// completed round, so the bracket tree keeps its shape.
type Generator interface {
	// Seed returns the field in bracket order and assigns Seed 1..N on the
	// returned participants. The input slice is not modified.
	Seed(participants []*models.Participant) []*models.Participant

	// Pair splits an ordered field into sequential pairings: (1,2), (3,4),
	// and so on. An odd tail becomes a bye pairing.
	Pair(entrants []*models.Participant) []Pairing

	Name() string
}

// NewGenerator returns the generator for a bracket type, or
// ErrBracketTypeUnsupported for the progression schemes that are accepted as
// tournament values but not implemented.
func NewGenerator(bracketType models.BracketType, rng *rand.Rand) (Generator, error) {
	switch bracketType {
	case models.BracketSingleElimination:
		return NewSingleElimination(rng), nil
	default:
		return nil, ErrBracketTypeUnsupported
	}
}
