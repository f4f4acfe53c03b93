package brackets

import (
	"math/rand"

	"github.com/playverse/tournament-engine/models"
)

// SingleElimination seeds by uniform shuffle and pairs sequentially. The
// randomness source is injected so callers (and tests) control the shuffle.
type SingleElimination struct {
	rng *rand.Rand
}

func NewSingleElimination(rng *rand.Rand) *SingleElimination {
	return &SingleElimination{rng: rng}
}

func (g *SingleElimination) Name() string {
	return "SingleElimination"
}

// Seed shuffles the field and assigns seed = position+1 in shuffled order.
// Registration order carries no seeding advantage.
func (g *SingleElimination) Seed(participants []*models.Participant) []*models.Participant {
	seeded := make([]*models.Participant, len(participants))
	copy(seeded, participants)

	g.rng.Shuffle(len(seeded), func(i, j int) {
		seeded[i], seeded[j] = seeded[j], seeded[i]
	})

	for i, p := range seeded {
		seed := i + 1
		p.Seed = &seed
	}
	return seeded
}

// Pair walks the ordered field two at a time. With an odd count the last
// entrant gets a bye rather than silently falling out of the bracket.
func (g *SingleElimination) Pair(entrants []*models.Participant) []Pairing {
	pairings := make([]Pairing, 0, (len(entrants)+1)/2)
	for i := 0; i+1 < len(entrants); i += 2 {
		pairings = append(pairings, Pairing{P1: entrants[i], P2: entrants[i+1]})
	}
	if len(entrants)%2 == 1 {
		pairings = append(pairings, Pairing{P1: entrants[len(entrants)-1], Bye: true})
	}
	return pairings
}
