package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/playverse/tournament-engine/brackets"
	"github.com/playverse/tournament-engine/models"
	"github.com/playverse/tournament-engine/repositories"
)

// RoundView is one layer of the bracket, for the query surface.
type RoundView struct {
	Round   int            `json:"round"`
	Matches []models.Match `json:"matches"`
}

type BracketView struct {
	TournamentID int         `json:"tournament_id"`
	Rounds       []RoundView `json:"rounds"`
}

type BracketService interface {
	// GenerateBracket seeds the registered field and persists the round-1
	// matches inside the caller's transaction. It runs once per tournament,
	// guarded by the UPCOMING→ACTIVE transition.
	GenerateBracket(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) ([]*models.Match, error)

	GetBracket(ctx context.Context, tournamentID int) (*BracketView, error)
}

type bracketService struct {
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	newRand         func() *rand.Rand
	logger          *slog.Logger
}

func NewBracketService(
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	newRand func() *rand.Rand,
	logger *slog.Logger,
) BracketService {
	return &bracketService{
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		newRand:         newRand,
		logger:          logger,
	}
}

func (s *bracketService) GenerateBracket(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) ([]*models.Match, error) {
	generator, err := brackets.NewGenerator(t.BracketType, s.newRand())
	if err != nil {
		return nil, err
	}

	registered := models.ParticipantRegistered
	participants, err := s.participantRepo.ListByTournament(ctx, exec, t.ID, &registered)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants for tournament %d: %w", t.ID, err)
	}
	if len(participants) < 2 {
		return nil, ErrNotEnoughParticipants
	}

	seeded := generator.Seed(participants)
	for _, p := range seeded {
		if err := s.participantRepo.UpdateSeed(ctx, exec, p.ID, *p.Seed); err != nil {
			return nil, err
		}
		if err := s.participantRepo.UpdateStatus(ctx, exec, p.ID, models.ParticipantActive); err != nil {
			return nil, err
		}
	}

	matches, err := createRoundMatches(ctx, s.matchRepo, exec, t.ID, 1, generator.Pair(seeded))
	if err != nil {
		return nil, err
	}

	s.logger.Info("bracket generated",
		slog.Int("tournament_id", t.ID),
		slog.Int("participants", len(seeded)),
		slog.Int("round1_matches", len(matches)),
	)
	return matches, nil
}

// createRoundMatches persists one round of pairings. A bye is stored as an
// immediately completed walkover so the round-completion rule stays uniform.
func createRoundMatches(ctx context.Context, matchRepo repositories.MatchRepository, exec repositories.SQLExecutor, tournamentID, round int, pairings []brackets.Pairing) ([]*models.Match, error) {
	matches := make([]*models.Match, 0, len(pairings))
	for _, pairing := range pairings {
		m := &models.Match{
			TournamentID:    tournamentID,
			Round:           round,
			P1ParticipantID: pairing.P1.ID,
			Status:          models.MatchScheduled,
		}
		if pairing.Bye {
			now := time.Now().UTC()
			winnerID := pairing.P1.ID
			m.Status = models.MatchCompleted
			m.WinnerParticipantID = &winnerID
			m.CompletedAt = &now
		} else {
			p2ID := pairing.P2.ID
			m.P2ParticipantID = &p2ID
		}
		if err := matchRepo.Create(ctx, exec, m); err != nil {
			return nil, fmt.Errorf("failed to create round %d match: %w", round, err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *bracketService) GetBracket(ctx context.Context, tournamentID int) (*BracketView, error) {
	var matches []*models.Match

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.tournamentRepo.GetByID(gCtx, nil, tournamentID)
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = s.matchRepo.ListByTournament(gCtx, nil, tournamentID, nil, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &BracketView{TournamentID: tournamentID, Rounds: []RoundView{}}
	// Matches arrive ordered by round then creation order.
	for _, m := range matches {
		if len(view.Rounds) == 0 || view.Rounds[len(view.Rounds)-1].Round != m.Round {
			view.Rounds = append(view.Rounds, RoundView{Round: m.Round})
		}
		last := &view.Rounds[len(view.Rounds)-1]
		last.Matches = append(last.Matches, *m)
	}
	return view, nil
}
