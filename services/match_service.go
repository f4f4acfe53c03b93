package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playverse/tournament-engine/brackets"
	"github.com/playverse/tournament-engine/models"
	"github.com/playverse/tournament-engine/repositories"
)

// SubmitResultInput reports the outcome of a single match.
type SubmitResultInput struct {
	MatchID             int
	WinnerParticipantID int
	Score               *string
	ActorUserID         int
}

// SubmitResultOutcome describes what the result triggered beyond the match
// itself: the next round's matches if one was created, and the champion if
// the tournament concluded.
type SubmitResultOutcome struct {
	Match        *models.Match
	NextRound    []*models.Match
	Champion     *models.Participant
	RunnerUp     *models.Participant
	TournamentID int
	Completed    bool
}

type MatchService interface {
	SubmitResult(ctx context.Context, input SubmitResultInput) (*SubmitResultOutcome, error)
	GetByID(ctx context.Context, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error)
}

type matchService struct {
	transactor      repositories.Transactor
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	teamRepo        repositories.TeamRepository
	newGenerator    func(t *models.Tournament) (brackets.Generator, error)
	progression     UserProgression
	clanProgression ClanProgression
	notifier        Notifier
	broadcaster     Broadcaster
	logger          *slog.Logger
}

func NewMatchService(
	transactor repositories.Transactor,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	teamRepo repositories.TeamRepository,
	newGenerator func(t *models.Tournament) (brackets.Generator, error),
	progression UserProgression,
	clanProgression ClanProgression,
	notifier Notifier,
	broadcaster Broadcaster,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		transactor:      transactor,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		teamRepo:        teamRepo,
		newGenerator:    newGenerator,
		progression:     progression,
		clanProgression: clanProgression,
		notifier:        notifier,
		broadcaster:     broadcaster,
		logger:          logger,
	}
}

func (s *matchService) GetByID(ctx context.Context, id int) (*models.Match, error) {
	m, err := s.matchRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match %d: %w", id, err)
	}
	return m, nil
}

func (s *matchService) ListByTournament(ctx context.Context, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListByTournament(ctx, nil, tournamentID, round, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for tournament %d: %w", tournamentID, err)
	}
	return matches, nil
}

func (s *matchService) SubmitResult(ctx context.Context, input SubmitResultInput) (*SubmitResultOutcome, error) {
	outcome := &SubmitResultOutcome{}

	err := s.transactor.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		// Peek at the match to learn the tournament, then take the
		// tournament lock first so every mutation of one bracket is
		// serialized behind the same row lock.
		peek, err := s.matchRepo.GetByID(ctx, exec, input.MatchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return ErrMatchNotFound
			}
			return err
		}

		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, peek.TournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if t.Status != models.TournamentActive {
			return ErrMatchNotActive
		}
		outcome.TournamentID = t.ID

		m, err := s.matchRepo.GetByIDForUpdate(ctx, exec, input.MatchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return ErrMatchNotFound
			}
			return err
		}
		if m.Status == models.MatchCompleted {
			return ErrMatchNotActive
		}

		if err := s.authorizeResult(ctx, exec, t, m, input.ActorUserID); err != nil {
			return err
		}
		if !m.HasParticipant(input.WinnerParticipantID) {
			return ErrInvalidWinner
		}

		now := time.Now().UTC()
		if err := s.matchRepo.Complete(ctx, exec, m.ID, input.WinnerParticipantID, input.Score, now); err != nil {
			return err
		}
		m.Status = models.MatchCompleted
		m.WinnerParticipantID = &input.WinnerParticipantID
		m.Score = input.Score
		m.CompletedAt = &now
		outcome.Match = m

		loserID := m.P1ParticipantID
		if loserID == input.WinnerParticipantID && m.P2ParticipantID != nil {
			loserID = *m.P2ParticipantID
		}
		if loserID != input.WinnerParticipantID {
			if err := s.participantRepo.UpdateStatus(ctx, exec, loserID, models.ParticipantEliminated); err != nil {
				return err
			}
		}

		return s.advanceIfRoundComplete(ctx, exec, t, m.Round, outcome)
	})
	if err != nil {
		return nil, err
	}

	s.publishOutcome(ctx, outcome)
	return outcome, nil
}

// authorizeResult lets the tournament creator or either entrant of the match
// report a result.
func (s *matchService) authorizeResult(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, m *models.Match, actorUserID int) error {
	if t.CreatorID == actorUserID {
		return nil
	}

	participantIDs := []int{m.P1ParticipantID}
	if m.P2ParticipantID != nil {
		participantIDs = append(participantIDs, *m.P2ParticipantID)
	}
	for _, pid := range participantIDs {
		p, err := s.participantRepo.FindByID(ctx, exec, pid)
		if err != nil {
			return err
		}
		if p.UserID != nil && *p.UserID == actorUserID {
			return nil
		}
		if p.TeamID != nil {
			team, err := s.teamRepo.GetByID(ctx, exec, *p.TeamID)
			if err != nil {
				return err
			}
			if team.HasMember(actorUserID) {
				return nil
			}
		}
	}
	return ErrForbiddenOperation
}

// advanceIfRoundComplete checks whether the given round has any matches left
// and, when it does not, either crowns a champion or creates the next round.
// Rounds are created one at a time, so any non-completed match belongs to the
// current round.
func (s *matchService) advanceIfRoundComplete(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, round int, outcome *SubmitResultOutcome) error {
	remaining, err := s.matchRepo.CountRemaining(ctx, exec, t.ID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}

	completed := models.MatchCompleted
	finished, err := s.matchRepo.ListByTournament(ctx, exec, t.ID, &round, &completed)
	if err != nil {
		return err
	}

	// Winners advance in the order their matches were created, which keeps
	// the pairing of the next round deterministic.
	winnerIDs := make([]int, 0, len(finished))
	for _, m := range finished {
		winnerIDs = append(winnerIDs, *m.WinnerParticipantID)
	}

	if len(winnerIDs) == 1 {
		return s.completeTournament(ctx, exec, t, winnerIDs[0], outcome)
	}
	return s.createNextRound(ctx, exec, t, round+1, winnerIDs, outcome)
}

func (s *matchService) createNextRound(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, round int, winnerIDs []int, outcome *SubmitResultOutcome) error {
	generator, err := s.newGenerator(t)
	if err != nil {
		return err
	}

	winners := make([]*models.Participant, 0, len(winnerIDs))
	for _, id := range winnerIDs {
		p, err := s.participantRepo.FindByID(ctx, exec, id)
		if err != nil {
			return err
		}
		winners = append(winners, p)
	}

	matches, err := createRoundMatches(ctx, s.matchRepo, exec, t.ID, round, generator.Pair(winners))
	if err != nil {
		return err
	}
	outcome.NextRound = matches
	return nil
}

func (s *matchService) completeTournament(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, championParticipantID int, outcome *SubmitResultOutcome) error {
	// Exactly-once guard: only the transaction that wins this swap hands
	// out champion rewards.
	swapped, err := s.tournamentRepo.UpdateStatusIf(ctx, exec, t.ID, models.TournamentActive, models.TournamentCompleted)
	if err != nil {
		return err
	}
	if !swapped {
		return nil
	}

	now := time.Now().UTC()
	if err := s.tournamentRepo.SetWinner(ctx, exec, t.ID, championParticipantID, now); err != nil {
		return err
	}
	if err := s.participantRepo.UpdateStatus(ctx, exec, championParticipantID, models.ParticipantWinner); err != nil {
		return err
	}

	champion, err := s.participantRepo.FindByID(ctx, exec, championParticipantID)
	if err != nil {
		return err
	}
	if champion.TeamID != nil && champion.Team == nil {
		team, err := s.teamRepo.GetByID(ctx, exec, *champion.TeamID)
		if err != nil {
			return err
		}
		champion.Team = team
	}

	// The runner-up is the other side of the final match.
	if final := outcome.Match; final != nil && final.P2ParticipantID != nil {
		runnerUpID := final.P1ParticipantID
		if runnerUpID == championParticipantID {
			runnerUpID = *final.P2ParticipantID
		}
		runnerUp, err := s.participantRepo.FindByID(ctx, exec, runnerUpID)
		if err != nil {
			return err
		}
		if runnerUp.TeamID != nil && runnerUp.Team == nil {
			team, err := s.teamRepo.GetByID(ctx, exec, *runnerUp.TeamID)
			if err != nil {
				return err
			}
			runnerUp.Team = team
		}
		outcome.RunnerUp = runnerUp
	}

	outcome.Completed = true
	outcome.Champion = champion
	return nil
}

// publishOutcome runs the best-effort side effects of a committed result.
func (s *matchService) publishOutcome(ctx context.Context, outcome *SubmitResultOutcome) {
	room := roomID(outcome.TournamentID)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(room, brackets.Message{
			Type:    brackets.EventMatchResult,
			Payload: outcome.Match,
			RoomID:  room,
		})
		if len(outcome.NextRound) > 0 {
			s.broadcaster.BroadcastToRoom(room, brackets.Message{
				Type:    brackets.EventRoundAdvanced,
				Payload: outcome.NextRound,
				RoomID:  room,
			})
		}
		if outcome.Completed {
			s.broadcaster.BroadcastToRoom(room, brackets.Message{
				Type:    brackets.EventTournamentCompleted,
				Payload: outcome.Champion,
				RoomID:  room,
			})
		}
	}

	if s.notifier != nil {
		if outcome.Match != nil {
			notifyUsers(ctx, s.notifier, s.logger, s.matchEntrantUsers(ctx, outcome.Match),
				"Match result recorded",
				fmt.Sprintf("The result of your round %d match is in.", outcome.Match.Round),
				map[string]interface{}{"tournament_id": outcome.TournamentID, "match_id": outcome.Match.ID},
			)
		}
		for _, m := range outcome.NextRound {
			if m.IsBye() {
				continue
			}
			notifyUsers(ctx, s.notifier, s.logger, s.matchEntrantUsers(ctx, m),
				"Match scheduled",
				fmt.Sprintf("Your round %d match is ready to play.", m.Round),
				map[string]interface{}{"tournament_id": outcome.TournamentID, "match_id": m.ID},
			)
		}
	}

	if outcome.Completed && outcome.Champion != nil {
		s.rewardChampion(ctx, outcome.TournamentID, outcome.Champion, outcome.RunnerUp)
	}
}

// matchEntrantUsers resolves the users behind both sides of a match.
func (s *matchService) matchEntrantUsers(ctx context.Context, m *models.Match) []int {
	ids := []int{m.P1ParticipantID}
	if m.P2ParticipantID != nil {
		ids = append(ids, *m.P2ParticipantID)
	}

	participants := make([]*models.Participant, 0, len(ids))
	for _, pid := range ids {
		p, err := s.participantRepo.FindByID(ctx, nil, pid)
		if err != nil {
			logSideEffectError(s.logger, fmt.Sprintf("load participant %d", pid), err)
			continue
		}
		participants = append(participants, p)
	}
	return resolveEntrantUsers(ctx, s.teamRepo, s.logger, participants)
}

func (s *matchService) rewardChampion(ctx context.Context, tournamentID int, champion, runnerUp *models.Participant) {
	userIDs := participantUserIDs([]*models.Participant{champion})

	if s.progression != nil {
		for _, userID := range userIDs {
			logSideEffectError(s.logger, fmt.Sprintf("award champion xp to user %d", userID),
				s.progression.AwardXP(ctx, userID, xpChampionReward, reasonChampion))
			logSideEffectError(s.logger, fmt.Sprintf("increment stats for user %d", userID),
				s.progression.IncrementGameStats(ctx, userID, GameStatsDelta{Wins: 1, GamesPlayed: 1}))
		}
	}
	if s.progression != nil && runnerUp != nil {
		for _, userID := range participantUserIDs([]*models.Participant{runnerUp}) {
			logSideEffectError(s.logger, fmt.Sprintf("increment stats for user %d", userID),
				s.progression.IncrementGameStats(ctx, userID, GameStatsDelta{GamesPlayed: 1}))
		}
	}
	if s.clanProgression != nil && champion.ClanID != nil {
		logSideEffectError(s.logger, fmt.Sprintf("award clan xp to clan %d", *champion.ClanID),
			s.clanProgression.AwardClanXP(ctx, *champion.ClanID, xpClanChampionReward, reasonChampion))
	}

	notifyUsers(ctx, s.notifier, s.logger, userIDs,
		"Tournament won",
		"Congratulations, you are the champion!",
		map[string]interface{}{"tournament_id": tournamentID},
	)

	s.logger.Info("tournament completed",
		slog.Int("tournament_id", tournamentID),
		slog.Int("champion_participant_id", champion.ID),
	)
}
