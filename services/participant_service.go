package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/playverse/tournament-engine/models"
	"github.com/playverse/tournament-engine/repositories"
)

// RegisterInput identifies who joins which tournament. TeamID is required
// for team format, ClanID for clan format; both must be absent otherwise.
type RegisterInput struct {
	TournamentID int
	UserID       int
	TeamID       *int
	ClanID       *int
}

type ParticipantService interface {
	Register(ctx context.Context, input RegisterInput) (*models.Participant, error)
	Withdraw(ctx context.Context, tournamentID, userID int) error
	GetByID(ctx context.Context, id int) (*models.Participant, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participant, error)
}

type participantService struct {
	transactor      repositories.Transactor
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	teamRepo        repositories.TeamRepository
	progression     UserProgression
	notifier        Notifier
	logger          *slog.Logger
}

func NewParticipantService(
	transactor repositories.Transactor,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	teamRepo repositories.TeamRepository,
	progression UserProgression,
	notifier Notifier,
	logger *slog.Logger,
) ParticipantService {
	return &participantService{
		transactor:      transactor,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		teamRepo:        teamRepo,
		progression:     progression,
		notifier:        notifier,
		logger:          logger,
	}
}

func (s *participantService) Register(ctx context.Context, input RegisterInput) (*models.Participant, error) {
	var participant *models.Participant
	var tournament *models.Tournament

	err := s.transactor.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, input.TournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		tournament = t

		if t.Status != models.TournamentUpcoming {
			return ErrRegistrationClosed
		}

		count, err := s.participantRepo.CountByTournament(ctx, exec, t.ID)
		if err != nil {
			return err
		}
		if count >= t.MaxParticipants {
			return ErrTournamentFull
		}

		p, err := s.buildParticipant(ctx, exec, t, input)
		if err != nil {
			return err
		}

		if err := s.participantRepo.Create(ctx, exec, p); err != nil {
			if errors.Is(err, repositories.ErrParticipantConflict) {
				return ErrAlreadyRegistered
			}
			return fmt.Errorf("failed to register participant: %w", err)
		}
		participant = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Registration committed; the XP award and confirmation are best-effort.
	if s.progression != nil {
		logSideEffectError(s.logger, "award registration xp",
			s.progression.AwardXP(ctx, input.UserID, xpRegistrationReward, reasonRegistration))
	}
	notifyUsers(ctx, s.notifier, s.logger, []int{input.UserID},
		"Registration confirmed",
		fmt.Sprintf("You are registered for %s", tournament.Name),
		map[string]interface{}{"tournament_id": tournament.ID, "participant_id": participant.ID},
	)

	return participant, nil
}

// buildParticipant validates the entrant reference against the tournament
// format and checks registry preconditions for that entrant kind.
func (s *participantService) buildParticipant(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, input RegisterInput) (*models.Participant, error) {
	switch t.Format {
	case models.FormatSolo:
		if input.TeamID != nil || input.ClanID != nil {
			return nil, ErrEntrantFormatMismatch
		}
		if err := s.checkUserNotRegistered(ctx, exec, input.UserID, t.ID); err != nil {
			return nil, err
		}
		userID := input.UserID
		return &models.Participant{
			TournamentID: t.ID,
			UserID:       &userID,
			Status:       models.ParticipantRegistered,
		}, nil

	case models.FormatTeam:
		if input.TeamID == nil || input.ClanID != nil {
			return nil, ErrEntrantFormatMismatch
		}
		team, err := s.teamRepo.GetByID(ctx, exec, *input.TeamID)
		if err != nil {
			if errors.Is(err, repositories.ErrTeamNotFound) {
				return nil, ErrTeamNotFound
			}
			return nil, err
		}
		if team.TournamentID != t.ID || !team.HasMember(input.UserID) {
			return nil, ErrTeamMismatch
		}
		if _, err := s.participantRepo.FindByTeamAndTournament(ctx, exec, team.ID, t.ID); err == nil {
			return nil, ErrAlreadyRegistered
		} else if !errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, err
		}
		teamID := team.ID
		return &models.Participant{
			TournamentID: t.ID,
			TeamID:       &teamID,
			Status:       models.ParticipantRegistered,
		}, nil

	case models.FormatClan:
		if input.ClanID == nil || input.TeamID != nil {
			return nil, ErrEntrantFormatMismatch
		}
		if err := s.checkUserNotRegistered(ctx, exec, input.UserID, t.ID); err != nil {
			return nil, err
		}
		userID := input.UserID
		clanID := *input.ClanID
		return &models.Participant{
			TournamentID: t.ID,
			UserID:       &userID,
			ClanID:       &clanID,
			Status:       models.ParticipantRegistered,
		}, nil
	}
	return nil, ErrTournamentInvalidFormat
}

func (s *participantService) checkUserNotRegistered(ctx context.Context, exec repositories.SQLExecutor, userID, tournamentID int) error {
	_, err := s.participantRepo.FindByUserAndTournament(ctx, exec, userID, tournamentID)
	if err == nil {
		return ErrAlreadyRegistered
	}
	if errors.Is(err, repositories.ErrParticipantNotFound) {
		return nil
	}
	return err
}

func (s *participantService) Withdraw(ctx context.Context, tournamentID, userID int) error {
	return s.transactor.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if t.Status != models.TournamentUpcoming {
			return ErrRegistrationClosed
		}

		participant, err := s.findEntrantParticipant(ctx, exec, t, userID)
		if err != nil {
			return err
		}
		// No seed exists before bracket generation, so removal needs no
		// renumbering.
		return s.participantRepo.Delete(ctx, exec, participant.ID)
	})
}

// findEntrantParticipant resolves the participant row a user controls:
// their own row, or for team format their team's row (captain only).
func (s *participantService) findEntrantParticipant(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, userID int) (*models.Participant, error) {
	if t.Format != models.FormatTeam {
		p, err := s.participantRepo.FindByUserAndTournament(ctx, exec, userID, t.ID)
		if err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				return nil, ErrParticipantNotFound
			}
			return nil, err
		}
		return p, nil
	}

	team, err := s.teamRepo.FindMemberTeam(ctx, exec, t.ID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	if team.CaptainID != userID {
		return nil, ErrForbiddenOperation
	}
	p, err := s.participantRepo.FindByTeamAndTournament(ctx, exec, team.ID, t.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *participantService) GetByID(ctx context.Context, id int) (*models.Participant, error) {
	p, err := s.participantRepo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *participantService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participant, error) {
	participants, err := s.participantRepo.ListByTournament(ctx, nil, tournamentID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants for tournament %d: %w", tournamentID, err)
	}
	return participants, nil
}
