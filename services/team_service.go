package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/playverse/tournament-engine/models"
	"github.com/playverse/tournament-engine/repositories"
)

type CreateTeamInput struct {
	TournamentID int
	CaptainID    int
	Name         string
	Tag          string
	MemberIDs    []int
}

type TeamService interface {
	CreateTeam(ctx context.Context, input CreateTeamInput) (*models.Team, error)
	GetTeam(ctx context.Context, id int) (*models.Team, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error)
}

type teamService struct {
	transactor     repositories.Transactor
	tournamentRepo repositories.TournamentRepository
	teamRepo       repositories.TeamRepository
	logger         *slog.Logger
}

func NewTeamService(
	transactor repositories.Transactor,
	tournamentRepo repositories.TournamentRepository,
	teamRepo repositories.TeamRepository,
	logger *slog.Logger,
) TeamService {
	return &teamService{
		transactor:     transactor,
		tournamentRepo: tournamentRepo,
		teamRepo:       teamRepo,
		logger:         logger,
	}
}

func (s *teamService) CreateTeam(ctx context.Context, input CreateTeamInput) (*models.Team, error) {
	if input.Name == "" {
		return nil, ErrTeamNameRequired
	}

	var team *models.Team
	err := s.transactor.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, input.TournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if t.Format != models.FormatTeam {
			return ErrNotTeamFormat
		}
		if t.Status != models.TournamentUpcoming {
			return ErrTournamentStarted
		}

		memberIDs := dedupeMembers(input.CaptainID, input.MemberIDs)
		for _, userID := range memberIDs {
			if _, err := s.teamRepo.FindMemberTeam(ctx, exec, t.ID, userID); err == nil {
				return ErrDuplicateMembership
			} else if !errors.Is(err, repositories.ErrTeamNotFound) {
				return err
			}
		}

		team = &models.Team{
			Name:         input.Name,
			Tag:          input.Tag,
			TournamentID: t.ID,
			CaptainID:    input.CaptainID,
		}
		if err := s.teamRepo.Create(ctx, exec, team); err != nil {
			if errors.Is(err, repositories.ErrTeamNameConflict) {
				return ErrTeamNameConflict
			}
			return fmt.Errorf("failed to create team: %w", err)
		}

		for _, userID := range memberIDs {
			role := models.RoleMember
			if userID == input.CaptainID {
				role = models.RoleCaptain
			}
			member := &models.TeamMember{TeamID: team.ID, UserID: userID, Role: role}
			if err := s.teamRepo.AddMember(ctx, exec, member); err != nil {
				if errors.Is(err, repositories.ErrTeamMembershipConflict) {
					return ErrDuplicateMembership
				}
				return fmt.Errorf("failed to add member %d to team %d: %w", userID, team.ID, err)
			}
			team.Members = append(team.Members, *member)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

// dedupeMembers builds the final roster: the captain first, then members in
// the given order, duplicates removed.
func dedupeMembers(captainID int, memberIDs []int) []int {
	seen := map[int]bool{captainID: true}
	roster := []int{captainID}
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			roster = append(roster, id)
		}
	}
	return roster
}

func (s *teamService) GetTeam(ctx context.Context, id int) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return team, nil
}

func (s *teamService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error) {
	teams, err := s.teamRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for tournament %d: %w", tournamentID, err)
	}
	return teams, nil
}
