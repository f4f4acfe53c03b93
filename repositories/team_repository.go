package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/playverse/tournament-engine/models"
)

var (
	ErrTeamNotFound           = errors.New("team not found")
	ErrTeamNameConflict       = errors.New("team name is already taken in this tournament")
	ErrTeamMembershipConflict = errors.New("user already belongs to a team in this tournament")
)

type TeamRepository interface {
	Create(ctx context.Context, exec SQLExecutor, team *models.Team) error
	AddMember(ctx context.Context, exec SQLExecutor, member *models.TeamMember) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Team, error)
	// FindMemberTeam returns the team a user belongs to within a tournament,
	// or ErrTeamNotFound.
	FindMemberTeam(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (*models.Team, error)
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTeamRepository) Create(ctx context.Context, exec SQLExecutor, team *models.Team) error {
	query := `
		INSERT INTO teams (name, tag, tournament_id, captain_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		team.Name, team.Tag, team.TournamentID, team.CaptainID,
	).Scan(&team.ID, &team.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "teams_tournament_id_name_key" {
				return ErrTeamNameConflict
			}
		}
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (r *postgresTeamRepository) AddMember(ctx context.Context, exec SQLExecutor, member *models.TeamMember) error {
	query := `
		INSERT INTO team_members (team_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING joined_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		member.TeamID, member.UserID, member.Role,
	).Scan(&member.JoinedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			// One membership per user per tournament, enforced by a unique
			// index over (tournament-scoped) team membership.
			return ErrTeamMembershipConflict
		}
		return fmt.Errorf("failed to add team member: %w", err)
	}
	return nil
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error) {
	query := `SELECT id, name, tag, tournament_id, captain_id, created_at FROM teams WHERE id = $1`

	team := &models.Team{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, id).Scan(
		&team.ID, &team.Name, &team.Tag, &team.TournamentID, &team.CaptainID, &team.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to scan team by id %d: %w", id, err)
	}

	members, err := r.listMembers(ctx, exec, team.ID)
	if err != nil {
		return nil, err
	}
	team.Members = members
	return team, nil
}

func (r *postgresTeamRepository) listMembers(ctx context.Context, exec SQLExecutor, teamID int) ([]models.TeamMember, error) {
	query := `SELECT team_id, user_id, role, joined_at FROM team_members WHERE team_id = $1 ORDER BY joined_at ASC`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members for team %d: %w", teamID, err)
	}
	defer rows.Close()

	members := make([]models.TeamMember, 0)
	for rows.Next() {
		var m models.TeamMember
		if scanErr := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan team member row: %w", scanErr)
		}
		members = append(members, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team member rows: %w", err)
	}
	return members, nil
}

func (r *postgresTeamRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Team, error) {
	query := `SELECT id, name, tag, tournament_id, captain_id, created_at FROM teams WHERE tournament_id = $1 ORDER BY created_at ASC`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	teams := make([]*models.Team, 0)
	for rows.Next() {
		var t models.Team
		if scanErr := rows.Scan(&t.ID, &t.Name, &t.Tag, &t.TournamentID, &t.CaptainID, &t.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan team row: %w", scanErr)
		}
		teams = append(teams, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team rows: %w", err)
	}

	for _, t := range teams {
		members, mErr := r.listMembers(ctx, exec, t.ID)
		if mErr != nil {
			return nil, mErr
		}
		t.Members = members
	}
	return teams, nil
}

func (r *postgresTeamRepository) FindMemberTeam(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (*models.Team, error) {
	query := `
		SELECT t.id, t.name, t.tag, t.tournament_id, t.captain_id, t.created_at
		FROM teams t
		JOIN team_members tm ON tm.team_id = t.id
		WHERE t.tournament_id = $1 AND tm.user_id = $2`

	team := &models.Team{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, tournamentID, userID).Scan(
		&team.ID, &team.Name, &team.Tag, &team.TournamentID, &team.CaptainID, &team.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to find team for user %d in tournament %d: %w", userID, tournamentID, err)
	}

	members, err := r.listMembers(ctx, exec, team.ID)
	if err != nil {
		return nil, err
	}
	team.Members = members
	return team, nil
}
