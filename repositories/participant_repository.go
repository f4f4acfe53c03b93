package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/playverse/tournament-engine/models"
)

var (
	ErrParticipantNotFound          = errors.New("participant not found")
	ErrParticipantConflict          = errors.New("participant conflict: entrant already registered for this tournament")
	ErrParticipantTournamentInvalid = errors.New("participant tournament conflict or invalid")
	ErrParticipantTypeViolation     = errors.New("participant type violation: entrant columns do not match a single entrant")
)

type ParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error
	FindByID(ctx context.Context, exec SQLExecutor, id int) (*models.Participant, error)
	FindByUserAndTournament(ctx context.Context, exec SQLExecutor, userID, tournamentID int) (*models.Participant, error)
	FindByTeamAndTournament(ctx context.Context, exec SQLExecutor, teamID, tournamentID int) (*models.Participant, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, statusFilter *models.ParticipantStatus) ([]*models.Participant, error)
	CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.ParticipantStatus) error
	UpdateSeed(ctx context.Context, exec SQLExecutor, id int, seed int) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

const participantColumns = `id, tournament_id, user_id, team_id, clan_id, seed, status, created_at`

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO participants (tournament_id, user_id, team_id, clan_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		p.TournamentID, p.UserID, p.TeamID, p.ClanID, p.Status,
	).Scan(&p.ID, &p.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				if pqErr.Constraint == "participants_tournament_id_user_id_key" ||
					pqErr.Constraint == "participants_tournament_id_team_id_key" ||
					pqErr.Constraint == "participants_tournament_id_clan_id_key" {
					return ErrParticipantConflict
				}
			case "23503": // foreign_key_violation
				if pqErr.Constraint == "participants_tournament_id_fkey" {
					return ErrParticipantTournamentInvalid
				}
			case "23514": // check_violation
				if pqErr.Constraint == "chk_participant_entrant" {
					return ErrParticipantTypeViolation
				}
			}
		}
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func (r *postgresParticipantRepository) scanParticipant(rowScanner interface {
	Scan(dest ...interface{}) error
}, p *models.Participant) error {
	return rowScanner.Scan(
		&p.ID, &p.TournamentID, &p.UserID, &p.TeamID, &p.ClanID,
		&p.Seed, &p.Status, &p.CreatedAt,
	)
}

func (r *postgresParticipantRepository) findOne(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) (*models.Participant, error) {
	p := &models.Participant{}
	row := r.getExecutor(exec).QueryRowContext(ctx, query, args...)
	if err := r.scanParticipant(row, p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}
	return p, nil
}

func (r *postgresParticipantRepository) FindByID(ctx context.Context, exec SQLExecutor, id int) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`
	return r.findOne(ctx, exec, query, id)
}

func (r *postgresParticipantRepository) FindByUserAndTournament(ctx context.Context, exec SQLExecutor, userID, tournamentID int) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE user_id = $1 AND tournament_id = $2`
	return r.findOne(ctx, exec, query, userID, tournamentID)
}

func (r *postgresParticipantRepository) FindByTeamAndTournament(ctx context.Context, exec SQLExecutor, teamID, tournamentID int) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE team_id = $1 AND tournament_id = $2`
	return r.findOne(ctx, exec, query, teamID, tournamentID)
}

func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, statusFilter *models.ParticipantStatus) ([]*models.Participant, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + participantColumns + ` FROM participants WHERE tournament_id = $1`)

	args := []interface{}{tournamentID}
	if statusFilter != nil {
		queryBuilder.WriteString(" AND status = $2")
		args = append(args, *statusFilter)
	}
	// Registration order; stable input for seeding and bracket views.
	queryBuilder.WriteString(" ORDER BY created_at ASC, id ASC")

	rows, err := r.getExecutor(exec).QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		if scanErr := r.scanParticipant(rows, &p); scanErr != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", scanErr)
		}
		participants = append(participants, &p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}
	return participants, nil
}

func (r *postgresParticipantRepository) CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	query := `SELECT COUNT(*) FROM participants WHERE tournament_id = $1`
	var count int
	err := r.getExecutor(exec).QueryRowContext(ctx, query, tournamentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count participants for tournament %d: %w", tournamentID, err)
	}
	return count, nil
}

func (r *postgresParticipantRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.ParticipantStatus) error {
	query := `UPDATE participants SET status = $1 WHERE id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update participant status: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) UpdateSeed(ctx context.Context, exec SQLExecutor, id int, seed int) error {
	query := `UPDATE participants SET seed = $1 WHERE id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, seed, id)
	if err != nil {
		return fmt.Errorf("failed to update participant seed: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	query := `DELETE FROM participants WHERE id = $1`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}
