package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/playverse/tournament-engine/models"
)

var (
	ErrMatchNotFound           = errors.New("match not found")
	ErrMatchParticipantInvalid = errors.New("match participant conflict or invalid")
	ErrMatchTournamentInvalid  = errors.New("match tournament conflict or invalid")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, m *models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	// GetByIDForUpdate locks the match row inside the caller's transaction.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	// ListByTournament returns matches ordered by round then creation order,
	// which is the pairing order used when advancing rounds.
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error)
	CountRemaining(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	Complete(ctx context.Context, exec SQLExecutor, id int, winnerParticipantID int, score *string, completedAt time.Time) error
}

const matchColumns = `id, tournament_id, round, p1_participant_id, p2_participant_id,
	winner_participant_id, score, status, completed_at, created_at`

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	query := `
		INSERT INTO matches
			(tournament_id, round, p1_participant_id, p2_participant_id,
			 winner_participant_id, score, status, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		m.TournamentID, m.Round, m.P1ParticipantID, m.P2ParticipantID,
		m.WinnerParticipantID, m.Score, m.Status, m.CompletedAt,
	).Scan(&m.ID, &m.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) scanMatch(rowScanner interface {
	Scan(dest ...interface{}) error
}, m *models.Match) error {
	return rowScanner.Scan(
		&m.ID, &m.TournamentID, &m.Round, &m.P1ParticipantID, &m.P2ParticipantID,
		&m.WinnerParticipantID, &m.Score, &m.Status, &m.CompletedAt, &m.CreatedAt,
	)
}

func (r *postgresMatchRepository) getByID(ctx context.Context, exec SQLExecutor, id int, forUpdate bool) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	m := &models.Match{}
	err := r.scanMatch(r.getExecutor(exec).QueryRowContext(ctx, query, id), m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	return r.getByID(ctx, exec, id, false)
}

func (r *postgresMatchRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	return r.getByID(ctx, exec, id, true)
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, roundFilter *int, statusFilter *models.MatchStatus) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + matchColumns + ` FROM matches WHERE tournament_id = $1`)

	args := []interface{}{tournamentID}
	placeholderIndex := 2

	if roundFilter != nil {
		queryBuilder.WriteString(" AND round = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *roundFilter)
		placeholderIndex++
	}
	if statusFilter != nil {
		queryBuilder.WriteString(" AND status = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *statusFilter)
	}

	queryBuilder.WriteString(" ORDER BY round ASC, id ASC")

	rows, err := r.getExecutor(exec).QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		var m models.Match
		if scanErr := r.scanMatch(rows, &m); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, &m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) CountRemaining(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	query := `SELECT COUNT(*) FROM matches WHERE tournament_id = $1 AND status IN ($2, $3)`
	var count int
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		tournamentID, models.MatchScheduled, models.MatchActive,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count remaining matches for tournament %d: %w", tournamentID, err)
	}
	return count, nil
}

func (r *postgresMatchRepository) Complete(ctx context.Context, exec SQLExecutor, id int, winnerParticipantID int, score *string, completedAt time.Time) error {
	query := `
		UPDATE matches
		SET winner_participant_id = $1, score = $2, status = $3, completed_at = $4
		WHERE id = $5`

	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		winnerParticipantID, score, models.MatchCompleted, completedAt, id,
	)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
		switch pqErr.Constraint {
		case "matches_tournament_id_fkey":
			return ErrMatchTournamentInvalid
		case "matches_p1_participant_id_fkey", "matches_p2_participant_id_fkey",
			"matches_winner_participant_id_fkey":
			return ErrMatchParticipantInvalid
		}
	}
	return err
}
