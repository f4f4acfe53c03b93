package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/playverse/tournament-engine/models"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name conflict for this creator")
	ErrTournamentInUse        = errors.New("tournament is in use (participants/matches exist)")
)

type ListTournamentsFilter struct {
	Status    *models.TournamentStatus
	Game      *string
	CreatorID *int
	// Search matches name or game, case-insensitive substring.
	Search *string
	Limit  int
	Offset int
}

type TournamentRepository interface {
	Create(ctx context.Context, t *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	// GetByIDForUpdate locks the tournament row for the duration of the
	// caller's transaction, serializing all mutating operations on it.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, exec SQLExecutor, t *models.Tournament) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error
	// UpdateStatusIf performs a compare-and-set transition. It returns
	// false (without error) when the row was not in the expected status.
	UpdateStatusIf(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) (bool, error)
	SetWinner(ctx context.Context, exec SQLExecutor, id int, winnerParticipantID int, endDate time.Time) error
	UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error
}

const tournamentColumns = `
	id, name, game, format, bracket_type, max_participants, entry_fee,
	prize_pool, status, start_date, end_date, creator_id,
	winner_participant_id, created_at, banner_key`

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (
			name, game, format, bracket_type, max_participants, entry_fee,
			prize_pool, status, start_date, creator_id, banner_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.Name, t.Game, t.Format, t.BracketType, t.MaxParticipants, t.EntryFee,
		t.PrizePool, t.Status, t.StartDate, t.CreatorID, t.BannerKey,
	).Scan(&t.ID, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) scanTournament(row *sql.Row) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := row.Scan(
		&t.ID, &t.Name, &t.Game, &t.Format, &t.BracketType, &t.MaxParticipants,
		&t.EntryFee, &t.PrizePool, &t.Status, &t.StartDate, &t.EndDate,
		&t.CreatorID, &t.WinnerParticipantID, &t.CreatedAt, &t.BannerKey,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament: %w", err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	return r.scanTournament(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`
	return r.scanTournament(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	if filter.Game != nil {
		query += fmt.Sprintf(" AND game = $%d", argID)
		args = append(args, *filter.Game)
		argID++
	}
	if filter.CreatorID != nil {
		query += fmt.Sprintf(" AND creator_id = $%d", argID)
		args = append(args, *filter.CreatorID)
		argID++
	}
	if filter.Search != nil {
		query += fmt.Sprintf(" AND (name ILIKE $%d OR game ILIKE $%d)", argID, argID)
		args = append(args, "%"+*filter.Search+"%")
		argID++
	}

	query += " ORDER BY start_date DESC, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if scanErr := rows.Scan(
			&t.ID, &t.Name, &t.Game, &t.Format, &t.BracketType, &t.MaxParticipants,
			&t.EntryFee, &t.PrizePool, &t.Status, &t.StartDate, &t.EndDate,
			&t.CreatorID, &t.WinnerParticipantID, &t.CreatedAt, &t.BannerKey,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", scanErr)
		}
		tournaments = append(tournaments, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tournament rows iteration: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) Update(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments SET
			name = $1, game = $2, max_participants = $3, entry_fee = $4,
			prize_pool = $5, start_date = $6
		WHERE id = $7`

	result, err := executor.ExecContext(ctx, query,
		t.Name, t.Game, t.MaxParticipants, t.EntryFee, t.PrizePool, t.StartDate, t.ID,
	)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateStatusIf(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) (bool, error) {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, r.handleTournamentError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return rowsAffected == 1, nil
}

func (r *postgresTournamentRepository) SetWinner(ctx context.Context, exec SQLExecutor, id int, winnerParticipantID int, endDate time.Time) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET winner_participant_id = $1, end_date = $2 WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, winnerParticipantID, endDate, id)
	if err != nil {
		return fmt.Errorf("failed to set tournament winner for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error {
	query := `UPDATE tournaments SET banner_key = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, bannerKey, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament banner key: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "tournaments_creator_id_name_key" {
				return ErrTournamentNameConflict
			}
		case "23503":
			return ErrTournamentInUse
		}
	}
	return err
}
