package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paircall-backend/internal/domain"
)

// CallRepository handles durable call records
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// ErrCallNotFound is returned when a call id does not exist
var ErrCallNotFound = errors.New("call not found")

// ErrNotActive is returned when a terminal transition is attempted on a
// call that is no longer ACTIVE
var ErrNotActive = errors.New("call is not active")

// Create inserts a new call record
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (
			call_id, user1_id, user2_id, call_type, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		call.ID,
		call.User1ID,
		call.User2ID,
		call.Type,
		call.Status,
		call.StartedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `
		SELECT call_id, user1_id, user2_id, call_type, status,
		       started_at, ended_at, duration_seconds
		FROM calls
		WHERE call_id = $1
	`

	call := &domain.Call{}
	err := r.pool.QueryRow(ctx, query, callID).Scan(
		&call.ID,
		&call.User1ID,
		&call.User2ID,
		&call.Type,
		&call.Status,
		&call.StartedAt,
		&call.EndedAt,
		&call.DurationSeconds,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

// FindActiveForUser returns the ACTIVE call the user participates in,
// or ErrCallNotFound when there is none
func (r *CallRepository) FindActiveForUser(ctx context.Context, userID int64) (*domain.Call, error) {
	query := `
		SELECT call_id, user1_id, user2_id, call_type, status,
		       started_at, ended_at, duration_seconds
		FROM calls
		WHERE status = 'ACTIVE' AND (user1_id = $1 OR user2_id = $1)
		ORDER BY started_at DESC
		LIMIT 1
	`

	call := &domain.Call{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&call.ID,
		&call.User1ID,
		&call.User2ID,
		&call.Type,
		&call.Status,
		&call.StartedAt,
		&call.EndedAt,
		&call.DurationSeconds,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to find active call for user %d: %w", userID, err)
	}

	return call, nil
}

// Finalize persists a terminal transition. The status guard in the WHERE
// clause makes the transition single-writer: a second finalize of the same
// call matches zero rows and returns ErrNotActive instead of double-applying.
func (r *CallRepository) Finalize(ctx context.Context, call *domain.Call) error {
	query := `
		UPDATE calls
		SET status = $2,
		    ended_at = $3,
		    duration_seconds = $4
		WHERE call_id = $1 AND status = 'ACTIVE'
	`

	tag, err := r.pool.Exec(ctx, query,
		call.ID,
		call.Status,
		call.EndedAt,
		call.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize call %s: %w", call.ID, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotActive
	}

	return nil
}

// CountActive returns the number of currently ACTIVE calls
func (r *CallRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM calls WHERE status = 'ACTIVE'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active calls: %w", err)
	}
	return count, nil
}
