package repository

import (
	"context"
	"fmt"

	"palpitos-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StateRepository handles database operations for emotional states.
// The table is append-only; rows are never updated or deleted.
type StateRepository struct {
	db *pgxpool.Pool
}

// NewStateRepository creates a new emotional state repository
func NewStateRepository(db *pgxpool.Pool) *StateRepository {
	return &StateRepository{db: db}
}

// Append inserts a new emotional state record
func (r *StateRepository) Append(ctx context.Context, state *models.EmotionalState) error {
	query := `
		INSERT INTO emotional_states (id, user_id, state, intensity, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query,
		state.ID, state.UserID, state.State, state.Intensity, state.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append emotional state: %w", err)
	}
	return nil
}

// Latest retrieves the most recent emotional state for a user.
// Returns (nil, nil) when the user has never set a state.
func (r *StateRepository) Latest(ctx context.Context, userID string) (*models.EmotionalState, error) {
	query := `
		SELECT id, user_id, state, intensity, created_at
		FROM emotional_states
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var state models.EmotionalState
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&state.ID, &state.UserID, &state.State, &state.Intensity, &state.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest emotional state: %w", err)
	}
	return &state, nil
}
