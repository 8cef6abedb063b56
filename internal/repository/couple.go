package repository

import (
	"context"
	"fmt"

	"palpitos-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CoupleRepository handles database operations for couples
type CoupleRepository struct {
	db *pgxpool.Pool
}

// NewCoupleRepository creates a new couple repository
func NewCoupleRepository(db *pgxpool.Pool) *CoupleRepository {
	return &CoupleRepository{db: db}
}

// Create creates a new couple
func (r *CoupleRepository) Create(ctx context.Context, couple *models.Couple) error {
	query := `
		INSERT INTO couples (id, user1_id, user2_id, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, couple.ID, couple.User1ID, couple.User2ID, couple.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create couple: %w", err)
	}
	return nil
}

// GetByID retrieves a couple by ID. Returns (nil, nil) when no couple exists.
func (r *CoupleRepository) GetByID(ctx context.Context, id string) (*models.Couple, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM couples
		WHERE id = $1
	`
	var couple models.Couple
	err := r.db.QueryRow(ctx, query, id).Scan(
		&couple.ID, &couple.User1ID, &couple.User2ID, &couple.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get couple: %w", err)
	}
	return &couple, nil
}

// GetByUserID retrieves the couple a user belongs to. Returns (nil, nil)
// when the user is not paired.
func (r *CoupleRepository) GetByUserID(ctx context.Context, userID string) (*models.Couple, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM couples
		WHERE user1_id = $1 OR user2_id = $1
		LIMIT 1
	`
	var couple models.Couple
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&couple.ID, &couple.User1ID, &couple.User2ID, &couple.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get couple by user id: %w", err)
	}
	return &couple, nil
}

// Delete deletes a couple by ID
func (r *CoupleRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM couples WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete couple: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("couple not found")
	}
	return nil
}

// UserHasCouple checks if a user is already paired
func (r *CoupleRepository) UserHasCouple(ctx context.Context, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM couples WHERE user1_id = $1 OR user2_id = $1)`
	var exists bool
	err := r.db.QueryRow(ctx, query, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check if user has couple: %w", err)
	}
	return exists, nil
}
