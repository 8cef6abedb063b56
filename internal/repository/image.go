package repository

import (
	"context"
	"fmt"

	"palpitos-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ImageRepository handles database operations for private images
type ImageRepository struct {
	db *pgxpool.Pool
}

// NewImageRepository creates a new private image repository
func NewImageRepository(db *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{db: db}
}

const imageColumns = `id, from_user_id, to_user_id, storage_path, media_type, caption,
		max_views, view_count, viewed, viewed_at, is_expired, expires_at, created_at`

func scanImage(row pgx.Row) (*models.PrivateImage, error) {
	var img models.PrivateImage
	err := row.Scan(
		&img.ID, &img.FromUserID, &img.ToUserID, &img.StoragePath, &img.MediaType,
		&img.Caption, &img.MaxViews, &img.ViewCount, &img.Viewed, &img.ViewedAt,
		&img.IsExpired, &img.ExpiresAt, &img.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// Create inserts a new private image record
func (r *ImageRepository) Create(ctx context.Context, img *models.PrivateImage) error {
	query := `
		INSERT INTO images_private (id, from_user_id, to_user_id, storage_path, media_type, caption,
			max_views, view_count, viewed, viewed_at, is_expired, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		img.ID, img.FromUserID, img.ToUserID, img.StoragePath, img.MediaType, img.Caption,
		img.MaxViews, img.ViewCount, img.Viewed, img.ViewedAt, img.IsExpired, img.ExpiresAt, img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create private image: %w", err)
	}
	return nil
}

// GetByID retrieves a private image by ID. Returns (nil, nil) when no row exists.
func (r *ImageRepository) GetByID(ctx context.Context, id string) (*models.PrivateImage, error) {
	query := `SELECT ` + imageColumns + ` FROM images_private WHERE id = $1`
	img, err := scanImage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get private image: %w", err)
	}
	return img, nil
}

// ListPending retrieves unexpired images addressed to a user, newest first.
// Rows whose wall-clock expiry has passed are flipped to expired first, so
// the stored flag never disagrees with the expiry predicate in a response.
func (r *ImageRepository) ListPending(ctx context.Context, toUserID string) ([]*models.PrivateImage, error) {
	flip := `
		UPDATE images_private
		SET is_expired = TRUE
		WHERE to_user_id = $1 AND is_expired = FALSE
			AND expires_at IS NOT NULL AND expires_at <= NOW()
	`
	if _, err := r.db.Exec(ctx, flip, toUserID); err != nil {
		return nil, fmt.Errorf("failed to expire stale images: %w", err)
	}

	query := `
		SELECT ` + imageColumns + `
		FROM images_private
		WHERE to_user_id = $1 AND is_expired = FALSE
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, toUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending images: %w", err)
	}
	defer rows.Close()

	var images []*models.PrivateImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan private image: %w", err)
		}
		images = append(images, img)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating private images: %w", err)
	}

	return images, nil
}

// RecordView counts one completed view as a single atomic statement. An
// already-expired row is returned unchanged, so a retried close can never
// push view_count past max_views. Returns (nil, nil) when the image does
// not exist or is not addressed to the viewer.
func (r *ImageRepository) RecordView(ctx context.Context, id, viewerID string) (*models.PrivateImage, error) {
	query := `
		UPDATE images_private
		SET view_count = CASE WHEN is_expired THEN view_count ELSE view_count + 1 END,
			viewed = TRUE,
			viewed_at = COALESCE(viewed_at, NOW()),
			is_expired = is_expired
				OR (max_views IS NOT NULL AND view_count + 1 >= max_views)
				OR (expires_at IS NOT NULL AND NOW() >= expires_at)
		WHERE id = $1 AND to_user_id = $2
		RETURNING ` + imageColumns
	img, err := scanImage(r.db.QueryRow(ctx, query, id, viewerID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to record image view: %w", err)
	}
	return img, nil
}

// Delete removes a private image record
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM images_private WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete private image: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("private image not found")
	}
	return nil
}

// ExistsByPath checks whether any record references a storage path
func (r *ImageRepository) ExistsByPath(ctx context.Context, storagePath string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM images_private WHERE storage_path = $1)`
	var exists bool
	err := r.db.QueryRow(ctx, query, storagePath).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check storage path existence: %w", err)
	}
	return exists, nil
}
