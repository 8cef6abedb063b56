package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"palpitos-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	maxCaptionLen       = 200
	defaultSignedURLTTL = 60 * time.Second
)

// ImageStore is the relational surface for private images.
type ImageStore interface {
	Create(ctx context.Context, img *models.PrivateImage) error
	GetByID(ctx context.Context, id string) (*models.PrivateImage, error)
	ListPending(ctx context.Context, toUserID string) ([]*models.PrivateImage, error)
	RecordView(ctx context.Context, id, viewerID string) (*models.PrivateImage, error)
	Delete(ctx context.Context, id string) error
	ExistsByPath(ctx context.Context, storagePath string) (bool, error)
}

// BlobStore holds the image bytes.
type BlobStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string, fn func(key string, lastModified time.Time) error) error
}

// SendImageOptions carries the optional knobs of a private image send.
// MaxViews nil means unbounded viewing; handlers default it to one view.
type SendImageOptions struct {
	Caption        string
	MaxViews       *int
	ExpiresInHours int
	MediaType      string
}

// ViewResult is what a completed view reports back to the viewer.
type ViewResult struct {
	ViewCount      int  `json:"view_count"`
	ViewsRemaining *int `json:"views_remaining,omitempty"`
	Expired        bool `json:"expired"`
}

// MediaService governs upload, delivery, bounded viewing and destruction
// of ephemeral private images.
type MediaService struct {
	images      ImageStore
	blobs       BlobStore
	urlTTL      time.Duration
	orphanGrace time.Duration
}

// NewMediaService creates a new private media service
func NewMediaService(images ImageStore, blobs BlobStore, urlTTL, orphanGrace time.Duration) *MediaService {
	if urlTTL <= 0 {
		urlTTL = defaultSignedURLTTL
	}
	return &MediaService{
		images:      images,
		blobs:       blobs,
		urlTTL:      urlTTL,
		orphanGrace: orphanGrace,
	}
}

// Send uploads the blob first and inserts the record second, so every row
// always has a retrievable blob. A failed upload leaves nothing behind; a
// failed insert leaves an orphaned blob for SweepOrphans to reclaim.
func (s *MediaService) Send(ctx context.Context, fromUserID, toUserID string, body io.Reader, contentType string, opts SendImageOptions) (*models.PrivateImage, error) {
	caption := strings.TrimSpace(opts.Caption)
	if utf8.RuneCountInString(caption) > maxCaptionLen {
		return nil, ErrCaptionTooLong
	}
	if opts.MaxViews != nil && *opts.MaxViews < 1 {
		return nil, fmt.Errorf("max_views must be positive")
	}
	if opts.ExpiresInHours < 0 {
		return nil, fmt.Errorf("expires_in_hours must not be negative")
	}
	mediaType := opts.MediaType
	if mediaType == "" {
		mediaType = models.MediaTypePhoto
	}
	if mediaType != models.MediaTypePhoto && mediaType != models.MediaTypeVideo {
		return nil, fmt.Errorf("unknown media type %q", mediaType)
	}

	now := time.Now()
	storagePath := fmt.Sprintf("%s/%d_%s.jpg", fromUserID, now.UnixMilli(), uuid.New().String()[:8])

	if err := s.blobs.Upload(ctx, storagePath, body, contentType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	var expiresAt *time.Time
	if opts.ExpiresInHours > 0 {
		t := now.Add(time.Duration(opts.ExpiresInHours) * time.Hour)
		expiresAt = &t
	}

	var captionPtr *string
	if caption != "" {
		captionPtr = &caption
	}

	img := &models.PrivateImage{
		ID:          uuid.New().String(),
		FromUserID:  fromUserID,
		ToUserID:    toUserID,
		StoragePath: storagePath,
		MediaType:   mediaType,
		Caption:     captionPtr,
		MaxViews:    opts.MaxViews,
		ViewCount:   0,
		Viewed:      false,
		IsExpired:   false,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}

	if err := s.images.Create(ctx, img); err != nil {
		log.Error().
			Err(err).
			Str("storage_path", storagePath).
			Msg("Image record insert failed after upload, blob orphaned")
		return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	return img, nil
}

// ListPending returns all unexpired images addressed to the user, newest first
func (s *MediaService) ListPending(ctx context.Context, userID string) ([]*models.PrivateImage, error) {
	return s.images.ListPending(ctx, userID)
}

// Open mints a short-lived signed URL for the blob. Opening mutates
// nothing; a view is only counted when the viewer closes the image.
func (s *MediaService) Open(ctx context.Context, userID, imageID string) (string, error) {
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return "", err
	}
	if img == nil || (img.ToUserID != userID && img.FromUserID != userID) {
		return "", fmt.Errorf("image: %w", ErrNotFound)
	}
	if img.ExpiredAt(time.Now()) {
		return "", ErrExpired
	}

	url, err := s.blobs.SignedURL(ctx, img.StoragePath, s.urlTTL)
	if err != nil {
		return "", fmt.Errorf("failed to mint signed URL: %w", err)
	}
	return url, nil
}

// Close counts exactly one completed view. The increment happens as one
// atomic statement in the store, so concurrent closes from two devices of
// the same account cannot push view_count past max_views, and retrying a
// close on an already-expired image returns the expired result unchanged.
func (s *MediaService) Close(ctx context.Context, userID, imageID string) (ViewResult, error) {
	img, err := s.images.RecordView(ctx, imageID, userID)
	if err != nil {
		return ViewResult{}, err
	}
	if img == nil {
		return ViewResult{}, fmt.Errorf("image: %w", ErrNotFound)
	}

	result := ViewResult{
		ViewCount: img.ViewCount,
		Expired:   img.IsExpired,
	}
	if img.MaxViews != nil {
		remaining := *img.MaxViews - img.ViewCount
		if remaining < 0 {
			remaining = 0
		}
		result.ViewsRemaining = &remaining
	}

	if img.IsExpired {
		log.Debug().
			Str("image_id", img.ID).
			Int("view_count", img.ViewCount).
			Msg("Private image expired on close")
	}

	return result, nil
}

// DestroyIfExhausted physically deletes an expired image, blob first. A
// crash between the two deletes leaves an orphaned row pointing at a
// missing blob, which is detectable and ignorable; the reverse order would
// leave a live row with dangling signed-URL promises.
func (s *MediaService) DestroyIfExhausted(ctx context.Context, imageID string) error {
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return err
	}
	if img == nil {
		return fmt.Errorf("image: %w", ErrNotFound)
	}
	if !img.ExpiredAt(time.Now()) {
		return ErrNotExhausted
	}

	if err := s.blobs.Delete(ctx, img.StoragePath); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	if err := s.images.Delete(ctx, imageID); err != nil {
		return fmt.Errorf("failed to delete image record: %w", err)
	}

	log.Info().Str("image_id", imageID).Msg("Private image destroyed")
	return nil
}

// Remove is the sender-initiated deletion, independent of view exhaustion.
// Same blob-before-record ordering as DestroyIfExhausted.
func (s *MediaService) Remove(ctx context.Context, senderID, imageID string) error {
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return err
	}
	if img == nil {
		return fmt.Errorf("image: %w", ErrNotFound)
	}
	if img.FromUserID != senderID {
		return ErrNotSender
	}

	if err := s.blobs.Delete(ctx, img.StoragePath); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	if err := s.images.Delete(ctx, imageID); err != nil {
		return fmt.Errorf("failed to delete image record: %w", err)
	}

	return nil
}

// SweepOrphans reclaims blobs that have no matching record, the
// degraded-mode leftovers of a failed insert after a successful upload.
// Blobs younger than the grace period are skipped so an in-flight send is
// never raced.
func (s *MediaService) SweepOrphans(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.orphanGrace)
	removed := 0

	err := s.blobs.List(ctx, "", func(key string, lastModified time.Time) error {
		if lastModified.After(cutoff) {
			return nil
		}
		exists, err := s.images.ExistsByPath(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			log.Error().Err(err).Str("storage_path", key).Msg("Failed to reclaim orphaned blob")
			return nil
		}
		removed++
		log.Info().Str("storage_path", key).Msg("Orphaned blob reclaimed")
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("orphan sweep failed: %w", err)
	}

	return removed, nil
}

// RunOrphanSweeper runs SweepOrphans on a fixed-delay loop until the
// context is canceled.
func (s *MediaService) RunOrphanSweeper(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		if _, err := s.SweepOrphans(ctx); err != nil {
			log.Error().Err(err).Msg("Orphan sweep pass failed")
		}
	}
}
