package services

import (
	"context"
	"fmt"
	"time"

	"palpitos-backend/internal/models"

	"github.com/google/uuid"
)

// CoupleStore is the relational surface the pairing flow needs.
type CoupleStore interface {
	Create(ctx context.Context, couple *models.Couple) error
	GetByID(ctx context.Context, id string) (*models.Couple, error)
	GetByUserID(ctx context.Context, userID string) (*models.Couple, error)
	Delete(ctx context.Context, id string) error
	UserHasCouple(ctx context.Context, userID string) (bool, error)
}

// UserLookup resolves link codes to users.
type UserLookup interface {
	GetByCode(ctx context.Context, code string) (*models.User, error)
}

// CoupleService handles pairing business logic
type CoupleService struct {
	couples CoupleStore
	users   UserLookup
}

// NewCoupleService creates a new couple service
func NewCoupleService(couples CoupleStore, users UserLookup) *CoupleService {
	return &CoupleService{
		couples: couples,
		users:   users,
	}
}

// Link pairs the caller with the owner of partnerCode
func (s *CoupleService) Link(ctx context.Context, userID, partnerCode string) (*models.Couple, error) {
	if len(partnerCode) != codeLength {
		return nil, fmt.Errorf("partner code must be %d characters", codeLength)
	}

	partner, err := s.users.GetByCode(ctx, partnerCode)
	if err != nil {
		return nil, fmt.Errorf("failed to look up partner: %w", err)
	}
	if partner == nil {
		return nil, fmt.Errorf("partner not found: %w", ErrNotFound)
	}

	partnerID := partner.ID

	if userID == partnerID {
		return nil, fmt.Errorf("cannot link with yourself")
	}

	hasCouple, err := s.couples.UserHasCouple(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check if user has couple: %w", err)
	}
	if hasCouple {
		return nil, fmt.Errorf("user is already linked")
	}

	partnerHasCouple, err := s.couples.UserHasCouple(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check if partner has couple: %w", err)
	}
	if partnerHasCouple {
		return nil, fmt.Errorf("partner is already linked")
	}

	// user1_id is the lexicographically smaller id so the pair is stored
	// the same way regardless of who initiated the link
	user1, user2 := userID, partnerID
	if user1 > user2 {
		user1, user2 = user2, user1
	}

	couple := &models.Couple{
		ID:        uuid.New().String(),
		User1ID:   user1,
		User2ID:   user2,
		CreatedAt: time.Now(),
	}

	if err := s.couples.Create(ctx, couple); err != nil {
		return nil, fmt.Errorf("failed to create couple: %w", err)
	}

	return couple, nil
}

// Unlink deletes a couple if the caller is a member
func (s *CoupleService) Unlink(ctx context.Context, coupleID, userID string) error {
	couple, err := s.couples.GetByID(ctx, coupleID)
	if err != nil {
		return fmt.Errorf("failed to get couple: %w", err)
	}
	if couple == nil {
		return fmt.Errorf("couple: %w", ErrNotFound)
	}

	if !couple.IsMember(userID) {
		return fmt.Errorf("user is not a member of this couple")
	}

	if err := s.couples.Delete(ctx, coupleID); err != nil {
		return fmt.Errorf("failed to delete couple: %w", err)
	}

	return nil
}

// GetByID retrieves a couple by id
func (s *CoupleService) GetByID(ctx context.Context, coupleID string) (*models.Couple, error) {
	couple, err := s.couples.GetByID(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	if couple == nil {
		return nil, ErrNotFound
	}
	return couple, nil
}

// GetByUserID retrieves the caller's couple, or (nil, nil) when unpaired
func (s *CoupleService) GetByUserID(ctx context.Context, userID string) (*models.Couple, error) {
	return s.couples.GetByUserID(ctx, userID)
}
