package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"palpitos-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	maxMessageLen = 50
	quotaWindow   = 6 * time.Hour
	quotaLimit    = 3
)

// StateStore is the append-only emotional state log.
type StateStore interface {
	Append(ctx context.Context, state *models.EmotionalState) error
	Latest(ctx context.Context, userID string) (*models.EmotionalState, error)
}

// MessageStore is the relational surface for sync messages.
type MessageStore interface {
	Create(ctx context.Context, msg *models.SyncMessage) error
	CountForEmotionSince(ctx context.Context, coupleID, fromUserID string, emotion models.Emotion, since time.Time) (int, error)
	ListUnread(ctx context.Context, toUserID string) ([]*models.SyncMessage, error)
	CountUnread(ctx context.Context, toUserID string) (int, error)
	MarkRead(ctx context.Context, toUserID, messageID string) (int64, error)
	MarkAllRead(ctx context.Context, toUserID string) (int64, error)
}

// CoupleGetter resolves couple ids; satisfied by the couple repository.
type CoupleGetter interface {
	GetByID(ctx context.Context, id string) (*models.Couple, error)
}

// QuotaStatus reports how much of the per-emotion send budget is used.
// Count comes from the store on every call; it is never cached.
type QuotaStatus struct {
	Count     int  `json:"count"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	Blocked   bool `json:"blocked"`
}

// SyncStatus describes whether a couple is synced and on which emotion.
type SyncStatus struct {
	Synced  bool           `json:"synced"`
	Emotion models.Emotion `json:"emotion,omitempty"`
}

// EmotionService tracks both partners' latest emotional state, detects
// synchronization and gates the message channel by the sliding-window quota.
type EmotionService struct {
	states   StateStore
	messages MessageStore
	couples  CoupleGetter
}

// NewEmotionService creates a new emotion sync service
func NewEmotionService(states StateStore, messages MessageStore, couples CoupleGetter) *EmotionService {
	return &EmotionService{
		states:   states,
		messages: messages,
		couples:  couples,
	}
}

// SetMyState appends a new state record for the caller. The record becomes
// the caller's current state immediately, last-write-wins by created_at.
func (s *EmotionService) SetMyState(ctx context.Context, userID string, state models.Emotion, intensity int) (*models.EmotionalState, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmotion, state)
	}
	if intensity < 1 {
		return nil, fmt.Errorf("intensity must be at least 1")
	}

	record := &models.EmotionalState{
		ID:        uuid.New().String(),
		UserID:    userID,
		State:     state,
		Intensity: intensity,
		CreatedAt: time.Now(),
	}

	if err := s.states.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to set state: %w", err)
	}

	return record, nil
}

// CurrentState returns the most recent state for a user, or nil when the
// user has never set one.
func (s *EmotionService) CurrentState(ctx context.Context, userID string) (*models.EmotionalState, error) {
	return s.states.Latest(ctx, userID)
}

// SyncStatus re-derives the couple's sync state from the state log: synced
// iff both members have a current state and the two states are equal.
func (s *EmotionService) SyncStatus(ctx context.Context, coupleID string) (SyncStatus, error) {
	couple, err := s.couples.GetByID(ctx, coupleID)
	if err != nil {
		return SyncStatus{}, err
	}
	if couple == nil {
		return SyncStatus{}, fmt.Errorf("couple: %w", ErrNotFound)
	}

	state1, err := s.states.Latest(ctx, couple.User1ID)
	if err != nil {
		return SyncStatus{}, err
	}
	state2, err := s.states.Latest(ctx, couple.User2ID)
	if err != nil {
		return SyncStatus{}, err
	}

	if state1 == nil || state2 == nil || state1.State != state2.State {
		return SyncStatus{}, nil
	}

	return SyncStatus{Synced: true, Emotion: state1.State}, nil
}

// CheckEmotionQuota counts the sender's messages for one emotion in the
// trailing window. The window slides: the quota frees up exactly when the
// oldest of the counted messages ages past six hours, regardless of any
// state changes in between.
func (s *EmotionService) CheckEmotionQuota(ctx context.Context, coupleID, userID string, emotion models.Emotion) (QuotaStatus, error) {
	if !emotion.Valid() {
		return QuotaStatus{}, fmt.Errorf("%w: %q", ErrInvalidEmotion, emotion)
	}

	since := time.Now().Add(-quotaWindow)
	count, err := s.messages.CountForEmotionSince(ctx, coupleID, userID, emotion, since)
	if err != nil {
		return QuotaStatus{}, err
	}

	remaining := quotaLimit - count
	if remaining < 0 {
		remaining = 0
	}

	return QuotaStatus{
		Count:     count,
		Limit:     quotaLimit,
		Remaining: remaining,
		Blocked:   count >= quotaLimit,
	}, nil
}

// SendSyncMessage inserts a message after re-checking, server-side, that
// the couple is synced and the quota is not spent. Client-side counters are
// display-only; this check is the authoritative one.
func (s *EmotionService) SendSyncMessage(ctx context.Context, coupleID, fromUserID, toUserID, text string, emotion models.Emotion) (*models.SyncMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageLen {
		return nil, ErrMessageTooLong
	}
	if !emotion.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmotion, emotion)
	}

	couple, err := s.couples.GetByID(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	if couple == nil {
		return nil, fmt.Errorf("couple: %w", ErrNotFound)
	}
	if !couple.IsMember(fromUserID) || couple.PartnerOf(fromUserID) != toUserID {
		return nil, fmt.Errorf("sender and recipient are not members of this couple")
	}

	status, err := s.SyncStatus(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	if !status.Synced || status.Emotion != emotion {
		return nil, ErrNotSynced
	}

	quota, err := s.CheckEmotionQuota(ctx, coupleID, fromUserID, emotion)
	if err != nil {
		return nil, err
	}
	if quota.Blocked {
		return nil, ErrQuotaExceeded
	}

	msg := &models.SyncMessage{
		ID:            uuid.New().String(),
		CoupleID:      coupleID,
		FromUserID:    fromUserID,
		ToUserID:      toUserID,
		Message:       text,
		SyncedEmotion: emotion,
		Read:          false,
		CreatedAt:     time.Now(),
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to send sync message: %w", err)
	}

	log.Info().
		Str("couple_id", coupleID).
		Str("from_user_id", fromUserID).
		Str("emotion", string(emotion)).
		Int("sent_in_window", quota.Count+1).
		Msg("Sync message sent")

	return msg, nil
}

// UnreadMessages lists unread messages addressed to a user, newest first
func (s *EmotionService) UnreadMessages(ctx context.Context, userID string) ([]*models.SyncMessage, error) {
	return s.messages.ListUnread(ctx, userID)
}

// CountUnread counts unread messages addressed to a user
func (s *EmotionService) CountUnread(ctx context.Context, userID string) (int, error) {
	return s.messages.CountUnread(ctx, userID)
}

// MarkRead flags one message as read. Returns ErrNotFound only when the
// message never belonged to the user; re-marking a read message succeeds.
func (s *EmotionService) MarkRead(ctx context.Context, userID, messageID string) error {
	affected, err := s.messages.MarkRead(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("message: %w", ErrNotFound)
	}
	return nil
}

// MarkAllRead flags every unread message as read. Touching fewer rows than
// the client expected is still success; the client re-fetches to reconcile.
func (s *EmotionService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.messages.MarkAllRead(ctx, userID)
}
