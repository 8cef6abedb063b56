package services

import "errors"

// Business errors surfaced to handlers. Repositories wrap their own I/O
// failures; everything here is a terminal, user-facing condition.
var (
	// ErrNotFound covers missing rows and rows the caller may not see.
	ErrNotFound = errors.New("not found")

	// ErrExpired means the image was already viewed out or timed out.
	ErrExpired = errors.New("image expired")

	// ErrNotSynced means the partners' current states differ, so the
	// message channel is closed.
	ErrNotSynced = errors.New("partners are not synced")

	// ErrQuotaExceeded means the sender already sent 3 messages for this
	// emotion within the trailing 6-hour window.
	ErrQuotaExceeded = errors.New("emotion message quota exceeded")

	// ErrEmptyMessage means the message text was empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong means the message exceeded 50 characters. Long
	// messages are rejected, never truncated.
	ErrMessageTooLong = errors.New("message exceeds 50 characters")

	// ErrCaptionTooLong means the image caption exceeded 200 characters.
	ErrCaptionTooLong = errors.New("caption exceeds 200 characters")

	// ErrInvalidEmotion means the state is not one of the seven known values.
	ErrInvalidEmotion = errors.New("invalid emotion")

	// ErrUploadFailed means the blob write failed; no record was created.
	ErrUploadFailed = errors.New("upload failed")

	// ErrPersistFailed means the record insert failed after a successful
	// upload, leaving an orphaned blob for the sweep to reclaim.
	ErrPersistFailed = errors.New("persist failed")

	// ErrNotSender means someone other than the sender tried to remove an image.
	ErrNotSender = errors.New("only the sender can remove an image")

	// ErrNotExhausted means destruction was requested for an image that
	// still has views or time remaining.
	ErrNotExhausted = errors.New("image is not exhausted")
)
