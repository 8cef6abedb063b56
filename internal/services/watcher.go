package services

import (
	"context"
	"sync"
	"time"

	"palpitos-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// WatchSource is the read surface the pollers need; *EmotionService
// satisfies it.
type WatchSource interface {
	CurrentState(ctx context.Context, userID string) (*models.EmotionalState, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// WatchSink receives the watcher's observations, typically a websocket
// connection.
type WatchSink interface {
	PartnerState(state *models.EmotionalState)
	UnreadCount(count int, alert bool)
}

// Watcher runs the two fixed-delay pollers for one connected user: the
// partner's current state and the user's unread message count. Each loop
// waits for its fetch to finish before arming the next delay, so a slow
// backend never stacks concurrent fetches. The first pass of each loop is
// silent; only a strictly increasing unread count on a later pass is
// alert-worthy, which separates catching up on history from a new arrival.
type Watcher struct {
	userID    string
	partnerID string
	source    WatchSource
	sink      WatchSink
	interval  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for one user/partner pair
func NewWatcher(userID, partnerID string, source WatchSource, sink WatchSink, interval time.Duration) *Watcher {
	return &Watcher{
		userID:    userID,
		partnerID: partnerID,
		source:    source,
		sink:      sink,
		interval:  interval,
	}
}

// Start launches both pollers. Stop cancels the pending delays; fetches
// already in flight complete and their results are discarded by the sink's
// owner going away.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.pollPartnerState(ctx)
	go w.pollUnread(ctx)
}

// Stop cancels the watcher and waits for both loops to exit
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) pollPartnerState(ctx context.Context) {
	defer w.wg.Done()

	var lastSeen string
	first := true

	for {
		state, err := w.source.CurrentState(ctx, w.partnerID)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("partner_id", w.partnerID).Msg("Partner state poll failed")
			}
		} else if state != nil && (first || state.ID != lastSeen) {
			lastSeen = state.ID
			first = false
			w.sink.PartnerState(state)
		} else if first {
			first = false
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

func (w *Watcher) pollUnread(ctx context.Context) {
	defer w.wg.Done()

	lastCount := 0
	first := true

	for {
		count, err := w.source.CountUnread(ctx, w.userID)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("user_id", w.userID).Msg("Unread poll failed")
			}
		} else {
			alert := !first && count > lastCount
			w.sink.UnreadCount(count, alert)
			lastCount = count
			first = false
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}
