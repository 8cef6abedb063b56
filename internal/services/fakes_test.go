package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"palpitos-backend/internal/models"
)

// In-memory stand-ins for the relational and blob collaborators. They
// mirror the repository semantics, including the conditional view
// increment and the lazy expiry flip in the pending list.

type fakeStateStore struct {
	mu   sync.Mutex
	rows []*models.EmotionalState
}

func (f *fakeStateStore) Append(_ context.Context, state *models.EmotionalState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, state)
	return nil
}

func (f *fakeStateStore) Latest(_ context.Context, userID string) (*models.EmotionalState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.EmotionalState
	for _, r := range f.rows {
		if r.UserID != userID {
			continue
		}
		if best == nil || !r.CreatedAt.Before(best.CreatedAt) {
			best = r
		}
	}
	return best, nil
}

type fakeMessageStore struct {
	mu   sync.Mutex
	rows []*models.SyncMessage
}

func (f *fakeMessageStore) Create(_ context.Context, msg *models.SyncMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, msg)
	return nil
}

func (f *fakeMessageStore) CountForEmotionSince(_ context.Context, coupleID, fromUserID string, emotion models.Emotion, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.rows {
		if m.CoupleID == coupleID && m.FromUserID == fromUserID &&
			m.SyncedEmotion == emotion && !m.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageStore) ListUnread(_ context.Context, toUserID string) ([]*models.SyncMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SyncMessage
	for _, m := range f.rows {
		if m.ToUserID == toUserID && !m.Read {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeMessageStore) CountUnread(_ context.Context, toUserID string) (int, error) {
	msgs, _ := f.ListUnread(context.Background(), toUserID)
	return len(msgs), nil
}

func (f *fakeMessageStore) MarkRead(_ context.Context, toUserID, messageID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.rows {
		if m.ID == messageID && m.ToUserID == toUserID {
			m.Read = true
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeMessageStore) MarkAllRead(_ context.Context, toUserID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var affected int64
	for _, m := range f.rows {
		if m.ToUserID == toUserID && !m.Read {
			m.Read = true
			affected++
		}
	}
	return affected, nil
}

type fakeCoupleStore struct {
	mu      sync.Mutex
	couples []*models.Couple
}

func (f *fakeCoupleStore) Create(_ context.Context, couple *models.Couple) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.couples = append(f.couples, couple)
	return nil
}

func (f *fakeCoupleStore) GetByID(_ context.Context, id string) (*models.Couple, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.couples {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeCoupleStore) GetByUserID(_ context.Context, userID string) (*models.Couple, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.couples {
		if c.IsMember(userID) {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeCoupleStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.couples {
		if c.ID == id {
			f.couples = append(f.couples[:i], f.couples[i+1:]...)
			return nil
		}
	}
	return errors.New("couple not found")
}

func (f *fakeCoupleStore) UserHasCouple(_ context.Context, userID string) (bool, error) {
	couple, _ := f.GetByUserID(context.Background(), userID)
	return couple != nil, nil
}

type fakeUserLookup struct {
	users map[string]*models.User // keyed by code
}

func (f *fakeUserLookup) GetByCode(_ context.Context, code string) (*models.User, error) {
	return f.users[code], nil
}

type fakeImageStore struct {
	mu         sync.Mutex
	imgs       map[string]*models.PrivateImage
	failCreate bool
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{imgs: make(map[string]*models.PrivateImage)}
}

func (f *fakeImageStore) Create(_ context.Context, img *models.PrivateImage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return errors.New("insert failed")
	}
	cp := *img
	f.imgs[img.ID] = &cp
	return nil
}

func (f *fakeImageStore) GetByID(_ context.Context, id string) (*models.PrivateImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.imgs[id]
	if !ok {
		return nil, nil
	}
	cp := *img
	return &cp, nil
}

func (f *fakeImageStore) ListPending(_ context.Context, toUserID string) ([]*models.PrivateImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var out []*models.PrivateImage
	for _, img := range f.imgs {
		if img.ToUserID != toUserID {
			continue
		}
		if !img.IsExpired && img.ExpiresAt != nil && !now.Before(*img.ExpiresAt) {
			img.IsExpired = true
		}
		if img.IsExpired {
			continue
		}
		cp := *img
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeImageStore) RecordView(_ context.Context, id, viewerID string) (*models.PrivateImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.imgs[id]
	if !ok || img.ToUserID != viewerID {
		return nil, nil
	}
	now := time.Now()
	if !img.IsExpired {
		img.ViewCount++
		if img.MaxViews != nil && img.ViewCount >= *img.MaxViews {
			img.IsExpired = true
		}
		if img.ExpiresAt != nil && !now.Before(*img.ExpiresAt) {
			img.IsExpired = true
		}
	}
	img.Viewed = true
	if img.ViewedAt == nil {
		img.ViewedAt = &now
	}
	cp := *img
	return &cp, nil
}

func (f *fakeImageStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.imgs[id]; !ok {
		return errors.New("private image not found")
	}
	delete(f.imgs, id)
	return nil
}

func (f *fakeImageStore) ExistsByPath(_ context.Context, storagePath string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range f.imgs {
		if img.StoragePath == storagePath {
			return true, nil
		}
	}
	return false, nil
}

type fakeBlob struct {
	data     []byte
	modified time.Time
}

type fakeBlobStore struct {
	mu         sync.Mutex
	objects    map[string]fakeBlob
	deleted    []string
	failUpload bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string]fakeBlob)}
}

func (f *fakeBlobStore) Upload(_ context.Context, key string, body io.Reader, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload {
		return errors.New("upload failed")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = fakeBlob{data: data, modified: time.Now()}
	return nil
}

func (f *fakeBlobStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return "", errors.New("no such key")
	}
	return "signed://" + key, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeBlobStore) List(_ context.Context, prefix string, fn func(key string, lastModified time.Time) error) error {
	f.mu.Lock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	f.mu.Unlock()

	for _, k := range keys {
		if prefix != "" && len(k) >= len(prefix) && k[:len(prefix)] != prefix {
			continue
		}
		f.mu.Lock()
		obj, ok := f.objects[k]
		f.mu.Unlock()
		if !ok {
			continue
		}
		if err := fn(k, obj.modified); err != nil {
			return err
		}
	}
	return nil
}

// setModified backdates a blob so sweep tests can age it past the grace period.
func (f *fakeBlobStore) setModified(key string, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj := f.objects[key]
	obj.modified = t
	f.objects[key] = obj
}
