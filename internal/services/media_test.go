package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palpitos-backend/internal/models"
)

func newTestMediaService() (*MediaService, *fakeImageStore, *fakeBlobStore) {
	images := newFakeImageStore()
	blobs := newFakeBlobStore()
	return NewMediaService(images, blobs, time.Minute, time.Hour), images, blobs
}

func sendTestImage(t *testing.T, svc *MediaService, opts SendImageOptions) *models.PrivateImage {
	t.Helper()
	img, err := svc.Send(context.Background(), "sender", "viewer",
		strings.NewReader("jpegbytes"), "image/jpeg", opts)
	require.NoError(t, err)
	return img
}

func intPtr(n int) *int { return &n }

func TestSendAndListPending(t *testing.T) {
	svc, _, blobs := newTestMediaService()
	ctx := context.Background()

	img := sendTestImage(t, svc, SendImageOptions{Caption: "  para ti  ", MaxViews: intPtr(1)})
	assert.Equal(t, "sender", img.FromUserID)
	assert.Equal(t, models.MediaTypePhoto, img.MediaType)
	require.NotNil(t, img.Caption)
	assert.Equal(t, "para ti", *img.Caption)
	assert.True(t, strings.HasPrefix(img.StoragePath, "sender/"))

	// The blob landed under the row's storage path.
	_, err := blobs.SignedURL(ctx, img.StoragePath, time.Minute)
	require.NoError(t, err)

	pending, err := svc.ListPending(ctx, "viewer")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, img.ID, pending[0].ID)

	// The sender's pending list is empty; images only show for the recipient.
	pending, err = svc.ListPending(ctx, "sender")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSendValidation(t *testing.T) {
	svc, images, _ := newTestMediaService()
	ctx := context.Background()

	_, err := svc.Send(ctx, "sender", "viewer", strings.NewReader("x"), "image/jpeg",
		SendImageOptions{Caption: strings.Repeat("a", 201)})
	assert.ErrorIs(t, err, ErrCaptionTooLong)

	_, err = svc.Send(ctx, "sender", "viewer", strings.NewReader("x"), "image/jpeg",
		SendImageOptions{MaxViews: intPtr(0)})
	assert.Error(t, err)

	_, err = svc.Send(ctx, "sender", "viewer", strings.NewReader("x"), "image/jpeg",
		SendImageOptions{MediaType: "hologram"})
	assert.Error(t, err)

	assert.Empty(t, images.imgs)
}

func TestSendUploadFailureLeavesNothing(t *testing.T) {
	svc, images, blobs := newTestMediaService()
	blobs.failUpload = true

	_, err := svc.Send(context.Background(), "sender", "viewer",
		strings.NewReader("x"), "image/jpeg", SendImageOptions{})
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.Empty(t, images.imgs)
	assert.Empty(t, blobs.objects)
}

func TestSendInsertFailureOrphansBlob(t *testing.T) {
	svc, images, blobs := newTestMediaService()
	images.failCreate = true

	_, err := svc.Send(context.Background(), "sender", "viewer",
		strings.NewReader("x"), "image/jpeg", SendImageOptions{})
	assert.ErrorIs(t, err, ErrPersistFailed)
	assert.Empty(t, images.imgs)
	assert.Len(t, blobs.objects, 1)
}

func TestOpenDoesNotCountViews(t *testing.T) {
	svc, images, _ := newTestMediaService()
	ctx := context.Background()
	img := sendTestImage(t, svc, SendImageOptions{MaxViews: intPtr(1)})

	for i := 0; i < 5; i++ {
		url, err := svc.Open(ctx, "viewer", img.ID)
		require.NoError(t, err)
		assert.Equal(t, "signed://"+img.StoragePath, url)
	}

	stored, err := images.GetByID(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ViewCount)
	assert.False(t, stored.IsExpired)
}

func TestOpenAccessControl(t *testing.T) {
	svc, _, _ := newTestMediaService()
	ctx := context.Background()
	img := sendTestImage(t, svc, SendImageOptions{})

	// Sender may preview their own image.
	_, err := svc.Open(ctx, "sender", img.ID)
	assert.NoError(t, err)

	// A third party sees not-found, not forbidden.
	_, err = svc.Open(ctx, "stranger", img.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSingleViewLifecycle(t *testing.T) {
	svc, _, _ := newTestMediaService()
	ctx := context.Background()
	img := sendTestImage(t, svc, SendImageOptions{MaxViews: intPtr(1)})

	_, err := svc.Open(ctx, "viewer", img.ID)
	require.NoError(t, err)

	result, err := svc.Close(ctx, "viewer", img.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ViewCount)
	require.NotNil(t, result.ViewsRemaining)
	assert.Equal(t, 0, *result.ViewsRemaining)
	assert.True(t, result.Expired)

	// A retried close is idempotent: the count never reaches two.
	result, err = svc.Close(ctx, "viewer", img.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ViewCount)
	assert.True(t, result.Expired)

	// Exhausted images cannot be reopened and vanish from the pending list.
	_, err = svc.Open(ctx, "viewer", img.ID)
	assert.ErrorIs(t, err, ErrExpired)

	pending, err := svc.ListPending(ctx, "viewer")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMultiViewLifecycle(t *testing.T) {
	svc, _, _ := newTestMediaService()
	ctx := context.Background()
	img := sendTestImage(t, svc, SendImageOptions{MaxViews: intPtr(3)})

	for i := 1; i <= 2; i++ {
		_, err := svc.Open(ctx, "viewer", img.ID)
		require.NoError(t, err)
		result, err := svc.Close(ctx, "viewer", img.ID)
		require.NoError(t, err)
		assert.Equal(t, i, result.ViewCount)
		assert.False(t, result.Expired)
	}

	_, err := svc.Open(ctx, "viewer", img.ID)
	require.NoError(t, err)
	result, err := svc.Close(ctx, "viewer", img.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ViewCount)
	assert.True(t, result.Expired)

	_, err = svc.Open(ctx, "viewer", img.ID)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestUnboundedViewsNeverExpire(t *testing.T) {
	svc, _, _ := newTestMediaService()
	ctx := context.Background()
	img := sendTestImage(t, svc, SendImageOptions{})

	for i := 1; i <= 10; i++ {
		result, err := svc.Close(ctx, "viewer", img.ID)
		require.NoError(t, err)
		assert.Equal(t, i, result.ViewCount)
		assert.Nil(t, result.ViewsRemaining)
		assert.False(t, result.Expired)
	}
}

func TestCloseByNonRecipient(t *testing.T) {
	svc, _, _ := newTestMediaService()
	ctx := context.Background()
	img := sendTestImage(t, svc, SendImageOptions{})

	// Only the recipient's close counts a view, even for the sender.
	_, err := svc.Close(ctx, "sender", img.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTimeExpiry(t *testing.T) {
	svc, images, _ := newTestMediaService()
	ctx := context.Background()
	img := sendTestImage(t, svc, SendImageOptions{ExpiresInHours: 1})

	// Pull the deadline into the past.
	images.mu.Lock()
	past := time.Now().Add(-time.Minute)
	images.imgs[img.ID].ExpiresAt = &past
	images.mu.Unlock()

	pending, err := svc.ListPending(ctx, "viewer")
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = svc.Open(ctx, "viewer", img.ID)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestDestroyIfExhausted(t *testing.T) {
	svc, images, blobs := newTestMediaService()
	ctx := context.Background()
	img := sendTestImage(t, svc, SendImageOptions{MaxViews: intPtr(1)})

	// Still viewable: destruction is refused.
	assert.ErrorIs(t, svc.DestroyIfExhausted(ctx, img.ID), ErrNotExhausted)

	_, err := svc.Close(ctx, "viewer", img.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DestroyIfExhausted(ctx, img.ID))
	assert.Equal(t, []string{img.StoragePath}, blobs.deleted)
	assert.Empty(t, blobs.objects)
	assert.Empty(t, images.imgs)

	// Gone means gone.
	assert.ErrorIs(t, svc.DestroyIfExhausted(ctx, img.ID), ErrNotFound)
}

func TestRemoveBySender(t *testing.T) {
	svc, images, blobs := newTestMediaService()
	ctx := context.Background()
	img := sendTestImage(t, svc, SendImageOptions{})

	// The recipient cannot remove; only the sender can.
	assert.ErrorIs(t, svc.Remove(ctx, "viewer", img.ID), ErrNotSender)

	require.NoError(t, svc.Remove(ctx, "sender", img.ID))
	assert.Empty(t, blobs.objects)
	assert.Empty(t, images.imgs)
}

func TestSweepOrphans(t *testing.T) {
	svc, _, blobs := newTestMediaService()
	ctx := context.Background()

	// A referenced blob, an old orphan and a fresh orphan.
	img := sendTestImage(t, svc, SendImageOptions{})
	require.NoError(t, blobs.Upload(ctx, "sender/old_orphan.jpg", strings.NewReader("x"), "image/jpeg"))
	require.NoError(t, blobs.Upload(ctx, "sender/fresh_orphan.jpg", strings.NewReader("x"), "image/jpeg"))
	blobs.setModified("sender/old_orphan.jpg", time.Now().Add(-2*time.Hour))
	blobs.setModified(img.StoragePath, time.Now().Add(-2*time.Hour))

	removed, err := svc.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"sender/old_orphan.jpg"}, blobs.deleted)

	// The referenced blob and the in-grace orphan survive.
	_, ok := blobs.objects[img.StoragePath]
	assert.True(t, ok)
	_, ok = blobs.objects["sender/fresh_orphan.jpg"]
	assert.True(t, ok)
}
