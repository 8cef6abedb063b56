package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palpitos-backend/internal/services"
)

func authedRequest(t *testing.T, mw func(http.Handler) http.Handler, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()

	var seenUserID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seenUserID
}

func TestRequireAuth(t *testing.T) {
	userService := services.NewUserService(nil, "test-secret")
	mw := RequireAuth(userService)

	token, err := userService.GenerateJWT("user-42")
	require.NoError(t, err)

	rec, userID := authedRequest(t, mw, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", userID)
}

func TestRequireAuthRejections(t *testing.T) {
	userService := services.NewUserService(nil, "test-secret")
	mw := RequireAuth(userService)

	for _, header := range []string{
		"",
		"Bearer",
		"Bearer ",
		"Basic dXNlcjpwYXNz",
		"Bearer not-a-token",
	} {
		rec, _ := authedRequest(t, mw, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	}
}

func TestValidateWebSocketToken(t *testing.T) {
	userService := services.NewUserService(nil, "test-secret")

	_, err := ValidateWebSocketToken("", userService)
	assert.Error(t, err)

	token, err := userService.GenerateJWT("user-42")
	require.NoError(t, err)

	userID, err := ValidateWebSocketToken(token, userService)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestGetUserIDMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", GetUserID(req.Context()))
}
