package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	userID   int64
	username string
	err      error
}

func (f *fakeValidator) ValidateToken(string) (int64, string, error) {
	return f.userID, f.username, f.err
}

func protected(t *testing.T) (http.Handler, *bool) {
	t.Helper()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		id, ok := UserID(r.Context())
		require.True(t, ok)
		require.Equal(t, int64(42), id)
		name, ok := Username(r.Context())
		require.True(t, ok)
		require.Equal(t, "alice", name)
	})
	return next, &called
}

func TestAuthRejectsMissingToken(t *testing.T) {
	next, called := protected(t)
	h := NewAuth(&fakeValidator{userID: 42, username: "alice"}).Handle(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/messages", nil))

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.False(t, *called)
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	next, called := protected(t)
	h := NewAuth(&fakeValidator{err: errors.New("expired")}).Handle(next)

	r := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	r.Header.Set("Authorization", "Bearer bad")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.False(t, *called)
}

func TestAuthAcceptsHeaderToken(t *testing.T) {
	next, called := protected(t)
	h := NewAuth(&fakeValidator{userID: 42, username: "alice"}).Handle(next)

	r := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	r.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, *called)
}

func TestAuthFallsBackToQueryToken(t *testing.T) {
	next, called := protected(t)
	h := NewAuth(&fakeValidator{userID: 42, username: "alice"}).Handle(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?chat_id=7&token=good", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, *called)
}
