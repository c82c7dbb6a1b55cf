package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/model"
)

type fakeAuth map[string]*model.User

func (f fakeAuth) Authenticate(_ context.Context, raw string) (*model.User, error) {
	if u, ok := f[raw]; ok {
		return u, nil
	}
	return nil, apperr.New(apperr.Unauthorized, "invalid token")
}

func TestBearerAuth(t *testing.T) {
	u := &model.User{ID: "u1", Username: "ulric"}
	var seen *model.User
	h := BearerAuth(fakeAuth{"good": u})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUser(r.Context())
		assert.Equal(t, "u1", GetUserID(r.Context()))
	}))

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"header", "Bearer good", "", http.StatusOK},
		{"lowercase scheme", "bearer good", "", http.StatusOK},
		{"query for websocket", "", "good", http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"bad token", "Bearer nope", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", "good", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/init?token="+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, "ulric", seen.Username)
			} else {
				assert.Nil(t, seen)
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestRateLimiterPerIPAndUser(t *testing.T) {
	l := NewRateLimiter(3, 2)
	h := l.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	do := func(ip string, u *model.User) int {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.RemoteAddr = ip + ":5555"
		if u != nil {
			req = req.WithContext(WithUser(req.Context(), u))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do("10.0.0.1", nil))
	}
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1", nil))
	assert.Equal(t, http.StatusOK, do("10.0.0.2", nil))

	u := &model.User{ID: "u1"}
	assert.Equal(t, http.StatusOK, do("10.0.1.1", u))
	assert.Equal(t, http.StatusOK, do("10.0.1.2", u))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.1.3", u))
}

func TestRecoverJSON(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil)) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestRecoverJSONAfterWrite(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestSecureHeadersAndMask(t *testing.T) {
	rec := httptest.NewRecorder()
	SecureHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	assert.Equal(t, "****", MaskToken("short"))
	assert.Equal(t, "eyJhbGci***", MaskToken("eyJhbGciOiJIUzI1NiJ9.payload.sig"))
}
