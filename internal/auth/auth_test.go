package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("secret", "identity")
	token, err := v.Issue(Actor{UserID: "u-1", Role: RoleApprover}, time.Hour)
	require.NoError(t, err)

	actor, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Actor{UserID: "u-1", Role: RoleApprover}, actor)
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("secret", "identity")

	expired, err := v.Issue(Actor{UserID: "u-1", Role: RoleAdmin}, -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewVerifier("other", "identity").Issue(Actor{UserID: "u-1", Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewVerifier("secret", "elsewhere").Issue(Actor{UserID: "u-1", Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	noRole, err := v.Issue(Actor{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "identity"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"no role":      noRole,
		"no expiry":    noExp,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.Error(t, err)
		})
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	v := NewVerifier("secret", "")
	token, err := v.Issue(Actor{UserID: "u-9", Role: RoleReceptionist}, time.Hour)
	require.NoError(t, err)

	var seen Actor
	h := Authenticate(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u-9", seen.UserID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithActor(req.Context(), Actor{UserID: "u", Role: RoleApprover})))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithActor(req.Context(), Actor{UserID: "u", Role: RoleAdmin})))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
