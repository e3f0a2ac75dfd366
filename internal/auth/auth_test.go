package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, h.Verify(hash, "correct horse"))
	assert.ErrorIs(t, h.Verify(hash, "wrong horse"), ErrInvalidCredentials)
	assert.ErrorIs(t, h.Verify("", "anything"), ErrInvalidCredentials)
}

func TestTokenRoundTrip(t *testing.T) {
	ti := NewTokenIssuer([]byte("test-secret"), time.Hour)

	token, err := ti.Issue(appointment.DoctorActor("doc-1"))
	require.NoError(t, err)

	actor, err := ti.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, appointment.DoctorActor("doc-1"), actor)
}

func TestTokenRejections(t *testing.T) {
	ti := NewTokenIssuer([]byte("test-secret"), time.Hour)
	other := NewTokenIssuer([]byte("other-secret"), time.Hour)

	foreign, err := other.Issue(appointment.AdminActor())
	require.NoError(t, err)
	_, err = ti.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokenIssuer([]byte("test-secret"), time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Issue(appointment.UserActor("u1"))
	require.NoError(t, err)
	_, err = ti.Verify(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	bogusRole := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := bogusRole.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ti.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ti.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireMiddleware(t *testing.T) {
	ti := NewTokenIssuer([]byte("test-secret"), time.Hour)
	userToken, err := ti.Issue(appointment.UserActor("u1"))
	require.NoError(t, err)
	adminToken, err := ti.Issue(appointment.AdminActor())
	require.NoError(t, err)

	var seen appointment.Actor
	handler := Require(ti, appointment.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"wrong role", "Bearer " + userToken, http.StatusForbidden},
		{"admin", "Bearer " + adminToken, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	assert.Equal(t, appointment.RoleAdmin, seen.Role)
}
