package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"go.uber.org/zap"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func sign(t *testing.T, key *rsa.PrivateKey, claims domain.CustomClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func claimsFor(user string, ttl time.Duration, scopes ...string) domain.CustomClaims {
	set := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		set[s] = true
	}
	return domain.CustomClaims{
		UserID: user,
		Scopes: set,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "idp.test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
}

func TestVerifyToken(t *testing.T) {
	key := newKey(t)
	v := NewBaseValidator(&key.PublicKey, "idp.test")

	claims, err := v.VerifyToken("Bearer " + sign(t, key, claimsFor("alice", time.Hour, domain.ScopeReviewer)))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.True(t, claims.HasScope(domain.ScopeReviewer))
	assert.False(t, claims.HasScope(domain.ScopeWorker))

	_, err = v.VerifyToken(sign(t, key, claimsFor("alice", -time.Minute, domain.ScopeReviewer)))
	assert.Error(t, err, "expired")

	_, err = v.VerifyToken(sign(t, newKey(t), claimsFor("alice", time.Hour)))
	assert.Error(t, err, "foreign key")

	other := claimsFor("alice", time.Hour)
	other.Issuer = "evil"
	_, err = v.VerifyToken(sign(t, key, other))
	assert.Error(t, err, "wrong issuer")

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsFor("alice", time.Hour)).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.VerifyToken(hs)
	assert.Error(t, err, "hmac must be refused")
}

func TestParseRSAPublicKey(t *testing.T) {
	key := newKey(t)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	parsed, err := ParseRSAPublicKey(pemData)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(parsed))

	_, err = ParseRSAPublicKey(nil)
	assert.Error(t, err)
}

func TestMiddlewareAndScopes(t *testing.T) {
	key := newKey(t)
	mw := NewMiddleware(NewBaseValidator(&key.PublicKey, ""), zap.NewNop())
	h := mw(RequireScope(domain.ScopeAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "root", Subject(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"reviewer on admin route", "Bearer " + sign(t, key, claimsFor("bob", time.Hour, domain.ScopeReviewer)), http.StatusForbidden},
		{"admin", "Bearer " + sign(t, key, claimsFor("root", time.Hour, domain.ScopeAdmin)), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/admin/policy", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
