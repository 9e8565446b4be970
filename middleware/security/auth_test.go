package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "alice",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	uid, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	require.Equal(t, "alice", uid)

	_, err = ParseToken("wrong-secret", token)
	require.Error(t, err)
}

func TestParseTokenFallsBackToSubject(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "bob"})

	uid, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	require.Equal(t, "bob", uid)
}

func TestParseTokenRejectsMissingIdentity(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"role": "admin"})

	_, err := ParseToken(testSecret, token)
	require.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "alice",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	_, err := ParseToken(testSecret, token)
	require.Error(t, err)
}

func authRouter(opts *Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", Middleware(opts), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func TestMiddlewareBearerHeader(t *testing.T) {
	r := authRouter(DefaultOptions(testSecret))
	token := signToken(t, testSecret, jwt.MapClaims{"user_id": "alice"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice", w.Body.String())
}

func TestMiddlewareQueryToken(t *testing.T) {
	r := authRouter(DefaultOptions(testSecret))
	token := signToken(t, testSecret, jwt.MapClaims{"user_id": "alice"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami?token="+token, nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice", w.Body.String())
}

func TestMiddlewareQueryTokenDisabled(t *testing.T) {
	r := authRouter(&Options{Secret: testSecret})
	token := signToken(t, testSecret, jwt.MapClaims{"user_id": "alice"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami?token="+token, nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareMissingToken(t *testing.T) {
	r := authRouter(DefaultOptions(testSecret))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
