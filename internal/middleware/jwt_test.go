package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, sub, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func runProtected(t *testing.T, authHeader string, mw ...echo.MiddlewareFunc) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	require.NoError(t, h(c))
	return rec, c
}

func TestJWTAuth(t *testing.T) {
	token := signToken(t, testSecret, "user-42", "CUSTOMER")

	rec, c := runProtected(t, "Bearer "+token, JWTAuth(testSecret))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", c.Get("user_id"))
	assert.Equal(t, "CUSTOMER", c.Get("role"))
}

func TestJWTAuthRejections(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		rec, _ := runProtected(t, "", JWTAuth(testSecret))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "other-secret", "user-42", "CUSTOMER")
		rec, _ := runProtected(t, "Bearer "+token, JWTAuth(testSecret))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("garbage token", func(t *testing.T) {
		rec, _ := runProtected(t, "Bearer not.a.token", JWTAuth(testSecret))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	admin := signToken(t, testSecret, "admin-1", "ADMIN")
	customer := signToken(t, testSecret, "user-1", "CUSTOMER")

	rec, _ := runProtected(t, "Bearer "+admin, JWTAuth(testSecret), RequireRole("ADMIN"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = runProtected(t, "Bearer "+customer, JWTAuth(testSecret), RequireRole("ADMIN"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
