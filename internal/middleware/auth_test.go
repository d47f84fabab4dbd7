package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return s
}

func validClaims(userID uuid.UUID, role string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
}

func TestParseToken(t *testing.T) {
	userID := uuid.New()

	t.Run("valid", func(t *testing.T) {
		claims, err := ParseToken(testSecret, signToken(t, testSecret, validClaims(userID, "staff")))
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		assert.Equal(t, "staff", claims.Role)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := ParseToken(testSecret, signToken(t, []byte("other"), validClaims(userID, "staff")))
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		c := validClaims(userID, "staff")
		c["exp"] = time.Now().Add(-time.Minute).Unix()
		_, err := ParseToken(testSecret, signToken(t, testSecret, c))
		assert.Error(t, err)
	})

	t.Run("missing role", func(t *testing.T) {
		c := validClaims(userID, "staff")
		delete(c, "role")
		_, err := ParseToken(testSecret, signToken(t, testSecret, c))
		assert.EqualError(t, err, "role not found in token")
	})

	t.Run("subject is not a uuid", func(t *testing.T) {
		c := validClaims(userID, "staff")
		c["sub"] = "42"
		_, err := ParseToken(testSecret, signToken(t, testSecret, c))
		assert.Error(t, err)
	})
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuth(testSecret)
	userID := uuid.New()

	router := gin.New()
	router.GET("/any", auth.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserID)+"|"+c.GetString(ContextUserRole))
	})
	router.GET("/admin", auth.RequireAuth("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	do := func(path string, setup func(*http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if setup != nil {
			setup(req)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}
	bearer := func(role string) func(*http.Request) {
		return func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims(userID, role)))
		}
	}

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do("/any", nil).Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		w := do("/any", func(r *http.Request) { r.Header.Set("Authorization", "Token abc") })
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bearer token sets identity", func(t *testing.T) {
		w := do("/any", bearer("staff"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, userID.String()+"|staff", w.Body.String())
	})

	t.Run("cookie token", func(t *testing.T) {
		w := do("/any", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "access_token", Value: signToken(t, testSecret, validClaims(userID, "accounting"))})
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("role not allowed", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, do("/admin", bearer("staff")).Code)
	})

	t.Run("role allowed", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, do("/admin", bearer("admin")).Code)
	})
}
