package middleware

import (
	"errors"
	"net/http"
	"os"
	"slices"
	"strings"

	"dealdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context keys set by RequireAuth
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

// Claims is the identity carried in an access token.
type Claims struct {
	UserID uuid.UUID
	Role   string
}

// ParseToken verifies an HS256 access token and extracts its subject and role.
func ParseToken(secret []byte, tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, jwt.ErrTokenInvalidClaims
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, errors.New("token subject is not a user id")
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return Claims{}, errors.New("role not found in token")
	}
	return Claims{UserID: userID, Role: role}, nil
}

func secureCookies() (http.SameSite, bool) {
	// Production (cross-origin): SameSiteNoneMode + Secure=true
	// Development (same-site):   SameSiteLaxMode  + Secure=false
	if os.Getenv("GIN_MODE") == "release" {
		return http.SameSiteNoneMode, true
	}
	return http.SameSiteLaxMode, false
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func SetTokenCookies(c *gin.Context, accessToken, refreshToken string) {
	sameSite, secure := secureCookies()
	c.SetSameSite(sameSite)
	c.SetCookie("access_token", accessToken, 3600*24, "/", "", secure, true)
	c.SetCookie("refresh_token", refreshToken, 3600*24*7, "/", "", secure, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func ClearTokenCookies(c *gin.Context) {
	sameSite, secure := secureCookies()
	c.SetSameSite(sameSite)
	c.SetCookie("access_token", "", -1, "/", "", secure, true)
	c.SetCookie("refresh_token", "", -1, "/", "", secure, true)
}

// Auth validates access tokens signed with one secret.
type Auth struct {
	secret []byte
}

func NewAuth(secret []byte) *Auth {
	return &Auth{secret: secret}
}

// Secret exposes the signing key for other token consumers such as the websocket endpoint.
func (a *Auth) Secret() []byte {
	return a.secret
}

// RequireAuth validates the JWT and, when roles are given, checks the caller holds one of them.
// With no roles any authenticated user passes.
func (a *Auth) RequireAuth(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie("access_token")
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		claims, err := ParseToken(a.secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
			return
		}

		if len(allowedRoles) > 0 && !slices.Contains(allowedRoles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}

		c.Set(ContextUserID, claims.UserID.String())
		c.Set(ContextUserRole, claims.Role)

		c.Next()
	}
}
