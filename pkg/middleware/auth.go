package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/response"
)

const (
	// ContextKeyUserID is the gin context key handlers read the diner id from
	ContextKeyUserID = "user_id"
	// ContextKeyRole is the gin context key for the caller's role
	ContextKeyRole = "role"

	RoleDiner    = "diner"
	RoleOperator = "operator"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AuthConfig holds configuration for the JWT middleware
type AuthConfig struct {
	// Secret is the HS256 signing key
	Secret string
	// SkipPaths bypass authentication; a trailing * matches a prefix
	SkipPaths []string
}

// Claims are the identity fields the reservation API needs from a token
type Claims struct {
	UserID string
	Role   string
}

// JWTAuth validates the bearer token and stores the caller in the gin context
func JWTAuth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, path := range cfg.SkipPaths {
			if matchPath(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			response.Unauthorized(c, "Authorization header with a bearer token is required")
			return
		}

		claims, err := ParseToken(cfg.Secret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				response.Abort(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired")
				return
			}
			response.Unauthorized(c, "Invalid token")
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated caller has role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextKeyRole) != role {
			response.Abort(c, http.StatusForbidden, "FORBIDDEN", fmt.Sprintf("%s role required", role))
			return
		}
		c.Next()
	}
}

// GetUserID extracts the authenticated user id from gin context
func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextKeyUserID)
	return id, id != ""
}

// ParseToken validates an HS256 token. The subject is taken from "sub",
// falling back to "user_id".
func ParseToken(secret, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		userID, _ = claims["user_id"].(string)
	}
	if userID == "" {
		return nil, ErrInvalidToken
	}

	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleDiner
	}

	return &Claims{UserID: userID, Role: role}, nil
}

// GenerateToken signs an HS256 access token for userID
func GenerateToken(secret, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
