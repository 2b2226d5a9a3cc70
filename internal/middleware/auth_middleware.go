package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nonvi/booking-core/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID uuid.UUID `json:"user_id"`
	Phone  string    `json:"phone"`
	Name   string    `json:"name,omitempty"`
	Roles  []string  `json:"roles"`
}

// HasRole reports whether the user carries any of roles
func (u UserContext) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range u.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

type authFailure struct {
	status  int
	error   string
	message string
	code    string
}

// AuthMiddleware creates a middleware that validates JWT tokens
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, failure := authenticate(c, jwtService, logger)
		if failure != nil {
			abortWith(c, failure)
			return
		}

		c.Set(UserContextKey, *userCtx)
		c.Next()
	}
}

// OptionalAuth attaches the user context when a valid bearer token is sent.
// Requests without an Authorization header continue as guests; a header that
// is present but invalid is still rejected.
func OptionalAuth(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}

		userCtx, failure := authenticate(c, jwtService, logger)
		if failure != nil {
			abortWith(c, failure)
			return
		}

		c.Set(UserContextKey, *userCtx)
		c.Next()
	}
}

func authenticate(c *gin.Context, jwtService *jwt.Service, logger *logrus.Logger) (*UserContext, *authFailure) {
	entry := logger.WithFields(logrus.Fields{
		"path": c.Request.URL.Path,
		"ip":   c.ClientIP(),
	})

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		entry.Warn("Auth failed: missing authorization header")
		return nil, &authFailure{http.StatusUnauthorized, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER"}
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		entry.Warn("Auth failed: invalid authorization format")
		return nil, &authFailure{http.StatusUnauthorized, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT"}
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		entry.Warn("Auth failed: empty token")
		return nil, &authFailure{http.StatusUnauthorized, "unauthorized", "Token cannot be empty", "INVALID_AUTH_FORMAT"}
	}

	claims, err := jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			entry.WithError(err).Info("Auth failed: token expired")
			return nil, &authFailure{http.StatusUnauthorized, "token_expired", "Access token has expired. Please refresh your token.", "TOKEN_EXPIRED"}
		}
		entry.WithError(err).Warn("Auth failed: invalid token")
		return nil, &authFailure{http.StatusUnauthorized, "invalid_token", "Invalid access token", "INVALID_TOKEN"}
	}

	return &UserContext{
		UserID: claims.UserID,
		Phone:  claims.Phone,
		Name:   claims.Name,
		Roles:  claims.Roles,
	}, nil
}

func abortWith(c *gin.Context, f *authFailure) {
	c.AbortWithStatusJSON(f.status, gin.H{
		"error":   f.error,
		"message": f.message,
		"code":    f.code,
	})
}

// RequireRole creates a middleware that checks if user has required role
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			abortWith(c, &authFailure{http.StatusUnauthorized, "unauthorized", "User context not found. Auth middleware may not be applied.", "MISSING_USER_CONTEXT"})
			return
		}

		if !userCtx.HasRole(roles...) {
			abortWith(c, &authFailure{http.StatusForbidden, "forbidden", "You don't have permission to access this resource", "INSUFFICIENT_PERMISSIONS"})
			return
		}

		c.Next()
	}
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}

	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}

	return userCtx, true
}

// MustGetUserContext retrieves the user context or panics (use only after AuthMiddleware)
func MustGetUserContext(c *gin.Context) UserContext {
	userCtx, exists := GetUserContext(c)
	if !exists {
		panic("user context not found - ensure AuthMiddleware is applied")
	}
	return userCtx
}
