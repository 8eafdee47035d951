package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resume-revamp/internal/shared/auth"
	"resume-revamp/internal/shared/server/respond"
)

// Identity kinds, from strongest to weakest.
const (
	IdentityUser  = "user"
	IdentityGuest = "guest"
	IdentityAnon  = "anon"
)

const (
	userIDKey       = "userId"
	userEmailKey    = "userEmail"
	identityKindKey = "identityKind"

	maxGuestIDLen = 128
)

// AuthConfig controls how callers are identified.
type AuthConfig struct {
	Signer *auth.Signer
	// Required rejects requests that carry neither a token nor X-Guest-Id.
	Required bool
}

// Auth resolves the caller identity: a Bearer JWT wins, then X-Guest-Id,
// then the client IP unless an identity is required.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		if authHeader := strings.TrimSpace(c.GetHeader("Authorization")); authHeader != "" {
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" || cfg.Signer == nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}
			claims, err := cfg.Signer.Verify(token)
			if err != nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}
			c.Set(userIDKey, claims.Sub)
			if claims.Email != "" {
				c.Set(userEmailKey, claims.Email)
			}
			c.Set(identityKindKey, IdentityUser)
			c.Next()
			return
		}

		if guestID := strings.TrimSpace(c.GetHeader("X-Guest-Id")); guestID != "" {
			if len(guestID) > maxGuestIDLen {
				respond.Error(c, http.StatusBadRequest, "validation_error", "X-Guest-Id is too long", nil)
				return
			}
			c.Set(userIDKey, "guest:"+guestID)
			c.Set(identityKindKey, IdentityGuest)
			c.Next()
			return
		}

		if cfg.Required {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
			return
		}
		c.Set(userIDKey, "anon:"+c.ClientIP())
		c.Set(identityKindKey, IdentityAnon)
		c.Next()
	}
}

// UserIDFromContext fetches the identity set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	return stringFromContext(c, userIDKey)
}

// UserEmailFromContext fetches the token email, if any.
func UserEmailFromContext(c *gin.Context) string {
	return stringFromContext(c, userEmailKey)
}

// IdentityKindFromContext returns IdentityUser, IdentityGuest or IdentityAnon.
func IdentityKindFromContext(c *gin.Context) string {
	return stringFromContext(c, identityKindKey)
}

func stringFromContext(c *gin.Context, key string) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(key)
	s, _ := val.(string)
	return s
}
