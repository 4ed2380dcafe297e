package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vexa-ai/vexa/pkg/models"
)

const ownerContextKey = "vexa.owner"

// UserResolver is the subset of *registry.Registry the control-plane auth
// middleware needs to turn an API key into its owning User.
type UserResolver interface {
	GetUserByAPIKey(ctx context.Context, apiKey string) (*models.User, error)
}

// apiKeyAuth authenticates every control-plane request by its `X-API-Key`
// header, per base spec §6 ("authenticated by per-user API key header").
func apiKeyAuth(users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-API-Key header"})
			return
		}
		user, err := users.GetUserByAPIKey(c.Request.Context(), key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Set(ownerContextKey, user)
		c.Next()
	}
}

// ownerFromContext retrieves the authenticated User a middleware-wrapped
// handler is acting on behalf of.
func ownerFromContext(c *gin.Context) *models.User {
	v, ok := c.Get(ownerContextKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

// adminAuth authenticates admin-plane requests against a single static
// bearer token, per base spec §6 ("separate admin token").
func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			return
		}
		c.Next()
	}
}

// workerAuth authenticates a worker's recording upload request by the
// meeting's own opaque session token, carried as `MeetingToken` in the
// worker's StartParams (its SessionUID) — the worker never sees the owning
// user's API key, per SPEC_FULL.md §8. The status callback handler does not
// call it.
func workerAuth(c *gin.Context, meetingToken string) bool {
	got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if got == "" || got != meetingToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid worker token"})
		return false
	}
	return true
}
