// Package middleware provides identity, rate limiting, logging and recovery middleware for the Gin web framework.
package middleware

import (
	"net/http"
	"strings"

	"github.com/EliSopMes/immersive-server/internal/models"
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// IdentityKey is the gin context key holding the resolved *models.Identity
const IdentityKey = "identity"

// anonymousPrefix marks identities derived from the client address
const anonymousPrefix = "ip:"

// BearerToken returns the token from an "Authorization: Bearer <token>" header, or ""
func BearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

// RequireIdentity resolves the bearer token and rejects the request with 401 when it is missing or invalid
func RequireIdentity(resolver serviceinterfaces.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			HandleAppError(c, contextutils.WrapError(contextutils.ErrUnauthorized, "missing or invalid token"))
			c.Abort()
			return
		}

		identity, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			HandleAppError(c, err)
			c.Abort()
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// OptionalIdentity resolves a bearer token when one is sent, otherwise identifies the caller
// as ip:<client ip>. A token that is present but rejected is still a 401.
func OptionalIdentity(resolver serviceinterfaces.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			setIdentity(c, &models.Identity{ID: anonymousPrefix + c.ClientIP(), Anonymous: true})
			c.Next()
			return
		}

		token := BearerToken(c)
		if token == "" {
			HandleAppError(c, contextutils.WrapError(contextutils.ErrUnauthorized, "missing or invalid token"))
			c.Abort()
			return
		}

		identity, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			HandleAppError(c, err)
			c.Abort()
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

func setIdentity(c *gin.Context, identity *models.Identity) {
	c.Set(IdentityKey, identity)
	c.Request = c.Request.WithContext(contextutils.WithIdentity(c.Request.Context(), identity.ID))
}

// GetIdentity returns the identity set by RequireIdentity or OptionalIdentity
func GetIdentity(c *gin.Context) (*models.Identity, bool) {
	value, exists := c.Get(IdentityKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*models.Identity)
	return identity, ok && identity != nil
}

// MustIdentity returns the caller identity or writes a 401 and returns false
func MustIdentity(c *gin.Context) (*models.Identity, bool) {
	identity, ok := GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, contextutils.ErrUnauthorized.ToJSON())
		c.Abort()
	}
	return identity, ok
}
