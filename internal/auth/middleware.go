package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ginIdentityKey = "identity"

// OptionalAuth derives the session when an Authorization header is present.
// Requests without one continue as anonymous; a malformed or invalid token is
// rejected rather than downgraded.
func OptionalAuth(validator *JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid Authorization header format (expected 'Bearer <token>')",
			})
			return
		}

		claims, err := validator.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		id := claims.Identity()
		c.Set(ginIdentityKey, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireAuth rejects anonymous requests. It must run after OptionalAuth.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Current(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "sign in required"})
			return
		}
		c.Next()
	}
}

// Current returns the session of the request being handled.
func Current(c *gin.Context) Identity {
	if v, ok := c.Get(ginIdentityKey); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return FromContext(c.Request.Context())
}
