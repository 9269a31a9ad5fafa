package middleware

import (
	"context"  // Request context
	"errors"   // Error matching
	"net/http" // HTTP status codes

	"vps_billing/internal/domain" // Importing domain models

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Structured logging
)

// UserLookup resolves the authenticated user
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*domain.User, error)
}

// AdminOnlyMiddleware lets a request through only when the stored role of the
// token's user is admin. The role claim is ignored so demotions apply at once.
func AdminOnlyMiddleware(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint(UserIDKey) // Set by JWTAuthMiddleware
		if userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		user, err := users.GetByID(c.Request.Context(), userID)
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			forbidden(c) // Token outlived its user
		case err != nil:
			logrus.WithError(err).WithField("user_id", userID).Error("Failed to load user for admin check")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		case !user.IsAdmin():
			forbidden(c)
		default:
			c.Next()
		}
	}
}

func forbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
}
