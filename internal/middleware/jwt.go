package middleware

import (
	"net/http" // HTTP status codes
	"strings"  // Header parsing

	"vps_billing/internal/utils" // Token verification

	"github.com/gin-gonic/gin" // Gin web framework
)

// Context keys set for authenticated requests
const (
	UserIDKey = "userID"
	RoleKey   = "role"
)

// JWTAuthMiddleware rejects requests without a valid bearer token and stores
// the token's user id and role in the gin context
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "Missing or invalid Authorization header")
			return
		}
		claims, err := utils.ParseJWT(token, secret)
		if err != nil {
			unauthorized(c, "Invalid or expired token")
			return
		}
		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// bearerToken extracts the credentials of a "Bearer <token>" header
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="vps-billing"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}
