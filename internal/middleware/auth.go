package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	HeaderAdminToken = "X-Admin-Token"
	HeaderUserID     = "X-User-ID"

	ctxUserID  = "user_id"
	ctxIsAdmin = "is_admin"
)

// Identify records the caller. Session issuance lives in front of this
// service, which forwards the authenticated user id in X-User-ID.
func Identify(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxUserID, c.GetHeader(HeaderUserID))
		c.Set(ctxIsAdmin, tokenMatches(c.GetHeader(HeaderAdminToken), adminToken))
		c.Next()
	}
}

// RequireAdmin rejects callers without a valid admin token. An empty
// configured token disables admin routes entirely.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "invalid admin token"})
			return
		}
		c.Next()
	}
}

func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "missing " + HeaderUserID})
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ctxIsAdmin)
}

func tokenMatches(got, want string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
