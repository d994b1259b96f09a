package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const keyIDContextKey = "keyID"

// presentedKey pulls the API key credential out of the request. The
// X-API-Key header is canonical; Authorization with an ApiKey or Bearer
// prefix is accepted for clients that cannot set custom headers.
func presentedKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "ApiKey ") {
		return strings.TrimPrefix(auth, "ApiKey ")
	}
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func (a *API) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := a.authorizer.Authorize(presentedKey(c))
		if !result.Authorized {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
				"code":  codeDenied,
			})
			c.Abort()
			return
		}
		c.Set(keyIDContextKey, result.KeyID)
		c.Next()
	}
}

// adminMiddleware gates key management behind the configured admin
// credential, which lives in config rather than the key store.
func (a *API) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := presentedKey(c)
		if len(key) != len(a.adminKey) ||
			subtle.ConstantTimeCompare([]byte(key), []byte(a.adminKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid admin key",
				"code":  codeDenied,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
