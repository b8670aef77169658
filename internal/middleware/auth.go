package middleware

import (
	"tiergate/internal/repository"

	"github.com/gin-gonic/gin"
)

// SDKAuthMiddleware resolves the API key to its owning company and pins that
// identity on the request, so eval/stream handlers cannot be pointed at
// another tenant.
func SDKAuthMiddleware(repo repository.SDKRepository, bypassAuth bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bypassAuth {
			// Load-test mode trusts the query parameter.
			c.Set("company_id", c.Query("company_id"))
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-TierGate-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing API key"})
			return
		}

		companyID, err := repo.ResolveAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			c.AbortWithStatusJSON(403, gin.H{"error": "forbidden"})
			return
		}

		c.Set("company_id", companyID)
		c.Next()
	}
}
