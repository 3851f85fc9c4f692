package adminhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// rateLimitMiddleware bounds accept rate on the admin surface, ported
// from the teacher's RateLimitConfig but applied directly with
// golang.org/x/time/rate since the teacher's own middleware package was
// dropped along with its HTTP/WS chat surface.
func rateLimitMiddleware(perSecond, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		perSecond = 100
	}
	if burst <= 0 {
		burst = 20
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
