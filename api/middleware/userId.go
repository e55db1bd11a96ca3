package middleware

import (
	"github.com/gin-gonic/gin"
)

func UserIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetHeader("X-USER-ID")
		userEmail := c.GetHeader("X-USER-EMAIL")

		// Store in gin context for later use
		c.Set("UserId", userId)
		c.Set("UserEmail", userEmail)
		c.Next()
	}
}
