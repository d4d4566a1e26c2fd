package handlers

import (
	"github.com/gin-gonic/gin"
)

// ContextAdminID is the gin context key of the authenticated admin id.
const ContextAdminID = "adminID"

func readAdminIDFromContext(c *gin.Context) (uint64, bool) {
	value, ok := c.Get(ContextAdminID)
	if !ok {
		return 0, false
	}
	id, ok := value.(uint64)
	return id, ok
}
