package handlers

import "github.com/gin-gonic/gin"

// Gin context keys set by the clinic auth middleware.
const (
	ContextClinicID   = "clinicID"
	ContextClinicCode = "clinicCode"
)

func readClinicIDFromContext(c *gin.Context) (uint64, bool) {
	value, ok := c.Get(ContextClinicID)
	if !ok {
		return 0, false
	}
	id, ok := value.(uint64)
	return id, ok
}
