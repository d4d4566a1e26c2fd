package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smileperks/cardhub/internal/http/api/admin/permissions"
)

// PermissionHandler lists the permission keys an admin can be granted.
type PermissionHandler struct{}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler() *PermissionHandler {
	return &PermissionHandler{}
}

// List returns all permission definitions.
func (h *PermissionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"permissions": permissions.Definitions()})
}
