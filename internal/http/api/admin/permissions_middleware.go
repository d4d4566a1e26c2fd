package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smileperks/cardhub/internal/http/api/admin/permissions"
)

const (
	contextAdminPermissions  = "adminPermissions"
	contextAdminIsSuperAdmin = "adminIsSuperAdmin"
)

// adminPermissionMiddleware enforces permission checks for admin routes.
// It expects adminAuthMiddleware to have run.
func adminPermissionMiddleware() gin.HandlerFunc {
	permissionMap := permissions.DefinitionMap()

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		key := permissions.Key(c.Request.Method, c.FullPath())
		if _, ok := permissionMap[key]; !ok || c.FullPath() == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}

		if c.GetBool(contextAdminIsSuperAdmin) {
			c.Next()
			return
		}

		granted, _ := c.Get(contextAdminPermissions)
		list, _ := granted.([]string)
		if !permissions.HasPermission(list, key) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}

		c.Next()
	}
}
