package rbac

import (
	"net/http"

	"carecall-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireFacility rejects facility-scoped callers without a facility. Super admins pass.
func RequireFacility() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := auth.Role(c.Request.Context())
		if IsSuperAdmin(role) {
			c.Next()
			return
		}
		if fid, err := auth.FacilityID(c.Request.Context()); err != nil || fid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "facility_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows callers holding one of allowed. super_admin always passes.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsSuperAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// CanAccessFacility reports whether the caller may act on facilityID.
func CanAccessFacility(c *gin.Context, facilityID string) bool {
	role, _ := auth.Role(c.Request.Context())
	if IsSuperAdmin(role) {
		return true
	}
	own, err := auth.FacilityID(c.Request.Context())
	return err == nil && own == facilityID
}
