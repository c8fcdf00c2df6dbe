package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"carecall-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

func serve(t *testing.T, facilityID, role string, chain ...gin.HandlerFunc) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := []gin.HandlerFunc{func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u", facilityID, role))
		c.Next()
	}}
	handlers = append(handlers, chain...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/x", handlers...)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := serve(t, "", RoleSuperAdmin, RequireFacility(), RequireAnyRole(RoleAdmin)); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_StaffDeniedAdminRoute(t *testing.T) {
	if code := serve(t, "f1", RoleStaff, RequireFacility(), RequireAnyRole(RoleAdmin)); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireFacility_MissingFacility(t *testing.T) {
	if code := serve(t, "", RoleAdmin, RequireFacility(), RequireAnyRole(RoleAdmin)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestCanAccessFacility(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var own, other bool
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u", "f1", RoleAdmin))
		own = CanAccessFacility(c, "f1")
		other = CanAccessFacility(c, "f2")
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	if !own || other {
		t.Fatalf("expected own facility only, got own=%v other=%v", own, other)
	}
}
