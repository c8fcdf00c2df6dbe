package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"carecall-platform/internal/audit"
	"carecall-platform/internal/auth"
	"carecall-platform/internal/calls"
	"carecall-platform/internal/queue"
	"carecall-platform/internal/rbac"
	"carecall-platform/internal/reporting"
	"carecall-platform/internal/residents"
	"carecall-platform/internal/scheduler"
	"carecall-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallPlacer places a call outside the scheduler tick.
type CallPlacer interface {
	CallNow(ctx context.Context, residentID string) (calls.Call, error)
}

type AdminAuditor interface {
	LogAdminAction(ctx context.Context, facilityID, actorUserID, actorRole, ip, message string, target audit.Event) error
}

// Handlers groups the admin API handlers. They parse input, call a service, and return JSON.
type Handlers struct {
	Jobs      *queue.Client
	Residents residents.Repository
	Placer    CallPlacer
	Reports   *reporting.Service
	Audit     AdminAuditor
}

const defaultHistoryLimit = 50

// --- Jobs ---

func (h Handlers) ListFailedJobs(c *gin.Context) {
	h.listJobs(c, h.Jobs.Queue().Failed)
}

func (h Handlers) ListCompletedJobs(c *gin.Context) {
	h.listJobs(c, h.Jobs.Queue().Completed)
}

func (h Handlers) listJobs(c *gin.Context, list func(context.Context, int) ([]queue.Job, error)) {
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be 1-1000"})
			return
		}
		limit = n
	}
	jobs, err := list(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("job history lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "job history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h Handlers) RequeueJob(c *gin.Context) {
	id := c.Param("job_id")
	j, err := h.Jobs.Queue().Requeue(c.Request.Context(), id, time.Now())
	switch {
	case errors.Is(err, queue.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	case errors.Is(err, queue.ErrNotFailed):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "only failed jobs can be requeued"})
		return
	case err != nil:
		logger.FromGin(c).Error("job requeue failed", "job_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "requeue failed"})
		return
	}
	h.logAdmin(c, "", "requeued job", audit.Event{JobID: j.ID})
	c.JSON(http.StatusOK, j)
}

// --- Scheduler ---

func (h Handlers) TriggerTick(c *gin.Context) {
	j, added, err := h.Jobs.Add(c.Request.Context(), queue.ScheduledTick{})
	if err != nil {
		logger.FromGin(c).Error("tick enqueue failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}
	h.logAdmin(c, "", "triggered scheduler tick", audit.Event{JobID: j.ID})
	c.JSON(http.StatusAccepted, gin.H{"job": j, "enqueued": added})
}

// PlaceCall dials a resident now, bypassing eligibility.
func (h Handlers) PlaceCall(c *gin.Context) {
	ctx := c.Request.Context()
	r, err := h.Residents.Get(ctx, c.Param("resident_id"))
	if errors.Is(err, residents.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "resident not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("resident lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "resident lookup failed"})
		return
	}
	if !rbac.CanAccessFacility(c, r.FacilityID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "resident not found"})
		return
	}

	call, err := h.Placer.CallNow(ctx, r.ID)
	switch {
	case errors.Is(err, scheduler.ErrNotCallable):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "resident is inactive, without consent, or unavailable"})
		return
	case errors.Is(err, scheduler.ErrCallActive):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "resident already has an active call"})
		return
	case err != nil:
		logger.FromGin(c).Error("manual call failed", "resident_id", r.ID, "err", err)
		body := gin.H{"error": "call placement failed"}
		if call.ID != "" {
			body["call"] = call
		}
		c.AbortWithStatusJSON(http.StatusBadGateway, body)
		return
	}
	h.logAdmin(c, r.FacilityID, "placed manual call", audit.Event{CallID: call.ID})
	c.JSON(http.StatusCreated, call)
}

// --- Reports ---

func (h Handlers) CallsReport(c *gin.Context) {
	facilityID := c.Query("facility_id")
	if facilityID == "" {
		facilityID, _ = auth.FacilityID(c.Request.Context())
	}
	if facilityID == "" || !rbac.CanAccessFacility(c, facilityID) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "facility not accessible"})
		return
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		FacilityID: facilityID,
		Range:      reporting.TimeRange{From: from, To: to},
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("calls report failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) logAdmin(c *gin.Context, facilityID, message string, target audit.Event) {
	if h.Audit == nil {
		return
	}
	ctx := c.Request.Context()
	uid, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	if facilityID == "" {
		facilityID, _ = auth.FacilityID(ctx)
	}
	if err := h.Audit.LogAdminAction(ctx, facilityID, uid, role, c.ClientIP(), message, target); err != nil {
		logger.FromGin(c).Warn("admin audit failed", "err", err)
	}
}

// Register mounts the admin routes under g, which must already carry the auth middleware.
func (h Handlers) Register(g *gin.RouterGroup) {
	admin := g.Group("/admin")
	admin.Use(rbac.RequireFacility())

	ops := admin.Group("")
	ops.Use(rbac.RequireAnyRole(rbac.RoleSuperAdmin))
	ops.GET("/jobs/failed", h.ListFailedJobs)
	ops.GET("/jobs/completed", h.ListCompletedJobs)
	ops.POST("/jobs/:job_id/requeue", h.RequeueJob)
	ops.POST("/scheduler/tick", h.TriggerTick)

	staff := admin.Group("")
	staff.Use(rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleStaff))
	staff.POST("/residents/:resident_id/calls", h.PlaceCall)
	staff.GET("/reports/calls", h.CallsReport)
}
