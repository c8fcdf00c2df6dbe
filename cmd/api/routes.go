package main

import (
	"database/sql"
	"net/http"
	"time"

	"carecall-platform/internal/httpapi"
	"carecall-platform/internal/telephony"
	"carecall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type routeDeps struct {
	DB      *sql.DB
	Redis   *redis.Client
	Voice   telephony.Provider
	Webhook telephony.WebhookHandler
	AuthMW  gin.HandlerFunc
	Admin   httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := utils.HealthCheck(ctx, d.DB, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "postgres unavailable"})
			return
		}
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		if err := d.Voice.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": d.Voice.Name() + " unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks are public; the handler checks the HMAC signature.
	r.POST("/webhooks/voice", d.Webhook.Handle)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(d.AuthMW)
	d.Admin.Register(v1)
}
