package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grievance-api/internal/middleware"
	"github.com/noah-isme/grievance-api/internal/models"
	"github.com/noah-isme/grievance-api/internal/service"
)

// Router groups everything needed to mount the API surface.
type Router struct {
	Grievances  *GrievanceHandler
	Attachments *AttachmentHandler
	Stats       *StatsHandler
	Auth        *service.AuthService
	Metrics     *service.MetricsService
	RateLimit   gin.HandlerFunc
}

// Register mounts all routes under the given prefix.
func (rt *Router) Register(r *gin.Engine, prefix string) {
	api := r.Group(prefix)

	// Signed-token downloads carry their own auth; with no claims in the
	// context the limiter keys these by client IP.
	public := api.Group("")
	if rt.RateLimit != nil {
		public.Use(rt.RateLimit)
	}
	public.GET("/attachments/download", rt.Attachments.Download)

	// The limiter runs after JWT so authenticated traffic is keyed per actor.
	authed := api.Group("")
	authed.Use(middleware.JWT(rt.Auth))
	if rt.RateLimit != nil {
		authed.Use(rt.RateLimit)
	}
	{
		authed.POST("/grievances", rt.Grievances.Create)
		authed.GET("/grievances", rt.Grievances.List)
		authed.GET("/grievances/:id", rt.Grievances.Get)
		authed.GET("/grievances/:id/history", rt.Grievances.History)
		authed.POST("/grievances/:id/attachments", rt.Grievances.ClaimAttachments)
		authed.POST("/attachments", rt.Attachments.Upload)
		authed.GET("/attachments/:id/link", rt.Attachments.Link)
	}

	admins := authed.Group("")
	admins.Use(middleware.RequireRoles(models.RoleDeptAdmin, models.RoleCampusAdmin, models.RoleSuperAdmin))
	{
		admins.POST("/grievances/:id/transition", rt.Grievances.Transition)
		admins.GET("/admin/stats", rt.Stats.Overview)
	}

	super := authed.Group("")
	super.Use(middleware.RequireRoles(models.RoleSuperAdmin))
	{
		super.POST("/admin/attachments/sweep", rt.Attachments.Sweep)
	}

	if rt.Metrics != nil {
		r.GET("/metrics", gin.WrapH(rt.Metrics.Handler()))
	}
}
