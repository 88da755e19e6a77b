package handlers

import (
	"github.com/labstack/echo/v4"

	"medkit/internal/middleware"
)

const APIVersion = "v1"

// Handlers bundles every handler group served by the API.
type Handlers struct {
	Components   *ComponentHandlers
	Kits         *KitHandlers
	Distributors *DistributorHandlers
	Analytics    *AnalyticsHandlers
	AuditLogs    *AuditLogsHandlers
	Exports      *ExportHandlers
	Health       *HealthHandlers
}

// RegisterRoutes mounts the health checks at the root and the lifecycle API
// under /v1 behind auth.
func RegisterRoutes(e *echo.Echo, h Handlers, auth echo.MiddlewareFunc) {
	e.GET("/health", h.Health.LivenessCheck)
	e.GET("/health/detailed", h.Health.DetailedHealthCheck)

	var mw []echo.MiddlewareFunc
	if auth != nil {
		mw = append(mw, auth)
	}
	v1 := middleware.VersionRoute(e, APIVersion, mw...)

	components := v1.Group("/components")
	components.POST("/:type/batch", h.Components.CreateBatch)
	components.GET("", h.Components.List)
	components.GET("/:id", h.Components.Get)
	components.PUT("/:id/status", h.Components.SetStatus)
	components.GET("/:id/usage", h.Components.UsageHistory)

	kits := v1.Group("/kits")
	kits.POST("", h.Kits.Create)
	kits.POST("/batch", h.Kits.CreateBatch)
	kits.GET("", h.Kits.List)
	kits.GET("/:id", h.Kits.Get)
	kits.POST("/distribute", h.Kits.Distribute)
	kits.POST("/collect", h.Kits.Collect)
	kits.POST("/disassemble", h.Kits.DisassembleBatch)
	kits.POST("/:id/disassemble", h.Kits.Disassemble)

	distributors := v1.Group("/distributors")
	distributors.GET("", h.Distributors.ListDistributors)
	distributors.POST("", h.Distributors.CreateDistributor)
	distributors.GET("/:id", h.Distributors.GetDistributor)
	distributors.PUT("/:id", h.Distributors.UpdateDistributor)
	distributors.PATCH("/:id/status", h.Distributors.SetDistributorStatus)

	v1.GET("/analytics/discard-rate", h.Analytics.DiscardRate)
	v1.GET("/audit-logs", h.AuditLogs.ListAuditLogs)
	v1.POST("/exports", h.Exports.CreateExport)
}
