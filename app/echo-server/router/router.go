package router

import (
	"adDecisioning/internal/middleware"
	"adDecisioning/internal/rest"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

func SetAuctionRoutes(api *echo.Group, handler *rest.AuctionHandler, limiter *rate.Limiter) {
	limited := middleware.RateLimit(limiter)

	auctions := api.Group("/auctions", limited)
	auctions.POST("", handler.RunAuction)
	auctions.POST("/:id/feedback", handler.Feedback)

	api.POST("/conversions", handler.Conversion, limited)
}

func SetExperimentRoutes(api *echo.Group, handler *rest.ExperimentHandler, authRequired echo.MiddlewareFunc) {
	experiments := api.Group("/experiments", authRequired)
	experiments.GET("/:campaign_id", handler.GetExperiment)
	experiments.GET("/:campaign_id/incrementality", handler.GetIncrementality)
}

func SetAdminRoutes(api *echo.Group, handler *rest.AdminHandler, authRequired echo.MiddlewareFunc, adminOnly echo.MiddlewareFunc) {
	admin := api.Group("/admin", authRequired, adminOnly)

	admin.GET("/config", handler.GetConfig)
	admin.PUT("/config", handler.PutConfig)
	admin.POST("/bandit/debug", handler.BanditDebug)
	admin.GET("/frequency/:user_id", handler.FrequencyCounts)
	admin.GET("/pacing/:campaign_id", handler.PacingStatus)
}
