package api

import (
	"tiergate/internal/metrics"
	"tiergate/internal/middleware"
	"tiergate/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func RegisterRoutes(flagHandler *FlagHandler, rolloutHandler *RolloutHandler, evalHandler *EvalHandler, streamHandler *StreamHandler, authHandler *AuthHandler, sdkRepo repository.SDKRepository, rdb *redis.Client, requestsPerSecond int, env string) *gin.Engine {
	r := gin.New()

	// Bypass SDK auth when load testing.
	bypassAuth := env == "loadtest"

	// Global Middleware
	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
		middleware.TraceMiddleware(),
	)
	r.SetTrustedProxies(nil)

	// Public Routes
	r.GET("/health", flagHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Auth Routes (Public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Auth Routes (Protected)
	authProtected := r.Group("/v1/auth")
	authProtected.Use(middleware.JWTMiddleware(true))
	{
		authProtected.GET("/me", authHandler.GetProfile)
		authProtected.POST("/logout", authHandler.Logout)
	}

	// SDK Routes (Protected by API Key)
	sdk := r.Group("/v1")
	sdk.Use(middleware.SDKAuthMiddleware(sdkRepo, bypassAuth))
	{
		sdk.GET("/eval/:name", evalHandler.Evaluate)
		sdk.POST("/eval", evalHandler.EvaluateBatch)
		sdk.GET("/stream/watch", streamHandler.Watch)
		sdk.GET("/stream/snapshot", streamHandler.Snapshot)
	}

	admin := r.Group("/v1/admin")
	admin.Use(middleware.JWTMiddleware(true))
	{
		admin.GET("/stream", streamHandler.DashboardWatch)
		admin.GET("/definitions", streamHandler.Definitions)
	}

	// Protected Routes (Control Plane)
	// Enable Dev-Pass=true for debugging
	protected := r.Group("/v1")
	protected.Use(middleware.JWTMiddleware(true))

	// Rate Limiter for Write Operations
	writeLimiter := middleware.RateLimitMiddleware(rdb, requestsPerSecond)

	{
		protected.POST("/flag", writeLimiter, flagHandler.SaveFlag)
		protected.GET("/flags", flagHandler.ListFlags)
		protected.GET("/flag/:name", flagHandler.GetFlag)
		protected.GET("/flag/:name/audits", flagHandler.GetFlagAudits)
		protected.DELETE("/flag/:name", writeLimiter, flagHandler.DeleteFlag)

		protected.POST("/rollout/company/enable", writeLimiter, rolloutHandler.EnableForCompany)
		protected.POST("/rollout/company/disable", writeLimiter, rolloutHandler.DisableForCompany)
		protected.POST("/rollout/tiers", writeLimiter, rolloutHandler.EnableForTiers)
		protected.POST("/rollout/companies", writeLimiter, rolloutHandler.EnableForCompanies)
		protected.POST("/rollout/all", writeLimiter, rolloutHandler.EnableForAll)
	}
	return r
}
