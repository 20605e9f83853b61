package server

import (
	"net/http"
	"time"

	httpHandler "content-distributor/interfaces/http"
	"content-distributor/interfaces/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	SecretKey      string
	AllowedOrigins []string

	Distribution httpHandler.IDistributionHandler
	Health       httpHandler.IHealthHandler
	// AccountOAuth is nil when no platform has an oauth client.
	AccountOAuth httpHandler.IAccountOAuthHandler
	// Stream serves the publish status event stream.
	Stream gin.HandlerFunc

	Metrics        http.Handler
	MetricsHandler gin.HandlerFunc
}

func InitiateRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if d.MetricsHandler != nil {
		router.Use(d.MetricsHandler)
	}
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(d.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = d.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", d.Health.Healthz)
	router.GET("/readyz", d.Health.Readyz)
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics))
	}

	api := router.Group("api")
	api.Use(middleware.Auth(d.SecretKey))

	api.GET("/platforms", d.Distribution.GetPlatforms)
	contents := api.Group("/contents/:contentId")
	{
		contents.POST("/distribute", d.Distribution.Distribute)
		contents.GET("/publish-records", d.Distribution.ListRecords)
		contents.GET("/publish-audit", d.Distribution.ListAudit)
	}

	if d.Stream != nil {
		api.GET("/publish/stream", d.Stream)
	}

	if d.AccountOAuth != nil {
		api.GET("/accounts/:accountId/reconnect", d.AccountOAuth.Reconnect)
		router.GET("/auth/callback", d.AccountOAuth.Callback)
	}
	return router
}
