package handler

import (
	"time"

	"github.com/SergeiKhy/batch-shortener/internal/middleware"
	"github.com/SergeiKhy/batch-shortener/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func NewRouter(
	linkService service.LinkService,
	rateLimiter *middleware.RateLimiter,
	baseURL string,
	logger *zap.Logger,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	// Маршрутизация по RawPath: "%2F" внутри кода не должен делить сегмент
	router.UseRawPath = true
	router.UnescapePathValues = true
	router.Use(gin.Recovery())

	// Middleware для логгирования
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	})

	if rateLimiter != nil {
		router.Use(rateLimiter.Middleware())
	}

	linkHandler := NewLinkHandler(linkService, baseURL, logger)

	router.GET("/", linkHandler.Index)

	// API v.1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)
		v1.POST("/links", linkHandler.Shorten)
		v1.GET("/links/:code", linkHandler.GetLink)
	}

	// Редирект по короткому коду
	router.GET("/:code", linkHandler.Redirect)

	return router
}
