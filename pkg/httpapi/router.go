// Package httpapi exposes a wallet session to a local UI over JSON.
package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter serves h under /api and the Prometheus collectors under /metrics
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)

		api.GET("/session", h.Session)
		api.POST("/session/switch", h.RequestSwitch)
		api.POST("/session/dismiss", h.DismissWarning)
		api.POST("/session/refresh", h.RefreshBalance)
		api.POST("/session/buy", h.BuyTokens)
		api.POST("/session/disconnect", h.Disconnect)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
