// Package api wires the gin HTTP surface the manager exposes for
// operational visibility: the Readiness Oracle's snapshot and
// per-endpoint detail, grounded on purify/api/router.go's chain shape.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/use-agent/noctipede/api/handler"
	"github.com/use-agent/noctipede/config"
	"github.com/use-agent/noctipede/readiness"
)

// NewRouter creates a configured gin engine serving the readiness
// surface. Unlike purify's scrape API, none of this surface requires
// auth: it is read-only operational telemetry for orchestration probes.
func NewRouter(oracle *readiness.Oracle, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api")
	v1.GET("/readiness", handler.Readiness(oracle))
	v1.GET("/readiness/endpoints", handler.ReadinessEndpoints(oracle))

	return r
}
