package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/noctipede/readiness"
)

// Readiness returns a handler for GET /api/readiness. It serves the
// Oracle's latest published snapshot unmodified and, if the snapshot is
// stale, nudges the Oracle's background refresh loop without blocking
// the response — mirroring purify's health handler's
// read-the-latest-stats discipline.
func Readiness(oracle *readiness.Oracle) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := oracle.Snapshot()
		oracle.NudgeRefresh()
		c.JSON(http.StatusOK, snap)
	}
}

// ReadinessEndpoints returns a handler for GET /api/readiness/endpoints,
// the per-endpoint detail slice of the same snapshot.
func ReadinessEndpoints(oracle *readiness.Oracle) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := oracle.Snapshot()
		c.JSON(http.StatusOK, snap.EndpointDetails)
	}
}
