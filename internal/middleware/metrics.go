package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route, keeping raw
// paths out of the metric labels.
const unmatchedRoute = "unmatched"

// Metrics records latency and status per route template.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
