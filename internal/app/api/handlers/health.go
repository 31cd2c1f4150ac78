package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aiwa-app/aiwa/pkg/response"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck reports whether one backing dependency can serve traffic.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// @Summary      Health check
// @Description  Returns service status
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /healthz [get]
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, response.OKT(map[string]string{"status": "ok"}))
}

// @Summary      Readiness check
// @Description  Pings the backing stores. Any failed check answers 503 with the per-check results.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /readyz [get]
func ApiReadyz(checks []ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		status, code := http.StatusOK, response.APIResponseCodeOK
		results := make(map[string]string, len(checks))
		for _, chk := range checks {
			if err := chk.Check(ctx); err != nil {
				results[chk.Name] = err.Error()
				status, code = http.StatusServiceUnavailable, response.APIResponseCodeUnavailable
				continue
			}
			results[chk.Name] = "ok"
		}
		c.JSON(status, response.ErrorT[map[string]string](code, results))
	}
}

func RegisterHealthRoutes(r gin.IRouter, checks ...ReadinessCheck) {
	r.GET("/healthz", Healthz)
	r.GET("/readyz", ApiReadyz(checks))
}
