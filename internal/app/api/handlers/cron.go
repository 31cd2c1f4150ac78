package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	mw "github.com/aiwa-app/aiwa/internal/app/api/middleware"
	"github.com/aiwa-app/aiwa/internal/app/service/credit_reset"
	"github.com/aiwa-app/aiwa/pkg/response"
)

// @Summary      Reset monthly credits
// @Description  Resets every active or past-due subscription whose billing period has passed. A failing row is counted in failed and the run continues with the rest. Cancelled subscriptions are skipped. Called by the external scheduler.
// @Tags         Cron
// @Produce      json
// @Param        Authorization header string true "Bearer cron secret"
// @Success      200  {object}  handlers.RespResetCredits
// @Failure      401  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Router       /api/cron/reset-credits [get]
func ApiResetCredits(svc *credit_reset.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Run(c.Request.Context(), credit_reset.TriggerHTTP)
		if errors.Is(err, credit_reset.ErrAlreadyRunning) {
			abort(c, http.StatusConflict, response.APIResponseCodeConflict, err)
			return
		}
		if err != nil {
			abort(c, http.StatusInternalServerError, response.APIResponseCodeError, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterCronRoutes(r gin.IRouter, cronSecret string, svc *credit_reset.Service) {
	r.GET("/cron/reset-credits", mw.CronAuth(cronSecret), ApiResetCredits(svc))
}
