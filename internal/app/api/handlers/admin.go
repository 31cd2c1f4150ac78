package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aiwa-app/aiwa/internal/app/service/statistics"
	"github.com/aiwa-app/aiwa/internal/store"
	"github.com/aiwa-app/aiwa/pkg/response"
)

// @Summary      List payment transactions (Admin)
// @Description  Retrieves a paginated and filterable list of ledger rows.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body store.ScanPaymentTransactionsRequest true "filters, pagination and sorting"
// @Success      200  {object}  handlers.RespScanPaymentTransactions
// @Router       /api/admin/payments/list [post]
func ApiListPaymentTransactions(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req store.ScanPaymentTransactionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, response.APIResponseCodeBadRequest, err)
			return
		}
		res, err := svc.ScanPaymentTransactions(c.Request.Context(), &req)
		if err != nil {
			abort(c, http.StatusInternalServerError, response.APIResponseCodeError, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Payment statistics (Admin)
// @Description  Daily transaction count and revenue series.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.PaymentStatisticRequest true "filters and requested series"
// @Success      200  {object}  handlers.RespPaymentStatistic
// @Router       /api/admin/payments/stats [post]
func ApiGetPaymentStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.PaymentStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, response.APIResponseCodeBadRequest, err)
			return
		}
		res, err := svc.GetDailyPaymentStatistic(c.Request.Context(), &req)
		if err != nil {
			abort(c, http.StatusInternalServerError, response.APIResponseCodeError, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminPaymentRoutes(r gin.IRouter, stats *statistics.Service) {
	r.POST("/payments/list", ApiListPaymentTransactions(stats))
	r.POST("/payments/stats", ApiGetPaymentStatistic(stats))
}
