package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	mw "github.com/aiwa-app/aiwa/internal/app/api/middleware"
	"github.com/aiwa-app/aiwa/internal/app/service/chat"
	"github.com/aiwa-app/aiwa/internal/app/service/subscription"
	"github.com/aiwa-app/aiwa/pkg/response"
)

func chatStatus(err error) (int, response.APIResponseCode) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, response.APIResponseCodeBadRequest
	case errors.Is(err, chat.ErrRateLimited):
		return http.StatusTooManyRequests, response.APIResponseCodeRateLimited
	case errors.Is(err, chat.ErrNoSubscription):
		return http.StatusForbidden, response.APIResponseCodeNoSubscription
	case errors.Is(err, chat.ErrInsufficientCredits):
		return http.StatusPaymentRequired, response.APIResponseCodePaymentRequired
	case errors.Is(err, chat.ErrUpstream):
		return http.StatusInternalServerError, response.APIResponseCodeUpstreamFailure
	default:
		return http.StatusInternalServerError, response.APIResponseCodeError
	}
}

// @Summary      Send chat message
// @Description  Gates the message on the daily cap and the credit balance, then forwards it to v0. Anonymous callers are limited per client IP.
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Param        Authorization header string false "Bearer session token"
// @Param        request body chat.SendRequest true "message"
// @Success      200  {object}  handlers.RespChat
// @Failure      400  {object}  handlers.RespOK
// @Failure      402  {object}  handlers.RespOK
// @Failure      403  {object}  handlers.RespOK
// @Failure      429  {object}  handlers.RespOK
// @Failure      500  {object}  handlers.RespOK
// @Router       /api/chat [post]
func ApiSendChat(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chat.SendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, response.APIResponseCodeBadRequest, err)
			return
		}
		caller := chat.Caller{IP: chat.ClientIP(c.Request.Header)}
		if claims := mw.Claims(c); claims != nil {
			caller.UserID = claims.Subject
		}
		res, err := svc.Send(c.Request.Context(), caller, &req)
		if err != nil {
			status, code := chatStatus(err)
			abort(c, status, code, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Credit balance
// @Description  Plan, credit balance and today's message count of the caller.
// @Tags         Chat
// @Produce      json
// @Param        Authorization header string true "Bearer session token"
// @Success      200  {object}  handlers.RespCredits
// @Router       /api/credits [get]
func ApiGetCredits(subs *subscription.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := mw.Claims(c)
		if claims == nil {
			abort(c, http.StatusUnauthorized, response.APIResponseCodeUnauthorized, mw.ErrMissingToken)
			return
		}
		info, err := subs.GetCreditsInfo(c.Request.Context(), claims.Subject)
		if err != nil {
			abort(c, http.StatusInternalServerError, response.APIResponseCodeError, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(info))
	}
}

func RegisterChatRoutes(r gin.IRouter, jwtSecret string, svc *chat.Service, subs *subscription.Service) {
	r.POST("/chat", mw.OptionalAuth(jwtSecret), ApiSendChat(svc))
	r.GET("/credits", mw.RequireAuth(jwtSecret), ApiGetCredits(subs))
}
