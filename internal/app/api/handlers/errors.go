package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/aiwa-app/aiwa/pkg/response"
)

// abort writes an error envelope with the given HTTP status. Server errors are
// attached to the gin context so the access log carries them.
func abort(c *gin.Context, status int, code response.APIResponseCode, err error) {
	if status >= 500 {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, response.ErrorT[any](code, err.Error()))
}
