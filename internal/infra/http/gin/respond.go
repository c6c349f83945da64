package ginserver

import (
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentalhub/internal/domain/shared/errs"
)

type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Status: "success", Data: data})
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	c.AbortWithStatusJSON(status, envelope{Status: "error", Message: errs.Message(err)})
}

func respondMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Status: "error", Message: message})
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindAuthorization:
		return http.StatusForbidden
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindAuthentication:
		return http.StatusUnauthorized
	case errs.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
