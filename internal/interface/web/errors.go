package web

import (
	"errors"
	"net/http"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/interface/web/types"
	"github.com/gin-gonic/gin"
)

func statusCode(err error) int {
	if errors.Is(err, domain.ErrOrderNotFound) {
		return http.StatusNotFound
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindVerificationFailed:
		return http.StatusUnprocessableEntity
	case domain.KindExternalUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindCustodyExecution:
		return http.StatusBadGateway
	case domain.KindPartialSettlement:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes err with the status of its kind. Server side
// failures are also attached to the context for the error reporter.
func abortWithError(c *gin.Context, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError || code == http.StatusConflict {
		// nolint:all
		c.Error(err)
	}
	c.AbortWithStatusJSON(code, types.ErrorResponse{
		Error: err.Error(),
		Kind:  domain.KindOf(err).String(),
	})
}

func badRequest(c *gin.Context, format string, args ...any) {
	abortWithError(c, domain.Validationf(format, args...))
}
