package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/reconsumeralization/modernmen-sub011/internal/middleware"
	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/response"
)

var validate = validator.New()

// bindJSON decodes and validates a request body, writing the error response itself.
func bindJSON(c *gin.Context, dst interface{}, what string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid "+what+" payload"))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return false
	}
	return true
}

func operatorFromContext(c *gin.Context) (*models.OperatorClaims, bool) {
	claims := middleware.OperatorFromContext(c)
	if claims == nil || strings.TrimSpace(claims.OperatorID) == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

func requiredQuery(c *gin.Context, name string) (string, bool) {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" is required"))
		return "", false
	}
	return value, true
}
