package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/response"
)

// RequireRoles admits operators holding one of roles. It must run after JWT: a request
// without claims is unauthorized, a request with the wrong role is forbidden.
func RequireRoles(roles ...models.OperatorRole) gin.HandlerFunc {
	allowed := make(map[models.OperatorRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := OperatorFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.WithDetails(appErrors.ErrForbidden, map[string]any{
				"role":     claims.Role,
				"required": roles,
			}))
			c.Abort()
			return
		}
		c.Next()
	}
}
