package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	applog "github.com/reconsumeralization/modernmen-sub011/pkg/logger"
)

const auditActionKey = "audit_action"

// SetAuditAction overrides the action recorded by Audit for this request.
func SetAuditAction(c *gin.Context, action string) {
	c.Set(auditActionKey, action)
}

// AuditWriter persists operator audit records.
type AuditWriter interface {
	Create(ctx context.Context, entry *models.OperatorAudit) error
}

// Audit records an operator action after the handler succeeds. subjectParam names
// the route parameter carrying the subject id; empty means no id.
func Audit(writer AuditWriter, logger *zap.Logger, action, subject, subjectParam string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if writer == nil || c.Writer.Status() >= 400 {
			return
		}

		recorded := action
		if override := c.GetString(auditActionKey); override != "" {
			recorded = override
		}
		entry := &models.OperatorAudit{
			Action:    recorded,
			Subject:   subject,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		if claims := OperatorFromContext(c); claims != nil {
			operatorID := claims.OperatorID
			entry.OperatorID = &operatorID
		}
		if subjectParam != "" {
			if id := c.Param(subjectParam); id != "" {
				entry.SubjectID = &id
			}
		}
		entry.Payload, _ = json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		if err := writer.Create(c.Request.Context(), entry); err != nil {
			applog.FromContext(c.Request.Context(), logger).Warn("operator audit write failed", zap.String("action", recorded), zap.Error(err))
		}
	}
}
