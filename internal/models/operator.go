package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorRole limits what an operator may do on the review surface.
type OperatorRole string

const (
	RoleOperator OperatorRole = "OPERATOR"
	RoleManager  OperatorRole = "MANAGER"
	RoleAdmin    OperatorRole = "ADMIN"
)

// OperatorClaims is the JWT payload issued by the external auth collaborator.
type OperatorClaims struct {
	OperatorID string       `json:"operator_id"`
	Role       OperatorRole `json:"role"`
	Name       string       `json:"name"`
	jwt.RegisteredClaims
}

// Operator audit actions.
const (
	AuditDecisionAccept   = "RESOLUTION_ACCEPT"
	AuditDecisionReject   = "RESOLUTION_REJECT"
	AuditConflictIgnore   = "CONFLICT_IGNORE"
	AuditDirectoryRefresh = "DIRECTORY_REFRESH"
	AuditBalancerRun      = "BALANCER_RUN"
)

// OperatorAudit is a persisted record of an operator decision.
type OperatorAudit struct {
	ID         string    `db:"id" json:"id"`
	OperatorID *string   `db:"operator_id" json:"operatorId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Subject    string    `db:"subject" json:"subject"`
	SubjectID  *string   `db:"subject_id" json:"subjectId,omitempty"`
	Payload    []byte    `db:"payload" json:"payload,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
