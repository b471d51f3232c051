package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

func TestOperatorAuthRoundTrip(t *testing.T) {
	svc := NewOperatorAuthService(OperatorAuthConfig{Secret: "secret", Issuer: "salon-auth"})

	token, err := svc.IssueToken("op-1", models.RoleManager, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.OperatorID)
	assert.Equal(t, models.RoleManager, claims.Role)
}

func TestOperatorAuthRejects(t *testing.T) {
	svc := NewOperatorAuthService(OperatorAuthConfig{Secret: "secret", Issuer: "salon-auth"})

	expired, err := svc.IssueToken("op-1", models.RoleOperator, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	foreign, err := NewOperatorAuthService(OperatorAuthConfig{Secret: "other", Issuer: "salon-auth"}).IssueToken("op-1", models.RoleOperator, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	wrongIssuer, err := NewOperatorAuthService(OperatorAuthConfig{Secret: "secret", Issuer: "elsewhere"}).IssueToken("op-1", models.RoleOperator, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(wrongIssuer)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	anonymous, err := svc.IssueToken("", models.RoleOperator, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(anonymous)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
