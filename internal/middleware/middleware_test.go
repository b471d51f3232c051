package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/logger"
)

type stubValidator struct {
	claims map[string]*models.OperatorClaims
}

func (s stubValidator) ValidateToken(token string) (*models.OperatorClaims, error) {
	if claims, ok := s.claims[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type recordingAudit struct {
	entries []*models.OperatorAudit
}

func (r *recordingAudit) Create(_ context.Context, entry *models.OperatorAudit) error {
	r.entries = append(r.entries, entry)
	return nil
}

type recordingObserver struct {
	paths    []string
	statuses []int
}

func (r *recordingObserver) ObserveHTTPRequest(_ string, path string, status int, _ time.Duration) {
	r.paths = append(r.paths, path)
	r.statuses = append(r.statuses, status)
}

func operatorRouter(audit AuditWriter) *gin.Engine {
	validator := stubValidator{claims: map[string]*models.OperatorClaims{
		"op-token":      {OperatorID: "op-1", Role: models.RoleOperator},
		"manager-token": {OperatorID: "mgr-1", Role: models.RoleManager},
	}}
	router := gin.New()
	group := router.Group("/", JWT(validator))
	group.POST("/conflicts/:id/ignore", RequireRoles(models.RoleOperator, models.RoleManager),
		Audit(audit, nil, models.AuditConflictIgnore, "conflict", "id"),
		func(c *gin.Context) { c.Status(http.StatusNoContent) })
	group.POST("/directory/refresh", RequireRoles(models.RoleManager),
		func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return router
}

func serve(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestJWTAndRBAC(t *testing.T) {
	gin.SetMode(gin.TestMode)
	audit := &recordingAudit{}
	router := operatorRouter(audit)

	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPost, "/conflicts/c-1/ignore", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPost, "/conflicts/c-1/ignore", "forged").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodPost, "/directory/refresh", "op-token").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodPost, "/directory/refresh", "manager-token").Code)
	assert.Empty(t, audit.entries)

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodPost, "/conflicts/c-1/ignore", "op-token").Code)
	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, models.AuditConflictIgnore, entry.Action)
	require.NotNil(t, entry.OperatorID)
	assert.Equal(t, "op-1", *entry.OperatorID)
	require.NotNil(t, entry.SubjectID)
	assert.Equal(t, "c-1", *entry.SubjectID)
}

func TestOptionalJWTDoesNotBlock(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := stubValidator{claims: map[string]*models.OperatorClaims{"op-token": {OperatorID: "op-1", Role: models.RoleOperator}}}
	router := gin.New()
	var seen []string
	router.GET("/", OptionalJWT(validator), func(c *gin.Context) {
		if claims := OperatorFromContext(c); claims != nil {
			seen = append(seen, claims.OperatorID)
		} else {
			seen = append(seen, "")
		}
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/", "forged").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/", "op-token").Code)
	assert.Equal(t, []string{"", "", "op-1"}, seen)
}

func TestRateLimiterPerCustomer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(1, 2)
	router := gin.New()
	router.POST("/bookings", limiter.Handler(), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	post := func(customer string) *httptest.ResponseRecorder {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/bookings", nil)
		req.Header.Set(logger.CustomerHeader, customer)
		router.ServeHTTP(recorder, req)
		return recorder
	}

	assert.Equal(t, http.StatusAccepted, post("cust-1").Code)
	assert.Equal(t, http.StatusAccepted, post("cust-1").Code)
	limited := post("cust-1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusAccepted, post("cust-2").Code)
}

func TestRateLimiterDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", NewRateLimiter(0, 0).Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/", "").Code)
	}
}

func TestMetricsAndMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &recordingObserver{}
	router := gin.New()
	router.Use(Metrics(observer), WithResponseMeta())
	var meta map[string]interface{}
	router.GET("/resources/:id", func(c *gin.Context) {
		SetMeta(c, "granularity", 15)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	serve(router, http.MethodGet, "/resources/stylist-1", "")
	serve(router, http.MethodGet, "/nowhere", "")

	assert.Equal(t, []string{"/resources/:id", "unmatched"}, observer.paths)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, observer.statuses)
	assert.Equal(t, 15, meta["granularity"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestAuditActionOverride(t *testing.T) {
	gin.SetMode(gin.TestMode)
	audit := &recordingAudit{}
	router := gin.New()
	router.POST("/resolutions/:id/decision", Audit(audit, nil, models.AuditDecisionAccept, "resolution", "id"), func(c *gin.Context) {
		if c.Query("verdict") == "reject" {
			SetAuditAction(c, models.AuditDecisionReject)
		}
		c.Status(http.StatusOK)
	})
	router.POST("/fail", Audit(audit, nil, models.AuditDecisionAccept, "resolution", ""), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	serve(router, http.MethodPost, "/resolutions/r-1/decision", "")
	serve(router, http.MethodPost, "/resolutions/r-1/decision?verdict=reject", "")
	serve(router, http.MethodPost, "/fail", "")

	require.Len(t, audit.entries, 2)
	assert.Equal(t, models.AuditDecisionAccept, audit.entries[0].Action)
	assert.Equal(t, models.AuditDecisionReject, audit.entries[1].Action)
	assert.Nil(t, audit.entries[0].OperatorID)
}
