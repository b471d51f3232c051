package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/internal/service"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/logger"
)

type bookingServiceMock struct {
	submitResp  *service.PlacementResult
	submitErr   error
	lastRequest models.PlacementRequest
	batchReqs   []models.PlacementRequest
	lastDirect  service.DirectBooking
	lastReason  string
	getErr      error
}

func (m *bookingServiceMock) Submit(_ context.Context, req models.PlacementRequest) (*service.PlacementResult, error) {
	m.lastRequest = req
	return m.submitResp, m.submitErr
}

func (m *bookingServiceMock) SubmitBatch(_ context.Context, reqs []models.PlacementRequest) ([]service.PlacementResult, []error) {
	m.batchReqs = reqs
	results := make([]service.PlacementResult, len(reqs))
	errs := make([]error, len(reqs))
	for i, r := range reqs {
		if r.ServiceID == "perm" {
			errs[i] = appErrors.ErrServiceNotFound
			continue
		}
		results[i] = service.PlacementResult{RequestID: r.RequestID, Outcome: service.ResultPlaced}
	}
	return results, errs
}

func (m *bookingServiceMock) Direct(_ context.Context, in service.DirectBooking) (*service.PlacementResult, error) {
	m.lastDirect = in
	return &service.PlacementResult{Outcome: service.ResultConflicted, Conflict: &models.ConflictRecord{ID: "c-1"}}, nil
}

func (m *bookingServiceMock) Get(_ context.Context, id string) (*models.Booking, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &models.Booking{ID: id, Status: models.BookingTentative}, nil
}

func (m *bookingServiceMock) Confirm(_ context.Context, id string) (*models.Booking, error) {
	return &models.Booking{ID: id, Status: models.BookingConfirmed}, nil
}

func (m *bookingServiceMock) Cancel(_ context.Context, id, reason string) (*models.Booking, error) {
	m.lastReason = reason
	return &models.Booking{ID: id, Status: models.BookingCancelled}, nil
}

func (m *bookingServiceMock) Complete(_ context.Context, id string) (*models.Booking, error) {
	return &models.Booking{ID: id, Status: models.BookingCompleted}, nil
}

func jsonContext(t *testing.T, method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestBookingHandlerSubmitPlaced(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &bookingServiceMock{submitResp: &service.PlacementResult{
		Outcome: service.ResultPlaced,
		Booking: &models.Booking{ID: "b-1", Status: models.BookingTentative},
	}}
	handler := NewBookingHandler(mockSvc)

	c, w := jsonContext(t, http.MethodPost, "/bookings", map[string]interface{}{
		"serviceId":     "cut",
		"preferredDate": "2025-03-10",
		"preferredTime": "10:30",
		"urgency":       "high",
		"flexibility":   map[string]interface{}{"dateRangeDays": 2, "resourceFlexible": true},
	})
	c.Request.Header.Set(logger.CustomerHeader, "cust-1")
	handler.Submit(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "cust-1", mockSvc.lastRequest.CustomerID)
	require.NotNil(t, mockSvc.lastRequest.PreferredStart)
	assert.Equal(t, models.MustMinute("10:30"), *mockSvc.lastRequest.PreferredStart)
	assert.Equal(t, models.UrgencyHigh, mockSvc.lastRequest.Urgency)
	assert.Equal(t, 2, mockSvc.lastRequest.Flexibility.DateRangeDays)
	assert.True(t, mockSvc.lastRequest.Flexibility.ResourceFlexible)
}

func TestBookingHandlerSubmitWaitlisted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &bookingServiceMock{submitResp: &service.PlacementResult{
		Outcome:       service.ResultWaitlisted,
		WaitlistEntry: &models.WaitlistEntry{ID: "w-1", Status: models.WaitlistWaiting},
	}}
	handler := NewBookingHandler(mockSvc)

	c, w := jsonContext(t, http.MethodPost, "/bookings", map[string]interface{}{
		"customerId":    "cust-1",
		"serviceId":     "cut",
		"preferredDate": "2025-03-10",
	})
	handler.Submit(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	body := decodeEnvelope(t, w)
	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, service.ResultWaitlisted, meta["outcome"])
}

func TestBookingHandlerSubmitValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBookingHandler(&bookingServiceMock{})

	cases := []map[string]interface{}{
		{"customerId": "cust-1", "serviceId": "cut", "preferredDate": "10/03/2025"},
		{"customerId": "cust-1", "serviceId": "cut", "preferredDate": "2025-03-10", "urgency": "whenever"},
		{"customerId": "cust-1", "serviceId": "cut", "preferredDate": "2025-03-10", "preferredTime": "25:00"},
		{"serviceId": "cut", "preferredDate": "2025-03-10"},
	}
	for _, payload := range cases {
		c, w := jsonContext(t, http.MethodPost, "/bookings", payload)
		handler.Submit(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, payload)
	}
}

func TestBookingHandlerBatchKeepsInputOrder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &bookingServiceMock{}
	handler := NewBookingHandler(mockSvc)

	c, w := jsonContext(t, http.MethodPost, "/bookings/batch", map[string]interface{}{
		"requests": []map[string]interface{}{
			{"requestId": "r-1", "customerId": "cust-1", "serviceId": "cut", "preferredDate": "2025-03-10"},
			{"requestId": "r-2", "customerId": "cust-2", "serviceId": "perm", "preferredDate": "2025-03-10"},
		},
	})
	handler.SubmitBatch(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mockSvc.batchReqs, 2)
	body := decodeEnvelope(t, w)
	items := body["data"].([]interface{})
	require.Len(t, items, 2)
	first := items[0].(map[string]interface{})
	second := items[1].(map[string]interface{})
	assert.NotNil(t, first["result"])
	assert.Nil(t, first["error"])
	assert.Equal(t, "SERVICE_NOT_FOUND", second["error"].(map[string]interface{})["code"])
	assert.EqualValues(t, 1, body["meta"].(map[string]interface{})["failed"])
}

func TestBookingHandlerDirectConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &bookingServiceMock{}
	handler := NewBookingHandler(mockSvc)

	c, w := jsonContext(t, http.MethodPost, "/bookings/direct", map[string]interface{}{
		"customerId": "cust-1",
		"serviceId":  "cut",
		"resourceId": "stylist-1",
		"date":       "2025-03-10",
		"start":      "10:00",
		"confirmed":  true,
	})
	handler.Direct(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, models.MustMinute("10:00"), mockSvc.lastDirect.Start)
	assert.True(t, mockSvc.lastDirect.Confirmed)

	c, w = jsonContext(t, http.MethodPost, "/bookings/direct", map[string]interface{}{
		"customerId": "cust-1",
		"serviceId":  "cut",
		"resourceId": "stylist-1",
		"date":       "2025-03-10",
	})
	handler.Direct(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookingHandlerLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &bookingServiceMock{}
	handler := NewBookingHandler(mockSvc)

	c, w := jsonContext(t, http.MethodPost, "/bookings/b-1/cancel", map[string]interface{}{"reason": "customer ill"})
	c.Params = gin.Params{{Key: "id", Value: "b-1"}}
	handler.Cancel(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "customer ill", mockSvc.lastReason)

	c, w = jsonContext(t, http.MethodPost, "/bookings/b-1/cancel", nil)
	c.Params = gin.Params{{Key: "id", Value: "b-1"}}
	handler.Cancel(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mockSvc.lastReason)

	c, w = jsonContext(t, http.MethodPost, "/bookings/b-1/confirm", nil)
	c.Params = gin.Params{{Key: "id", Value: "b-1"}}
	handler.Confirm(c)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, string(models.BookingConfirmed), data["status"])

	mockSvc.getErr = appErrors.ErrBookingNotFound
	c, w = jsonContext(t, http.MethodGet, "/bookings/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
