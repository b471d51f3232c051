package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

func TestWaitlistRepositorySaveAndList(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)
	arrived := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	entry := &models.WaitlistEntry{
		ID: "w-1",
		Request: models.PlacementRequest{
			CustomerID:    "c-1",
			ServiceID:     "svc-cut",
			PreferredDate: "2025-03-03",
			Urgency:       models.UrgencyHigh,
			ArrivedAt:     arrived,
		},
		Status:    models.WaitlistWaiting,
		ExpiresOn: "2025-03-05",
		CreatedAt: arrived,
		UpdatedAt: arrived,
	}
	mock.ExpectExec("INSERT INTO waitlist_entries").
		WithArgs("w-1", "c-1", "svc-cut", sqlmock.AnyArg(), 2, arrived, "waiting", "", nil, nil, "2025-03-05", arrived, arrived).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Save(context.Background(), entry))

	request, err := json.Marshal(entry.Request)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT .* FROM waitlist_entries WHERE 1=1 AND status = ANY\\(\\$1\\) ORDER BY urgency_rank DESC, arrived_at, id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id", "service_id", "request", "urgency_rank", "arrived_at", "status",
			"reason", "offer_booking_id", "offer_expires_at", "expires_on", "created_at", "updated_at"}).
			AddRow("w-1", "c-1", "svc-cut", request, 2, arrived, "waiting", "", nil, nil, "2025-03-05", arrived, arrived))

	entries, err := repo.List(context.Background(), models.WaitlistFilter{Statuses: []models.WaitlistStatus{models.WaitlistWaiting}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.UrgencyHigh, entries[0].Request.Urgency)
	assert.Equal(t, "2025-03-03", entries[0].Request.PreferredDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolutionRepositoryRoundTrip(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewResolutionRepository(db)
	now := time.Now().UTC()

	chosen := 0
	res := &models.Resolution{
		ID:         "r-1",
		ConflictID: "cf-1",
		Action:     models.ActionReassign,
		Severity:   models.SeverityMedium,
		Candidates: []models.Candidate{{Action: models.ActionReassign, BookingID: "b-2"}},
		Chosen:     &chosen,
		Status:     models.ResolutionApplied,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	mock.ExpectExec("INSERT INTO resolutions").WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Upsert(context.Background(), res))

	candidates, err := json.Marshal(res.Candidates)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT .* FROM resolutions WHERE id = \\$1").
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "conflict_id", "action", "severity", "candidates", "chosen", "status",
			"decided_by", "note", "created_at", "updated_at", "applied_at"}).
			AddRow("r-1", "cf-1", "reassign", "medium", candidates, 0, "applied", nil, "", now, now, now))

	got, err := repo.GetByID(context.Background(), "r-1")
	require.NoError(t, err)
	require.NotNil(t, got.Chosen)
	candidate, ok := got.ChosenCandidate()
	require.True(t, ok)
	assert.Equal(t, "b-2", candidate.BookingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO operator_audit").WillReturnResult(sqlmock.NewResult(1, 1))
	entry := &models.OperatorAudit{Action: models.AuditConflictIgnore, Subject: "conflict"}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
