package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/storage"
)

func newExportServiceForTest(t *testing.T, f *engineFixture) *ExportService {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(f.store, f.directory, f.availability, files, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop())
	svc.now = func() time.Time { return fixtureNow }
	return svc
}

func TestExportRosterInlineCSV(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	f.seed(t,
		fixtureBooking("b-1", "stylist-1", "10:00", models.BookingConfirmed),
		fixtureBooking("b-2", "stylist-1", "12:00", models.BookingCancelled),
	)
	svc := newExportServiceForTest(t, f)

	result, err := svc.ExportRoster(context.Background(), "stylist-1", fixtureDate, "", "")
	require.NoError(t, err)
	assert.Equal(t, "csv", result.Format)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Empty(t, result.URL)

	lines := strings.Split(strings.TrimSpace(string(result.Payload)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Haircut")
	assert.Contains(t, lines[1], "b-1")
}

func TestExportRosterSignedLink(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	f.seed(t, fixtureBooking("b-1", "stylist-1", "10:00", models.BookingConfirmed))
	svc := newExportServiceForTest(t, f)

	result, err := svc.ExportRoster(context.Background(), "stylist-1", fixtureDate, "ics", DeliveryLink)
	require.NoError(t, err)
	assert.Nil(t, result.Payload)
	require.NotEmpty(t, result.Token)
	assert.Equal(t, "/api/v1/exports/"+result.Token, result.URL)
	assert.True(t, strings.HasSuffix(result.RelativePath, ".ics"))

	file, name, err := svc.OpenDownload(result.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, result.RelativePath, name)
	assert.Equal(t, "text/calendar", svc.ContentTypeFor(name))
	body, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")

	_, _, err = svc.OpenDownload("not-a-token")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestExportRosterValidation(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	svc := newExportServiceForTest(t, f)

	_, err := svc.ExportRoster(context.Background(), "stylist-1", fixtureDate, "xlsx", "")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.ExportRoster(context.Background(), "stylist-1", fixtureDate, "csv", "email")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.ExportRoster(context.Background(), "ghost", fixtureDate, "csv", "")
	assert.True(t, errors.Is(err, appErrors.ErrResourceNotFound))

	noFiles := NewExportService(f.store, f.directory, f.availability, nil, nil, ExportConfig{}, nil)
	_, err = noFiles.ExportRoster(context.Background(), "stylist-1", fixtureDate, "pdf", DeliveryLink)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}
