package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

func TestDirectoryRepositoryListResources(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewDirectoryRepository(db)

	mock.ExpectQuery("SELECT id, name, skills, rules, breaks, overrides, preferences, active, updated_at FROM resources").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "skills", "rules", "breaks", "overrides", "preferences", "active", "updated_at"}).
			AddRow("stylist-1", "Ana", "{cut,colour}",
				`[{"rrule":"FREQ=WEEKLY;BYDAY=MO,TU","start":"09:00","end":"17:00"}]`,
				`[{"kind":"lunch","start":"12:00","end":"12:30"}]`,
				`[]`,
				`{"maxConsecutiveMinutes":180,"minBreakMinutes":15,"workload":"high"}`,
				true, time.Now()))

	resources, err := repo.ListResources(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 1)
	res := resources[0]
	assert.Equal(t, []string{"cut", "colour"}, res.Skills)
	require.Len(t, res.Rules, 1)
	assert.Equal(t, models.MustMinute("17:00"), res.Rules[0].End)
	assert.Equal(t, models.BreakLunch, res.Breaks[0].Kind)
	assert.Equal(t, 180, res.Preferences.MaxConsecutiveMinutes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryRepositoryListServices(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewDirectoryRepository(db)

	mock.ExpectQuery("SELECT id, name, duration_minutes, skill_tag, splittable, components, price FROM services").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "duration_minutes", "skill_tag", "splittable", "components", "price"}).
			AddRow("svc-colour", "Colour", 90, "colour", true, `[{"name":"apply","durationMinutes":45,"skillTag":"colour"},{"name":"finish","durationMinutes":45,"skillTag":"cut"}]`, "120.00"))

	services, err := repo.ListServices(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.True(t, services[0].CanSplit())
	assert.Equal(t, "120", services[0].Price.String())
}

func TestFileDirectoryRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	content := `resources:
  - id: stylist-1
    name: Ana
    skills: [cut, colour]
    active: true
    rules:
      - rrule: "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR"
        start: "09:00"
        end: "17:00"
    breaks:
      - kind: lunch
        start: "12:00"
        end: "12:30"
    preferences:
      maxConsecutiveMinutes: 180
      minBreakMinutes: 15
      workload: medium
services:
  - id: svc-cut
    name: Cut
    durationMinutes: 30
    skillTag: cut
    price: "45.00"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	repo := NewFileDirectoryRepository(path)

	resources, err := repo.ListResources(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, models.MustMinute("09:00"), resources[0].Rules[0].Start)
	assert.Equal(t, models.MustMinute("12:30"), resources[0].Breaks[0].End)

	services, err := repo.ListServices(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "45", services[0].Price.String())
}

func TestFileDirectoryRepositoryMissingFile(t *testing.T) {
	repo := NewFileDirectoryRepository(filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := repo.ListResources(context.Background())
	assert.Error(t, err)
}
