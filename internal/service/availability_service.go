package service

import (
	"context"
	"errors"
	"time"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/pkg/config"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

// AvailabilityService computes free intervals for resource-days from working hours,
// breaks, consecutive-work limits and the calendar.
type AvailabilityService struct {
	store       *CalendarStore
	directory   *DirectoryService
	hours       *WorkingHours
	granularity int
	maxConsec   int
	minBreak    int
}

// NewAvailabilityService constructs the availability resolver.
func NewAvailabilityService(store *CalendarStore, directory *DirectoryService, hours *WorkingHours, cfg config.BusinessConfig) *AvailabilityService {
	granularity := cfg.SlotGranularity
	if granularity <= 0 {
		granularity = 15
	}
	return &AvailabilityService{
		store:       store,
		directory:   directory,
		hours:       hours,
		granularity: granularity,
		maxConsec:   cfg.DefaultMaxConsecutive,
		minBreak:    cfg.DefaultMinBreak,
	}
}

// Granularity is the slot grid step in minutes.
func (s *AvailabilityService) Granularity() int {
	return s.granularity
}

// Location is the business time zone.
func (s *AvailabilityService) Location() *time.Location {
	return s.hours.Location()
}

// Limits resolves the consecutive-work limits of a resource.
func (s *AvailabilityService) Limits(res *models.Resource) Limits {
	return LimitsFor(res, s.maxConsec, s.minBreak)
}

// PlanFor builds the day plan of res over the given bookings. Used inside calendar locks.
// Inactive resources get an empty plan.
func (s *AvailabilityService) PlanFor(res *models.Resource, date string, bookings []models.Booking) (*DayPlan, error) {
	var (
		windows []models.Interval
		breaks  []models.Block
		err     error
	)
	if res.Active {
		if windows, err = s.hours.Windows(res, date); err != nil {
			return nil, err
		}
		if breaks, err = s.hours.Breaks(res, date); err != nil {
			return nil, err
		}
	}
	return NewDayPlan(res.ID, date, windows, breaks, bookings, s.Limits(res)), nil
}

// DayContext assembles what the conflict detector needs for a resource-day. An unknown
// resource yields a context with a nil Resource so every booking on it is flagged.
func (s *AvailabilityService) DayContext(ctx context.Context, key models.DayKey) (DayContext, error) {
	dc := DayContext{Key: key, SkillOf: s.directory.SkillOf}
	res, err := s.directory.Resource(ctx, key.ResourceID)
	if err != nil {
		if errors.Is(err, appErrors.ErrResourceNotFound) {
			return dc, nil
		}
		return dc, err
	}
	plan, err := s.PlanFor(res, key.Date, nil)
	if err != nil {
		return dc, err
	}
	dc.Resource = res
	dc.Windows = plan.Windows
	dc.Breaks = plan.Breaks
	dc.Limits = plan.Limits
	return dc, nil
}

// Plan builds the plan of a resource-day from a consistent calendar snapshot.
func (s *AvailabilityService) Plan(ctx context.Context, resourceID, date string) (*DayPlan, error) {
	if _, err := models.ParseDate(date, s.Location()); err != nil {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConstraintViolation, err.Error()), map[string]any{"date": date})
	}
	res, err := s.directory.Resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.store.Snapshot(ctx, models.DayKey{ResourceID: resourceID, Date: date})
	if err != nil {
		return nil, err
	}
	return s.PlanFor(res, date, snapshot.Bookings)
}

// FreeSlots returns the ordered free intervals of at least durationMinutes. No fit is
// an empty list, not an error.
func (s *AvailabilityService) FreeSlots(ctx context.Context, resourceID, date string, durationMinutes int) ([]models.Slot, error) {
	if durationMinutes <= 0 || durationMinutes > models.MinutesPerDay {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConstraintViolation, "duration must be between 1 and 1440 minutes"), map[string]any{
			"duration": durationMinutes,
		})
	}
	plan, err := s.Plan(ctx, resourceID, date)
	if err != nil {
		return nil, err
	}
	slots := plan.Slots(durationMinutes, s.granularity)
	if slots == nil {
		slots = []models.Slot{}
	}
	return slots, nil
}

// FreeSlotsForService resolves the duration from the catalog.
func (s *AvailabilityService) FreeSlotsForService(ctx context.Context, resourceID, date, serviceID string) ([]models.Slot, error) {
	svc, err := s.directory.Service(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return s.FreeSlots(ctx, resourceID, date, svc.DurationMinutes)
}

// Day returns the full availability picture of a resource-day.
func (s *AvailabilityService) Day(ctx context.Context, resourceID, date string) (*models.DayAvailability, error) {
	plan, err := s.Plan(ctx, resourceID, date)
	if err != nil {
		return nil, err
	}
	return plan.Availability(), nil
}
