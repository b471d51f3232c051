package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/pkg/config"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

// maxBalanceRange bounds the dates one run or report may cover.
const maxBalanceRange = 62

// BalancerService moves not-yet-started, resource-flexible bookings from over-utilized to
// under-utilized equally skilled resources, keeping the customer-visible time.
type BalancerService struct {
	store        *CalendarStore
	availability *AvailabilityService
	directory    *DirectoryService
	notifier     *NotificationService
	metrics      *MetricsService
	horizonDays  int
	threshold    float64
	logger       *zap.Logger
	now          func() time.Time

	runMu sync.Mutex
	mu    sync.Mutex
	last  *models.BalanceReport
}

// NewBalancerService constructs the balancer.
func NewBalancerService(store *CalendarStore, availability *AvailabilityService, directory *DirectoryService, notifier *NotificationService, metrics *MetricsService, cfg config.BalancerConfig, logger *zap.Logger) *BalancerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	horizon := cfg.HorizonDays
	if horizon <= 0 {
		horizon = 7
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.2
	}
	return &BalancerService{
		store:        store,
		availability: availability,
		directory:    directory,
		notifier:     notifier,
		metrics:      metrics,
		horizonDays:  horizon,
		threshold:    threshold,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *BalancerService) clock() (string, models.Minute) {
	now := s.now().In(s.availability.Location())
	return now.Format(models.DateLayout), models.Minute(now.Hour()*60 + now.Minute())
}

// dateRange validates and expands [from, to]. Empty bounds default to the horizon.
func (s *BalancerService) dateRange(from, to string) ([]string, error) {
	today, _ := s.clock()
	if from == "" {
		from = today
	}
	if to == "" {
		last, err := models.AddDays(from, s.horizonDays-1)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrConstraintViolation, err.Error())
		}
		to = last
	}
	span, err := models.DaysBetween(from, to)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrConstraintViolation, err.Error())
	}
	if span < 0 || span >= maxBalanceRange {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConstraintViolation, "date range must be ordered and at most 62 days"), map[string]any{
			"from": from,
			"to":   to,
		})
	}
	dates := make([]string, 0, span+1)
	for i := 0; i <= span; i++ {
		d, _ := models.AddDays(from, i)
		dates = append(dates, d)
	}
	return dates, nil
}

// Utilization reports booked over available minutes per active resource-day.
func (s *BalancerService) Utilization(ctx context.Context, from, to string) (*models.UtilizationReport, error) {
	dates, err := s.dateRange(from, to)
	if err != nil {
		return nil, err
	}
	resources, err := s.directory.Qualified(ctx)
	if err != nil {
		return nil, err
	}
	report := &models.UtilizationReport{From: dates[0], To: dates[len(dates)-1], Days: []models.ResourceUtilization{}}
	total := 0.0
	counted := 0
	for _, date := range dates {
		for i := range resources {
			u, err := s.utilization(ctx, &resources[i], date)
			if err != nil {
				return nil, err
			}
			if u.AvailableMinutes == 0 {
				continue
			}
			report.Days = append(report.Days, u)
			total += u.Utilization
			counted++
		}
	}
	if counted > 0 {
		report.Mean = total / float64(counted)
	}
	s.mu.Lock()
	if s.last != nil {
		report.Moves = s.last.Moves
	}
	s.mu.Unlock()
	return report, nil
}

func (s *BalancerService) utilization(ctx context.Context, res *models.Resource, date string) (models.ResourceUtilization, error) {
	plan, err := s.availability.Plan(ctx, res.ID, date)
	if err != nil {
		return models.ResourceUtilization{}, err
	}
	return models.ResourceUtilization{
		ResourceID:       res.ID,
		Date:             date,
		BookedMinutes:    plan.BookedMinutes(),
		AvailableMinutes: plan.AvailableMinutes(),
		Utilization:      plan.Utilization(),
		Target:           res.Preferences.Workload.TargetUtilization(),
	}, nil
}

// Run balances every date of the range. Each move locks only its two resource-days.
func (s *BalancerService) Run(ctx context.Context, from, to string) (*models.BalanceReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	dates, err := s.dateRange(from, to)
	if err != nil {
		return nil, err
	}
	report := &models.BalanceReport{
		From:      dates[0],
		To:        dates[len(dates)-1],
		Moves:     []models.BalanceMove{},
		StartedAt: s.now().UTC(),
	}
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.balanceDay(ctx, date, report); err != nil {
			return nil, err
		}
	}
	resources, err := s.directory.Qualified(ctx)
	if err != nil {
		return nil, err
	}
	for _, date := range dates {
		for i := range resources {
			u, err := s.utilization(ctx, &resources[i], date)
			if err != nil {
				return nil, err
			}
			if u.AvailableMinutes > 0 {
				report.Utilization = append(report.Utilization, u)
			}
		}
	}
	report.FinishedAt = s.now().UTC()

	s.metrics.RecordBalancerMoves(len(report.Moves))
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	s.logger.Info("workload balanced",
		zap.String("from", report.From),
		zap.String("to", report.To),
		zap.Int("moves", len(report.Moves)),
		zap.Int("discarded", report.Discarded),
	)
	return report, nil
}

// balanceDay repeatedly moves one booking from the busiest resource to the least busy
// qualified one while their utilization gap exceeds the threshold.
func (s *BalancerService) balanceDay(ctx context.Context, date string, report *models.BalanceReport) error {
	resources, err := s.directory.Qualified(ctx)
	if err != nil {
		return err
	}
	today, nowMinute := s.clock()
	if date < today {
		return nil
	}
	tried := make(map[string]bool)

	for {
		utils := make(map[string]models.ResourceUtilization, len(resources))
		var ranked []models.Resource
		for i := range resources {
			u, err := s.utilization(ctx, &resources[i], date)
			if err != nil {
				return err
			}
			if u.AvailableMinutes == 0 {
				continue
			}
			utils[resources[i].ID] = u
			ranked = append(ranked, resources[i])
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			a, b := utils[ranked[i].ID].Utilization, utils[ranked[j].ID].Utilization
			if a != b {
				return a > b
			}
			return ranked[i].ID < ranked[j].ID
		})

		moved := false
		for _, src := range ranked {
			snapshot, err := s.store.Snapshot(ctx, models.DayKey{ResourceID: src.ID, Date: date})
			if err != nil {
				return err
			}
			for _, b := range snapshot.Occupying() {
				if tried[b.ID] || !b.ResourceFlexible || (date == today && b.Start <= nowMinute) {
					continue
				}
				skill, _ := s.directory.SkillOf(b)
				for i := len(ranked) - 1; i >= 0; i-- {
					dst := ranked[i]
					if dst.ID == src.ID || !dst.HasSkill(skill) {
						continue
					}
					if utils[src.ID].Utilization-utils[dst.ID].Utilization <= s.threshold {
						break
					}
					ok, err := s.move(ctx, b, &dst)
					if err != nil {
						return err
					}
					if !ok {
						report.Discarded++
						continue
					}
					tried[b.ID] = true
					report.Moves = append(report.Moves, models.BalanceMove{
						BookingID:    b.ID,
						Date:         date,
						FromResource: src.ID,
						ToResource:   dst.ID,
						Interval:     b.Interval,
					})
					moved = true
					break
				}
				tried[b.ID] = true
				if moved {
					break
				}
			}
			if moved {
				break
			}
		}
		if !moved {
			return nil
		}
	}
}

// move re-validates under both resource-day locks and transfers the booking at the same
// time. A move that no longer fits is discarded.
func (s *BalancerService) move(ctx context.Context, b models.Booking, dst *models.Resource) (bool, error) {
	from := models.DayKey{ResourceID: b.ResourceID, Date: b.Date}
	to := models.DayKey{ResourceID: dst.ID, Date: b.Date}
	var moved models.Booking
	err := s.store.WithDays(ctx, []models.DayKey{from, to}, func(tx *CalendarTx) error {
		src, err := tx.Day(from)
		if err != nil {
			return err
		}
		current, ok := src.Get(b.ID)
		if !ok || !current.Status.Occupies() || current.Interval != b.Interval {
			return errDiscardMove
		}
		target, err := tx.Day(to)
		if err != nil {
			return err
		}
		plan, err := s.availability.PlanFor(dst, b.Date, target.Bookings())
		if err != nil {
			return err
		}
		if !plan.Fits(b.Interval) {
			return errDiscardMove
		}
		moved, err = tx.Move(b.ID, from, to, b.Interval)
		return err
	})
	switch {
	case errors.Is(err, errDiscardMove), errors.Is(err, appErrors.ErrReservationRaceLost), errors.Is(err, appErrors.ErrConstraintViolation):
		s.logger.Debug("balance move discarded", zap.String("booking_id", b.ID), zap.String("to", dst.ID))
		return false, nil
	case err != nil:
		return false, err
	}
	s.notifier.BookingReassigned(ctx, moved, b.ResourceID)
	return true, nil
}

var errDiscardMove = errors.New("balance move no longer valid")
