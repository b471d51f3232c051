package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/pkg/config"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

// ScoringWeights weigh the placement objective terms. They come from configuration.
type ScoringWeights struct {
	Proximity float64
	Balance   float64
	Urgency   float64
}

// SlotCandidate is a feasible (resource, date, interval) for a request with its score.
type SlotCandidate struct {
	ResourceID string `json:"resourceId"`
	Date       string `json:"date"`
	models.Interval
	Proximity float64 `json:"proximity"`
	Balance   float64 `json:"balance"`
	Urgency   float64 `json:"urgency"`
	Score     float64 `json:"score"`
}

// Scorer computes a candidate's objective value. It must be deterministic.
type Scorer interface {
	Score(req models.PlacementRequest, c SlotCandidate) float64
}

// WeightedScorer is the default linear objective.
type WeightedScorer struct {
	Weights ScoringWeights
}

// Score implements Scorer. Values are rounded so float noise cannot reorder ties.
func (w WeightedScorer) Score(_ models.PlacementRequest, c SlotCandidate) float64 {
	raw := w.Weights.Proximity*c.Proximity + w.Weights.Balance*c.Balance + w.Weights.Urgency*c.Urgency
	return math.Round(raw*1e9) / 1e9
}

// PlacementAttempt is the optimizer's answer for one request.
type PlacementAttempt struct {
	Booking    *models.Booking
	Attempts   int
	Candidates int
	Reason     string
}

// Optimizer assigns requests to the best feasible slot and reserves it atomically per
// resource-day.
type Optimizer struct {
	availability *AvailabilityService
	directory    *DirectoryService
	store        *CalendarStore
	scorer       Scorer
	maxAttempts  int
	metrics      *MetricsService
	logger       *zap.Logger
	now          func() time.Time
}

// NewOptimizer constructs the optimizer from the scheduler configuration.
func NewOptimizer(availability *AvailabilityService, directory *DirectoryService, store *CalendarStore, cfg config.SchedulerConfig, metrics *MetricsService, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.MaxCandidateAttempts
	if attempts <= 0 {
		attempts = 5
	}
	return &Optimizer{
		availability: availability,
		directory:    directory,
		store:        store,
		scorer: WeightedScorer{Weights: ScoringWeights{
			Proximity: cfg.WeightProximity,
			Balance:   cfg.WeightBalance,
			Urgency:   cfg.WeightUrgency,
		}},
		maxAttempts: attempts,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// SetScorer replaces the objective.
func (o *Optimizer) SetScorer(s Scorer) {
	o.scorer = s
}

// ValidateRequest checks a request against the catalog and directory.
func (o *Optimizer) ValidateRequest(ctx context.Context, req models.PlacementRequest) (*models.Service, error) {
	if req.CustomerID == "" {
		return nil, appErrors.Clone(appErrors.ErrConstraintViolation, "customerId is required")
	}
	if _, err := models.ParseDate(req.PreferredDate, o.availability.Location()); err != nil {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConstraintViolation, err.Error()), map[string]any{"preferredDate": req.PreferredDate})
	}
	if req.Flexibility.DateRangeDays < 0 || req.Flexibility.TimeFlexibilityHours < 0 {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConstraintViolation, "flexibility must not be negative"), map[string]any{
			"dateRangeDays":        req.Flexibility.DateRangeDays,
			"timeFlexibilityHours": req.Flexibility.TimeFlexibilityHours,
		})
	}
	svc, err := o.directory.Service(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if svc.DurationMinutes <= 0 || svc.DurationMinutes > models.MinutesPerDay {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConstraintViolation, "service duration is invalid"), map[string]any{
			"serviceId": svc.ID,
			"duration":  svc.DurationMinutes,
		})
	}
	if req.PreferredResourceID != "" {
		if _, err := o.directory.Resource(ctx, req.PreferredResourceID); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// today returns the business date and minute of now.
func (o *Optimizer) today() (string, models.Minute) {
	now := o.now().In(o.availability.Location())
	return now.Format(models.DateLayout), models.Minute(now.Hour()*60 + now.Minute())
}

// Candidates enumerates and ranks every feasible slot inside the request's flexibility
// window: score descending, then earliest date and start, then lowest resource id.
func (o *Optimizer) Candidates(ctx context.Context, req models.PlacementRequest, svc *models.Service) ([]SlotCandidate, error) {
	resources, err := o.directory.Qualified(ctx, svc.SkillTag)
	if err != nil {
		return nil, err
	}
	today, nowMinute := o.today()
	tolerance := req.Flexibility.TimeToleranceMinutes()

	var out []SlotCandidate
	for offset := 0; offset <= req.Flexibility.DateRangeDays; offset++ {
		date, err := models.AddDays(req.PreferredDate, offset)
		if err != nil {
			return nil, err
		}
		if date < today {
			continue
		}
		for i := range resources {
			res := &resources[i]
			if !req.AcceptsResource(res.ID) {
				continue
			}
			plan, err := o.availability.Plan(ctx, res.ID, date)
			if err != nil {
				return nil, err
			}
			balance := balanceScore(plan.Utilization(), res.Preferences.Workload.TargetUtilization())
			for _, start := range plan.Starts(svc.DurationMinutes, o.availability.Granularity()) {
				if date == today && start <= nowMinute {
					continue
				}
				timeOffset := 0
				if req.PreferredStart != nil {
					timeOffset = absInt(int(start - *req.PreferredStart))
					if timeOffset > tolerance {
						continue
					}
				}
				c := SlotCandidate{
					ResourceID: res.ID,
					Date:       date,
					Interval:   models.NewInterval(start, svc.DurationMinutes),
					Proximity:  proximityScore(offset, timeOffset, req.PreferredResourceID, res.ID),
					Balance:    balance,
					Urgency:    req.Urgency.Weight() / float64(1+offset),
				}
				c.Score = o.scorer.Score(req, c)
				out = append(out, c)
			}
		}
	}
	sortCandidates(out)
	return out, nil
}

func sortCandidates(cands []SlotCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.ResourceID < b.ResourceID
	})
}

// proximityScore is 1 for the exact preference and decays with distance in days and hours.
// Moving away from a named preferred resource costs a little.
func proximityScore(dayOffset, minuteOffset int, preferred, resourceID string) float64 {
	score := 1 / (1 + float64(dayOffset) + float64(minuteOffset)/60)
	if preferred != "" && preferred != resourceID {
		score *= 0.9
	}
	return score
}

// balanceScore favours resources furthest below their target utilization.
func balanceScore(utilization, target float64) float64 {
	if target <= 0 {
		return 0
	}
	score := 1 - utilization/target
	if score < 0 {
		return 0
	}
	return score
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Place reserves the best candidate for req with the given status. A candidate that
// another request took first is skipped for the next one, up to the attempt budget.
// A nil Booking in the result means nothing could be reserved.
func (o *Optimizer) Place(ctx context.Context, req models.PlacementRequest, status models.BookingStatus) (*PlacementAttempt, error) {
	svc, err := o.ValidateRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	cands, err := o.Candidates(ctx, req, svc)
	if err != nil {
		return nil, err
	}
	result := &PlacementAttempt{Candidates: len(cands)}
	if len(cands) == 0 {
		result.Reason = "no slot available within the flexibility window"
		return result, nil
	}
	for _, c := range cands {
		if result.Attempts >= o.maxAttempts {
			result.Reason = "candidate attempts exhausted"
			return result, nil
		}
		result.Attempts++
		booking, err := o.reserve(ctx, req, svc, c, status)
		if err == nil {
			result.Booking = booking
			return result, nil
		}
		if errors.Is(err, appErrors.ErrReservationRaceLost) {
			o.metrics.RecordRace()
			o.logger.Debug("reservation race lost",
				zap.String("resource_id", c.ResourceID),
				zap.String("date", c.Date),
				zap.String("slot", c.Interval.String()),
				zap.Int("attempt", result.Attempts),
			)
			continue
		}
		return nil, err
	}
	result.Reason = "every candidate was taken concurrently"
	return result, nil
}

// reserve re-validates the candidate under the resource-day lock and inserts the booking.
func (o *Optimizer) reserve(ctx context.Context, req models.PlacementRequest, svc *models.Service, c SlotCandidate, status models.BookingStatus) (*models.Booking, error) {
	key := models.DayKey{ResourceID: c.ResourceID, Date: c.Date}
	res, err := o.directory.Resource(ctx, c.ResourceID)
	if err != nil {
		return nil, err
	}
	source := req.Source
	if source == "" {
		source = models.SourceOptimizer
	}
	booking := models.Booking{
		ID:           uuid.NewString(),
		ResourceID:   c.ResourceID,
		ServiceID:    svc.ID,
		CustomerID:   req.CustomerID,
		Date:         c.Date,
		Interval:     c.Interval,
		Status:       status,
		Priority:     models.PriorityScore(req.Urgency, req.CustomerTier, req.Paid),
		Urgency:      req.Urgency,
		CustomerTier: req.CustomerTier,
		Paid:         req.Paid,
		Price:        svc.Price,
		Flexibility:  req.Flexibility,
		Source:       source,
	}
	err = o.store.WithDay(ctx, key, func(day *DayTx) error {
		plan, err := o.availability.PlanFor(res, c.Date, day.Bookings())
		if err != nil {
			return err
		}
		if !plan.Fits(c.Interval) {
			ids := bookingIDs(plan.Overlapping(c.Interval))
			return appErrors.WithDetails(appErrors.ErrReservationRaceLost, map[string]any{
				"resourceId":          c.ResourceID,
				"date":                c.Date,
				"conflictingBookings": ids,
			})
		}
		return day.Insert(booking)
	})
	if err != nil {
		return nil, err
	}
	// detection runs at commit and may have flagged the new booking
	committed, err := o.store.GetBooking(ctx, booking.ID)
	if err != nil {
		o.logger.Warn("reload reserved booking failed", zap.String("booking_id", booking.ID), zap.Error(err))
	} else {
		booking = committed
	}
	o.logger.Info("booking reserved",
		zap.String("booking_id", booking.ID),
		zap.String("resource_id", booking.ResourceID),
		zap.String("date", booking.Date),
		zap.String("slot", booking.Interval.String()),
		zap.String("status", string(booking.Status)),
	)
	return &booking, nil
}

// BatchOrder sorts requests by descending urgency, then ascending arrival, then request id.
func BatchOrder(reqs []models.PlacementRequest) []int {
	order := make([]int, len(reqs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := reqs[order[i]], reqs[order[j]]
		if a.Urgency.Rank() != b.Urgency.Rank() {
			return a.Urgency.Rank() > b.Urgency.Rank()
		}
		if !a.ArrivedAt.Equal(b.ArrivedAt) {
			return a.ArrivedAt.Before(b.ArrivedAt)
		}
		return a.RequestID < b.RequestID
	})
	return order
}
