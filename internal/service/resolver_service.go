package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
)

// maxCandidatesPerLevel bounds how many alternatives one level contributes.
const maxCandidatesPerLevel = 3

// AutoApprover is recorded as the decider of auto-applied resolutions.
const AutoApprover = "auto"

// ResolutionStore persists resolutions.
type ResolutionStore interface {
	Upsert(ctx context.Context, res *models.Resolution) error
	GetByID(ctx context.Context, id string) (*models.Resolution, error)
	FindPendingByConflict(ctx context.Context, conflictID string) (*models.Resolution, error)
	ListPending(ctx context.Context) ([]models.Resolution, error)
	HasOutcome(ctx context.Context, conflictID string) (bool, error)
}

// ResolverService generates ranked remediation candidates for open conflicts and
// applies the chosen one under the calendar locks.
type ResolverService struct {
	store        *CalendarStore
	availability *AvailabilityService
	directory    *DirectoryService
	optimizer    *Optimizer
	conflicts    *ConflictService
	repo         ResolutionStore
	notifier     *NotificationService
	metrics      *MetricsService
	autoApply    bool
	logger       *zap.Logger
	now          func() time.Time
}

// NewResolverService constructs the resolver.
func NewResolverService(store *CalendarStore, availability *AvailabilityService, directory *DirectoryService, optimizer *Optimizer, conflicts *ConflictService, repo ResolutionStore, notifier *NotificationService, metrics *MetricsService, autoApply bool, logger *zap.Logger) *ResolverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolverService{
		store:        store,
		availability: availability,
		directory:    directory,
		optimizer:    optimizer,
		conflicts:    conflicts,
		repo:         repo,
		notifier:     notifier,
		metrics:      metrics,
		autoApply:    autoApply,
		logger:       logger,
		now:          time.Now,
	}
}

// Resolve proposes a resolution for an open conflict. An unchanged pending proposal is
// returned as is; a closed conflict yields nil. Low and medium conflicts with exactly one
// reassignment candidate are applied straight away when auto-apply is enabled.
func (s *ResolverService) Resolve(ctx context.Context, conflictID string) (*models.Resolution, error) {
	rec, err := s.conflicts.Get(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if !rec.Open() {
		return nil, nil
	}
	pending, err := s.repo.FindPendingByConflict(ctx, conflictID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending resolution")
	}

	res, err := s.Propose(ctx, rec)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		if sameCandidates(pending.Candidates, res.Candidates) {
			return pending, nil
		}
		pending.Status = models.ResolutionSuperseded
		pending.UpdatedAt = s.now().UTC()
		if err := s.repo.Upsert(ctx, pending); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to supersede resolution")
		}
	}

	if s.canAutoApply(res) {
		if err := s.repo.Upsert(ctx, res); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save resolution")
		}
		applied, err := s.Apply(ctx, res, 0, AutoApprover)
		if err == nil {
			return applied, nil
		}
		if !errors.Is(err, appErrors.ErrStaleCandidate) {
			return nil, err
		}
		s.logger.Info("auto-apply candidate went stale", zap.String("conflict_id", conflictID))
		return res, nil
	}

	if res.Severity.RequiresApproval() {
		res.Status = models.ResolutionPendingReview
	}
	if err := s.repo.Upsert(ctx, res); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save resolution")
	}
	s.metrics.RecordResolution(res.Action, res.Status)
	s.notifier.ResolutionPending(ctx, res)
	s.logger.Info("resolution proposed",
		zap.String("conflict_id", conflictID),
		zap.String("resolution_id", res.ID),
		zap.String("action", string(res.Action)),
		zap.String("severity", string(res.Severity)),
		zap.Int("candidates", len(res.Candidates)),
	)
	return res, nil
}

// ResolveOutstanding proposes resolutions for open conflicts that never got one, for
// instance when the worker dropped the job or the process restarted. Conflicts with an
// undecided, applied or rejected resolution are left alone.
func (s *ResolverService) ResolveOutstanding(ctx context.Context) (int, error) {
	var open []models.ConflictRecord
	for page := 1; ; page++ {
		records, meta, err := s.conflicts.List(ctx, models.ConflictFilter{Status: models.ConflictOpen, Page: page, PageSize: 100})
		if err != nil {
			return 0, err
		}
		open = append(open, records...)
		if len(records) == 0 || page*meta.PageSize >= meta.TotalCount {
			break
		}
	}

	resolved := 0
	for _, rec := range open {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		has, err := s.repo.HasOutcome(ctx, rec.ID)
		if err != nil {
			return resolved, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resolutions")
		}
		if has {
			continue
		}
		res, err := s.Resolve(ctx, rec.ID)
		switch {
		case errors.Is(err, appErrors.ErrStaleCandidate), errors.Is(err, appErrors.ErrConflictNotFound):
			continue
		case err != nil:
			s.logger.Warn("resolve outstanding conflict failed", zap.String("conflict_id", rec.ID), zap.Error(err))
			continue
		}
		if res != nil {
			resolved++
		}
	}
	if resolved > 0 {
		s.logger.Info("outstanding conflicts resolved", zap.Int("count", resolved))
	}
	return resolved, nil
}

func (s *ResolverService) canAutoApply(res *models.Resolution) bool {
	return s.autoApply &&
		!res.Severity.RequiresApproval() &&
		res.Action == models.ActionReassign &&
		len(res.Candidates) == 1
}

// Propose builds the candidate list for a conflict without persisting it. Levels are
// tried in order and the first level producing a candidate decides the action:
// reassign, reschedule, split, then cancel with compensation.
func (s *ResolverService) Propose(ctx context.Context, rec *models.ConflictRecord) (*models.Resolution, error) {
	target, err := s.target(ctx, rec)
	if err != nil {
		return nil, err
	}
	// a service gone from the catalog leaves cancellation as the only remedy
	svc, err := s.directory.Service(ctx, target.ServiceID)
	if err != nil && !errors.Is(err, appErrors.ErrServiceNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	res := &models.Resolution{
		ID:         uuid.NewString(),
		ConflictID: rec.ID,
		Severity:   rec.Severity,
		Status:     models.ResolutionProposed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	levels := []struct {
		action models.ResolutionAction
		build  func(context.Context, models.Booking, *models.Service) ([]models.Candidate, error)
	}{
		{models.ActionReassign, s.reassignCandidates},
		{models.ActionReschedule, s.rescheduleCandidates},
		{models.ActionSplit, s.splitCandidates},
	}
	for _, level := range levels {
		if svc == nil {
			break
		}
		cands, err := level.build(ctx, target, svc)
		if err != nil {
			return nil, err
		}
		if len(cands) > 0 {
			res.Action = level.action
			res.Candidates = cands
			return res, nil
		}
	}
	res.Action = models.ActionCancel
	res.Candidates = []models.Candidate{s.cancelCandidate(target)}
	return res, nil
}

// target picks the weakest displaced booking that is still conflicted.
func (s *ResolverService) target(ctx context.Context, rec *models.ConflictRecord) (models.Booking, error) {
	var displaced []models.Booking
	for _, id := range rec.DisplacedIDs {
		b, err := s.store.GetBooking(ctx, id)
		if err != nil {
			if errors.Is(err, appErrors.ErrBookingNotFound) {
				continue
			}
			return models.Booking{}, err
		}
		if b.Status == models.BookingConflicted {
			displaced = append(displaced, b)
		}
	}
	if len(displaced) == 0 {
		return models.Booking{}, appErrors.WithDetails(appErrors.ErrStaleCandidate, map[string]any{
			"conflictId": rec.ID,
			"reason":     "no displaced booking left",
		})
	}
	sort.Slice(displaced, func(i, j int) bool { return keepsBefore(displaced[i], displaced[j]) })
	return displaced[len(displaced)-1], nil
}


// reassignCandidates finds other qualified resources free at the same date and time,
// least utilized first.
func (s *ResolverService) reassignCandidates(ctx context.Context, b models.Booking, _ *models.Service) ([]models.Candidate, error) {
	skill, ok := s.directory.SkillOf(b)
	if !ok || skill == "" {
		return nil, nil
	}
	resources, err := s.directory.Qualified(ctx, skill)
	if err != nil {
		return nil, err
	}
	type option struct {
		res  models.Resource
		util float64
		gain float64
	}
	var options []option
	for _, res := range resources {
		if res.ID == b.ResourceID {
			continue
		}
		plan, err := s.availability.Plan(ctx, res.ID, b.Date)
		if err != nil {
			return nil, err
		}
		if !plan.Fits(b.Interval) {
			continue
		}
		gain := 0.0
		if avail := plan.AvailableMinutes(); avail > 0 {
			gain = float64(b.Duration()) / float64(avail)
		}
		options = append(options, option{res: res, util: plan.Utilization(), gain: gain})
	}
	sort.SliceStable(options, func(i, j int) bool {
		if options[i].util != options[j].util {
			return options[i].util < options[j].util
		}
		return options[i].res.ID < options[j].res.ID
	})
	var out []models.Candidate
	for _, o := range options {
		if len(out) == maxCandidatesPerLevel {
			break
		}
		out = append(out, models.Candidate{
			Action:     models.ActionReassign,
			BookingID:  b.ID,
			Placements: []models.Placement{{ResourceID: o.res.ID, Date: b.Date, Interval: b.Interval}},
			Impact: models.Impact{
				RevenueDelta:      decimal.Zero,
				SatisfactionDelta: -0.05,
				UtilizationDelta:  roundImpact(o.gain),
			},
		})
	}
	return out, nil
}

// rescheduleCandidates asks the optimizer for the best slots inside the booking's
// flexibility window.
func (s *ResolverService) rescheduleCandidates(ctx context.Context, b models.Booking, svc *models.Service) ([]models.Candidate, error) {
	start := b.Start
	req := models.PlacementRequest{
		RequestID:           b.ID,
		CustomerID:          b.CustomerID,
		ServiceID:           b.ServiceID,
		PreferredDate:       b.Date,
		PreferredStart:      &start,
		PreferredResourceID: b.ResourceID,
		Flexibility:         b.Flexibility,
		Urgency:             b.Urgency,
		CustomerTier:        b.CustomerTier,
		Paid:                b.Paid,
		Source:              models.SourceResolver,
	}
	slots, err := s.optimizer.Candidates(ctx, req, svc)
	if err != nil {
		return nil, err
	}
	var out []models.Candidate
	for _, c := range slots {
		if len(out) == maxCandidatesPerLevel {
			break
		}
		if c.ResourceID == b.ResourceID && c.Date == b.Date && c.Interval == b.Interval {
			continue
		}
		days, _ := models.DaysBetween(b.Date, c.Date)
		shift := float64(absInt(int(c.Start-b.Start))) / 60
		out = append(out, models.Candidate{
			Action:     models.ActionReschedule,
			BookingID:  b.ID,
			Placements: []models.Placement{{ResourceID: c.ResourceID, Date: c.Date, Interval: c.Interval}},
			Impact: models.Impact{
				RevenueDelta:      decimal.Zero,
				SatisfactionDelta: roundImpact(-0.1 * (1 + float64(days) + shift/8)),
				UtilizationDelta:  0,
			},
		})
	}
	return out, nil
}

// splitCandidates keeps the booked start time and schedules the service components back
// to back, each on a different qualified resource than the component before it.
func (s *ResolverService) splitCandidates(ctx context.Context, b models.Booking, svc *models.Service) ([]models.Candidate, error) {
	if !svc.CanSplit() || b.Component != "" {
		return nil, nil
	}
	var placements []models.Placement
	cursor := b.Start
	previous := ""
	for _, comp := range svc.Components {
		iv := models.NewInterval(cursor, comp.DurationMinutes)
		resources, err := s.directory.Qualified(ctx, comp.SkillTag)
		if err != nil {
			return nil, err
		}
		// prefer the booked resource, then lowest id
		sort.SliceStable(resources, func(i, j int) bool {
			return resources[i].ID == b.ResourceID && resources[j].ID != b.ResourceID
		})
		chosen := ""
		for _, res := range resources {
			if res.ID == previous {
				continue
			}
			plan, err := s.availability.Plan(ctx, res.ID, b.Date)
			if err != nil {
				return nil, err
			}
			if plan.Fits(iv) {
				chosen = res.ID
				break
			}
		}
		if chosen == "" {
			return nil, nil
		}
		placements = append(placements, models.Placement{ResourceID: chosen, Date: b.Date, Interval: iv, Component: comp.Name})
		previous = chosen
		cursor = iv.End
	}
	return []models.Candidate{{
		Action:     models.ActionSplit,
		BookingID:  b.ID,
		Placements: placements,
		Impact: models.Impact{
			RevenueDelta:      decimal.Zero,
			SatisfactionDelta: -0.15,
			UtilizationDelta:  0,
		},
	}}, nil
}

// cancelCandidate sizes a compensation offer by remaining lead time and customer tier.
func (s *ResolverService) cancelCandidate(b models.Booking) models.Candidate {
	comp := s.Compensation(b)
	return models.Candidate{
		Action:       models.ActionCancel,
		BookingID:    b.ID,
		Compensation: &comp,
		Impact: models.Impact{
			RevenueDelta:      b.Price.Add(comp.Amount).Neg(),
			SatisfactionDelta: -0.5,
			UtilizationDelta:  0,
		},
	}
}

// Compensation is rate x price x tier multiplier. Less than a day of notice earns half
// the price as credit, less than three days a quarter, otherwise a tenth as discount.
// VIP customers always receive a free add-on.
func (s *ResolverService) Compensation(b models.Booking) models.Compensation {
	lead := time.Duration(0)
	if start, err := models.At(b.Date, b.Start, s.availability.Location()); err == nil {
		lead = start.Sub(s.now())
	}
	rate := 0.1
	switch {
	case lead < 24*time.Hour:
		rate = 0.5
	case lead < 72*time.Hour:
		rate = 0.25
	}
	rate *= b.CustomerTier.Multiplier()

	kind := models.CompensationDiscount
	switch {
	case b.CustomerTier == models.TierVIP:
		kind = models.CompensationFreeAddon
	case lead < 24*time.Hour:
		kind = models.CompensationCredit
	}
	return models.Compensation{
		Kind:   kind,
		Amount: b.Price.Mul(decimal.NewFromFloat(rate)).Round(2),
		Rate:   roundImpact(rate),
	}
}

func roundImpact(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}

func sameCandidates(a, b []models.Candidate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Action != b[i].Action || a[i].BookingID != b[i].BookingID || len(a[i].Placements) != len(b[i].Placements) {
			return false
		}
		for j := range a[i].Placements {
			if a[i].Placements[j] != b[i].Placements[j] {
				return false
			}
		}
	}
	return true
}

// Get returns a resolution.
func (s *ResolverService) Get(ctx context.Context, id string) (*models.Resolution, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrResolutionNotFound, map[string]any{"resolutionId": id})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resolution")
	}
	return res, nil
}

// ListPending returns resolutions awaiting an operator, most severe first.
func (s *ResolverService) ListPending(ctx context.Context) ([]models.Resolution, error) {
	items, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resolutions")
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Severity.Rank() != items[j].Severity.Rank() {
			return items[i].Severity.Rank() > items[j].Severity.Rank()
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if items == nil {
		items = []models.Resolution{}
	}
	return items, nil
}

// Decide records an operator's accept or reject of a candidate.
func (s *ResolverService) Decide(ctx context.Context, id string, decision models.Decision) (*models.Resolution, error) {
	if decision.OperatorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "operatorId is required")
	}
	res, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.Pending() {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "resolution is no longer pending"), map[string]any{
			"resolutionId": id,
			"status":       res.Status,
		})
	}
	switch decision.Verdict {
	case models.VerdictReject:
		operator := decision.OperatorID
		res.Status = models.ResolutionRejected
		res.DecidedBy = &operator
		res.Note = decision.Note
		res.UpdatedAt = s.now().UTC()
		if err := s.repo.Upsert(ctx, res); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save resolution")
		}
		s.metrics.RecordResolution(res.Action, res.Status)
		return res, nil
	case models.VerdictAccept:
		if decision.CandidateIndex < 0 || decision.CandidateIndex >= len(res.Candidates) {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "candidate index out of range"), map[string]any{
				"candidateIndex": decision.CandidateIndex,
				"candidates":     len(res.Candidates),
			})
		}
		res.Note = decision.Note
		return s.Apply(ctx, res, decision.CandidateIndex, decision.OperatorID)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "verdict must be accept or reject")
	}
}

// Apply commits a candidate. High and critical conflicts require a named human approver.
// The candidate is re-validated under the locks of every resource-day it touches; a
// candidate that no longer fits supersedes the resolution and fails with ErrStaleCandidate.
func (s *ResolverService) Apply(ctx context.Context, res *models.Resolution, index int, approver string) (*models.Resolution, error) {
	if res.Severity.RequiresApproval() && (approver == "" || approver == AutoApprover) {
		return nil, appErrors.WithDetails(appErrors.ErrApprovalRequired, map[string]any{
			"resolutionId": res.ID,
			"conflictId":   res.ConflictID,
			"severity":     res.Severity,
		})
	}
	if index < 0 || index >= len(res.Candidates) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "candidate index out of range")
	}
	cand := res.Candidates[index]
	rec, err := s.conflicts.Get(ctx, res.ConflictID)
	if err != nil {
		return nil, err
	}
	source := models.DayKey{ResourceID: rec.ResourceID, Date: rec.Date}
	keys := []models.DayKey{source}
	for _, p := range cand.Placements {
		keys = append(keys, models.DayKey{ResourceID: p.ResourceID, Date: p.Date})
	}

	var affected models.Booking
	err = s.store.WithDays(ctx, keys, func(tx *CalendarTx) error {
		src, err := tx.Day(source)
		if err != nil {
			return err
		}
		current, ok := src.Conflict(res.ConflictID)
		if !ok || !current.Open() {
			return s.stale(res, "conflict is no longer open")
		}
		b, ok := src.Get(cand.BookingID)
		if !ok || b.Status != models.BookingConflicted {
			return s.stale(res, "target booking is no longer displaced")
		}
		if err := s.checkPlacements(ctx, tx, cand); err != nil {
			return err
		}
		affected, err = s.mutate(ctx, tx, src, b, cand)
		if err != nil {
			return err
		}
		current.Status = models.ConflictResolved
		closedAt := tx.Now()
		current.ClosedAt = &closedAt
		current.ResolutionID = &res.ID
		src.SetConflict(current)
		return nil
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrStaleCandidate) {
			s.supersede(ctx, res)
		}
		return nil, err
	}

	now := s.now().UTC()
	chosen := index
	res.Chosen = &chosen
	res.Status = models.ResolutionApplied
	res.DecidedBy = &approver
	res.AppliedAt = &now
	res.UpdatedAt = now
	if err := s.repo.Upsert(ctx, res); err != nil {
		s.logger.Error("applied resolution not recorded", zap.String("resolution_id", res.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save resolution")
	}
	s.metrics.RecordResolution(res.Action, res.Status)
	s.notifier.ResolutionApplied(ctx, res, affected)
	if cand.Action == models.ActionReassign {
		s.notifier.BookingReassigned(ctx, affected, rec.ResourceID)
	}
	s.logger.Info("resolution applied",
		zap.String("resolution_id", res.ID),
		zap.String("conflict_id", res.ConflictID),
		zap.String("action", string(cand.Action)),
		zap.String("booking_id", cand.BookingID),
		zap.String("approver", approver),
	)
	return res, nil
}

func (s *ResolverService) stale(res *models.Resolution, reason string) error {
	return appErrors.WithDetails(appErrors.ErrStaleCandidate, map[string]any{
		"resolutionId": res.ID,
		"conflictId":   res.ConflictID,
		"reason":       reason,
	})
}

func (s *ResolverService) supersede(ctx context.Context, res *models.Resolution) {
	res.Status = models.ResolutionSuperseded
	res.UpdatedAt = s.now().UTC()
	if err := s.repo.Upsert(ctx, res); err != nil {
		s.logger.Warn("supersede resolution failed", zap.String("resolution_id", res.ID), zap.Error(err))
		return
	}
	s.metrics.RecordResolution(res.Action, res.Status)
}

// checkPlacements re-validates every placement against the locked calendar.
func (s *ResolverService) checkPlacements(ctx context.Context, tx *CalendarTx, cand models.Candidate) error {
	for i, p := range cand.Placements {
		day, err := tx.Day(models.DayKey{ResourceID: p.ResourceID, Date: p.Date})
		if err != nil {
			return err
		}
		res, err := s.directory.Resource(ctx, p.ResourceID)
		if err != nil {
			return err
		}
		bookings := day.Bookings()
		// earlier placements of the same candidate on this day count as booked
		for _, prev := range cand.Placements[:i] {
			if prev.ResourceID == p.ResourceID && prev.Date == p.Date {
				bookings = append(bookings, models.Booking{ID: "pending-" + prev.Component, Interval: prev.Interval, Status: models.BookingTentative})
			}
		}
		plan, err := s.availability.PlanFor(res, p.Date, bookings)
		if err != nil {
			return err
		}
		if !plan.Fits(p.Interval) {
			return appErrors.WithDetails(appErrors.ErrStaleCandidate, map[string]any{
				"resourceId":          p.ResourceID,
				"date":                p.Date,
				"interval":            p.Interval.String(),
				"conflictingBookings": bookingIDs(plan.Overlapping(p.Interval)),
			})
		}
	}
	return nil
}

// mutate performs the candidate's calendar change and returns the booking the customer
// ends up with.
func (s *ResolverService) mutate(ctx context.Context, tx *CalendarTx, src *DayTx, b models.Booking, cand models.Candidate) (models.Booking, error) {
	commitment := b.CommitmentStatus()
	switch cand.Action {
	case models.ActionReassign:
		p := cand.Placements[0]
		moved, err := tx.Move(b.ID, src.Key(), models.DayKey{ResourceID: p.ResourceID, Date: p.Date}, p.Interval)
		if err != nil {
			return models.Booking{}, err
		}
		dst, err := tx.Day(models.DayKey{ResourceID: p.ResourceID, Date: p.Date})
		if err != nil {
			return models.Booking{}, err
		}
		moved.Status = commitment
		moved.PriorStatus = ""
		if err := dst.Update(moved); err != nil {
			return models.Booking{}, err
		}
		return moved, nil

	case models.ActionReschedule, models.ActionSplit:
		if _, err := src.SetStatus(b.ID, models.BookingRescheduled, "conflict resolution"); err != nil {
			return models.Booking{}, err
		}
		var first models.Booking
		for i, p := range cand.Placements {
			nb := b
			nb.ID = uuid.NewString()
			nb.ResourceID = p.ResourceID
			nb.Date = p.Date
			nb.Interval = p.Interval
			nb.Status = commitment
			nb.PriorStatus = ""
			nb.Source = models.SourceResolver
			nb.CancelReason = nil
			nb.CreatedAt = tx.Now()
			original := b.ID
			nb.RescheduledFrom = &original
			if cand.Action == models.ActionSplit {
				nb.Component = p.Component
				nb.ParentBookingID = &original
				nb.RescheduledFrom = nil
				if svc, err := s.directory.Service(ctx, b.ServiceID); err == nil {
					for _, c := range svc.Components {
						if c.Name == p.Component {
							nb.Price = svc.ComponentPrice(c)
						}
					}
				}
			}
			dst, err := tx.Day(models.DayKey{ResourceID: p.ResourceID, Date: p.Date})
			if err != nil {
				return models.Booking{}, err
			}
			if err := dst.Insert(nb); err != nil {
				return models.Booking{}, err
			}
			if i == 0 {
				first = nb
			}
		}
		return first, nil

	case models.ActionCancel:
		return src.SetStatus(b.ID, models.BookingCancelled, "cancelled to resolve a scheduling conflict")

	default:
		return models.Booking{}, fmt.Errorf("unknown resolution action %q", cand.Action)
	}
}
