package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/jobs"
)

// doubleBook seeds keeper then late on the same slot and returns the open conflict.
func doubleBook(t *testing.T, f *engineFixture, keeper, late models.Booking) models.ConflictRecord {
	t.Helper()
	late.CreatedAt = keeper.CreatedAt.Add(time.Minute)
	f.seed(t, keeper, late)
	snap, err := f.store.Snapshot(context.Background(), models.DayKey{ResourceID: keeper.ResourceID, Date: keeper.Date})
	require.NoError(t, err)
	for _, c := range snap.Conflicts {
		if c.Open() {
			return c
		}
	}
	t.Fatalf("no open conflict on %s", keeper.ResourceID)
	return models.ConflictRecord{}
}

func TestResolverCriticalConflictNeedsHumanApproval(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{autoApply: true})
	keeper := fixtureBooking("keeper", "stylist-1", "10:00", models.BookingConfirmed)
	keeper.Paid = true
	late := fixtureBooking("late", "stylist-1", "10:00", models.BookingConfirmed)
	late.Paid = true
	rec := doubleBook(t, f, keeper, late)
	assert.Equal(t, models.SeverityCritical, rec.Severity)
	assert.Equal(t, []string{"late"}, []string(rec.DisplacedIDs))

	res, err := f.resolver.Resolve(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionPendingReview, res.Status)
	assert.Equal(t, models.ActionReassign, res.Action)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "stylist-2", res.Candidates[0].Placements[0].ResourceID)

	pending, err := f.resolver.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.ID, pending[0].ID)

	_, err = f.resolver.Apply(context.Background(), res, 0, AutoApprover)
	assert.True(t, errors.Is(err, appErrors.ErrApprovalRequired))
	_, err = f.resolver.Apply(context.Background(), res, 0, "")
	assert.True(t, errors.Is(err, appErrors.ErrApprovalRequired))

	late2, err := f.store.GetBooking(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConflicted, late2.Status)
	assert.Equal(t, "stylist-1", late2.ResourceID)

	applied, err := f.resolver.Decide(context.Background(), res.ID, models.Decision{
		Verdict:    models.VerdictAccept,
		OperatorID: "op-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionApplied, applied.Status)
	require.NotNil(t, applied.DecidedBy)
	assert.Equal(t, "op-1", *applied.DecidedBy)

	moved, err := f.store.GetBooking(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, "stylist-2", moved.ResourceID)
	assert.Equal(t, models.BookingConfirmed, moved.Status)
	assert.Equal(t, "10:00", moved.Start.String())

	closed, err := f.conflicts.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictResolved, closed.Status)
	require.NotNil(t, closed.ResolutionID)
	assert.Equal(t, res.ID, *closed.ResolutionID)
}

func TestResolverAutoAppliesSingleReassignment(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{autoApply: true})
	rec := doubleBook(t, f,
		fixtureBooking("keeper", "stylist-1", "10:00", models.BookingTentative),
		fixtureBooking("late", "stylist-1", "10:30", models.BookingTentative),
	)
	assert.Equal(t, models.SeverityLow, rec.Severity)

	res, err := f.resolver.Resolve(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionApplied, res.Status)
	require.NotNil(t, res.DecidedBy)
	assert.Equal(t, AutoApprover, *res.DecidedBy)

	moved, err := f.store.GetBooking(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, "stylist-2", moved.ResourceID)
	assert.Equal(t, models.BookingTentative, moved.Status)
}

func TestResolverStaleCandidateSupersedes(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	rec := doubleBook(t, f,
		fixtureBooking("keeper", "stylist-1", "10:00", models.BookingTentative),
		fixtureBooking("late", "stylist-1", "10:00", models.BookingTentative),
	)
	res, err := f.resolver.Resolve(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionProposed, res.Status)

	again, err := f.resolver.Resolve(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, again.ID)

	f.seed(t, fixtureBooking("taken", "stylist-2", "10:00", models.BookingConfirmed))

	_, err = f.resolver.Decide(context.Background(), res.ID, models.Decision{Verdict: models.VerdictAccept, OperatorID: "op-1"})
	assert.True(t, errors.Is(err, appErrors.ErrStaleCandidate))

	stored, err := f.resolver.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionSuperseded, stored.Status)

	late, err := f.store.GetBooking(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConflicted, late.Status)
}

func TestResolverFallsBackToCancelWithCompensation(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{resources: []models.Resource{
		{ID: "stylist-1", Name: "Sam", Skills: []string{"cut"}, Active: true},
	}})
	rec := doubleBook(t, f,
		fixtureBooking("keeper", "stylist-1", "10:00", models.BookingTentative),
		fixtureBooking("late", "stylist-1", "10:00", models.BookingTentative),
	)

	res, err := f.resolver.Resolve(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCancel, res.Action)
	require.Len(t, res.Candidates, 1)
	comp := res.Candidates[0].Compensation
	require.NotNil(t, comp)
	assert.Equal(t, models.CompensationDiscount, comp.Kind)
	assert.True(t, comp.Amount.Equal(decimal.RequireFromString("12.5")), comp.Amount.String())

	_, err = f.resolver.Decide(context.Background(), res.ID, models.Decision{Verdict: models.VerdictAccept, OperatorID: "op-1"})
	require.NoError(t, err)
	late, err := f.store.GetBooking(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, late.Status)
}

func TestResolverSplitsAcrossResources(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	busyColor := fixtureBooking("color-busy", "colorist-1", "12:00", models.BookingConfirmed)
	busyColor.ServiceID = "color"
	busyColor.Interval = models.NewInterval(models.MustMinute("12:00"), 90)
	f.seed(t, busyColor)

	keeper := fixtureBooking("keeper", "stylist-1", "10:00", models.BookingConfirmed)
	late := fixtureBooking("late", "stylist-1", "10:00", models.BookingTentative)
	late.ServiceID = "cut-color"
	late.Interval = models.NewInterval(models.MustMinute("10:00"), 150)
	late.Price = decimal.NewFromInt(150)
	rec := doubleBook(t, f, keeper, late)

	res, err := f.resolver.Resolve(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.ActionSplit, res.Action)
	require.Len(t, res.Candidates, 1)
	placements := res.Candidates[0].Placements
	require.Len(t, placements, 2)
	assert.Equal(t, "stylist-2", placements[0].ResourceID)
	assert.Equal(t, "cut", placements[0].Component)
	assert.Equal(t, "10:00-11:00", placements[0].Interval.String())
	assert.Equal(t, "stylist-1", placements[1].ResourceID)
	assert.Equal(t, "color", placements[1].Component)
	assert.Equal(t, "11:00-12:30", placements[1].Interval.String())

	_, err = f.resolver.Decide(context.Background(), res.ID, models.Decision{Verdict: models.VerdictAccept, OperatorID: "op-1"})
	require.NoError(t, err)

	original, err := f.store.GetBooking(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, models.BookingRescheduled, original.Status)

	snap, err := f.store.Snapshot(context.Background(), models.DayKey{ResourceID: "stylist-2", Date: fixtureDate})
	require.NoError(t, err)
	require.Len(t, snap.Bookings, 1)
	part := snap.Bookings[0]
	assert.Equal(t, "cut", part.Component)
	require.NotNil(t, part.ParentBookingID)
	assert.Equal(t, "late", *part.ParentBookingID)
	assert.True(t, part.Price.Equal(decimal.NewFromInt(60)))
}

func TestResolverRejectDecision(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	rec := doubleBook(t, f,
		fixtureBooking("keeper", "stylist-1", "10:00", models.BookingTentative),
		fixtureBooking("late", "stylist-1", "10:00", models.BookingTentative),
	)
	res, err := f.resolver.Resolve(context.Background(), rec.ID)
	require.NoError(t, err)

	_, err = f.resolver.Decide(context.Background(), res.ID, models.Decision{Verdict: models.VerdictReject})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	rejected, err := f.resolver.Decide(context.Background(), res.ID, models.Decision{Verdict: models.VerdictReject, OperatorID: "op-1", Note: "call customer"})
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionRejected, rejected.Status)

	_, err = f.resolver.Decide(context.Background(), res.ID, models.Decision{Verdict: models.VerdictAccept, OperatorID: "op-1"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestResolveOutstandingRecoversDroppedJob(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	// never started, so every enqueue fails
	worker := NewEngineWorker(f.resolver, f.waitlist, f.conflicts, nil, NewNotificationService(nil, nil), nil, time.UTC, jobs.QueueConfig{})
	f.store.AddListener(worker)

	rec := doubleBook(t, f,
		fixtureBooking("keeper", "stylist-1", "10:00", models.BookingTentative),
		fixtureBooking("late", "stylist-1", "10:00", models.BookingTentative),
	)
	_, err := f.resolutions.FindPendingByConflict(context.Background(), rec.ID)
	require.Error(t, err)

	resolved, err := f.resolver.ResolveOutstanding(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	pending, err := f.resolutions.FindPendingByConflict(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionReassign, pending.Action)

	resolved, err = f.resolver.ResolveOutstanding(context.Background())
	require.NoError(t, err)
	assert.Zero(t, resolved)

	_, err = f.resolver.Decide(context.Background(), pending.ID, models.Decision{Verdict: models.VerdictReject, OperatorID: "op-1"})
	require.NoError(t, err)
	resolved, err = f.resolver.ResolveOutstanding(context.Background())
	require.NoError(t, err)
	assert.Zero(t, resolved, "a rejected proposal is an operator outcome")
}

func TestResolveOutstandingRetriesSupersededProposal(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	rec := doubleBook(t, f,
		fixtureBooking("keeper", "stylist-1", "10:00", models.BookingTentative),
		fixtureBooking("late", "stylist-1", "10:00", models.BookingTentative),
	)
	res, err := f.resolver.Resolve(context.Background(), rec.ID)
	require.NoError(t, err)
	res.Status = models.ResolutionSuperseded
	require.NoError(t, f.resolutions.Upsert(context.Background(), res))

	resolved, err := f.resolver.ResolveOutstanding(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	pending, err := f.resolutions.FindPendingByConflict(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.NotEqual(t, res.ID, pending.ID)
}

func TestResolverRetiredServiceOnlyCancels(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{autoApply: true})
	late := fixtureBooking("late", "stylist-1", "10:00", models.BookingTentative)
	late.ServiceID = "perm"
	rec := doubleBook(t, f, fixtureBooking("keeper", "stylist-1", "10:00", models.BookingTentative), late)
	assert.Equal(t, []string{"late"}, []string(rec.DisplacedIDs))

	cands, err := f.resolver.reassignCandidates(context.Background(), late, nil)
	require.NoError(t, err)
	assert.Empty(t, cands, "stylist-2 is free but nobody is known to perform the service")

	res, err := f.resolver.Resolve(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCancel, res.Action)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "late", res.Candidates[0].BookingID)
}

func TestCompensationByLeadTimeAndTier(t *testing.T) {
	f := newEngineFixture(t, fixtureOptions{})
	b := fixtureBooking("b", "stylist-1", "10:00", models.BookingConfirmed)

	f.resolver.now = func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) }
	b.CustomerTier = models.TierVIP
	comp := f.resolver.Compensation(b)
	assert.Equal(t, models.CompensationFreeAddon, comp.Kind)
	assert.InDelta(t, 0.75, comp.Rate, 1e-9)
	assert.True(t, comp.Amount.Equal(decimal.RequireFromString("37.5")), comp.Amount.String())

	b.CustomerTier = models.TierStandard
	comp = f.resolver.Compensation(b)
	assert.Equal(t, models.CompensationCredit, comp.Kind)
	assert.True(t, comp.Amount.Equal(decimal.NewFromInt(25)))

	f.resolver.now = func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) }
	b.CustomerTier = models.TierGold
	comp = f.resolver.Compensation(b)
	assert.Equal(t, models.CompensationDiscount, comp.Kind)
	assert.True(t, comp.Amount.Equal(decimal.RequireFromString("6.25")), comp.Amount.String())
}
