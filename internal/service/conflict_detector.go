package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

// conflictNamespace seeds deterministic conflict ids: the same violation on the
// same bookings always yields the same record id.
var conflictNamespace = uuid.MustParse("6f1c7a52-3d0e-4b8e-9a51-5c2f0f4e8d11")

// DayContext is what the detector needs to know about a resource-day besides its bookings.
type DayContext struct {
	Key      models.DayKey
	Resource *models.Resource
	Windows  []models.Interval
	Breaks   []models.Block
	Limits   Limits
	SkillOf  func(b models.Booking) (string, bool)
}

// Detection is the detector's verdict for one resource-day.
type Detection struct {
	Records []models.ConflictRecord
	// Displaced maps each displaced booking id to the record that displaced it.
	Displaced map[string]string
}

// ConflictDetector finds overlaps, staff unavailability, skill mismatches and
// consecutive-work violations. It is pure: the same input yields the same records.
type ConflictDetector struct {
	revenueThreshold decimal.Decimal
	now              func() time.Time
}

// NewConflictDetector builds a detector. A zero threshold disables revenue escalation.
func NewConflictDetector(revenueThreshold decimal.Decimal) *ConflictDetector {
	return &ConflictDetector{revenueThreshold: revenueThreshold, now: time.Now}
}

// claims reports whether a booking holds or disputes its interval.
func claims(b models.Booking) bool {
	return b.Status.Occupies() || b.Status == models.BookingConflicted
}

// Detect runs every check over the claiming bookings of a resource-day.
func (d *ConflictDetector) Detect(dc DayContext, bookings []models.Booking) Detection {
	claiming := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if claims(b) {
			claiming = append(claiming, b)
		}
	}
	sortBookings(claiming)

	out := Detection{Displaced: make(map[string]string)}
	plan := &DayPlan{Windows: dc.Windows, Breaks: dc.Breaks, Limits: dc.Limits}

	remaining := claiming[:0:0]
	for _, b := range claiming {
		if kind, reason, bad := d.unavailable(dc, plan, b); bad {
			out.add(d.record(dc.Key, kind, reason, []models.Booking{b}, []models.Booking{b}))
			continue
		}
		remaining = append(remaining, b)
	}

	kept := make([]models.Booking, 0, len(remaining))
	for _, group := range overlapGroups(remaining) {
		if len(group) == 1 {
			kept = append(kept, group[0])
			continue
		}
		keep, displaced := splitGroup(group)
		kept = append(kept, keep...)
		out.add(d.record(dc.Key, models.ConflictDoubleBooking,
			fmt.Sprintf("%d overlapping bookings", len(group)), group, displaced))
	}
	sortBookings(kept)

	if dc.Limits.MaxConsecutive > 0 {
		for _, chain := range chainGroups(kept, dc.Limits.chainGap()) {
			displaced := trimChain(chain, dc.Limits)
			if len(displaced) == 0 {
				continue
			}
			out.add(d.record(dc.Key, models.ConflictTimeConstraint,
				fmt.Sprintf("continuous work exceeds %d minutes", dc.Limits.MaxConsecutive), chain, displaced))
		}
	}

	sort.Slice(out.Records, func(i, j int) bool { return out.Records[i].ID < out.Records[j].ID })
	return out
}

func (out *Detection) add(rec models.ConflictRecord) {
	out.Records = append(out.Records, rec)
	for _, id := range rec.DisplacedIDs {
		out.Displaced[id] = rec.ID
	}
}

func (d *ConflictDetector) unavailable(dc DayContext, plan *DayPlan, b models.Booking) (models.ConflictType, string, bool) {
	if dc.Resource == nil || !dc.Resource.Active {
		return models.ConflictStaffUnavailable, "resource is not in the active directory", true
	}
	if !plan.InWindow(b.Interval) {
		return models.ConflictStaffUnavailable, fmt.Sprintf("%s is outside working hours", b.Interval), true
	}
	if br, hit := plan.HitsBreak(b.Interval); hit {
		return models.ConflictStaffUnavailable, fmt.Sprintf("%s overlaps %s break %s", b.Interval, br.Reason, br.Interval), true
	}
	if dc.SkillOf != nil {
		if skill, ok := dc.SkillOf(b); ok && !dc.Resource.HasSkill(skill) {
			return models.ConflictResource, fmt.Sprintf("resource lacks skill %q", skill), true
		}
	}
	return "", "", false
}

// overlapGroups sweeps bookings sorted by start into maximal connected overlap groups.
func overlapGroups(sorted []models.Booking) [][]models.Booking {
	var groups [][]models.Booking
	var current []models.Booking
	var end models.Minute
	for _, b := range sorted {
		if len(current) > 0 && b.Start < end {
			current = append(current, b)
			if b.End > end {
				end = b.End
			}
			continue
		}
		if len(current) > 0 {
			groups = append(groups, current)
		}
		current = []models.Booking{b}
		end = b.End
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// keepsBefore orders bookings by how strongly they hold their slot: paid, confirmed,
// priority, then earliest created and lowest id.
func keepsBefore(a, b models.Booking) bool {
	if a.Paid != b.Paid {
		return a.Paid
	}
	ac := a.CommitmentStatus() == models.BookingConfirmed
	bc := b.CommitmentStatus() == models.BookingConfirmed
	if ac != bc {
		return ac
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// splitGroup greedily keeps the strongest bookings that do not overlap each other.
func splitGroup(group []models.Booking) (keep, displaced []models.Booking) {
	ranked := append([]models.Booking(nil), group...)
	sort.Slice(ranked, func(i, j int) bool { return keepsBefore(ranked[i], ranked[j]) })
	for _, b := range ranked {
		clash := false
		for _, k := range keep {
			if k.Overlaps(b.Interval) {
				clash = true
				break
			}
		}
		if clash {
			displaced = append(displaced, b)
		} else {
			keep = append(keep, b)
		}
	}
	return keep, displaced
}

// chainGroups splits sorted bookings into work chains.
func chainGroups(sorted []models.Booking, gap int) [][]models.Booking {
	var groups [][]models.Booking
	var end models.Minute
	for _, b := range sorted {
		if n := len(groups); n > 0 && int(b.Start-end) < gap {
			groups[n-1] = append(groups[n-1], b)
			if b.End > end {
				end = b.End
			}
			continue
		}
		groups = append(groups, []models.Booking{b})
		end = b.End
	}
	return groups
}

// trimChain drops the last booking of the first over-long sub-chain until every
// sub-chain fits the consecutive limit.
func trimChain(chain []models.Booking, lim Limits) []models.Booking {
	members := append([]models.Booking(nil), chain...)
	var displaced []models.Booking
	for {
		over := -1
		for _, sub := range chainGroups(members, lim.chainGap()) {
			if chainSpan(sub).Duration() <= lim.MaxConsecutive {
				continue
			}
			last := sub[len(sub)-1].ID
			for i, m := range members {
				if m.ID == last {
					over = i
					break
				}
			}
			break
		}
		if over < 0 {
			return displaced
		}
		displaced = append(displaced, members[over])
		members = append(members[:over], members[over+1:]...)
	}
}

func chainSpan(sub []models.Booking) models.Interval {
	span := sub[0].Interval
	for _, b := range sub[1:] {
		if b.End > span.End {
			span.End = b.End
		}
	}
	return span
}

func (d *ConflictDetector) record(key models.DayKey, kind models.ConflictType, reason string, affected, displaced []models.Booking) models.ConflictRecord {
	ids := bookingIDs(affected)
	displacedIDs := bookingIDs(displaced)
	revenue := decimal.Zero
	for _, b := range displaced {
		revenue = revenue.Add(b.Price)
	}
	seed := strings.Join([]string{string(kind), key.ResourceID, key.Date, strings.Join(ids, ",")}, "|")
	return models.ConflictRecord{
		ID:            uuid.NewSHA1(conflictNamespace, []byte(seed)).String(),
		Type:          kind,
		Severity:      d.Severity(displaced, len(affected), revenue),
		ResourceID:    key.ResourceID,
		Date:          key.Date,
		BookingIDs:    ids,
		DisplacedIDs:  displacedIDs,
		RevenueAtRisk: revenue,
		Reason:        reason,
		Status:        models.ConflictOpen,
		DetectedAt:    d.now().UTC(),
	}
}

// Severity derives the ordinal severity from the displaced bookings, the number of
// affected bookings and the revenue at risk.
func (d *ConflictDetector) Severity(displaced []models.Booking, affected int, revenue decimal.Decimal) models.Severity {
	sev := models.SeverityLow
	for _, b := range displaced {
		if s := bookingSeverity(b); s.Rank() > sev.Rank() {
			sev = s
		}
	}
	if d.revenueThreshold.IsPositive() && revenue.GreaterThanOrEqual(d.revenueThreshold) {
		sev = sev.Escalate()
	}
	if affected >= 3 && sev == models.SeverityLow {
		sev = models.SeverityMedium
	}
	return sev
}

func bookingSeverity(b models.Booking) models.Severity {
	switch {
	case b.CommitmentStatus() == models.BookingConfirmed && b.Paid:
		return models.SeverityCritical
	case b.CommitmentStatus() == models.BookingConfirmed:
		return models.SeverityHigh
	case b.Priority >= 0.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func bookingIDs(bookings []models.Booking) []string {
	ids := make([]string, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	sort.Strings(ids)
	return ids
}
