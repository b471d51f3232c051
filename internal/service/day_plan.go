package service

import (
	"sort"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

// Limits are the consecutive-work constraints of a resource.
type Limits struct {
	MaxConsecutive int
	MinBreak       int
}

// LimitsFor resolves a resource's preferences against the configured defaults.
func LimitsFor(res *models.Resource, defaultMax, defaultBreak int) Limits {
	lim := Limits{MaxConsecutive: defaultMax, MinBreak: defaultBreak}
	if res.Preferences.MaxConsecutiveMinutes > 0 {
		lim.MaxConsecutive = res.Preferences.MaxConsecutiveMinutes
	}
	if res.Preferences.MinBreakMinutes > 0 {
		lim.MinBreak = res.Preferences.MinBreakMinutes
	}
	return lim
}

// chainGap is the smallest idle time that ends a work chain. Back-to-back work
// always chains, even with no configured break.
func (l Limits) chainGap() int {
	if l.MinBreak < 1 {
		return 1
	}
	return l.MinBreak
}

// DayPlan is the deterministic availability model of one resource-day: working
// windows, breaks, occupying bookings and the work chains they form.
type DayPlan struct {
	ResourceID string
	Date       string
	Windows    []models.Interval
	Breaks     []models.Block
	Bookings   []models.Booking
	Limits     Limits

	chains []models.Interval
}

// NewDayPlan builds a plan from occupying bookings. Non-occupying bookings are ignored.
func NewDayPlan(resourceID, date string, windows []models.Interval, breaks []models.Block, bookings []models.Booking, lim Limits) *DayPlan {
	occupying := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status.Occupies() {
			occupying = append(occupying, b)
		}
	}
	sortBookings(occupying)
	p := &DayPlan{
		ResourceID: resourceID,
		Date:       date,
		Windows:    windows,
		Breaks:     breaks,
		Bookings:   occupying,
		Limits:     lim,
	}
	p.chains = buildChains(occupying, lim.chainGap())
	return p
}

// sortBookings orders by start, end, then id.
func sortBookings(bookings []models.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.ID < b.ID
	})
}

// buildChains merges sorted bookings separated by less than gap into work chains.
func buildChains(bookings []models.Booking, gap int) []models.Interval {
	groups := chainGroups(bookings, gap)
	chains := make([]models.Interval, len(groups))
	for i, g := range groups {
		chains[i] = chainSpan(g)
	}
	return chains
}

// Chains returns the work chains of the plan.
func (p *DayPlan) Chains() []models.Interval {
	return p.chains
}

// InWindow reports whether iv lies inside one working window.
func (p *DayPlan) InWindow(iv models.Interval) bool {
	for _, w := range p.Windows {
		if w.Contains(iv) {
			return true
		}
	}
	return false
}

// HitsBreak returns the first break iv overlaps.
func (p *DayPlan) HitsBreak(iv models.Interval) (models.Block, bool) {
	for _, br := range p.Breaks {
		if br.Overlaps(iv) {
			return br, true
		}
	}
	return models.Block{}, false
}

// Overlapping returns the occupying bookings that intersect iv.
func (p *DayPlan) Overlapping(iv models.Interval) []models.Booking {
	var out []models.Booking
	for _, b := range p.Bookings {
		if b.Start >= iv.End {
			break
		}
		if b.Overlaps(iv) {
			out = append(out, b)
		}
	}
	return out
}

// ChainWith returns the span of the work chain iv would join. Chains are separated by
// at least MinBreak, so one ascending pass is enough.
func (p *DayPlan) ChainWith(iv models.Interval) models.Interval {
	span := iv
	for _, c := range p.chains {
		gap := int(c.Start - span.End)
		if left := int(span.Start - c.End); left > gap {
			gap = left
		}
		if gap < p.Limits.chainGap() {
			span.Start = minMinuteOf(span.Start, c.Start)
			span.End = maxMinuteOf(span.End, c.End)
		}
	}
	return span
}

// Fits reports whether iv can be booked: inside a window, clear of breaks and
// bookings, and without stretching a work chain past the consecutive limit.
func (p *DayPlan) Fits(iv models.Interval) bool {
	if !iv.Valid() || !p.InWindow(iv) {
		return false
	}
	if _, hit := p.HitsBreak(iv); hit {
		return false
	}
	if len(p.Overlapping(iv)) > 0 {
		return false
	}
	if p.Limits.MaxConsecutive > 0 && p.ChainWith(iv).Duration() > p.Limits.MaxConsecutive {
		return false
	}
	return true
}

// FatigueBlocks are the synthetic rest intervals forced around chains that reached
// the consecutive limit, clipped to the working windows.
func (p *DayPlan) FatigueBlocks() []models.Block {
	if p.Limits.MaxConsecutive <= 0 || p.Limits.MinBreak <= 0 {
		return nil
	}
	var out []models.Block
	for _, c := range p.chains {
		if c.Duration() < p.Limits.MaxConsecutive {
			continue
		}
		for _, iv := range []models.Interval{
			{Start: c.Start - models.Minute(p.Limits.MinBreak), End: c.Start},
			{Start: c.End, End: c.End + models.Minute(p.Limits.MinBreak)},
		} {
			for _, w := range p.Windows {
				if clipped, ok := iv.Intersect(w); ok {
					out = append(out, models.Block{Interval: clipped, Reason: models.BlockFatigue})
				}
			}
		}
	}
	return out
}

// Blocked returns bookings, breaks and fatigue blocks sorted by start.
func (p *DayPlan) Blocked() []models.Block {
	out := make([]models.Block, 0, len(p.Bookings)+len(p.Breaks))
	for _, b := range p.Bookings {
		out = append(out, models.Block{Interval: b.Interval, Reason: models.BlockBooking, BookingID: b.ID})
	}
	out = append(out, p.Breaks...)
	out = append(out, p.FatigueBlocks()...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}

// Free returns the windows minus every blocked interval.
func (p *DayPlan) Free() []models.Interval {
	blocked := p.Blocked()
	var out []models.Interval
	for _, w := range p.Windows {
		cursor := w.Start
		for _, b := range blocked {
			if b.End <= cursor || b.Start >= w.End {
				continue
			}
			if b.Start > cursor {
				out = append(out, models.Interval{Start: cursor, End: b.Start})
			}
			if b.End > cursor {
				cursor = b.End
			}
		}
		if cursor < w.End {
			out = append(out, models.Interval{Start: cursor, End: w.End})
		}
	}
	return out
}

// Starts returns every feasible start for duration, on the granularity grid plus
// the start of each free interval, ascending.
func (p *DayPlan) Starts(duration, granularity int) []models.Minute {
	if duration <= 0 {
		return nil
	}
	if granularity <= 0 {
		granularity = 15
	}
	seen := make(map[models.Minute]bool)
	var candidates []models.Minute
	add := func(m models.Minute) {
		if !seen[m] {
			seen[m] = true
			candidates = append(candidates, m)
		}
	}
	for _, free := range p.Free() {
		add(free.Start)
	}
	for _, w := range p.Windows {
		first := (int(w.Start) + granularity - 1) / granularity * granularity
		for m := first; m+duration <= int(w.End); m += granularity {
			add(models.Minute(m))
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	out := make([]models.Minute, 0, len(candidates))
	for _, start := range candidates {
		if p.Fits(models.NewInterval(start, duration)) {
			out = append(out, start)
		}
	}
	return out
}

// Slots merges feasible starts into slots: consecutive starts at most one grid step
// apart form one slot ending duration after the last start.
func (p *DayPlan) Slots(duration, granularity int) []models.Slot {
	if granularity <= 0 {
		granularity = 15
	}
	starts := p.Starts(duration, granularity)
	var out []models.Slot
	for i := 0; i < len(starts); {
		j := i
		for j+1 < len(starts) && int(starts[j+1]-starts[j]) <= granularity {
			j++
		}
		out = append(out, models.Slot{
			ResourceID: p.ResourceID,
			Date:       p.Date,
			Interval:   models.Interval{Start: starts[i], End: starts[j] + models.Minute(duration)},
		})
		i = j + 1
	}
	return out
}

// AvailableMinutes is the working time minus breaks.
func (p *DayPlan) AvailableMinutes() int {
	total := 0
	for _, w := range p.Windows {
		total += w.Duration()
		for _, br := range p.Breaks {
			if iv, ok := br.Intersect(w); ok {
				total -= iv.Duration()
			}
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// BookedMinutes is the booked time falling inside the working windows.
func (p *DayPlan) BookedMinutes() int {
	total := 0
	for _, b := range p.Bookings {
		for _, w := range p.Windows {
			if iv, ok := b.Interval.Intersect(w); ok {
				total += iv.Duration()
			}
		}
	}
	return total
}

// Utilization is booked over available minutes, 0 when nothing is available.
func (p *DayPlan) Utilization() float64 {
	avail := p.AvailableMinutes()
	if avail == 0 {
		return 0
	}
	return float64(p.BookedMinutes()) / float64(avail)
}

// Availability renders the plan for the API.
func (p *DayPlan) Availability() *models.DayAvailability {
	return &models.DayAvailability{
		ResourceID:       p.ResourceID,
		Date:             p.Date,
		Windows:          p.Windows,
		Blocked:          p.Blocked(),
		Free:             p.Free(),
		BookedMinutes:    p.BookedMinutes(),
		AvailableMinutes: p.AvailableMinutes(),
		Utilization:      p.Utilization(),
	}
}

func minMinuteOf(a, b models.Minute) models.Minute {
	if a < b {
		return a
	}
	return b
}

func maxMinuteOf(a, b models.Minute) models.Minute {
	if a > b {
		return a
	}
	return b
}
