package service

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/pkg/config"
)

// ruleAnchor is the DTSTART given to rules that do not carry one. It is a Monday so
// INTERVAL=2 weekly rules alternate from a fixed, documented week.
var ruleAnchor = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// BusinessHours bounds every staff window: opening time, closing time and closed weekdays.
type BusinessHours struct {
	Location *time.Location
	Open     models.Minute
	Close    models.Minute
	Closed   map[time.Weekday]bool
}

// NewBusinessHours parses the business section of the configuration.
func NewBusinessHours(cfg config.BusinessConfig) (BusinessHours, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return BusinessHours{}, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	open, err := models.ParseMinute(cfg.Open)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("business open: %w", err)
	}
	closeAt, err := models.ParseMinute(cfg.Close)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("business close: %w", err)
	}
	if closeAt <= open {
		return BusinessHours{}, fmt.Errorf("business close %s must be after open %s", closeAt, open)
	}
	closed := make(map[time.Weekday]bool)
	for _, day := range cfg.ClosedDays {
		wd, ok := parseWeekday(day)
		if !ok {
			return BusinessHours{}, fmt.Errorf("unknown closed day %q", day)
		}
		closed[wd] = true
	}
	return BusinessHours{Location: loc, Open: open, Close: closeAt, Closed: closed}, nil
}

// Window returns the opening window of date, or false when the salon is closed.
func (b BusinessHours) Window(date string) (models.Interval, bool, error) {
	day, err := models.ParseDate(date, b.Location)
	if err != nil {
		return models.Interval{}, false, err
	}
	if b.Closed[day.Weekday()] {
		return models.Interval{}, false, nil
	}
	return models.Interval{Start: b.Open, End: b.Close}, true, nil
}

func parseWeekday(raw string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sunday", "sun", "su":
		return time.Sunday, true
	case "monday", "mon", "mo":
		return time.Monday, true
	case "tuesday", "tue", "tu":
		return time.Tuesday, true
	case "wednesday", "wed", "we":
		return time.Wednesday, true
	case "thursday", "thu", "th":
		return time.Thursday, true
	case "friday", "fri", "fr":
		return time.Friday, true
	case "saturday", "sat", "sa":
		return time.Saturday, true
	}
	return time.Sunday, false
}

// WorkingHours expands a resource's recurring rules, overrides and breaks for a date.
// Staff constraints are recomputed on every call; only parsed RRULEs are memoised.
type WorkingHours struct {
	business BusinessHours

	mu    sync.Mutex
	rules map[string]*rrule.RRule
}

// NewWorkingHours builds the calculator.
func NewWorkingHours(business BusinessHours) *WorkingHours {
	if business.Location == nil {
		business.Location = time.UTC
	}
	return &WorkingHours{business: business, rules: make(map[string]*rrule.RRule)}
}

// Location is the business timezone.
func (w *WorkingHours) Location() *time.Location {
	return w.business.Location
}

// Windows returns the sorted, merged working windows of res on date.
func (w *WorkingHours) Windows(res *models.Resource, date string) ([]models.Interval, error) {
	open, ok, err := w.business.Window(date)
	if err != nil || !ok {
		return nil, err
	}

	if override, found := res.Override(date); found {
		if override.Off {
			return nil, nil
		}
		if iv, ok := override.Interval.Intersect(open); ok {
			return []models.Interval{iv}, nil
		}
		return nil, nil
	}

	if len(res.Rules) == 0 {
		return []models.Interval{open}, nil
	}

	windows := make([]models.Interval, 0, len(res.Rules))
	for _, rule := range res.Rules {
		applies, err := w.Applies(rule.RRule, date)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", res.ID, err)
		}
		if !applies {
			continue
		}
		if iv, ok := rule.Interval.Intersect(open); ok {
			windows = append(windows, iv)
		}
	}
	return mergeIntervals(windows), nil
}

// Breaks returns the mandated breaks of res on date.
func (w *WorkingHours) Breaks(res *models.Resource, date string) ([]models.Block, error) {
	out := make([]models.Block, 0, len(res.Breaks))
	for _, br := range res.Breaks {
		applies, err := w.Applies(br.RRule, date)
		if err != nil {
			return nil, fmt.Errorf("resource %s break: %w", res.ID, err)
		}
		if applies && br.Interval.Valid() {
			out = append(out, models.Block{Interval: br.Interval, Reason: models.BlockBreak})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// Applies reports whether a recurrence rule has an occurrence on date. An empty rule
// applies every day.
func (w *WorkingHours) Applies(rule, date string) (bool, error) {
	if strings.TrimSpace(rule) == "" {
		return true, nil
	}
	r, err := w.rule(rule)
	if err != nil {
		return false, err
	}
	day, err := models.ParseDate(date, w.business.Location)
	if err != nil {
		return false, err
	}
	// Days are 23 or 25 hours long across a DST change, so bound by calendar date.
	for _, occ := range r.Between(day, day.AddDate(0, 0, 1), true) {
		if occ.In(w.business.Location).Format(models.DateLayout) == date {
			return true, nil
		}
	}
	return false, nil
}

func (w *WorkingHours) rule(raw string) (*rrule.RRule, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r, ok := w.rules[raw]; ok {
		return r, nil
	}
	opt, err := rrule.StrToROption(strings.TrimPrefix(raw, "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", raw, err)
	}
	if opt.Dtstart.IsZero() {
		a := ruleAnchor
		opt.Dtstart = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, w.business.Location)
	}
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule %q: %w", raw, err)
	}
	w.rules[raw] = r
	return r, nil
}

// mergeIntervals sorts and coalesces overlapping or touching intervals.
func mergeIntervals(in []models.Interval) []models.Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := append([]models.Interval(nil), in...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})
	out := []models.Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
