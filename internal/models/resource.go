package models

import "time"

// WorkloadLevel expresses how busy a staff member wants to be.
type WorkloadLevel string

const (
	WorkloadLow    WorkloadLevel = "low"
	WorkloadMedium WorkloadLevel = "medium"
	WorkloadHigh   WorkloadLevel = "high"
)

// TargetUtilization maps the workload preference to a booked/available ratio.
func (w WorkloadLevel) TargetUtilization() float64 {
	switch w {
	case WorkloadLow:
		return 0.5
	case WorkloadHigh:
		return 0.9
	default:
		return 0.75
	}
}

// BreakKind classifies a mandated break.
type BreakKind string

const (
	BreakLunch       BreakKind = "lunch"
	BreakRest        BreakKind = "rest"
	BreakMaintenance BreakKind = "maintenance"
)

// WorkingRule is a recurring shift. An empty RRule applies to every business day.
type WorkingRule struct {
	RRule string `json:"rrule,omitempty" yaml:"rrule"`
	Interval `yaml:",inline"`
}

// BreakWindow is a mandated break, optionally recurring by RRULE.
type BreakWindow struct {
	Kind     BreakKind `json:"kind" yaml:"kind"`
	RRule    string    `json:"rrule,omitempty" yaml:"rrule"`
	Interval `yaml:",inline"`
}

// DateOverride replaces the recurring rules for a single date: a day off or different hours.
type DateOverride struct {
	Date     string `json:"date" yaml:"date"`
	Off      bool   `json:"off" yaml:"off"`
	Interval `yaml:",inline"`
}

// ResourcePreferences captures the staff member's working constraints.
type ResourcePreferences struct {
	MaxConsecutiveMinutes int           `json:"maxConsecutiveMinutes" yaml:"maxConsecutiveMinutes"`
	MinBreakMinutes       int           `json:"minBreakMinutes" yaml:"minBreakMinutes"`
	Workload              WorkloadLevel `json:"workload" yaml:"workload"`
}

// Resource is a staff member capable of performing services. Read-only to the engine.
type Resource struct {
	ID          string              `json:"id" yaml:"id"`
	Name        string              `json:"name" yaml:"name"`
	Skills      []string            `json:"skills" yaml:"skills"`
	Rules       []WorkingRule       `json:"rules" yaml:"rules"`
	Breaks      []BreakWindow       `json:"breaks" yaml:"breaks"`
	Overrides   []DateOverride      `json:"overrides" yaml:"overrides"`
	Preferences ResourcePreferences `json:"preferences" yaml:"preferences"`
	Active      bool                `json:"active" yaml:"active"`
	UpdatedAt   time.Time           `json:"updatedAt" yaml:"updatedAt"`
}

// HasSkill reports whether the resource can perform services tagged with skill.
func (r *Resource) HasSkill(skill string) bool {
	if skill == "" {
		return true
	}
	for _, s := range r.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// HasSkills reports whether the resource covers every tag in skills.
func (r *Resource) HasSkills(skills ...string) bool {
	for _, s := range skills {
		if !r.HasSkill(s) {
			return false
		}
	}
	return true
}

// Override returns the override registered for date, if any.
func (r *Resource) Override(date string) (DateOverride, bool) {
	for _, o := range r.Overrides {
		if o.Date == date {
			return o, true
		}
	}
	return DateOverride{}, false
}
