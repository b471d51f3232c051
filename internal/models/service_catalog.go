package models

import "github.com/shopspring/decimal"

// ServiceComponent is a separately schedulable part of a splittable service.
type ServiceComponent struct {
	Name            string `json:"name" yaml:"name"`
	DurationMinutes int    `json:"durationMinutes" yaml:"durationMinutes"`
	SkillTag        string `json:"skillTag" yaml:"skillTag"`
}

// Service is a catalog entry: duration, required skill, splittable flag and price.
type Service struct {
	ID              string             `json:"id" yaml:"id"`
	Name            string             `json:"name" yaml:"name"`
	DurationMinutes int                `json:"durationMinutes" yaml:"durationMinutes"`
	SkillTag        string             `json:"skillTag" yaml:"skillTag"`
	Splittable      bool               `json:"splittable" yaml:"splittable"`
	Components      []ServiceComponent `json:"components,omitempty" yaml:"components"`
	Price           decimal.Decimal    `json:"price" yaml:"price"`
}

// CanSplit reports whether the service may be scheduled as separate parts.
func (s *Service) CanSplit() bool {
	return s.Splittable && len(s.Components) > 1
}

// ComponentPrice apportions the service price to a component by duration.
func (s *Service) ComponentPrice(c ServiceComponent) decimal.Decimal {
	if s.DurationMinutes <= 0 {
		return decimal.Zero
	}
	return s.Price.Mul(decimal.NewFromInt(int64(c.DurationMinutes))).
		Div(decimal.NewFromInt(int64(s.DurationMinutes))).
		Round(2)
}
