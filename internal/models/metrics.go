package models

import "time"

// EngineMetrics is a lightweight snapshot of the engine counters for the ops endpoint.
type EngineMetrics struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	Placements               uint64    `json:"placements"`
	Waitlisted               uint64    `json:"waitlisted"`
	ReservationRaces         uint64    `json:"reservationRaces"`
	ConflictsDetected        uint64    `json:"conflictsDetected"`
	ResolutionsApplied       uint64    `json:"resolutionsApplied"`
	BalancerMoves            uint64    `json:"balancerMoves"`
	CommitCount              uint64    `json:"commitCount"`
	AverageCommitDurationMs  float64   `json:"averageCommitDurationMs"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
