package models

import "time"

// MetricsSnapshot is a lightweight view over the Prometheus collectors.
type MetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	BookingsSucceeded        uint64    `json:"bookings_succeeded"`
	BookingsFailed           uint64    `json:"bookings_failed"`
	OccurrencesBooked        uint64    `json:"occurrences_booked"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
