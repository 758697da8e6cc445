package models

import "time"

// DailyStat is the per-date aggregate snapshot, one row per calendar date.
type DailyStat struct {
	Date            string    `json:"date" db:"date"`
	TotalListings   int       `json:"total_listings" db:"total_listings"`
	NewListings     int       `json:"new_listings" db:"new_listings"`
	UpdatedListings int       `json:"updated_listings" db:"updated_listings"`
	AvgPrice        float64   `json:"avg_price" db:"avg_price"`
	MinPrice        float64   `json:"min_price" db:"min_price"`
	MaxPrice        float64   `json:"max_price" db:"max_price"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Statistics is the read-time aggregate over the current listing table.
// Price aggregates only consider listings with price > 0.
type Statistics struct {
	TotalListings   int            `json:"total_listings"`
	VisibleListings int            `json:"visible_listings"`
	AvgPrice        float64        `json:"avg_price"`
	MinPrice        float64        `json:"min_price"`
	MaxPrice        float64        `json:"max_price"`
	BySource        map[string]int `json:"by_source"`
	Sessions        SessionCounts  `json:"sessions"`
}

type SessionCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Running   int `json:"running"`
}
