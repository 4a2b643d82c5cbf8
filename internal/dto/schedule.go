package dto

import (
	"time"

	"github.com/noah-isme/whiteboard-api/internal/models"
)

// DaySchedule groups one day's events for display.
type DaySchedule struct {
	Date    string               `json:"date"`
	DayName string               `json:"dayName"`
	Events  []models.EventRecord `json:"events"`
}

// ScheduleResponse is the personal schedule payload. CacheUpdated and LastRun
// let the client show data freshness next to the events.
type ScheduleResponse struct {
	SearchName   string        `json:"searchName"`
	Person       string        `json:"person"`
	Category     string        `json:"category"`
	GeneratedAt  time.Time     `json:"generatedAt"`
	Days         []DaySchedule `json:"events"`
	TotalEvents  int           `json:"totalEvents"`
	CacheUpdated *time.Time    `json:"cacheUpdated,omitempty"`
	LastRun      *time.Time    `json:"lastRun,omitempty"`
}

// BulkResponse returns every cached person plus the distinct category set in
// one payload, for dashboard consumption.
type BulkResponse struct {
	People     []models.PersonSchedule  `json:"people"`
	Categories []string                 `json:"categories"`
	Metadata   *models.BatchRunMetadata `json:"metadata,omitempty"`
}

// CacheDump is the full cache-inspection payload. It is served straight from
// the cache store and never touches the spreadsheet.
type CacheDump struct {
	Metadata   *models.BatchRunMetadata `json:"metadata,omitempty"`
	PersonList []string                 `json:"personList"`
	Schedules  []models.PersonSchedule  `json:"schedules"`
}
