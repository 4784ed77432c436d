package dto

import (
	"encoding/json"
	"time"
)

// IngestBulkRequest wraps a batch of raw payloads. Payloads are deliberately
// untyped; normalization happens in the pipeline, not at the binding layer.
type IngestBulkRequest struct {
	Events []json.RawMessage `json:"events" binding:"required,min=1,max=1000"`
}

// ListEventsRequest carries the query parameters for event listings.
type ListEventsRequest struct {
	ClientID string    `form:"client_id" example:"client_A"`
	Status   string    `form:"status" example:"processed"`
	Metric   string    `form:"metric" example:"purchase"`
	From     time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00" time_utc:"true"`
	To       time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00" time_utc:"true"`
	Sort     string    `form:"sort" example:"timestamp"`
	Order    string    `form:"order" example:"desc"`
	Limit    int       `form:"limit" example:"50"`
	Skip     int       `form:"skip" example:"0"`
}

// StatsRequest carries the query parameters for aggregation.
type StatsRequest struct {
	ClientID string    `form:"client_id" example:"client_A"`
	Metric   string    `form:"metric" example:"purchase"`
	From     time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00" time_utc:"true"`
	To       time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00" time_utc:"true"`
	GroupBy  string    `form:"group_by" example:"client"`
}
