package domain

import (
	"time"

	"phish_server/pkg/snowflake"
)

type ScanStatus string

const (
	ScanPending   ScanStatus = "pending"
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s ScanStatus) Terminal() bool {
	return s == ScanCompleted || s == ScanFailed
}

// ScanJob is an asynchronous batch of URLs scored by the worker.
type ScanJob struct {
	ID          snowflake.ID `json:"id"`
	Status      ScanStatus   `json:"status"`
	URLs        []string     `json:"urls"`
	Results     []ScanResult `json:"results,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// ScanResult is the stored outcome for one URL of a scan.
type ScanResult struct {
	URL          string  `json:"url"`
	Label        Label   `json:"prediction,omitempty"`
	Confidence   float64 `json:"confidence"`
	PredictionID string  `json:"prediction_id,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// ScanResultFromBatch flattens a batch item into a stored result.
func ScanResultFromBatch(item BatchItem) ScanResult {
	r := ScanResult{URL: item.URL, Error: item.Error}
	if p := item.Prediction; p != nil {
		r.Label = p.Label
		r.Confidence = p.Confidence
		r.PredictionID = p.ID.String()
	}
	return r
}
