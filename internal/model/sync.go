package model

import "time"

// Sync kinds. At most one sync of each kind runs at a time.
const (
	SyncKindIBKR       = "ibkr"
	SyncKindMarketData = "market_data"
	SyncKindCurrency   = "currency"
	SyncKindAll        = "all"
)

// Sync statuses.
const (
	SyncStatusRunning        = "running"
	SyncStatusSuccess        = "success"
	SyncStatusPartialSuccess = "partial_success"
	SyncStatusRateLimited    = "rate_limited"
	SyncStatusError          = "error"
)

// SyncResult reports what a sync changed. Warnings is never nil.
type SyncResult struct {
	Kind       string         `json:"kind"`
	Status     string         `json:"status"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	Counts     map[string]int `json:"counts"`
	Warnings   []string       `json:"warnings"`
	Error      string         `json:"error,omitempty"`
}

// NewSyncResult starts a result for kind with empty counts and warnings.
func NewSyncResult(kind string, started time.Time) *SyncResult {
	return &SyncResult{
		Kind:      kind,
		Status:    SyncStatusRunning,
		StartedAt: started,
		Counts:    map[string]int{},
		Warnings:  []string{},
	}
}

// Warn appends a formatted warning.
func (r *SyncResult) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Merge folds another result's counts and warnings into r.
func (r *SyncResult) Merge(other *SyncResult) {
	if other == nil {
		return
	}
	for k, v := range other.Counts {
		r.Counts[other.Kind+"."+k] += v
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
}
