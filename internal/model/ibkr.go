package model

import "time"

// IbkrConfig represents the IBKR flex query configuration. The token itself
// is stored encrypted and never serialised.
type IbkrConfig struct {
	Configured     bool       `json:"configured"`
	FlexQueryID    string     `json:"flexQueryId"`
	FlexToken      string     `json:"-"`
	Enabled        bool       `json:"enabled"`
	LastImportDate *time.Time `json:"lastImportDate,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
