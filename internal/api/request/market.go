// Package request holds the JSON bodies accepted by the API.
package request

// SetTickerMappingRequest sets a manual IBKR symbol to Yahoo ticker mapping.
type SetTickerMappingRequest struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Ticker   string `json:"ticker"`
	Notes    string `json:"notes,omitempty"`
}

// TriggerSyncRequest is the optional body of a sync trigger.
type TriggerSyncRequest struct {
	DaysBack *int `json:"daysBack,omitempty"`
}

// SetAllocationRequest classifies a security for the allocation breakdown.
type SetAllocationRequest struct {
	AssetType string `json:"assetType"`
	Sector    string `json:"sector"`
	Country   string `json:"country"`
}
