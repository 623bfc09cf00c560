package model

import "time"

// Asset types used when a security carries no manual classification.
const (
	AssetTypeETF     = "ETF"
	AssetTypeUnknown = "Unknown"
)

// Unclassified is the bucket for portfolio weight without sector or
// country information.
const Unclassified = "Unclassified"

// SecurityAllocation is the operator-maintained classification of a single
// security. Empty fields are unknown.
type SecurityAllocation struct {
	SecurityID string    `json:"securityId"`
	AssetType  string    `json:"assetType"`
	Sector     string    `json:"sector"`
	Country    string    `json:"country"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AllocationSlice is one bucket of a breakdown. Weight is in percent of the
// portfolio's market value, Value in EUR.
type AllocationSlice struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Value  float64 `json:"value"`
}

// PortfolioAllocation breaks today's market value down three ways. Each
// breakdown sums to 100 percent and is sorted by weight, largest first.
type PortfolioAllocation struct {
	Date         time.Time         `json:"date"`
	TotalValue   float64           `json:"totalValue"`
	Sector       []AllocationSlice `json:"sector"`
	Geographic   []AllocationSlice `json:"geographic"`
	AssetType    []AllocationSlice `json:"assetType"`
	Unclassified []string          `json:"unclassified"`
	Warnings     []string          `json:"warnings"`
}
