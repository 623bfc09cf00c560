package service

import "sync"

// MarketGate serialises market-data refreshes triggered by requests with
// the market-data sync, so they never hit the provider side by side.
type MarketGate struct {
	mu sync.Mutex
}

// NewMarketGate creates a new MarketGate.
func NewMarketGate() *MarketGate {
	return &MarketGate{}
}

// Hold blocks until the gate is free and returns its release.
func (g *MarketGate) Hold() func() {
	g.mu.Lock()
	return g.mu.Unlock
}

// TryHold takes the gate if it is free.
func (g *MarketGate) TryHold() (func(), bool) {
	if !g.mu.TryLock() {
		return nil, false
	}
	return g.mu.Unlock, true
}
