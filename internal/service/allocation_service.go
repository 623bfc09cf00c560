package service

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/logging"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/repository"
)

//go:embed data/etf_allocations.yaml
var etfAllocationsYAML []byte

// ETFAllocation is the shipped breakdown of one ETF. Weights are percent.
type ETFAllocation struct {
	Name       string             `yaml:"name" json:"name"`
	Geographic map[string]float64 `yaml:"geographic" json:"geographic"`
	Sector     map[string]float64 `yaml:"sector" json:"sector"`
}

// ETFAllocations parses the table shipped with the binary, keyed by
// upper-case broker symbol.
var ETFAllocations = sync.OnceValues(func() (map[string]ETFAllocation, error) {
	var file struct {
		ETFs map[string]ETFAllocation `yaml:"etfs"`
	}
	if err := yaml.Unmarshal(etfAllocationsYAML, &file); err != nil {
		return nil, fmt.Errorf("failed to parse ETF allocations: %w", err)
	}
	out := make(map[string]ETFAllocation, len(file.ETFs))
	for symbol, etf := range file.ETFs {
		out[strings.ToUpper(symbol)] = etf
	}
	return out, nil
})

// AllocationService breaks the portfolio's market value down by sector,
// region and asset type.
//
// Known ETFs are spread over their shipped weights. Any other security
// counts fully towards the sector, country and asset type an operator
// stored for it, and towards model.Unclassified otherwise.
type AllocationService struct {
	portfolio    *PortfolioService
	securityRepo *repository.SecurityRepository
	allocRepo    *repository.AllocationRepository
	log          zerolog.Logger
}

// NewAllocationService creates a new AllocationService.
func NewAllocationService(
	portfolio *PortfolioService,
	securityRepo *repository.SecurityRepository,
	allocRepo *repository.AllocationRepository,
	log zerolog.Logger,
) *AllocationService {
	return &AllocationService{
		portfolio:    portfolio,
		securityRepo: securityRepo,
		allocRepo:    allocRepo,
		log:          logging.Component(log, "allocation"),
	}
}

// GetAllocation returns today's breakdown. Positions without market value
// are left out.
func (s *AllocationService) GetAllocation(ctx context.Context) (model.PortfolioAllocation, error) {
	etfs, err := ETFAllocations()
	if err != nil {
		return model.PortfolioAllocation{}, err
	}
	positions, warnings, err := s.portfolio.GetPositions(ctx)
	if err != nil {
		return model.PortfolioAllocation{}, err
	}
	stored, err := s.allocRepo.GetAllocations(ctx)
	if err != nil {
		return model.PortfolioAllocation{}, err
	}

	result := model.PortfolioAllocation{
		Date:         s.portfolio.today(),
		Sector:       []model.AllocationSlice{},
		Geographic:   []model.AllocationSlice{},
		AssetType:    []model.AllocationSlice{},
		Unclassified: []string{},
		Warnings:     warnings,
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}

	sector, region, asset := map[string]float64{}, map[string]float64{}, map[string]float64{}
	total := 0.0
	for _, p := range positions {
		v := p.MarketValue
		if v <= 0 {
			continue
		}
		total += v

		manual := stored[p.SecurityID]
		etf, isETF := etfs[strings.ToUpper(p.Symbol)]

		switch {
		case manual.AssetType != "":
			asset[manual.AssetType] += v
		case isETF:
			asset[model.AssetTypeETF] += v
		default:
			asset[model.AssetTypeUnknown] += v
		}

		sectorKnown := spread(sector, v, manual.Sector, etf.Sector, isETF)
		regionKnown := spread(region, v, manual.Country, etf.Geographic, isETF)
		if !sectorKnown || !regionKnown {
			result.Unclassified = append(result.Unclassified, p.Symbol)
		}
	}
	if total <= 0 {
		return result, nil
	}

	result.TotalValue = round(total)
	result.Sector = toSlices(sector, total)
	result.Geographic = toSlices(region, total)
	result.AssetType = toSlices(asset, total)
	sort.Strings(result.Unclassified)
	return result, nil
}

// spread adds value to buckets: fully to the manual name when set, over the
// ETF weights for a known ETF, and to model.Unclassified otherwise. Reports
// whether the value was classified.
func spread(buckets map[string]float64, value float64, manual string, weights map[string]float64, isETF bool) bool {
	switch {
	case manual != "":
		buckets[manual] += value
		return true
	case isETF && len(weights) > 0:
		for name, pct := range weights {
			buckets[name] += value * pct / 100
		}
		return true
	default:
		buckets[model.Unclassified] += value
		return false
	}
}

func toSlices(buckets map[string]float64, total float64) []model.AllocationSlice {
	out := make([]model.AllocationSlice, 0, len(buckets))
	for name, v := range buckets {
		out = append(out, model.AllocationSlice{Name: name, Weight: round(v / total * 100), Value: round(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SetSecurityAllocation stores the operator's classification of a
// security, replacing any earlier one. Empty fields clear that field.
func (s *AllocationService) SetSecurityAllocation(ctx context.Context, securityID string, a model.SecurityAllocation) (model.SecurityAllocation, error) {
	sec, err := s.securityRepo.GetSecurity(ctx, securityID)
	if err != nil {
		return model.SecurityAllocation{}, err
	}

	a.SecurityID = sec.ID
	a.AssetType = strings.TrimSpace(a.AssetType)
	a.Sector = strings.TrimSpace(a.Sector)
	a.Country = strings.TrimSpace(a.Country)
	if err := s.allocRepo.UpsertAllocation(ctx, a); err != nil {
		return model.SecurityAllocation{}, err
	}

	stored, err := s.allocRepo.GetAllocation(ctx, sec.ID)
	if err != nil {
		return model.SecurityAllocation{}, err
	}
	s.log.Info().Str("security", sec.Symbol).Str("sector", a.Sector).Str("country", a.Country).
		Msg("security allocation set")
	return *stored, nil
}
