package shipping

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var ErrOutOfRange = errors.New("address outside delivery range")

// Tier prices every distance up to MaxDistanceKm.
type Tier struct {
	MaxDistanceKm float64
	Rate          int64 // centavos
}

type Quote struct {
	DistanceKm float64 `json:"distance_km"`
	Rate       int64   `json:"rate"`
	ETADays    int     `json:"eta_days"`
}

type Calculator struct {
	tiers []Tier
}

// NewCalculator sorts tiers by distance. Empty or non-positive tiers are
// rejected.
func NewCalculator(tiers []Tier) (*Calculator, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("shipping tiers must not be empty")
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	for _, t := range sorted {
		if t.MaxDistanceKm <= 0 || t.Rate < 0 {
			return nil, fmt.Errorf("shipping tier %v must have a positive distance and a non-negative rate", t)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MaxDistanceKm < sorted[j].MaxDistanceKm })
	return &Calculator{tiers: sorted}, nil
}

// Quote picks the first tier whose limit covers distanceKm.
func (c *Calculator) Quote(distanceKm float64) (Quote, error) {
	if distanceKm < 0 || math.IsNaN(distanceKm) {
		return Quote{}, fmt.Errorf("invalid distance %v", distanceKm)
	}
	for _, t := range c.tiers {
		if distanceKm <= t.MaxDistanceKm {
			return Quote{
				DistanceKm: math.Round(distanceKm*100) / 100,
				Rate:       t.Rate,
				ETADays:    etaDays(distanceKm),
			}, nil
		}
	}
	return Quote{}, fmt.Errorf("%w: %.1f km", ErrOutOfRange, distanceKm)
}

func etaDays(km float64) int {
	switch {
	case km <= 50:
		return 1
	case km <= 100:
		return 2
	default:
		return 3
	}
}

// ParseTiers reads "maxKm:rate" pairs separated by commas, e.g.
// "10:500,50:1000,100:2000".
func ParseTiers(s string) ([]Tier, error) {
	var tiers []Tier
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		km, rate, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("shipping tier %q must be maxKm:rate", part)
		}
		maxKm, err := strconv.ParseFloat(strings.TrimSpace(km), 64)
		if err != nil {
			return nil, fmt.Errorf("shipping tier %q: bad distance: %w", part, err)
		}
		r, err := strconv.ParseInt(strings.TrimSpace(rate), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("shipping tier %q: bad rate: %w", part, err)
		}
		tiers = append(tiers, Tier{MaxDistanceKm: maxKm, Rate: r})
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("shipping tiers must not be empty")
	}
	return tiers, nil
}
