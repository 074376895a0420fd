package shipping

import (
	"context"
	"fmt"
)

// Quoter prices delivery from the store's origin to a postal code.
type Quoter struct {
	geocoder Geocoder
	calc     *Calculator
	origin   Point
}

func NewQuoter(geocoder Geocoder, calc *Calculator, origin Point) *Quoter {
	return &Quoter{geocoder: geocoder, calc: calc, origin: origin}
}

func (q *Quoter) Quote(ctx context.Context, postalCode string) (Quote, error) {
	dest, err := q.geocoder.Lookup(ctx, postalCode)
	if err != nil {
		return Quote{}, fmt.Errorf("geocode %s: %w", postalCode, err)
	}
	return q.calc.Quote(DistanceKm(q.origin, dest))
}
