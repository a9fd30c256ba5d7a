package weather

import (
	"context"
	"errors"
)

// ErrCityNotFound is returned when geocoding yields no match for a city.
var ErrCityNotFound = errors.New("city not found")

// Resolver turns a city name into coordinates.
type Resolver interface {
	Resolve(ctx context.Context, city string) (GeoCoordinate, error)
}

// Source abstracts the current-weather endpoint. Ping only checks that the
// endpoint answers successfully; Current returns the raw response body.
type Source interface {
	Ping(ctx context.Context, coord GeoCoordinate) error
	Current(ctx context.Context, coord GeoCoordinate) ([]byte, error)
}
