package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-etl/internal/common"
	"github.com/i474232898/weather-etl/internal/weather"
)

// geocoderMu guards the package-level API key of the geocoder library.
var geocoderMu sync.Mutex

// GoogleGeocoder resolves city names with the Google Geocoding API.
type GoogleGeocoder struct {
	apiKey string
	lookup func(geocoder.Address) (geocoder.Location, error)
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{
		apiKey: apiKey,
		lookup: geocoder.Geocoding,
	}
}

func (g *GoogleGeocoder) Resolve(ctx context.Context, city string) (weather.GeoCoordinate, error) {
	if g.apiKey == "" {
		return weather.GeoCoordinate{}, fmt.Errorf("google geocoding api key is not configured")
	}
	if err := ctx.Err(); err != nil {
		return weather.GeoCoordinate{}, err
	}

	type lookupResult struct {
		loc geocoder.Location
		err error
	}
	done := make(chan lookupResult, 1)

	// The library takes no context; a cancelled run stops waiting and the
	// lookup finishes in the background.
	go func() {
		geocoderMu.Lock()
		defer geocoderMu.Unlock()
		geocoder.ApiKey = g.apiKey
		loc, err := g.lookup(geocoder.Address{City: city})
		done <- lookupResult{loc: loc, err: err}
	}()

	var loc geocoder.Location
	select {
	case <-ctx.Done():
		return weather.GeoCoordinate{}, ctx.Err()
	case res := <-done:
		loc = res.loc
		if err := res.err; err != nil {
			if common.HasAny(strings.ToLower(err.Error()), "zero_results", "no results") {
				return weather.GeoCoordinate{}, fmt.Errorf("%w: %q", weather.ErrCityNotFound, city)
			}
			return weather.GeoCoordinate{}, fmt.Errorf("google geocoding failed: %w", err)
		}
	}

	if loc.Latitude == 0 && loc.Longitude == 0 {
		return weather.GeoCoordinate{}, fmt.Errorf("%w: %q", weather.ErrCityNotFound, city)
	}

	return weather.GeoCoordinate{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}, nil
}
