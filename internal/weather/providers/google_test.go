package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-etl/internal/weather"
)

func TestGoogleGeocoderResolve(t *testing.T) {
	g := NewGoogleGeocoder("google-key")

	var gotCity, gotKey string
	g.lookup = func(addr geocoder.Address) (geocoder.Location, error) {
		gotCity = addr.City
		gotKey = geocoder.ApiKey
		return geocoder.Location{Latitude: -8.0476, Longitude: -34.877}, nil
	}

	coord, err := g.Resolve(context.Background(), "Recife")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if coord.Latitude != -8.0476 || coord.Longitude != -34.877 {
		t.Fatalf("unexpected coordinates %+v", coord)
	}
	if gotCity != "Recife" || gotKey != "google-key" {
		t.Fatalf("lookup called with city=%q key=%q", gotCity, gotKey)
	}
}

func TestGoogleGeocoderNoResults(t *testing.T) {
	g := NewGoogleGeocoder("google-key")
	g.lookup = func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("ZERO_RESULTS")
	}

	_, err := g.Resolve(context.Background(), "Atlantis")
	if !errors.Is(err, weather.ErrCityNotFound) {
		t.Fatalf("expected ErrCityNotFound, got %v", err)
	}
}

func TestGoogleGeocoderFailure(t *testing.T) {
	g := NewGoogleGeocoder("google-key")
	g.lookup = func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("REQUEST_DENIED")
	}

	_, err := g.Resolve(context.Background(), "Recife")
	if err == nil || errors.Is(err, weather.ErrCityNotFound) {
		t.Fatalf("expected generic failure, got %v", err)
	}
}

func TestGoogleGeocoderCancelled(t *testing.T) {
	g := NewGoogleGeocoder("google-key")
	g.lookup = func(geocoder.Address) (geocoder.Location, error) {
		t.Fatalf("lookup must not run for a cancelled context")
		return geocoder.Location{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Resolve(ctx, "Recife"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGoogleGeocoderCancelledDuringLookup(t *testing.T) {
	g := NewGoogleGeocoder("google-key")
	started := make(chan struct{})
	release := make(chan struct{})
	g.lookup = func(geocoder.Address) (geocoder.Location, error) {
		close(started)
		<-release
		return geocoder.Location{Latitude: -8.0476, Longitude: -34.877}, nil
	}
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	errc := make(chan error, 1)
	go func() {
		_, err := g.Resolve(ctx, "Recife")
		errc <- err
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Resolve kept waiting on a cancelled context")
	}
}
