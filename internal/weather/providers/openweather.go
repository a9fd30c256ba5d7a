package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/i474232898/weather-etl/internal/weather"
	"github.com/sony/gobreaker"
)

// OpenWeatherClient talks to the OpenWeatherMap geocoding and
// current-weather endpoints. It implements weather.Resolver and
// weather.Source.
type OpenWeatherClient struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherClient(client *http.Client, baseURL, apiKey string) *OpenWeatherClient {
	return &OpenWeatherClient{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		circuit: newCircuitBreaker("openweather"),
	}
}

func (p *OpenWeatherClient) Name() string {
	return p.name
}

// Resolve returns the coordinates of the first geocoding match for city.
func (p *OpenWeatherClient) Resolve(ctx context.Context, city string) (weather.GeoCoordinate, error) {
	if p.apiKey == "" {
		return weather.GeoCoordinate{}, fmt.Errorf("openweather api key is not configured")
	}

	values := url.Values{}
	values.Set("q", city)
	values.Set("limit", "1")
	values.Set("appid", p.apiKey)

	req, err := http.NewRequest(http.MethodGet, p.baseURL+"/geo/1.0/direct?"+values.Encode(), nil)
	if err != nil {
		return weather.GeoCoordinate{}, err
	}

	resp, err := doRequest(ctx, p.client, p.circuit, req)
	if err != nil {
		return weather.GeoCoordinate{}, fmt.Errorf("openweather geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	var matches []struct {
		Name    string  `json:"name"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		Country string  `json:"country"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return weather.GeoCoordinate{}, fmt.Errorf("openweather geocoding decode: %w", err)
	}
	if len(matches) == 0 {
		return weather.GeoCoordinate{}, fmt.Errorf("%w: %q", weather.ErrCityNotFound, city)
	}

	return weather.GeoCoordinate{
		Latitude:  matches[0].Lat,
		Longitude: matches[0].Lon,
	}, nil
}

// Ping issues one current-weather request and reports whether it answered
// with a 2xx status. Probes bypass the circuit breaker so a recovering API
// is noticed on the next poll.
func (p *OpenWeatherClient) Ping(ctx context.Context, coord weather.GeoCoordinate) error {
	if p.client == nil {
		return errNoHTTPClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.weatherURL(coord), nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Current fetches the current weather for coord and returns the raw body.
func (p *OpenWeatherClient) Current(ctx context.Context, coord weather.GeoCoordinate) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, p.weatherURL(coord), nil)
	if err != nil {
		return nil, err
	}

	resp, err := doRequest(ctx, p.client, p.circuit, req)
	if err != nil {
		return nil, fmt.Errorf("openweather request failed: %w", err)
	}
	return readBody(resp)
}

func (p *OpenWeatherClient) weatherURL(coord weather.GeoCoordinate) string {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	values.Set("appid", p.apiKey)
	return p.baseURL + "/data/2.5/weather?" + values.Encode()
}
