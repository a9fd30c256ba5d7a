package providers

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-etl/internal/weather"
)

const testAPIKey = "test-key"

// fakeOpenWeather serves the subset of the OpenWeather API the client uses.
type fakeOpenWeather struct {
	baseURL      string
	weatherCalls atomic.Int32
	// weatherStatus returns the status code for the n-th weather call.
	weatherStatus func(n int32) int
	payload       []byte
}

func newFakeOpenWeather(t *testing.T) *fakeOpenWeather {
	t.Helper()

	payload, err := os.ReadFile("../testdata/current_london.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	f := &fakeOpenWeather{
		payload:       payload,
		weatherStatus: func(int32) int { return fiber.StatusOK },
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/geo/1.0/direct", func(c *fiber.Ctx) error {
		if c.Query("appid") != testAPIKey {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		if c.Query("limit") != "1" {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		if c.Query("q") == "Atlantis" {
			return c.Type("json").SendString(`[]`)
		}
		return c.Type("json").SendString(`[{"name":"London","lat":51.5073,"lon":-0.1276,"country":"GB"}]`)
	})

	app.Get("/data/2.5/weather", func(c *fiber.Ctx) error {
		n := f.weatherCalls.Add(1)
		if c.Query("appid") != testAPIKey {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		if c.Query("lat") != "51.5073" || c.Query("lon") != "-0.1276" {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		if status := f.weatherStatus(n); status != fiber.StatusOK {
			return c.SendStatus(status)
		}
		return c.Type("json").Send(f.payload)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
	})

	f.baseURL = "http://" + ln.Addr().String()
	return f
}

func newTestClient(f *fakeOpenWeather) *OpenWeatherClient {
	return NewOpenWeatherClient(&http.Client{Timeout: 5 * time.Second}, f.baseURL+"/", testAPIKey)
}

var london = weather.GeoCoordinate{Latitude: 51.5073, Longitude: -0.1276}

func TestOpenWeatherResolve(t *testing.T) {
	f := newFakeOpenWeather(t)
	c := newTestClient(f)

	coord, err := c.Resolve(context.Background(), "London")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if coord != london {
		t.Fatalf("unexpected coordinates %+v", coord)
	}
}

func TestOpenWeatherResolveCityNotFound(t *testing.T) {
	f := newFakeOpenWeather(t)
	c := newTestClient(f)

	_, err := c.Resolve(context.Background(), "Atlantis")
	if !errors.Is(err, weather.ErrCityNotFound) {
		t.Fatalf("expected ErrCityNotFound, got %v", err)
	}
}

func TestOpenWeatherResolveRequiresKey(t *testing.T) {
	f := newFakeOpenWeather(t)
	c := NewOpenWeatherClient(http.DefaultClient, f.baseURL, "")

	if _, err := c.Resolve(context.Background(), "London"); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestOpenWeatherCurrent(t *testing.T) {
	f := newFakeOpenWeather(t)
	c := newTestClient(f)

	body, err := c.Current(context.Background(), london)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(body, f.payload) {
		t.Fatalf("body does not match fixture")
	}
	if _, err := weather.ParseCurrent(body); err != nil {
		t.Fatalf("fixture body does not parse: %v", err)
	}
}

func TestOpenWeatherCurrentServerError(t *testing.T) {
	f := newFakeOpenWeather(t)
	f.weatherStatus = func(int32) int { return fiber.StatusServiceUnavailable }
	c := newTestClient(f)

	_, err := c.Current(context.Background(), london)
	if !errors.Is(err, errServerError) {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestOpenWeatherCurrentRateLimited(t *testing.T) {
	f := newFakeOpenWeather(t)
	f.weatherStatus = func(int32) int { return fiber.StatusTooManyRequests }
	c := newTestClient(f)

	_, err := c.Current(context.Background(), london)
	if !errors.Is(err, errRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}

func TestOpenWeatherCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	f := newFakeOpenWeather(t)
	f.weatherStatus = func(int32) int { return fiber.StatusInternalServerError }
	c := newTestClient(f)

	// gobreaker trips after more than five consecutive failures.
	for i := 0; i < 6; i++ {
		if _, err := c.Current(context.Background(), london); err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
	}

	_, err := c.Current(context.Background(), london)
	if !errors.Is(err, errCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if got := f.weatherCalls.Load(); got != 6 {
		t.Fatalf("expected 6 upstream calls, got %d", got)
	}

	// Probes bypass the breaker and still reach the upstream.
	f.weatherStatus = func(int32) int { return fiber.StatusOK }
	if err := c.Ping(context.Background(), london); err != nil {
		t.Fatalf("expected probe to succeed, got %v", err)
	}
}

func TestOpenWeatherPing(t *testing.T) {
	f := newFakeOpenWeather(t)
	f.weatherStatus = func(n int32) int {
		if n < 2 {
			return fiber.StatusBadGateway
		}
		return fiber.StatusOK
	}
	c := newTestClient(f)

	if err := c.Ping(context.Background(), london); err == nil {
		t.Fatalf("expected first probe to fail")
	}
	if err := c.Ping(context.Background(), london); err != nil {
		t.Fatalf("expected second probe to succeed, got %v", err)
	}
}

func TestOpenWeatherPingCancelled(t *testing.T) {
	f := newFakeOpenWeather(t)
	c := newTestClient(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Ping(ctx, london); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
