package weather

import (
	"time"
)

// GeoCoordinate is the position a city name resolves to.
type GeoCoordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// CurrentConditions is the validated, typed view of an OpenWeather
// current-weather payload. Temperatures are in Kelvin and timestamps are
// Unix seconds in UTC, exactly as the API reports them.
type CurrentConditions struct {
	City        string
	Description string

	TempK      float64
	FeelsLikeK float64
	TempMinK   float64
	TempMaxK   float64

	Pressure  float64
	Humidity  float64
	WindSpeed float64

	ObservedAt int64
	Sunrise    int64
	Sunset     int64

	// TimezoneOffset is the shift in seconds from UTC of the city.
	TimezoneOffset int64
}

// WeatherRecord is the flat row persisted for a run. Temperatures are in
// Celsius; timestamps carry local civil time without a zone.
type WeatherRecord struct {
	City         string
	Description  string
	Temperature  float64
	FeelsLike    float64
	MinTemp      float64
	MaxTemp      float64
	Pressure     int
	Humidity     int
	WindSpeed    float64
	TimeOfRecord time.Time
	Sunrise      time.Time
	Sunset       time.Time
}
