package transform

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-etl/internal/common"
	"github.com/i474232898/weather-etl/internal/weather"
)

var (
	// ErrNoData is returned when the extractor handed over an empty payload.
	ErrNoData = errors.New("no data received from extraction")
	// ErrTransform wraps any other failure while shaping or writing a record.
	ErrTransform = errors.New("error transforming weather data")
)

// Header is the fixed column order of the artifact file.
var Header = []string{
	"City",
	"Description",
	"Temperature (C)",
	"Feels Like (C)",
	"Minimun Temp (C)", // spelling kept so new files match objects already stored
	"Maximum Temp (C)",
	"Pressure",
	"Humidity",
	"Wind Speed",
	"Time of Record",
	"Sunrise (Local Time)",
	"Sunset (Local Time)",
}

const (
	localTimeLayout     = "2006-01-02 15:04:05"
	fileTimestampLayout = "20060102_150405"
)

// KelvinToCelsius converts k to Celsius rounded to two decimals. Rounding
// works on the exact decimal value of the difference, ties to even.
func KelvinToCelsius(k float64) float64 {
	c, err := strconv.ParseFloat(strconv.FormatFloat(k-273.15, 'f', 2, 64), 64)
	if err != nil || c == 0 {
		// normalise -0
		return 0
	}
	return c
}

// LocalTime shifts a UTC epoch by a timezone offset in seconds and returns
// the resulting civil time. The value is expressed in UTC so it renders
// without any zone conversion.
func LocalTime(epoch, offsetSeconds int64) time.Time {
	return time.Unix(epoch+offsetSeconds, 0).UTC()
}

// BuildRecord flattens validated conditions into a WeatherRecord.
func BuildRecord(c weather.CurrentConditions) weather.WeatherRecord {
	return weather.WeatherRecord{
		City:         c.City,
		Description:  c.Description,
		Temperature:  KelvinToCelsius(c.TempK),
		FeelsLike:    KelvinToCelsius(c.FeelsLikeK),
		MinTemp:      KelvinToCelsius(c.TempMinK),
		MaxTemp:      KelvinToCelsius(c.TempMaxK),
		Pressure:     int(math.Round(c.Pressure)),
		Humidity:     int(math.Round(c.Humidity)),
		WindSpeed:    c.WindSpeed,
		TimeOfRecord: LocalTime(c.ObservedAt, c.TimezoneOffset),
		Sunrise:      LocalTime(c.Sunrise, c.TimezoneOffset),
		Sunset:       LocalTime(c.Sunset, c.TimezoneOffset),
	}
}

// Row renders rec in Header order.
func Row(rec weather.WeatherRecord) []string {
	return []string{
		rec.City,
		rec.Description,
		formatFloat(rec.Temperature),
		formatFloat(rec.FeelsLike),
		formatFloat(rec.MinTemp),
		formatFloat(rec.MaxTemp),
		strconv.Itoa(rec.Pressure),
		strconv.Itoa(rec.Humidity),
		formatFloat(rec.WindSpeed),
		rec.TimeOfRecord.Format(localTimeLayout),
		rec.Sunrise.Format(localTimeLayout),
		rec.Sunset.Format(localTimeLayout),
	}
}

// ArtifactName returns weather_data_<city>_<YYYYMMDD_HHMMSS>.csv.
func ArtifactName(city string, at time.Time) string {
	return fmt.Sprintf("weather_data_%s_%s.csv", common.PathSegment(city), at.Format(fileTimestampLayout))
}

// formatFloat keeps at least one decimal so whole values still read as
// floats, e.g. 27.0.
func formatFloat(v float64) string {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Transformer turns a raw current-weather payload into a CSV artifact.
type Transformer struct {
	dir string
	now func() time.Time
}

// New creates a Transformer writing into dir. The artifact timestamp is
// taken from the local wall clock.
func New(dir string) *Transformer {
	return &Transformer{dir: dir, now: time.Now}
}

// WithClock replaces the clock used for artifact names.
func (t *Transformer) WithClock(now func() time.Time) *Transformer {
	t.now = now
	return t
}

// Transform validates raw, writes the one-row artifact and returns its
// absolute path. Nothing is written when validation fails.
func (t *Transformer) Transform(ctx context.Context, raw []byte) (string, error) {
	if isEmptyPayload(raw) {
		return "", ErrNoData
	}

	conditions, err := weather.ParseCurrent(raw)
	if err != nil {
		var mfe *weather.MissingFieldError
		if errors.As(err, &mfe) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrTransform, err)
	}

	rec := BuildRecord(conditions)

	path, err := t.write(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransform, err)
	}

	log.WithField("path", path).Info("weather data saved")
	return path, nil
}

func isEmptyPayload(raw []byte) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "{}", "[]":
		return true
	}
	return false
}

// write stores rec under a temporary name and renames it into place so a
// cancelled or failed run never leaves a partial artifact behind.
func (t *Transformer) write(ctx context.Context, rec weather.WeatherRecord) (string, error) {
	dir, err := filepath.Abs(t.dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}

	name := ArtifactName(rec.City, t.now())
	final := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		tmp.Close()
		return "", err
	}
	if err := w.Write(Row(rec)); err != nil {
		tmp.Close()
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write csv: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	committed = true
	return final, nil
}
