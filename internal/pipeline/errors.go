package pipeline

import (
	"errors"
	"fmt"

	"github.com/i474232898/weather-etl/internal/storage"
	"github.com/i474232898/weather-etl/internal/transform"
	"github.com/i474232898/weather-etl/internal/weather"
)

// Kind classifies why a step failed.
type Kind string

const (
	KindNoData       Kind = "no-data"
	KindMissingField Kind = "missing-field"
	KindTimeout      Kind = "timeout"
	KindTransfer     Kind = "transfer"
	KindCityNotFound Kind = "city-not-found"
	KindCancelled    Kind = "cancelled"
	KindGeneric      Kind = "generic"
)

var (
	// ErrNoCity is returned when a run is started without a city.
	ErrNoCity = errors.New("no city given")
	// ErrProbeTimeout is returned when the weather endpoint never answered
	// successfully within the probe timeout.
	ErrProbeTimeout = errors.New("weather api not available")
)

// StepError is the single failure type a run reports.
type StepError struct {
	Step Step
	Kind Kind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by a step to its Kind. Context errors are
// generic here: an http.Client timeout also matches context.DeadlineExceeded,
// so only the run context decides whether a step was cancelled.
func Classify(err error) Kind {
	var mfe *weather.MissingFieldError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProbeTimeout):
		return KindTimeout
	case errors.Is(err, transform.ErrNoData), errors.Is(err, storage.ErrEmptyPath), errors.Is(err, ErrNoCity):
		return KindNoData
	case errors.As(err, &mfe):
		return KindMissingField
	case errors.Is(err, weather.ErrCityNotFound):
		return KindCityNotFound
	case errors.Is(err, storage.ErrUpload):
		return KindTransfer
	default:
		return KindGeneric
	}
}
