package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-etl/internal/weather"
)

// Step names one link of the run chain.
type Step string

const (
	StepResolve   Step = "get_city_coordinates"
	StepProbe     Step = "is_weather_api_ready"
	StepExtract   Step = "extract_weather_data"
	StepTransform Step = "transform_loaded_weather_data"
	StepUpload    Step = "upload_to_s3"
)

// Steps lists the chain in execution order.
var Steps = []Step{StepResolve, StepProbe, StepExtract, StepTransform, StepUpload}

// Transformer turns the raw extraction into an artifact file path.
type Transformer interface {
	Transform(ctx context.Context, raw []byte) (string, error)
}

// Uploader stores an artifact and returns its object key.
type Uploader interface {
	Upload(ctx context.Context, artifactPath string) (string, error)
}

// Recorder keeps a history of runs. Recording failures are logged and never
// fail a run.
type Recorder interface {
	RunStarted(ctx context.Context, res Result) error
	RunFinished(ctx context.Context, res Result) error
}

// Result describes one run.
type Result struct {
	RunID        string
	City         string
	StartedAt    time.Time
	FinishedAt   time.Time
	Coordinates  weather.GeoCoordinate
	ArtifactPath string
	ObjectKey    string

	// Err is nil on success, otherwise a *StepError.
	Err error
}

// Succeeded reports whether the run completed every step.
func (r Result) Succeeded() bool {
	return r.Err == nil && !r.FinishedAt.IsZero()
}

// Deps bundles the collaborators of a Runner.
type Deps struct {
	Resolver    weather.Resolver
	Source      weather.Source
	Transformer Transformer
	Uploader    Uploader
	Recorder    Recorder // optional

	Retry RetryPolicy
	Probe ProbeConfig

	NewID func() string
	Now   func() time.Time
}

// Runner executes the five-step chain for one city.
type Runner struct {
	resolver    weather.Resolver
	source      weather.Source
	transformer Transformer
	uploader    Uploader
	recorder    Recorder

	retry RetryPolicy
	probe ProbeConfig

	newID func() string
	now   func() time.Time
}

func New(d Deps) *Runner {
	r := &Runner{
		resolver:    d.Resolver,
		source:      d.Source,
		transformer: d.Transformer,
		uploader:    d.Uploader,
		recorder:    d.Recorder,
		retry:       d.Retry,
		probe:       d.Probe,
		newID:       d.NewID,
		now:         d.Now,
	}
	if r.probe.Interval <= 0 {
		r.probe.Interval = DefaultProbeConfig.Interval
	}
	if r.probe.Timeout <= 0 {
		r.probe.Timeout = DefaultProbeConfig.Timeout
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Run executes every step in order for city. Each step receives the
// previous step's output; the first failure stops the run and is returned
// as a *StepError.
func (r *Runner) Run(ctx context.Context, city string) (Result, error) {
	res := Result{
		RunID:     r.newID(),
		City:      strings.TrimSpace(city),
		StartedAt: r.now(),
	}
	logger := log.WithFields(log.Fields{
		"run_id": res.RunID,
		"city":   res.City,
	})
	logger.Info("run started")

	// The ledger must still be written when the run itself is cancelled.
	recordCtx := context.WithoutCancel(ctx)
	if r.recorder != nil {
		if err := r.recorder.RunStarted(recordCtx, res); err != nil {
			logger.WithError(err).Warn("could not record run start")
		}
	}

	err := r.execute(ctx, logger, &res)

	res.FinishedAt = r.now()
	if err != nil {
		res.Err = err
		logger.WithError(err).Error("run failed")
	} else {
		logger.WithFields(log.Fields{
			"artifact": res.ArtifactPath,
			"key":      res.ObjectKey,
		}).Info("run succeeded")
	}

	if r.recorder != nil {
		if recErr := r.recorder.RunFinished(recordCtx, res); recErr != nil {
			logger.WithError(recErr).Warn("could not record run result")
		}
	}
	return res, err
}

func (r *Runner) execute(ctx context.Context, logger *log.Entry, res *Result) error {
	if res.City == "" {
		return &StepError{Step: StepResolve, Kind: KindNoData, Err: ErrNoCity}
	}

	coord, err := runStep(ctx, r, logger, StepResolve, func(ctx context.Context) (weather.GeoCoordinate, error) {
		return r.resolver.Resolve(ctx, res.City)
	})
	if err != nil {
		return err
	}
	res.Coordinates = coord

	_, err = runStep(ctx, r, logger, StepProbe, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, waitAvailable(ctx, r.source, coord, r.probe, logger)
	})
	if err != nil {
		return err
	}

	raw, err := runStep(ctx, r, logger, StepExtract, func(ctx context.Context) ([]byte, error) {
		return r.source.Current(ctx, coord)
	})
	if err != nil {
		return err
	}

	artifact, err := runStep(ctx, r, logger, StepTransform, func(ctx context.Context) (string, error) {
		return r.transformer.Transform(ctx, raw)
	})
	if err != nil {
		return err
	}
	res.ArtifactPath = artifact

	key, err := runStep(ctx, r, logger, StepUpload, func(ctx context.Context) (string, error) {
		return r.uploader.Upload(ctx, artifact)
	})
	if err != nil {
		return err
	}
	res.ObjectKey = key
	return nil
}

// runStep runs one step under the retry policy and converts its failure
// into a *StepError.
func runStep[T any](ctx context.Context, r *Runner, logger *log.Entry, step Step, fn func(context.Context) (T, error)) (T, error) {
	logger = logger.WithField("step", step)
	logger.Info("step started")
	start := time.Now()

	out, err := retryStep(ctx, r.retry, logger, fn)
	if err != nil {
		kind := Classify(err)
		if ctx.Err() != nil {
			kind = KindCancelled
		}
		logger.WithError(err).WithField("kind", kind).Error("step failed")
		return out, &StepError{Step: step, Kind: kind, Err: err}
	}

	logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("step succeeded")
	return out, nil
}
