package pipeline

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-etl/internal/weather"
)

// ProbeConfig controls the availability check.
type ProbeConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultProbeConfig polls every 30 seconds for at most 5 minutes.
var DefaultProbeConfig = ProbeConfig{Interval: 30 * time.Second, Timeout: 300 * time.Second}

// waitAvailable probes src immediately and then every cfg.Interval until a
// probe succeeds or cfg.Timeout elapses.
func waitAvailable(ctx context.Context, src weather.Source, coord weather.GeoCoordinate, cfg ProbeConfig, logger *log.Entry) error {
	probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for poke := 1; ; poke++ {
		err := src.Ping(probeCtx, coord)
		if err == nil {
			logger.WithField("probes", poke).Debug("weather api is available")
			return nil
		}
		logger.WithError(err).WithField("probe", poke).Debug("weather api not ready")

		select {
		case <-probeCtx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w after %s (%d probes, last error: %v)", ErrProbeTimeout, cfg.Timeout, poke, err)
		case <-ticker.C:
		}
	}
}
