package logger_test

import (
	"errors"

	"github.com/wonny/qval/pkg/config"
	"github.com/wonny/qval/pkg/logger"
)

// Example_basic demonstrates basic logger usage
func Example_basic() {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "console",
	}

	// Create logger (SSOT)
	log := logger.New(cfg)

	log.Debug("This won't appear (level is info)")
	log.Info("Batch started")
	log.Infof("Evaluating %d model specs", 5)
}

// Example_component demonstrates how domain components receive their logger
func Example_component() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.New(cfg)

	est := log.Component("estimator.rolling")
	est.Warn().
		Str("model", "m2_rolling_capm").
		Str("date", "2023-03-15").
		Msg("fit did not converge, reusing last converged params")

	log.WithError(errors.New("lookahead violation")).
		WithField("run_id", "01HZX3J9Q8").
		Error("run aborted")
}
