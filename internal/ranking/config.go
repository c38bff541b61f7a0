package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// CalibrationConfig represents the JSON structure of the weight calibration
// file. Partial overrides are allowed; unset (zero) values keep their default.
type CalibrationConfig struct {
	Version string `json:"version"`
	Weights struct {
		Distance     float64 `json:"distance"`
		Quality      float64 `json:"quality"`
		Subscription float64 `json:"subscription"`
	} `json:"weights"`
	VelocityThresholdMPS float64 `json:"velocity_threshold_mps"`
}

// Calibration is the result of loading a calibration file: the validated base
// weight set plus the velocity threshold for weight adaptation.
type Calibration struct {
	Weights              WeightSet
	VelocityThresholdMPS float64
}

// DefaultCalibration returns the built-in calibration.
func DefaultCalibration() Calibration {
	return Calibration{
		Weights:              DefaultWeights(),
		VelocityThresholdMPS: DefaultVelocityThresholdMPS,
	}
}

// LoadCalibration loads weight overrides from a JSON calibration file.
// An empty path returns defaults. Per-component overrides are merged with
// defaults, and the merged set is re-validated: a set that no longer sums to
// 1.0 is a configuration error and is rejected rather than silently fixed.
//
// Any error is a configuration error and the returned Calibration is the
// zero value. Callers must treat a non-nil error as fatal; an operator who
// configured a calibration file must never run on weights they did not
// choose. A nil logger falls back to slog.Default.
func LoadCalibration(filePath string, logger *slog.Logger) (Calibration, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if filePath == "" {
		return DefaultCalibration(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return Calibration{}, fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return Calibration{}, fmt.Errorf("failed to parse calibration file: %w", err)
	}

	cal := DefaultCalibration()
	defaults := cal.Weights

	if config.Weights.Distance != 0 {
		cal.Weights.Distance = config.Weights.Distance
	}
	if config.Weights.Quality != 0 {
		cal.Weights.Quality = config.Weights.Quality
	}
	if config.Weights.Subscription != 0 {
		cal.Weights.Subscription = config.Weights.Subscription
	}
	if config.VelocityThresholdMPS != 0 {
		cal.VelocityThresholdMPS = config.VelocityThresholdMPS
	}

	if err := cal.Weights.Validate(); err != nil {
		return Calibration{}, err
	}

	logCalibrationOverrides(logger, defaults, cal.Weights)
	return cal, nil
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(logger *slog.Logger, defaults, loaded WeightSet) {
	var overrides []string

	if loaded.Distance != defaults.Distance {
		overrides = append(overrides, fmt.Sprintf("distance: %.2f -> %.2f",
			defaults.Distance, loaded.Distance))
	}
	if loaded.Quality != defaults.Quality {
		overrides = append(overrides, fmt.Sprintf("quality: %.2f -> %.2f",
			defaults.Quality, loaded.Quality))
	}
	if loaded.Subscription != defaults.Subscription {
		overrides = append(overrides, fmt.Sprintf("subscription: %.2f -> %.2f",
			defaults.Subscription, loaded.Subscription))
	}

	if len(overrides) > 0 {
		logger.Info("loaded ranking calibration with overrides", "overrides", overrides)
	} else {
		logger.Info("loaded ranking calibration (using all defaults)")
	}
}
