package ranking

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeCalibrationFile writes a temp calibration file and returns its path.
func writeCalibrationFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calibration.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write calibration file: %v", err)
	}
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestLoadCalibrationEmptyPath verifies defaults with no file.
func TestLoadCalibrationEmptyPath(t *testing.T) {
	cal, err := LoadCalibration("", discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cal.Weights != DefaultWeights() {
		t.Errorf("expected default weights, got %+v", cal.Weights)
	}
	if cal.VelocityThresholdMPS != DefaultVelocityThresholdMPS {
		t.Errorf("expected default velocity threshold, got %v", cal.VelocityThresholdMPS)
	}
}

// TestLoadCalibrationMissingFile verifies a configured but unreadable file is
// an error, not a silent fallback to defaults.
func TestLoadCalibrationMissingFile(t *testing.T) {
	cal, err := LoadCalibration("/nonexistent/calibration.json", discardLogger())
	if err == nil {
		t.Error("expected error for missing file")
	}
	if cal != (Calibration{}) {
		t.Errorf("expected zero calibration on error, got %+v", cal)
	}
}

// TestLoadCalibrationInvalidJSON verifies parse failures are errors.
func TestLoadCalibrationInvalidJSON(t *testing.T) {
	path := writeCalibrationFile(t, "{not json")

	cal, err := LoadCalibration(path, discardLogger())
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
	if cal != (Calibration{}) {
		t.Errorf("expected zero calibration on error, got %+v", cal)
	}
}

// TestLoadCalibrationFullOverride verifies a complete valid override.
func TestLoadCalibrationFullOverride(t *testing.T) {
	path := writeCalibrationFile(t, `{
		"version": "1",
		"weights": {"distance": 0.5, "quality": 0.3, "subscription": 0.2},
		"velocity_threshold_mps": 4.5
	}`)

	cal, err := LoadCalibration(path, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := WeightSet{Distance: 0.5, Quality: 0.3, Subscription: 0.2}
	if cal.Weights != want {
		t.Errorf("weights = %+v, want %+v", cal.Weights, want)
	}
	if cal.VelocityThresholdMPS != 4.5 {
		t.Errorf("velocity threshold = %v, want 4.5", cal.VelocityThresholdMPS)
	}
}

// TestLoadCalibrationPartialOverride verifies unset values keep defaults and
// the merged set must still sum to 1.0.
func TestLoadCalibrationPartialOverride(t *testing.T) {
	// Distance overridden to the value that keeps the default quality and
	// subscription valid: 0.35 is already default, so use an equivalent
	// reshuffle of distance and quality only.
	path := writeCalibrationFile(t, `{
		"weights": {"distance": 0.30, "quality": 0.45}
	}`)

	cal, err := LoadCalibration(path, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(cal.Weights.Distance-0.30) > 1e-9 {
		t.Errorf("distance = %v, want 0.30", cal.Weights.Distance)
	}
	if math.Abs(cal.Weights.Quality-0.45) > 1e-9 {
		t.Errorf("quality = %v, want 0.45", cal.Weights.Quality)
	}
	if math.Abs(cal.Weights.Subscription-0.25) > 1e-9 {
		t.Errorf("subscription must keep its default, got %v", cal.Weights.Subscription)
	}
}

// TestLoadCalibrationRejectsBadSum verifies a merged set not summing to 1.0
// is rejected as a configuration error, never silently renormalized.
func TestLoadCalibrationRejectsBadSum(t *testing.T) {
	path := writeCalibrationFile(t, `{
		"weights": {"distance": 0.9}
	}`)

	cal, err := LoadCalibration(path, discardLogger())
	if !errors.Is(err, ErrInvalidWeights) {
		t.Errorf("expected ErrInvalidWeights, got %v", err)
	}
	if cal != (Calibration{}) {
		t.Errorf("expected zero calibration on rejection, got %+v", cal)
	}
}

// TestLoadCalibrationErrorYieldsUnusableWeights verifies that every error
// path returns a weight set that fails validation, so a caller that ignores
// the error cannot accidentally serve traffic on substituted weights.
func TestLoadCalibrationErrorYieldsUnusableWeights(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing file", "/nonexistent/calibration.json"},
		{"invalid json", writeCalibrationFile(t, "{not json")},
		{"bad sum", writeCalibrationFile(t, `{"weights": {"distance": 0.9}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal, err := LoadCalibration(tt.path, discardLogger())
			if err == nil {
				t.Fatal("expected error")
			}
			if cal.Weights.Validate() == nil {
				t.Errorf("error path returned usable weights: %+v", cal.Weights)
			}
		})
	}
}
