// Package location defines the boundary to the platform location service.
//
// The telemetry pipeline never talks to GPS hardware or permission prompts
// directly; it consumes the Source interface and validates the samples it
// receives before they are transmitted.
package location

import (
	"context"
	"fmt"
	"time"
)

// MaxAccuracyMeters is the worst horizontal accuracy a sample may carry and
// still be considered usable for telemetry.
const MaxAccuracyMeters = 500

// Sample is a single position fix from the platform location service.
type Sample struct {
	Latitude  float64
	Longitude float64
	// Accuracy is the horizontal accuracy radius in meters.
	Accuracy float64
	// Speed is ground speed in m/s; nil when the platform does not report it.
	Speed *float64
	// Heading is degrees from true north; nil when the platform does not report it.
	Heading *float64
	Timestamp time.Time
}

// ValidationError reports a sample that failed an invariant check. Invalid
// samples are dropped before transmission and never reach the network.
type ValidationError struct {
	Field string
	Value float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid location sample: %s=%v out of range", e.Field, e.Value)
}

// Validate checks the sample invariants: latitude in [-90, 90], longitude in
// [-180, 180] and accuracy no worse than MaxAccuracyMeters.
func (s Sample) Validate() error {
	if s.Latitude < -90 || s.Latitude > 90 {
		return &ValidationError{Field: "latitude", Value: s.Latitude}
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return &ValidationError{Field: "longitude", Value: s.Longitude}
	}
	if s.Accuracy > MaxAccuracyMeters {
		return &ValidationError{Field: "accuracy", Value: s.Accuracy}
	}
	return nil
}

// Source supplies device positions. Platform integrations own permission
// handling and fix acquisition behind this interface.
type Source interface {
	// RequestPermission asks the platform for location access.
	RequestPermission(ctx context.Context) (bool, error)

	// CurrentPosition returns the most recent position fix.
	CurrentPosition(ctx context.Context) (Sample, error)

	// StartTracking begins continuous sampling. It is a no-op when tracking
	// is already active.
	StartTracking(ctx context.Context) error

	// StopTracking halts continuous sampling. Safe to call when not tracking.
	StopTracking()

	// Subscribe registers fn for continuous position updates and returns a
	// handle that removes the subscription.
	Subscribe(fn func(Sample)) (unsubscribe func())
}
