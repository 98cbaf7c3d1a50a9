package recorder

import "time"

// normalEpsilon is the tolerance used to decide a configured speed is
// "normal" (1.0), grounded on original_source/src/looprec.cpp's Speed class.
const normalEpsilon = 1e-6

// Speed scales durations for paced playback (spec.md §4.8/§4.9). The zero
// value is not meaningful; use NewSpeed.
type Speed struct {
	value    float64
	isNormal bool
}

// MinSpeed is the floor enforced on configured speed (spec.md §4.9: "Speed
// is max(0.1, configured)").
const MinSpeed = 0.1

// NewSpeed clamps v to [MinSpeed, +inf) and classifies it normal/fast/slow.
func NewSpeed(v float64) Speed {
	if v < MinSpeed {
		v = MinSpeed
	}
	return Speed{value: v, isNormal: absf(v-1.0) < normalEpsilon}
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Value returns the raw multiplier.
func (s Speed) Value() float64 { return s.value }

// IsNormal reports whether the speed is (within epsilon) 1.0.
func (s Speed) IsNormal() bool { return s.isNormal }

// IsFast reports whether the speed is greater than 1.0.
func (s Speed) IsFast() bool { return !s.isNormal && s.value > 1.0 }

// IsSlow reports whether the speed is less than 1.0.
func (s Speed) IsSlow() bool { return !s.isNormal && s.value < 1.0 }

// Mul converts a wall-clock duration into the recording-time duration it
// covers at this speed (e.g. at 2x, one wall-clock second covers two
// recording-time seconds).
func (s Speed) Mul(d time.Duration) time.Duration {
	if s.isNormal {
		return d
	}
	return time.Duration(float64(d) * s.value)
}

// Div is the inverse of Mul: converts a recording-time duration into the
// wall-clock duration needed to play it back at this speed.
func (s Speed) Div(d time.Duration) time.Duration {
	if s.isNormal {
		return d
	}
	return time.Duration(float64(d) / s.value)
}
