// Package display defines the power request handed to the display subsystem,
// the screen-on gate that window management uses to hold screen turn-on, and
// a blanker facade over the display hardware.
package display

import "fmt"

// #region screen state

// ScreenState is the requested power state of the built-in screen.
type ScreenState string

const (
	// ScreenOff turns the screen off entirely.
	ScreenOff ScreenState = "off"
	// ScreenDim keeps the screen on at a dimmed level.
	ScreenDim ScreenState = "dim"
	// ScreenBright keeps the screen on at full policy brightness.
	ScreenBright ScreenState = "bright"
)

// #endregion

// #region brightness bounds

const (
	// BrightnessOff is the minimum screen backlight value.
	BrightnessOff = 0
	// BrightnessDefault is used when no setting or override applies.
	BrightnessDefault = 102
	// BrightnessOn is the maximum screen backlight value.
	BrightnessOn = 255

	// MinResponsiveness and MaxResponsiveness bound the auto-brightness
	// responsiveness factor.
	MinResponsiveness = 0.2
	MaxResponsiveness = 3.0
)

// #endregion

// #region power request

// PowerRequest is the value object the engine hands to the display subsystem
// on every recompute pass. All fields are pre-clamped by the Clamp method;
// the engine never sends an out-of-range request.
type PowerRequest struct {
	// ScreenState is the requested state of the screen.
	ScreenState ScreenState

	// ScreenBrightness is the requested backlight level, BrightnessOff to
	// BrightnessOn. Ignored by the sink when auto-brightness is enabled.
	ScreenBrightness int

	// UseAutoBrightness selects sensor-driven brightness, with
	// AutoBrightnessAdjustment (-1 to 1) biasing the curve.
	UseAutoBrightness        bool
	AutoBrightnessAdjustment float64

	// UseProximitySensor asks the sink to force the screen off while the
	// proximity sensor reports positive.
	UseProximitySensor bool

	// BlockScreenOn asks the sink to keep the screen black until the
	// screen-on gate is released, even though the state is Dim or Bright.
	BlockScreenOn bool

	// ResponsivenessFactor scales auto-brightness animation speed,
	// MinResponsiveness to MaxResponsiveness.
	ResponsivenessFactor float64
}

// Clamp forces every numeric field into its documented range.
func (r *PowerRequest) Clamp() {
	r.ScreenBrightness = clampInt(r.ScreenBrightness, BrightnessOff, BrightnessOn)
	r.AutoBrightnessAdjustment = clampFloat(r.AutoBrightnessAdjustment, -1, 1)
	r.ResponsivenessFactor = clampFloat(r.ResponsivenessFactor, MinResponsiveness, MaxResponsiveness)
}

// Equal reports whether two requests are field-for-field identical.
func (r PowerRequest) Equal(o PowerRequest) bool {
	return r == o
}

// String describes the request for dump output.
func (r PowerRequest) String() string {
	return fmt.Sprintf("state=%s brightness=%d auto=%v adj=%.2f proximity=%v blockScreenOn=%v responsiveness=%.2f",
		r.ScreenState, r.ScreenBrightness, r.UseAutoBrightness, r.AutoBrightnessAdjustment,
		r.UseProximitySensor, r.BlockScreenOn, r.ResponsivenessFactor)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion
