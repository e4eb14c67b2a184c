package display

import (
	"fmt"
	"log"
	"sync"
)

// #region hardware

// Hardware is the narrow surface the blanker drives. Implementations write
// to the platform backlight and autosuspend controls; tests record calls.
type Hardware interface {
	SetInteractive(on bool)
	SetAutoSuspend(enable bool)
	Blank()
	Unblank()
}

// #endregion

// #region blanker

// Blanker turns every display on or off as a unit and keeps the autosuspend
// and interactivity hints in step with the screen. Blanking is idempotent.
type Blanker struct {
	mu      sync.Mutex
	hw      Hardware
	blanked bool
}

// NewBlanker returns a blanker over the given hardware.
func NewBlanker(hw Hardware) *Blanker {
	return &Blanker{hw: hw}
}

// BlankAll turns the displays off, drops the interactivity hint, and enables
// autosuspend, in that order.
func (b *Blanker) BlankAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blanked {
		return
	}
	b.blanked = true
	log.Printf("[DISPLAY] blanking all displays")
	b.hw.Blank()
	b.hw.SetInteractive(false)
	b.hw.SetAutoSuspend(true)
}

// UnblankAll disables autosuspend, raises the interactivity hint, and turns
// the displays back on. The hint ordering is the mirror image of BlankAll so
// the hardware is never interactive while autosuspend is enabled.
func (b *Blanker) UnblankAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.blanked {
		return
	}
	b.blanked = false
	log.Printf("[DISPLAY] unblanking all displays")
	b.hw.SetAutoSuspend(false)
	b.hw.SetInteractive(true)
	b.hw.Unblank()
}

// IsBlanked reports whether the displays are currently blanked.
func (b *Blanker) IsBlanked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blanked
}

// String describes the blanker for dump output.
func (b *Blanker) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("blanked=%v", b.blanked)
}

// #endregion

// #region sink

// Sink is a display power sink that applies requests synchronously through a
// blanker. It is the in-process stand-in for a full display power controller:
// brightness animation and sensor-driven dimming stay behind the Hardware
// interface, but screen on/off tracks the request faithfully.
type Sink struct {
	mu             sync.Mutex
	blanker        *Blanker
	hasProximity   bool
	onStateChanged func()
	current        PowerRequest
	haveRequest    bool
}

// NewSink returns a sink over the blanker. onStateChanged is invoked off the
// caller's goroutine after a request takes effect, so the caller may re-enter
// from it while holding its own locks.
func NewSink(blanker *Blanker, hasProximity bool, onStateChanged func()) *Sink {
	return &Sink{blanker: blanker, hasProximity: hasProximity, onStateChanged: onStateChanged}
}

// RequestPowerState applies the request. The returned ready flag is always
// true because the sink has no animation pipeline to wait on.
func (s *Sink) RequestPowerState(req PowerRequest, waitForNegativeProximity bool) bool {
	req.Clamp()

	s.mu.Lock()
	changed := !s.haveRequest || !s.current.Equal(req)
	s.current = req
	s.haveRequest = true
	s.mu.Unlock()

	if !changed {
		return true
	}

	if req.ScreenState == ScreenOff {
		s.blanker.BlankAll()
	} else if !req.BlockScreenOn {
		s.blanker.UnblankAll()
	}
	if s.onStateChanged != nil {
		go s.onStateChanged()
	}
	return true
}

// IsProximitySensorAvailable reports whether the device carries a proximity
// sensor the sink can honor.
func (s *Sink) IsProximitySensorAvailable() bool {
	return s.hasProximity
}

// #endregion
