// Package activity tracks user activity timestamps and derives the bright
// and dim screen windows that keep the device interactive.
package activity

import (
	"strings"

	"github.com/danielpatrickdp/power-coordinator/internal/display"
)

// #region timing

const (
	// DefaultScreenOffTimeout applies when no setting is stored.
	DefaultScreenOffTimeout int64 = 15000
	// MinimumScreenOffTimeout is the floor below which no setting,
	// override, or admin ceiling can push the timeout.
	MinimumScreenOffTimeout int64 = 10000
	// MaxScreenDimDuration caps the dim window at the end of the timeout.
	MaxScreenDimDuration int64 = 7000
	// DefaultButtonOnDuration keeps the button backlight lit after each
	// activity that changes the lights.
	DefaultButtonOnDuration int64 = 5000
)

// ScreenOffTimeout resolves the effective screen off timeout from the stored
// setting, the device-admin ceiling (<=0 means none), and the window-manager
// override (<0 means none). The minimum floor always applies last.
func ScreenOffTimeout(setting, adminMax, override int64) int64 {
	timeout := setting
	if adminMax > 0 && adminMax < timeout {
		timeout = adminMax
	}
	if override >= 0 && override < timeout {
		timeout = override
	}
	if timeout < MinimumScreenOffTimeout {
		timeout = MinimumScreenOffTimeout
	}
	return timeout
}

// ScreenDimDuration returns the dim window for a timeout: one fifth of the
// timeout, capped at MaxScreenDimDuration.
func ScreenDimDuration(screenOffTimeout int64) int64 {
	d := screenOffTimeout / 5
	if d > MaxScreenDimDuration {
		d = MaxScreenDimDuration
	}
	return d
}

// #endregion

// #region events

// Event classifies what produced a user activity.
type Event string

const (
	// EventOther covers activity with no more specific class.
	EventOther Event = "other"
	// EventButton is a hardware button press.
	EventButton Event = "button"
	// EventTouch is a touch or pointer interaction.
	EventTouch Event = "touch"
)

// Flags modify how an activity is recorded.
type Flags uint32

const (
	// FlagNoChangeLights records the activity without brightening a screen
	// that has already dimmed.
	FlagNoChangeLights Flags = 1 << iota
)

// Has reports whether all bits of x are set.
func (f Flags) Has(x Flags) bool { return f&x == x }

// #endregion

// #region recording

// Guard carries the transition state that gates whether an activity may be
// recorded at all.
type Guard struct {
	LastWakeTime  int64
	LastSleepTime int64
	Asleep        bool
	BootCompleted bool
	SystemReady   bool
}

// RecordResult describes what a Record call did.
type RecordResult string

const (
	// RecordRejected means the guard refused the event: it predates the
	// last transition or arrived while asleep or before boot.
	RecordRejected RecordResult = "rejected"
	// RecordStale means the guard passed but the timestamp was not newer
	// than the one already held.
	RecordStale RecordResult = "stale"
	// RecordRecorded means a timestamp advanced.
	RecordRecorded RecordResult = "recorded"
)

// Tracker holds the two user-activity timestamps: the ordinary one that
// drives the lights, and the no-change-lights one that only defers screen
// off without brightening a dimmed screen.
type Tracker struct {
	lastActivityTime               int64
	lastActivityTimeNoChangeLights int64
}

// Record advances the appropriate timestamp for an activity at eventTime.
func (t *Tracker) Record(eventTime int64, changesLights bool, g Guard) RecordResult {
	if eventTime < g.LastSleepTime || eventTime < g.LastWakeTime ||
		g.Asleep || !g.BootCompleted || !g.SystemReady {
		return RecordRejected
	}
	if changesLights {
		if eventTime <= t.lastActivityTime {
			return RecordStale
		}
		t.lastActivityTime = eventTime
		return RecordRecorded
	}
	if eventTime <= t.lastActivityTimeNoChangeLights {
		return RecordStale
	}
	t.lastActivityTimeNoChangeLights = eventTime
	return RecordRecorded
}

// LastActivityTime returns the lights-changing timestamp, for dump output.
func (t *Tracker) LastActivityTime() int64 { return t.lastActivityTime }

// LastActivityTimeNoChangeLights returns the quiet timestamp, for dump output.
func (t *Tracker) LastActivityTimeNoChangeLights() int64 { return t.lastActivityTimeNoChangeLights }

// #endregion

// #region summary

// SummaryBits is the screen demand derived from recent activity.
type SummaryBits uint32

const (
	// ScreenBright demands a fully bright screen.
	ScreenBright SummaryBits = 1 << iota
	// ScreenDim demands an at-least-dim screen.
	ScreenDim
)

// Has reports whether all bits of x are set.
func (s SummaryBits) Has(x SummaryBits) bool { return s&x == x }

// String renders the set bits.
func (s SummaryBits) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	if s.Has(ScreenBright) {
		parts = append(parts, "screen-bright")
	}
	if s.Has(ScreenDim) {
		parts = append(parts, "screen-dim")
	}
	return strings.Join(parts, "|")
}

// SummaryInput is everything Summary needs beyond the tracked timestamps.
// Timeout and dim duration arrive pre-resolved by the caller.
type SummaryInput struct {
	Now               int64
	LastWakeTime      int64
	Asleep            bool
	ScreenOffTimeout  int64
	ScreenDimDuration int64

	// ButtonTimeout is the independent button backlight window; zero
	// disables it.
	ButtonTimeout int64

	// CurrentScreenState lets no-change-lights activity extend whatever
	// state the screen is already in instead of brightening it.
	CurrentScreenState display.ScreenState
}

// SummaryResult is the derived demand plus the instant at which it next
// changes. NextTimeout is zero when no timer is needed.
type SummaryResult struct {
	Bits          SummaryBits
	NextTimeout   int64
	ButtonLightOn bool
}

// Summary computes the activity demand at in.Now. Activity older than the
// last wake is ignored so a fresh wake always starts a full window.
func (t *Tracker) Summary(in SummaryInput) SummaryResult {
	var res SummaryResult
	if in.Asleep {
		return res
	}

	if t.lastActivityTime >= in.LastWakeTime {
		brightUntil := t.lastActivityTime + in.ScreenOffTimeout - in.ScreenDimDuration
		if in.Now < brightUntil {
			res.Bits = ScreenBright
			res.NextTimeout = brightUntil
			if in.ButtonTimeout > 0 {
				buttonUntil := t.lastActivityTime + in.ButtonTimeout
				if in.Now < buttonUntil {
					res.ButtonLightOn = true
					if buttonUntil < res.NextTimeout {
						res.NextTimeout = buttonUntil
					}
				}
			}
		} else {
			dimUntil := t.lastActivityTime + in.ScreenOffTimeout
			if in.Now < dimUntil {
				res.Bits = ScreenDim
				res.NextTimeout = dimUntil
			}
		}
	}

	if res.Bits == 0 && t.lastActivityTimeNoChangeLights >= in.LastWakeTime {
		quietUntil := t.lastActivityTimeNoChangeLights + in.ScreenOffTimeout
		if in.Now < quietUntil {
			switch in.CurrentScreenState {
			case display.ScreenBright:
				res.Bits = ScreenBright
				res.NextTimeout = quietUntil
			case display.ScreenDim:
				res.Bits = ScreenDim
				res.NextTimeout = quietUntil
			}
		}
	}
	return res
}

// #endregion
