// Package engine coordinates device power state: the wakefulness machine,
// the wake lock table, user activity timeouts, the dream scheduler, and the
// suspend blockers that keep the CPU up while any of them needs it.
package engine

import (
	"errors"
	"strings"

	"github.com/danielpatrickdp/power-coordinator/internal/activity"
	"github.com/danielpatrickdp/power-coordinator/internal/display"
	"github.com/danielpatrickdp/power-coordinator/internal/wakelock"
)

// #region errors

// ErrInvalidArgument marks caller mistakes that are reported, not absorbed:
// timestamps in the future, empty handles, unknown levels.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrInvalidState marks operations that name a real entity but conflict with
// its current state, such as re-acquiring a handle under another owner.
var ErrInvalidState = errors.New("invalid state")

// #endregion

// #region wakefulness

// Wakefulness is the global interactivity state of the device.
type Wakefulness string

const (
	// WakefulnessAsleep means the screen is off and only wake locks or an
	// explicit wake request keep anything running.
	WakefulnessAsleep Wakefulness = "asleep"
	// WakefulnessAwake means the device is fully interactive.
	WakefulnessAwake Wakefulness = "awake"
	// WakefulnessNapping is the transient state between the activity
	// timeout and the dream scheduler's verdict.
	WakefulnessNapping Wakefulness = "napping"
	// WakefulnessDreaming means the screensaver owns the screen.
	WakefulnessDreaming Wakefulness = "dreaming"
)

// SleepReason records why a sleep transition happened.
type SleepReason string

const (
	// SleepReasonUser is an explicit request, and the default.
	SleepReasonUser SleepReason = "user"
	// SleepReasonTimeout is the user activity timeout expiring.
	SleepReasonTimeout SleepReason = "timeout"
	// SleepReasonDeviceAdmin is a device policy lock-now request.
	SleepReasonDeviceAdmin SleepReason = "device-admin"
)

func (r SleepReason) normalize() SleepReason {
	switch r {
	case SleepReasonTimeout, SleepReasonDeviceAdmin:
		return r
	}
	return SleepReasonUser
}

// #endregion

// #region dirty set

// DirtySet accumulates the categories of state that changed since the last
// recompute pass.
type DirtySet uint32

const (
	// DirtyWakeLocks: the wake lock table changed.
	DirtyWakeLocks DirtySet = 1 << iota
	// DirtyWakefulness: the wakefulness state changed.
	DirtyWakefulness
	// DirtyUserActivity: an activity timestamp advanced or timed out.
	DirtyUserActivity
	// DirtyActualDisplayState: the display subsystem reported a change.
	DirtyActualDisplayState
	// DirtyBootCompleted: boot finished.
	DirtyBootCompleted
	// DirtySettings: a policy setting or override changed.
	DirtySettings
	// DirtyIsPowered: external power appeared or disappeared.
	DirtyIsPowered
	// DirtyStayOn: the stay-on-while-plugged-in result changed.
	DirtyStayOn
	// DirtyBatteryState: battery level or plug type may have changed.
	DirtyBatteryState
	// DirtyProximityPositive: the proximity sensor toggled.
	DirtyProximityPositive
	// DirtyScreenOnGateReleased: the screen-on gate released.
	DirtyScreenOnGateReleased
	// DirtyDockState: the dock state changed.
	DirtyDockState
)

// Has reports whether any bit of x is set.
func (d DirtySet) Has(x DirtySet) bool { return d&x != 0 }

// String renders the set bits for logs and dump output.
func (d DirtySet) String() string {
	if d == 0 {
		return "none"
	}
	names := []struct {
		bit  DirtySet
		name string
	}{
		{DirtyWakeLocks, "wake-locks"},
		{DirtyWakefulness, "wakefulness"},
		{DirtyUserActivity, "user-activity"},
		{DirtyActualDisplayState, "actual-display-state"},
		{DirtyBootCompleted, "boot-completed"},
		{DirtySettings, "settings"},
		{DirtyIsPowered, "is-powered"},
		{DirtyStayOn, "stay-on"},
		{DirtyBatteryState, "battery-state"},
		{DirtyProximityPositive, "proximity-positive"},
		{DirtyScreenOnGateReleased, "screen-on-gate-released"},
		{DirtyDockState, "dock-state"},
	}
	var parts []string
	for _, n := range names {
		if d.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// #endregion

// #region power sources

// PlugType identifies the external power source.
type PlugType string

const (
	PlugNone     PlugType = "none"
	PlugAC       PlugType = "ac"
	PlugUSB      PlugType = "usb"
	PlugWireless PlugType = "wireless"
)

// PlugMask selects a set of plug types, e.g. for stay-on-while-plugged-in.
type PlugMask uint32

const (
	PlugMaskAC PlugMask = 1 << iota
	PlugMaskUSB
	PlugMaskWireless

	// PlugMaskAny matches any external power source.
	PlugMaskAny = PlugMaskAC | PlugMaskUSB | PlugMaskWireless
)

// Mask returns the mask bit for the plug type, or zero for PlugNone.
func (t PlugType) Mask() PlugMask {
	switch t {
	case PlugAC:
		return PlugMaskAC
	case PlugUSB:
		return PlugMaskUSB
	case PlugWireless:
		return PlugMaskWireless
	}
	return 0
}

// DockState is whether the device sits in a dock.
type DockState string

const (
	DockStateUndocked DockState = "undocked"
	DockStateDocked   DockState = "docked"
)

// #endregion

// #region callers

// CallerIdentity identifies the caller of an engine operation for policy
// decisions and attribution.
type CallerIdentity struct {
	UID     int32
	PID     int32
	Package string
}

// WakePolicy decides whether a wake request from the given caller proceeds.
// A nil policy allows every caller.
type WakePolicy func(CallerIdentity) bool

// #endregion

// #region collaborators

// DisplaySink receives the power request the engine computes each pass. The
// ready return value reports whether the previously requested state has been
// fully applied; until it is, the engine keeps the display suspend blocker
// held and defers transition-finished notifications.
type DisplaySink interface {
	RequestPowerState(req display.PowerRequest, waitForNegativeProximity bool) (ready bool)
	IsProximitySensorAvailable() bool
}

// DreamHost starts and stops the screensaver. All calls are made from the
// engine worker goroutine without the engine lock held.
type DreamHost interface {
	StartDream() error
	StopDream()
	IsDreaming() bool
}

// BatterySource answers point-in-time battery questions. The engine only
// queries it after a battery-changed callback.
type BatterySource interface {
	IsPowered(mask PlugMask) bool
	PlugType() PlugType
	Level() int
}

// WirelessDockDetector decides whether a wireless charging transition means
// the device was just set on a charging dock, using its own hysteresis over
// the observed plug and battery history.
type WirelessDockDetector interface {
	Update(isPowered bool, plugType PlugType, batteryLevel int) bool
}

// LivenessMonitor watches a wake lock owner and reports when it dies so the
// engine can release the lock. Subscribe returns a cancel function.
type LivenessMonitor interface {
	Subscribe(handle string, onLost func()) (cancel func(), err error)
}

// LightsSink sets the button and keyboard backlight levels.
type LightsSink interface {
	SetButtonBrightness(brightness int)
	SetKeyboardBrightness(brightness int)
}

// SettingsSource reads the dynamic policy settings. Getters never fail; they
// fall back to the supplied default.
type SettingsSource interface {
	GetInt64(key string, def int64) int64
	GetInt(key string, def int) int
	GetBool(key string, def bool) bool
	GetFloat(key string, def float64) float64
	GetString(key, def string) string
}

// BootAnimation reports whether the boot animation is still running. The
// engine polls it after system ready and marks boot completed when it ends.
type BootAnimation interface {
	Finished() bool
}

// Notifier observes power transitions. Hooks are invoked with the engine
// lock held, so implementations must hand work off rather than call back
// into the engine synchronously.
type Notifier interface {
	OnWakeLockAcquired(l *wakelock.Lock)
	OnWakeLockReleased(l *wakelock.Lock)
	OnUserActivity(event activity.Event, uid int32)
	OnWakeUpStarted()
	OnWakeUpFinished()
	OnGoToSleepStarted(reason SleepReason, clearedScreenLocks int)
	OnGoToSleepFinished()
	OnWakefulnessChanged(w Wakefulness)
	OnScreenOnChanged(on bool)
	OnDreamStarted(sessionID string)
	OnDreamStopped(sessionID string)
	OnWirelessChargingStarted(batteryLevel int)
}

// nopNotifier stands in when no notifier is configured.
type nopNotifier struct{}

func (nopNotifier) OnWakeLockAcquired(*wakelock.Lock)       {}
func (nopNotifier) OnWakeLockReleased(*wakelock.Lock)       {}
func (nopNotifier) OnUserActivity(activity.Event, int32)    {}
func (nopNotifier) OnWakeUpStarted()                        {}
func (nopNotifier) OnWakeUpFinished()                       {}
func (nopNotifier) OnGoToSleepStarted(SleepReason, int)     {}
func (nopNotifier) OnGoToSleepFinished()                    {}
func (nopNotifier) OnWakefulnessChanged(Wakefulness)        {}
func (nopNotifier) OnScreenOnChanged(bool)                  {}
func (nopNotifier) OnDreamStarted(string)                   {}
func (nopNotifier) OnDreamStopped(string)                   {}
func (nopNotifier) OnWirelessChargingStarted(int)           {}

// defaultsSource stands in when no settings store is configured: every
// getter returns its default.
type defaultsSource struct{}

func (defaultsSource) GetInt64(_ string, def int64) int64     { return def }
func (defaultsSource) GetInt(_ string, def int) int           { return def }
func (defaultsSource) GetBool(_ string, def bool) bool        { return def }
func (defaultsSource) GetFloat(_ string, def float64) float64 { return def }
func (defaultsSource) GetString(_, def string) string         { return def }

// #endregion
