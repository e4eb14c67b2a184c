package engine

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"github.com/danielpatrickdp/power-coordinator/internal/activity"
	"github.com/danielpatrickdp/power-coordinator/internal/display"
	"github.com/danielpatrickdp/power-coordinator/internal/settings"
	"github.com/danielpatrickdp/power-coordinator/internal/suspend"
	"github.com/danielpatrickdp/power-coordinator/internal/wakelock"
)

// #region constants

const (
	// maxRecomputeIterations bounds the fixed-point loop. The transition
	// guards make oscillation unreachable; hitting this cap means a bug
	// and is logged loudly instead of livelocking.
	maxRecomputeIterations = 100

	// DreamBatteryLevelDrainCutoff stops a dream once the battery has
	// drained this many points below where the dream started, unless
	// something else is keeping the device awake.
	DreamBatteryLevelDrainCutoff = 5

	bootAnimationPollInterval = 200 * time.Millisecond

	// systemUID attributes activity generated by the engine itself.
	systemUID int32 = 0
)

// #endregion

// #region config

// Config carries the engine's collaborators and static device configuration.
// Display is required; every other collaborator may be nil.
type Config struct {
	Display       DisplaySink
	Dreams        DreamHost
	Battery       BatterySource
	DockDetector  WirelessDockDetector
	Liveness      LivenessMonitor
	Lights        LightsSink
	Notifier      Notifier
	Suspend       suspend.Sink
	Settings      SettingsSource
	BootAnimation BootAnimation
	WakePolicy    WakePolicy

	// DreamsSupported reports whether the device has a screensaver stack
	// at all; the enabled setting is consulted separately.
	DreamsSupported bool

	// SuspendWhenScreenOffDueToProximity lets the CPU suspend while a
	// proximity lock holds the screen off, on devices that can wake from
	// the sensor.
	SuspendWhenScreenOffDueToProximity bool

	// Now returns the current time in milliseconds. Nil means wall clock.
	Now func() int64
}

// DefaultConfig returns the static configuration of a typical handheld.
func DefaultConfig() Config {
	return Config{
		DreamsSupported:                    true,
		SuspendWhenScreenOffDueToProximity: false,
	}
}

// #endregion

// #region settings snapshot

// policySettings is the engine's snapshot of the dynamic settings, reread
// wholesale on every change signal.
type policySettings struct {
	screenOffTimeout             int64
	stayOnWhilePluggedIn         PlugMask
	wakeUpWhenPluggedOrUnplugged bool
	dreamsEnabled                bool
	dreamsActivateOnSleep        bool
	dreamsActivateOnDock         bool
	screenBrightness             int
	autoBrightness               bool
	autoBrightnessAdj            float64
	responsivenessFactor         float64
	buttonTimeout                int64
	buttonBrightness             int
	keyboardBrightness           int
}

// #endregion

// #region engine

// Engine is the power state coordinator. One mutex guards all of its state;
// collaborator call-outs that could block or re-enter happen on the worker
// goroutine instead of under the lock.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	notifier Notifier
	worker   *worker
	now      func() int64

	systemReady      bool
	bootCompleted    bool
	dirty            DirtySet
	wakefulness      Wakefulness
	sandmanScheduled bool

	locks          *wakelock.Table
	activity       *activity.Tracker
	livenessCancel map[string]func()

	isPowered                    bool
	plugType                     PlugType
	batteryLevel                 int
	batteryLevelWhenDreamStarted int
	dockState                    DockState
	stayOn                       bool
	proximityPositive            bool
	waitForNegativeProximity     bool

	lastWakeTime          int64
	lastSleepTime         int64
	sendWakeUpFinished    bool
	sendGoToSleepFinished bool

	wakeLockSummary wakelock.SummaryBits
	activitySummary activity.SummaryBits

	activityTimer      *time.Timer
	activityTimerToken int

	displayReady   bool
	displayRequest display.PowerRequest
	screenOnGate   *display.ScreenOnGate

	wakeLockBlocker        *suspend.Blocker
	displayBlocker         *suspend.Blocker
	holdingWakeLockBlocker bool
	holdingDisplayBlocker  bool

	set policySettings

	maxScreenOffTimeoutFromAdmin  int64
	userActivityTimeoutOverride   int64
	screenBrightnessOverride      int
	buttonBrightnessOverride      int
	tempScreenBrightnessOverride  int
	tempAutoBrightnessAdjOverride float64
	haveTempAutoBrightnessAdj     bool
	keyboardVisible               bool

	dreamSessionID string
}

// New builds an engine from cfg. The engine starts awake but inert: nothing
// recomputes until SystemReady.
func New(cfg Config) (*Engine, error) {
	if cfg.Display == nil {
		return nil, fmt.Errorf("%w: display sink is required", ErrInvalidArgument)
	}
	if cfg.Now == nil {
		cfg.Now = func() int64 { return time.Now().UnixMilli() }
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Settings == nil {
		cfg.Settings = defaultsSource{}
	}

	e := &Engine{
		cfg:            cfg,
		notifier:       cfg.Notifier,
		now:            cfg.Now,
		wakefulness:    WakefulnessAwake,
		activity:       &activity.Tracker{},
		livenessCancel: make(map[string]func()),
		plugType:       PlugNone,
		dockState:      DockStateUndocked,

		maxScreenOffTimeoutFromAdmin: 0,
		userActivityTimeoutOverride:  -1,
		screenBrightnessOverride:     -1,
		buttonBrightnessOverride:     -1,
		tempScreenBrightnessOverride: -1,
	}
	e.worker = newWorker()
	e.wakeLockBlocker = suspend.New("PowerCoordinator.WakeLocks", cfg.Suspend)
	e.displayBlocker = suspend.New("PowerCoordinator.Display", cfg.Suspend)
	e.screenOnGate = display.NewScreenOnGate(func() {
		e.worker.Post(e.handleScreenOnGateReleased)
	})
	e.locks = wakelock.NewTable(tableObserver{e}, func() bool { return e.systemReady })

	e.displayRequest = display.PowerRequest{
		ScreenState:          display.ScreenBright,
		ScreenBrightness:     display.BrightnessDefault,
		ResponsivenessFactor: 1.0,
	}
	return e, nil
}

// tableObserver forwards wake lock table transitions to the notifier.
type tableObserver struct{ e *Engine }

func (o tableObserver) OnAcquired(l *wakelock.Lock) { o.e.notifier.OnWakeLockAcquired(l) }
func (o tableObserver) OnReleased(l *wakelock.Lock) { o.e.notifier.OnWakeLockReleased(l) }

// Close stops the worker and the activity timer. The engine must not be
// used afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	e.cancelActivityTimerLocked()
	e.mu.Unlock()
	e.worker.Close()
}

// ScreenOnGate exposes the gate for window management wiring.
func (e *Engine) ScreenOnGate() *display.ScreenOnGate { return e.screenOnGate }

// #endregion

// #region lifecycle

// SystemReady arms the engine: settings are read, the first recompute runs,
// and the boot animation watch begins. Before this call every operation is
// rejected by the transition guards.
func (e *Engine) SystemReady() {
	e.mu.Lock()
	if e.systemReady {
		e.mu.Unlock()
		return
	}
	e.systemReady = true
	log.Printf("[ENGINE] system ready")
	e.readSettingsLocked()
	e.dirty |= DirtySettings | DirtyBatteryState
	e.recomputeLocked()
	e.mu.Unlock()

	if e.cfg.BootAnimation == nil {
		e.HandleBootCompleted()
	} else {
		e.worker.Post(e.pollBootAnimation)
	}
}

func (e *Engine) pollBootAnimation() {
	if e.cfg.BootAnimation.Finished() {
		e.HandleBootCompleted()
		return
	}
	time.AfterFunc(bootAnimationPollInterval, func() {
		e.worker.Post(e.pollBootAnimation)
	})
}

// HandleBootCompleted marks boot finished and starts the first activity
// window so the screen does not time out mid-boot.
func (e *Engine) HandleBootCompleted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bootCompleted {
		return
	}
	e.bootCompleted = true
	log.Printf("[ENGINE] boot completed")
	e.dirty |= DirtyBootCompleted
	e.userActivityNoUpdateLocked(e.now(), activity.EventOther, 0, systemUID)
	e.recomputeLocked()
}

// #endregion

// #region wake locks

// AcquireWakeLock inserts or refreshes the wake lock for handle on behalf of
// pkg. A repeat acquire with identical properties is a no-op that still
// applies acquire-flag side effects such as waking the device.
func (e *Engine) AcquireWakeLock(handle string, level wakelock.Level, flags wakelock.Flags, tag, pkg string, ws wakelock.WorkSource, uid, pid int32) error {
	if handle == "" {
		return fmt.Errorf("%w: empty wake lock handle", ErrInvalidArgument)
	}
	if pkg == "" {
		return fmt.Errorf("%w: empty package name", ErrInvalidArgument)
	}
	if !level.Valid() {
		return fmt.Errorf("%w: unknown wake lock level %q", ErrInvalidArgument, level)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	outcome, l, err := e.locks.Acquire(handle, level, flags, tag, pkg, ws, uid, pid)
	if err != nil {
		if errors.Is(err, wakelock.ErrOwnerMismatch) {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		return err
	}

	if outcome == wakelock.AcquireCreated {
		e.subscribeLivenessLocked(handle)
	}
	e.applyWakeLockAcquireFlagsLocked(l)
	if outcome != wakelock.AcquireUnchanged {
		e.dirty |= DirtyWakeLocks
	}
	e.recomputeLocked()
	return nil
}

// ReleaseWakeLock removes the wake lock for handle. An unknown handle is a
// silent no-op.
func (e *Engine) ReleaseWakeLock(handle string, flags wakelock.Flags) error {
	if handle == "" {
		return fmt.Errorf("%w: empty wake lock handle", ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks.Release(handle)
	if !ok {
		return nil
	}
	if flags.Has(wakelock.FlagWaitForProximityNegative) {
		e.waitForNegativeProximity = true
	}
	e.cancelLivenessLocked(handle)
	e.applyWakeLockReleaseFlagsLocked(l)
	e.dirty |= DirtyWakeLocks
	e.recomputeLocked()
	return nil
}

// UpdateWakeLockWorkSource replaces the work source of a live wake lock.
func (e *Engine) UpdateWakeLockWorkSource(handle string, ws wakelock.WorkSource) error {
	if handle == "" {
		return fmt.Errorf("%w: empty wake lock handle", ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	changed, err := e.locks.UpdateWorkSource(handle, ws)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if changed {
		e.dirty |= DirtyWakeLocks
		e.recomputeLocked()
	}
	return nil
}

func (e *Engine) applyWakeLockAcquireFlagsLocked(l *wakelock.Lock) {
	if l.Flags.Has(wakelock.FlagAcquireCausesWakeup) && l.Level.KeepsScreenOn() {
		e.wakeUpNoUpdateLocked(e.now())
	}
}

func (e *Engine) applyWakeLockReleaseFlagsLocked(l *wakelock.Lock) {
	if l.Flags.Has(wakelock.FlagOnAfterRelease) && l.Level.KeepsScreenOn() {
		e.userActivityNoUpdateLocked(e.now(), activity.EventOther, activity.FlagNoChangeLights, l.OwnerUID)
	}
}

func (e *Engine) subscribeLivenessLocked(handle string) {
	if e.cfg.Liveness == nil {
		return
	}
	cancel, err := e.cfg.Liveness.Subscribe(handle, func() {
		e.worker.Post(func() { e.handleWakeLockOwnerLost(handle) })
	})
	if err != nil {
		log.Printf("[ENGINE] liveness subscription for %q failed: %v", handle, err)
		return
	}
	e.livenessCancel[handle] = cancel
}

func (e *Engine) cancelLivenessLocked(handle string) {
	if cancel, ok := e.livenessCancel[handle]; ok {
		delete(e.livenessCancel, handle)
		cancel()
	}
}

func (e *Engine) handleWakeLockOwnerLost(handle string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks.Release(handle)
	if !ok {
		return
	}
	log.Printf("[ENGINE] releasing %s: owner died", l)
	e.cancelLivenessLocked(handle)
	e.dirty |= DirtyWakeLocks
	e.recomputeLocked()
}

// #endregion

// #region user activity

// UserActivity records user interaction at eventTime, extending the screen
// timeout. Events from before the last wake or sleep transition are dropped.
func (e *Engine) UserActivity(eventTime int64, event activity.Event, flags activity.Flags, uid int32) error {
	if err := e.checkEventTime(eventTime); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.userActivityNoUpdateLocked(eventTime, event, flags, uid) {
		e.recomputeLocked()
	}
	return nil
}

func (e *Engine) userActivityNoUpdateLocked(eventTime int64, event activity.Event, flags activity.Flags, uid int32) bool {
	guard := activity.Guard{
		LastWakeTime:  e.lastWakeTime,
		LastSleepTime: e.lastSleepTime,
		Asleep:        e.wakefulness == WakefulnessAsleep,
		BootCompleted: e.bootCompleted,
		SystemReady:   e.systemReady,
	}
	changesLights := !flags.Has(activity.FlagNoChangeLights)
	res := e.activity.Record(eventTime, changesLights, guard)
	if res == activity.RecordRejected {
		return false
	}
	e.notifier.OnUserActivity(event, uid)
	if res != activity.RecordRecorded {
		return false
	}
	e.dirty |= DirtyUserActivity
	return true
}

// #endregion

// #region transitions

// WakeUp forces the device awake as of eventTime.
func (e *Engine) WakeUp(eventTime int64, caller CallerIdentity) error {
	if err := e.checkEventTime(eventTime); err != nil {
		return err
	}
	if e.cfg.WakePolicy != nil && !e.cfg.WakePolicy(caller) {
		log.Printf("[ENGINE] wake up suppressed by policy for uid=%d pkg=%s", caller.UID, caller.Package)
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wakeUpNoUpdateLocked(eventTime) {
		e.recomputeLocked()
	}
	return nil
}

// GoToSleep puts the device to sleep as of eventTime.
func (e *Engine) GoToSleep(eventTime int64, reason SleepReason) error {
	if err := e.checkEventTime(eventTime); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.goToSleepNoUpdateLocked(eventTime, reason) {
		e.recomputeLocked()
	}
	return nil
}

// Nap asks the dream scheduler to take over, from the awake state only.
func (e *Engine) Nap(eventTime int64) error {
	if err := e.checkEventTime(eventTime); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.napNoUpdateLocked(eventTime) {
		e.recomputeLocked()
	}
	return nil
}

func (e *Engine) wakeUpNoUpdateLocked(eventTime int64) bool {
	if eventTime < e.lastSleepTime || e.wakefulness == WakefulnessAwake ||
		!e.bootCompleted || !e.systemReady {
		return false
	}

	switch e.wakefulness {
	case WakefulnessAsleep:
		log.Printf("[ENGINE] waking up from sleep")
		e.sendPendingNotificationsLocked()
		e.notifier.OnWakeUpStarted()
		e.sendWakeUpFinished = true
	case WakefulnessDreaming:
		log.Printf("[ENGINE] waking up from dream")
	case WakefulnessNapping:
		log.Printf("[ENGINE] waking up from nap")
	}

	e.lastWakeTime = eventTime
	e.setWakefulnessLocked(WakefulnessAwake)
	e.userActivityNoUpdateLocked(eventTime, activity.EventOther, 0, systemUID)
	return true
}

func (e *Engine) goToSleepNoUpdateLocked(eventTime int64, reason SleepReason) bool {
	if eventTime < e.lastWakeTime || e.wakefulness == WakefulnessAsleep ||
		!e.bootCompleted || !e.systemReady {
		return false
	}

	reason = reason.normalize()
	log.Printf("[ENGINE] going to sleep (reason=%s)", reason)

	e.sendPendingNotificationsLocked()
	cleared := e.locks.CountScreenLocks()
	e.notifier.OnGoToSleepStarted(reason, cleared)
	e.sendGoToSleepFinished = true

	e.lastSleepTime = eventTime
	e.setWakefulnessLocked(WakefulnessAsleep)
	return true
}

func (e *Engine) napNoUpdateLocked(eventTime int64) bool {
	if eventTime < e.lastWakeTime || e.wakefulness != WakefulnessAwake ||
		!e.bootCompleted || !e.systemReady {
		return false
	}
	log.Printf("[ENGINE] napping")
	e.setWakefulnessLocked(WakefulnessNapping)
	return true
}

func (e *Engine) setWakefulnessLocked(w Wakefulness) {
	e.wakefulness = w
	e.dirty |= DirtyWakefulness
	e.notifier.OnWakefulnessChanged(w)
}

func (e *Engine) checkEventTime(eventTime int64) error {
	if eventTime > e.now() {
		return fmt.Errorf("%w: event time %d is in the future", ErrInvalidArgument, eventTime)
	}
	return nil
}

// #endregion

// #region callbacks

// HandleBatteryStateChanged is the battery source's change callback; the
// fresh values are read during the next recompute pass.
func (e *Engine) HandleBatteryStateChanged() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dirty |= DirtyBatteryState
	e.recomputeLocked()
}

// HandleSettingsChanged is the settings store's coarse change signal; every
// setting is reread.
func (e *Engine) HandleSettingsChanged() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readSettingsLocked()
	e.dirty |= DirtySettings
	e.recomputeLocked()
}

// HandleDisplayStateChanged is the display sink's report that the actual
// display state advanced toward the requested one.
func (e *Engine) HandleDisplayStateChanged() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dirty |= DirtyActualDisplayState
	e.recomputeLocked()
}

// HandleProximityPositive reports the proximity sensor covering.
func (e *Engine) HandleProximityPositive() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.proximityPositive = true
	e.dirty |= DirtyProximityPositive
	e.recomputeLocked()
}

// HandleProximityNegative reports the proximity sensor clearing, which also
// counts as user activity so the screen comes back with a full window.
func (e *Engine) HandleProximityNegative() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.proximityPositive = false
	e.dirty |= DirtyProximityPositive
	e.userActivityNoUpdateLocked(e.now(), activity.EventOther, 0, systemUID)
	e.recomputeLocked()
}

// SetDockState reports dock attach or detach.
func (e *Engine) SetDockState(d DockState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dockState == d {
		return
	}
	e.dockState = d
	e.dirty |= DirtyDockState
	e.recomputeLocked()
}

func (e *Engine) handleScreenOnGateReleased() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dirty |= DirtyScreenOnGateReleased
	e.recomputeLocked()
}

// #endregion

// #region overrides

// SetMaximumScreenOffTimeoutFromDeviceAdmin applies a policy ceiling on the
// screen off timeout; zero or negative removes it.
func (e *Engine) SetMaximumScreenOffTimeoutFromDeviceAdmin(timeout int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if timeout <= 0 {
		timeout = 0
	}
	if e.maxScreenOffTimeoutFromAdmin == timeout {
		return
	}
	e.maxScreenOffTimeoutFromAdmin = timeout
	e.dirty |= DirtySettings
	e.recomputeLocked()
}

// SetUserActivityTimeoutOverride applies the window manager's timeout
// override, used while the keyguard shows; negative removes it.
func (e *Engine) SetUserActivityTimeoutOverride(timeout int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if timeout < 0 {
		timeout = -1
	}
	if e.userActivityTimeoutOverride == timeout {
		return
	}
	e.userActivityTimeoutOverride = timeout
	e.dirty |= DirtySettings
	e.recomputeLocked()
}

// SetScreenBrightnessOverride applies the window manager's brightness
// override, which also disables auto-brightness; negative removes it.
func (e *Engine) SetScreenBrightnessOverride(brightness int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if brightness < 0 {
		brightness = -1
	}
	if e.screenBrightnessOverride == brightness {
		return
	}
	e.screenBrightnessOverride = brightness
	e.dirty |= DirtySettings
	e.recomputeLocked()
}

// SetButtonBrightnessOverride applies the window manager's button backlight
// override; negative removes it.
func (e *Engine) SetButtonBrightnessOverride(brightness int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if brightness < 0 {
		brightness = -1
	}
	if e.buttonBrightnessOverride == brightness {
		return
	}
	e.buttonBrightnessOverride = brightness
	e.dirty |= DirtyUserActivity
	e.recomputeLocked()
}

// SetTemporaryScreenBrightnessOverride tracks the settings UI slider while
// the user drags it; the override clears when the backing setting changes.
func (e *Engine) SetTemporaryScreenBrightnessOverride(brightness int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if brightness < 0 {
		brightness = -1
	}
	if e.tempScreenBrightnessOverride == brightness {
		return
	}
	e.tempScreenBrightnessOverride = brightness
	e.dirty |= DirtySettings
	e.recomputeLocked()
}

// SetTemporaryAutoBrightnessAdjustmentOverride tracks the auto-brightness
// slider while the user drags it; NaN removes the override.
func (e *Engine) SetTemporaryAutoBrightnessAdjustmentOverride(adj float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if math.IsNaN(adj) {
		if !e.haveTempAutoBrightnessAdj {
			return
		}
		e.haveTempAutoBrightnessAdj = false
	} else {
		if e.haveTempAutoBrightnessAdj && e.tempAutoBrightnessAdjOverride == adj {
			return
		}
		e.haveTempAutoBrightnessAdj = true
		e.tempAutoBrightnessAdjOverride = adj
	}
	e.dirty |= DirtySettings
	e.recomputeLocked()
}

// SetKeyboardVisibility reports whether a hardware keyboard is exposed, so
// the keyboard backlight follows the button light.
func (e *Engine) SetKeyboardVisibility(visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.keyboardVisible == visible {
		return
	}
	e.keyboardVisible = visible
	e.dirty |= DirtyUserActivity
	e.recomputeLocked()
}

// #endregion

// #region queries

// IsScreenOn reports whether the last display request keeps the screen on.
// It reports true before system ready so early callers do not see a dark
// device that is actually still booting.
func (e *Engine) IsScreenOn() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.systemReady || e.displayRequest.ScreenState != display.ScreenOff
}

// Wakefulness returns the current wakefulness state.
func (e *Engine) Wakefulness() Wakefulness {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wakefulness
}

// IsWakeLockLevelSupported reports whether the device can honor the level.
// Proximity locks require a proximity sensor and a ready system.
func (e *Engine) IsWakeLockLevelSupported(level wakelock.Level) bool {
	switch level {
	case wakelock.LevelPartial, wakelock.LevelScreenDim, wakelock.LevelScreenBright, wakelock.LevelFull:
		return true
	case wakelock.LevelProximityScreenOff:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.systemReady && e.cfg.Display.IsProximitySensorAvailable()
	}
	return false
}

// #endregion

// #region settings

func (e *Engine) readSettingsLocked() {
	src := e.cfg.Settings

	e.set.screenOffTimeout = src.GetInt64(settings.KeyScreenOffTimeout, activity.DefaultScreenOffTimeout)
	e.set.stayOnWhilePluggedIn = PlugMask(src.GetInt(settings.KeyStayOnWhilePluggedIn, 0))
	e.set.wakeUpWhenPluggedOrUnplugged = src.GetBool(settings.KeyWakeUpWhenPluggedOrUnplugged, true)
	e.set.dreamsEnabled = src.GetBool(settings.KeyScreensaverEnabled, false)
	e.set.dreamsActivateOnSleep = src.GetBool(settings.KeyScreensaverActivateOnSleep, false)
	e.set.dreamsActivateOnDock = src.GetBool(settings.KeyScreensaverActivateOnDock, true)

	// A change to the backing setting invalidates the matching temporary
	// override from the settings UI.
	newBrightness := src.GetInt(settings.KeyScreenBrightness, display.BrightnessDefault)
	if newBrightness != e.set.screenBrightness {
		e.tempScreenBrightnessOverride = -1
	}
	e.set.screenBrightness = newBrightness
	e.set.autoBrightness = src.GetString(settings.KeyScreenBrightnessMode, settings.BrightnessModeManual) == settings.BrightnessModeAutomatic
	newAdj := src.GetFloat(settings.KeyAutoBrightnessAdjustment, 0)
	if newAdj != e.set.autoBrightnessAdj {
		e.haveTempAutoBrightnessAdj = false
	}
	e.set.autoBrightnessAdj = newAdj
	e.set.responsivenessFactor = src.GetFloat(settings.KeyAutoBrightnessResponsiveness, 1.0)

	e.set.buttonTimeout = src.GetInt64(settings.KeyButtonLightTimeout, activity.DefaultButtonOnDuration)
	e.set.buttonBrightness = src.GetInt(settings.KeyButtonBrightness, display.BrightnessDefault)
	e.set.keyboardBrightness = src.GetInt(settings.KeyKeyboardBrightness, 0)
}

// #endregion

// #region dump

// Dump writes a human-readable snapshot of the engine state.
func (e *Engine) Dump(w io.Writer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fmt.Fprintf(w, "Power Coordinator State:\n")
	fmt.Fprintf(w, "  Wakefulness=%s\n", e.wakefulness)
	fmt.Fprintf(w, "  System ready=%v\n", e.systemReady)
	fmt.Fprintf(w, "  Boot completed=%v\n", e.bootCompleted)
	fmt.Fprintf(w, "  Dirty=%s\n", e.dirty)
	fmt.Fprintf(w, "  Is powered=%v\n", e.isPowered)
	fmt.Fprintf(w, "  Plug type=%s\n", e.plugType)
	fmt.Fprintf(w, "  Battery level=%d\n", e.batteryLevel)
	fmt.Fprintf(w, "  Dock state=%s\n", e.dockState)
	fmt.Fprintf(w, "  Stay on=%v\n", e.stayOn)
	fmt.Fprintf(w, "  Proximity positive=%v\n", e.proximityPositive)
	fmt.Fprintf(w, "  Last wake time=%d\n", e.lastWakeTime)
	fmt.Fprintf(w, "  Last sleep time=%d\n", e.lastSleepTime)
	fmt.Fprintf(w, "  Last user activity=%d (no change lights: %d)\n",
		e.activity.LastActivityTime(), e.activity.LastActivityTimeNoChangeLights())
	fmt.Fprintf(w, "  Wake lock summary=%s\n", e.wakeLockSummary)
	fmt.Fprintf(w, "  User activity summary=%s\n", e.activitySummary)
	fmt.Fprintf(w, "  Display ready=%v\n", e.displayReady)
	fmt.Fprintf(w, "  Display request: %s\n", e.displayRequest)
	fmt.Fprintf(w, "  Screen-on gate: %s\n", e.screenOnGate)
	fmt.Fprintf(w, "  Screen off timeout=%d ms (admin max=%d, override=%d)\n",
		e.set.screenOffTimeout, e.maxScreenOffTimeoutFromAdmin, e.userActivityTimeoutOverride)
	fmt.Fprintf(w, "Suspend Blockers:\n")
	fmt.Fprintf(w, "  %s (held by engine: %v)\n", e.wakeLockBlocker, e.holdingWakeLockBlocker)
	fmt.Fprintf(w, "  %s (held by engine: %v)\n", e.displayBlocker, e.holdingDisplayBlocker)
	e.locks.Dump(w)
}

// #endregion
