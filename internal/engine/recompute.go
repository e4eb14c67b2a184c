package engine

import (
	"log"
	"time"

	"github.com/danielpatrickdp/power-coordinator/internal/activity"
	"github.com/danielpatrickdp/power-coordinator/internal/display"
	"github.com/danielpatrickdp/power-coordinator/internal/wakelock"
)

// #region recompute

// recomputeLocked is the heart of the engine: it folds the accumulated dirty
// bits back into a consistent state. Phase 0 refreshes the inputs, phase 1
// iterates summaries and wakefulness to a fixed point, phase 2 reconciles
// dreams and the display, phase 3 flushes deferred notifications once the
// display is ready, and phase 4 settles the suspend blockers.
func (e *Engine) recomputeLocked() {
	if !e.systemReady || e.dirty == 0 {
		return
	}
	now := e.now()

	// Phase 0: refresh basic state.
	e.updateIsPoweredLocked(e.dirty)
	e.updateStayOnLocked(e.dirty)

	// Phase 1: iterate to a fixed point. A wakefulness change feeds new
	// summaries, which may change wakefulness again; the guards guarantee
	// each state is visited at most once per pass, so the loop converges.
	var dirtyPhase2 DirtySet
	for i := 0; ; i++ {
		if i >= maxRecomputeIterations {
			log.Printf("[ENGINE] recompute did not converge after %d passes, dirty=%s", i, e.dirty)
			dirtyPhase2 |= e.dirty
			e.dirty = 0
			break
		}
		dirtyPhase1 := e.dirty
		dirtyPhase2 |= dirtyPhase1
		e.dirty = 0

		e.updateWakeLockSummaryLocked(dirtyPhase1)
		e.updateUserActivitySummaryLocked(now, dirtyPhase1)
		if !e.updateWakefulnessLocked(dirtyPhase1) {
			break
		}
	}

	// Phase 2: dreams and the display power request.
	e.updateDreamLocked(dirtyPhase2)
	e.updateDisplayPowerStateLocked(dirtyPhase2)

	// Phase 3: wake/sleep finished notifications wait for the display so
	// observers never see a transition announced on a stale screen.
	if e.displayReady {
		e.sendPendingNotificationsLocked()
	}

	// Phase 4: suspend blockers last, after every demand has settled.
	e.updateSuspendBlockerLocked()
}

// #endregion

// #region phase 0

func (e *Engine) updateIsPoweredLocked(dirty DirtySet) {
	if !dirty.Has(DirtyBatteryState) || e.cfg.Battery == nil {
		return
	}
	wasPowered := e.isPowered
	oldPlugType := e.plugType
	e.isPowered = e.cfg.Battery.IsPowered(PlugMaskAny)
	e.plugType = e.cfg.Battery.PlugType()
	e.batteryLevel = e.cfg.Battery.Level()

	if wasPowered == e.isPowered && oldPlugType == e.plugType {
		return
	}
	e.dirty |= DirtyIsPowered
	log.Printf("[ENGINE] power state changed: powered=%v plug=%s level=%d",
		e.isPowered, e.plugType, e.batteryLevel)

	dockedOnWireless := false
	if e.cfg.DockDetector != nil {
		dockedOnWireless = e.cfg.DockDetector.Update(e.isPowered, e.plugType, e.batteryLevel)
	}

	now := e.now()
	if e.shouldWakeUpWhenPluggedOrUnpluggedLocked(wasPowered, oldPlugType, dockedOnWireless) {
		e.wakeUpNoUpdateLocked(now)
	}
	e.userActivityNoUpdateLocked(now, activity.EventOther, 0, systemUID)

	if dockedOnWireless {
		e.notifier.OnWirelessChargingStarted(e.batteryLevel)
	}
}

func (e *Engine) shouldWakeUpWhenPluggedOrUnpluggedLocked(wasPowered bool, oldPlugType PlugType, dockedOnWireless bool) bool {
	if !e.set.wakeUpWhenPluggedOrUnplugged {
		return false
	}
	// Lifting off a wireless charger happens constantly in normal
	// handling; it is not a reason to light the screen.
	if wasPowered && !e.isPowered && oldPlugType == PlugWireless {
		return false
	}
	// Setting down on a wireless charger only wakes when the detector is
	// certain it was a deliberate docking.
	if !wasPowered && e.isPowered && e.plugType == PlugWireless && !dockedOnWireless {
		return false
	}
	// Plugging in should not interrupt an ongoing nap or dream.
	if e.isPowered && (e.wakefulness == WakefulnessNapping || e.wakefulness == WakefulnessDreaming) {
		return false
	}
	return true
}

func (e *Engine) updateStayOnLocked(dirty DirtySet) {
	if !dirty.Has(DirtyBatteryState | DirtySettings | DirtyIsPowered) {
		return
	}
	wasStayOn := e.stayOn
	if e.set.stayOnWhilePluggedIn != 0 && e.maxScreenOffTimeoutFromAdmin <= 0 {
		e.stayOn = e.isPowered && e.set.stayOnWhilePluggedIn&e.plugType.Mask() != 0
	} else {
		e.stayOn = false
	}
	if wasStayOn != e.stayOn {
		e.dirty |= DirtyStayOn
	}
}

// #endregion

// #region phase 1

func (e *Engine) updateWakeLockSummaryLocked(dirty DirtySet) {
	if !dirty.Has(DirtyWakeLocks | DirtyWakefulness) {
		return
	}
	e.wakeLockSummary = e.locks.Summary(
		e.wakefulness == WakefulnessAsleep, e.wakefulness == WakefulnessAwake)
}

func (e *Engine) updateUserActivitySummaryLocked(now int64, dirty DirtySet) {
	if !dirty.Has(DirtyWakeLocks | DirtyUserActivity | DirtyWakefulness | DirtySettings) {
		return
	}
	e.cancelActivityTimerLocked()

	timeout := activity.ScreenOffTimeout(
		e.set.screenOffTimeout, e.maxScreenOffTimeoutFromAdmin, e.userActivityTimeoutOverride)
	res := e.activity.Summary(activity.SummaryInput{
		Now:                now,
		LastWakeTime:       e.lastWakeTime,
		Asleep:             e.wakefulness == WakefulnessAsleep,
		ScreenOffTimeout:   timeout,
		ScreenDimDuration:  activity.ScreenDimDuration(timeout),
		ButtonTimeout:      e.set.buttonTimeout,
		CurrentScreenState: e.displayRequest.ScreenState,
	})
	e.activitySummary = res.Bits
	e.applyLightsLocked(res)
	if res.Bits != 0 && res.NextTimeout > now {
		e.armActivityTimerLocked(res.NextTimeout, now)
	}
}

func (e *Engine) applyLightsLocked(res activity.SummaryResult) {
	if e.cfg.Lights == nil {
		return
	}
	button := 0
	if res.ButtonLightOn || e.wakeLockSummary.Has(wakelock.SummaryButtonBright) {
		button = e.set.buttonBrightness
		if e.buttonBrightnessOverride >= 0 {
			button = e.buttonBrightnessOverride
		}
	}
	e.cfg.Lights.SetButtonBrightness(clampBrightness(button))

	keyboard := 0
	if button > 0 && e.keyboardVisible {
		keyboard = e.set.keyboardBrightness
	}
	e.cfg.Lights.SetKeyboardBrightness(clampBrightness(keyboard))
}

func (e *Engine) armActivityTimerLocked(at, now int64) {
	e.activityTimerToken++
	token := e.activityTimerToken
	delay := at - now
	if delay < 0 {
		delay = 0
	}
	e.activityTimer = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		e.worker.Post(func() { e.handleActivityTimeout(token) })
	})
}

func (e *Engine) cancelActivityTimerLocked() {
	if e.activityTimer != nil {
		e.activityTimer.Stop()
		e.activityTimer = nil
	}
	e.activityTimerToken++
}

func (e *Engine) handleActivityTimeout(token int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if token != e.activityTimerToken {
		return
	}
	e.dirty |= DirtyUserActivity
	e.recomputeLocked()
}

func (e *Engine) updateWakefulnessLocked(dirty DirtySet) bool {
	if !dirty.Has(DirtyWakeLocks | DirtyUserActivity | DirtyBootCompleted | DirtyWakefulness |
		DirtyStayOn | DirtyProximityPositive | DirtyDockState | DirtySettings) {
		return false
	}
	if e.wakefulness != WakefulnessAwake || !e.isItBedTimeYetLocked() {
		return false
	}
	now := e.now()
	if e.shouldNapAtBedTimeLocked() {
		return e.napNoUpdateLocked(now)
	}
	return e.goToSleepNoUpdateLocked(now, SleepReasonTimeout)
}

func (e *Engine) isItBedTimeYetLocked() bool {
	return e.bootCompleted && !e.isBeingKeptAwakeLocked()
}

func (e *Engine) isBeingKeptAwakeLocked() bool {
	return e.stayOn ||
		e.proximityPositive ||
		e.wakeLockSummary.Has(wakelock.SummaryStayAwake) ||
		e.activitySummary != 0
}

func (e *Engine) shouldNapAtBedTimeLocked() bool {
	return e.set.dreamsActivateOnSleep ||
		(e.set.dreamsActivateOnDock && e.dockState != DockStateUndocked)
}

// #endregion

// #region phase 2

func (e *Engine) updateDreamLocked(dirty DirtySet) {
	if !dirty.Has(DirtyWakeLocks | DirtyUserActivity | DirtyWakefulness | DirtyBootCompleted |
		DirtySettings | DirtyIsPowered | DirtyStayOn | DirtyProximityPositive | DirtyBatteryState) {
		return
	}
	e.scheduleSandmanLocked()
}

func (e *Engine) updateDisplayPowerStateLocked(dirty DirtySet) {
	if !dirty.Has(DirtyWakeLocks | DirtyWakefulness | DirtyUserActivity | DirtyActualDisplayState |
		DirtyBootCompleted | DirtySettings | DirtyScreenOnGateReleased) {
		return
	}

	newScreenState := e.desiredScreenStateLocked()
	if newScreenState != e.displayRequest.ScreenState {
		wasOn := e.displayRequest.ScreenState != display.ScreenOff
		e.displayRequest.ScreenState = newScreenState
		isOn := newScreenState != display.ScreenOff
		if wasOn != isOn {
			e.notifier.OnScreenOnChanged(isOn)
		}
	}

	brightness := e.set.screenBrightness
	autoBrightness := e.set.autoBrightness
	if e.screenBrightnessOverride >= 0 {
		brightness = e.screenBrightnessOverride
		autoBrightness = false
	} else if e.tempScreenBrightnessOverride >= 0 {
		brightness = e.tempScreenBrightnessOverride
	}

	adj := 0.0
	if autoBrightness {
		brightness = display.BrightnessDefault
		if e.haveTempAutoBrightnessAdj {
			adj = e.tempAutoBrightnessAdjOverride
		} else {
			adj = e.set.autoBrightnessAdj
		}
	}

	e.displayRequest.ScreenBrightness = brightness
	e.displayRequest.UseAutoBrightness = autoBrightness
	e.displayRequest.AutoBrightnessAdjustment = adj
	e.displayRequest.UseProximitySensor = e.wakeLockSummary.Has(wakelock.SummaryProximityScreenOff)
	e.displayRequest.BlockScreenOn = e.screenOnGate.IsHeld()
	e.displayRequest.ResponsivenessFactor = e.set.responsivenessFactor
	e.displayRequest.Clamp()

	e.displayReady = e.cfg.Display.RequestPowerState(e.displayRequest, e.waitForNegativeProximity)
	e.waitForNegativeProximity = false
}

func (e *Engine) desiredScreenStateLocked() display.ScreenState {
	if e.wakefulness == WakefulnessAsleep {
		return display.ScreenOff
	}
	if e.wakeLockSummary.Has(wakelock.SummaryScreenBright) ||
		e.activitySummary.Has(activity.ScreenBright) ||
		!e.bootCompleted {
		return display.ScreenBright
	}
	return display.ScreenDim
}

// #endregion

// #region phases 3 and 4

func (e *Engine) sendPendingNotificationsLocked() {
	if e.sendWakeUpFinished {
		e.sendWakeUpFinished = false
		e.notifier.OnWakeUpFinished()
	}
	if e.sendGoToSleepFinished {
		e.sendGoToSleepFinished = false
		e.notifier.OnGoToSleepFinished()
	}
}

func (e *Engine) updateSuspendBlockerLocked() {
	needWakeLock := e.wakeLockSummary.Has(wakelock.SummaryCPU)
	needDisplay := e.needDisplaySuspendBlockerLocked()

	// Acquire before release so the device cannot slip into suspend in
	// the window between the two.
	if needWakeLock && !e.holdingWakeLockBlocker {
		e.wakeLockBlocker.Acquire()
		e.holdingWakeLockBlocker = true
	}
	if needDisplay && !e.holdingDisplayBlocker {
		e.displayBlocker.Acquire()
		e.holdingDisplayBlocker = true
	}
	if !needWakeLock && e.holdingWakeLockBlocker {
		e.wakeLockBlocker.Release()
		e.holdingWakeLockBlocker = false
	}
	if !needDisplay && e.holdingDisplayBlocker {
		e.displayBlocker.Release()
		e.holdingDisplayBlocker = false
	}
}

func (e *Engine) needDisplaySuspendBlockerLocked() bool {
	if !e.displayReady {
		return true
	}
	if e.displayRequest.ScreenState != display.ScreenOff {
		// The screen is nominally on. If only the proximity sensor holds
		// it dark we may suspend, but only when the device can wake from
		// the sensor.
		if !e.displayRequest.UseProximitySensor || !e.proximityPositive ||
			!e.cfg.SuspendWhenScreenOffDueToProximity {
			return true
		}
	}
	return false
}

func clampBrightness(v int) int {
	if v < display.BrightnessOff {
		return display.BrightnessOff
	}
	if v > display.BrightnessOn {
		return display.BrightnessOn
	}
	return v
}

// #endregion
