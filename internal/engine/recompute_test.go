package engine

import (
	"strconv"
	"sync"
	"testing"

	"github.com/danielpatrickdp/power-coordinator/internal/activity"
	"github.com/danielpatrickdp/power-coordinator/internal/display"
	"github.com/danielpatrickdp/power-coordinator/internal/settings"
	"github.com/danielpatrickdp/power-coordinator/internal/wakelock"
)

// #region activity timeout tests

func TestActivityTimeoutDimsThenSleeps(t *testing.T) {
	env := newTestEngine(t, nil)
	// Boot recorded user activity at t=1000; default timeout is 15s with
	// a 3s dim window at the end.

	env.clock.set(12999)
	env.kick()
	if env.disp.last().ScreenState != display.ScreenBright {
		t.Fatalf("expected bright inside the window, got %s", env.disp.last().ScreenState)
	}

	env.clock.set(13000)
	env.kick()
	if env.disp.last().ScreenState != display.ScreenDim {
		t.Fatalf("expected dim after the bright window, got %s", env.disp.last().ScreenState)
	}
	if got := env.eng.Wakefulness(); got != WakefulnessAwake {
		t.Fatalf("dimming must not change wakefulness, got %s", got)
	}

	env.clock.set(16001)
	env.kick()
	if got := env.eng.Wakefulness(); got != WakefulnessAsleep {
		t.Fatalf("expected sleep after timeout, got %s", got)
	}
	if !env.notif.has("sleep-started:timeout:0") {
		t.Fatalf("expected timeout sleep reason, got %v", env.notif.events)
	}
	if env.disp.last().ScreenState != display.ScreenOff {
		t.Fatalf("expected screen off, got %s", env.disp.last().ScreenState)
	}
}

func TestUserActivityExtendsWindow(t *testing.T) {
	env := newTestEngine(t, nil)

	env.clock.set(10000)
	if err := env.eng.UserActivity(10000, activity.EventTouch, 0, 1000); err != nil {
		t.Fatalf("UserActivity: %v", err)
	}

	env.clock.set(16001)
	env.kick()
	if got := env.eng.Wakefulness(); got != WakefulnessAwake {
		t.Fatalf("activity at 10s should keep the device awake at 16s, got %s", got)
	}

	env.clock.set(25001)
	env.kick()
	if got := env.eng.Wakefulness(); got != WakefulnessAsleep {
		t.Fatalf("expected sleep once the extended window lapsed, got %s", got)
	}
}

func TestStayAwakeWakeLockBlocksTimeout(t *testing.T) {
	env := newTestEngine(t, nil)
	env.acquire(t, "scr", wakelock.LevelScreenDim, 0)

	env.clock.set(60000)
	env.kick()
	if got := env.eng.Wakefulness(); got != WakefulnessAwake {
		t.Fatalf("screen lock should hold the device awake, got %s", got)
	}

	env.eng.ReleaseWakeLock("scr", 0)
	env.kick()
	if got := env.eng.Wakefulness(); got != WakefulnessAsleep {
		t.Fatalf("expected sleep after releasing the lock, got %s", got)
	}
}

func TestStayOnWhilePluggedIn(t *testing.T) {
	env := newTestEngine(t, nil)
	env.settings.set(settings.KeyStayOnWhilePluggedIn, strconv.Itoa(int(PlugMaskAC)))
	env.eng.HandleSettingsChanged()
	env.batt.setState(true, PlugAC, 80)
	env.eng.HandleBatteryStateChanged()

	env.clock.set(60000)
	env.kick()
	if got := env.eng.Wakefulness(); got != WakefulnessAwake {
		t.Fatalf("stay-on should hold the device awake, got %s", got)
	}

	// Unplugging removes the hold.
	env.batt.setState(false, PlugNone, 80)
	env.eng.HandleBatteryStateChanged()
	env.clock.set(120000)
	env.kick()
	if got := env.eng.Wakefulness(); got != WakefulnessAsleep {
		t.Fatalf("expected sleep after unplugging, got %s", got)
	}
}

func TestSettingsChangeIsReread(t *testing.T) {
	env := newTestEngine(t, nil)
	env.settings.set(settings.KeyScreenOffTimeout, "30000")
	env.eng.HandleSettingsChanged()

	// Old timeout would have slept at 16s.
	env.clock.set(20000)
	env.kick()
	if got := env.eng.Wakefulness(); got != WakefulnessAwake {
		t.Fatalf("new timeout not applied, got %s", got)
	}

	env.clock.set(31001)
	env.kick()
	if got := env.eng.Wakefulness(); got != WakefulnessAsleep {
		t.Fatalf("expected sleep after the longer timeout, got %s", got)
	}
}

// #endregion

// #region suspend blocker tests

func TestCPUBlockerFollowsWakeLockDemand(t *testing.T) {
	env := newTestEngine(t, nil)

	env.acquire(t, "cpu", wakelock.LevelPartial, 0)
	if !env.eng.wakeLockBlocker.IsHeld() {
		t.Fatal("cpu blocker not held with a partial lock")
	}

	env.eng.ReleaseWakeLock("cpu", 0)
	if env.eng.wakeLockBlocker.IsHeld() {
		t.Fatal("cpu blocker still held after release")
	}
}

func TestPartialLockSurvivesSleep(t *testing.T) {
	env := newTestEngine(t, nil)
	env.acquire(t, "cpu", wakelock.LevelPartial, 0)

	env.clock.set(2000)
	env.eng.GoToSleep(2000, SleepReasonUser)

	if !env.eng.wakeLockBlocker.IsHeld() {
		t.Fatal("partial lock must hold the CPU through sleep")
	}
	if env.eng.displayBlocker.IsHeld() {
		t.Fatal("display blocker should release once the screen is off and ready")
	}

	// The display blocker released only after the CPU blocker was already
	// held, so suspend never had a window.
	events := env.susp.all()
	blockIdx, unblockIdx := -1, -1
	for i, e := range events {
		if e == "block:PowerCoordinator.WakeLocks" && blockIdx < 0 {
			blockIdx = i
		}
		if e == "unblock:PowerCoordinator.Display" {
			unblockIdx = i
		}
	}
	if blockIdx < 0 || unblockIdx < 0 || blockIdx > unblockIdx {
		t.Fatalf("blocker ordering wrong: %v", events)
	}
}

func TestDisplayBlockerHeldWhileNotReady(t *testing.T) {
	env := newTestEngine(t, nil)

	env.disp.setReady(false)
	env.clock.set(2000)
	env.eng.GoToSleep(2000, SleepReasonUser)
	if !env.eng.displayBlocker.IsHeld() {
		t.Fatal("display blocker must stay held until the display is ready")
	}

	env.disp.setReady(true)
	env.eng.HandleDisplayStateChanged()
	if env.eng.displayBlocker.IsHeld() {
		t.Fatal("display blocker still held after the display became ready")
	}
}

// #endregion

// #region display tests

func TestDisplayNotReadyDefersFinishNotifications(t *testing.T) {
	env := newTestEngine(t, nil)

	env.disp.setReady(false)
	env.clock.set(2000)
	env.eng.GoToSleep(2000, SleepReasonUser)

	if !env.notif.has("sleep-started:user:0") {
		t.Fatalf("sleep-started missing: %v", env.notif.events)
	}
	if env.notif.has("sleep-finished") {
		t.Fatal("sleep-finished sent before the display was ready")
	}

	env.disp.setReady(true)
	env.eng.HandleDisplayStateChanged()
	if !env.notif.has("sleep-finished") {
		t.Fatalf("sleep-finished not flushed: %v", env.notif.events)
	}
}

func TestProximityLockDrivesDisplayRequest(t *testing.T) {
	disp := &fakeDisplay{ready: true, proximity: true}
	env := newTestEngine(t, func(cfg *Config) {
		cfg.Display = disp
	})

	env.acquire(t, "prox", wakelock.LevelProximityScreenOff, 0)
	if !disp.last().UseProximitySensor {
		t.Fatal("proximity lock not reflected in the display request")
	}

	env.eng.HandleProximityPositive()

	if err := env.eng.ReleaseWakeLock("prox", wakelock.FlagWaitForProximityNegative); err != nil {
		t.Fatalf("ReleaseWakeLock: %v", err)
	}
	if !disp.sawWait() {
		t.Fatal("wait-for-negative-proximity not forwarded to the display")
	}
	if disp.last().UseProximitySensor {
		t.Fatal("proximity demand should clear with the lock")
	}
}

func TestScreenOnGateBlocksScreenTurnOn(t *testing.T) {
	env := newTestEngine(t, nil)
	gate := env.eng.ScreenOnGate()

	env.clock.set(2000)
	env.eng.GoToSleep(2000, SleepReasonUser)

	gate.Acquire()
	env.clock.set(3000)
	env.eng.WakeUp(3000, CallerIdentity{})
	if !env.disp.last().BlockScreenOn {
		t.Fatal("gate hold not reflected in the display request")
	}

	gate.Release()
	env.drain()
	if env.disp.last().BlockScreenOn {
		t.Fatal("gate release not reflected in the display request")
	}
}

func TestBrightnessOverrides(t *testing.T) {
	env := newTestEngine(t, nil)

	env.eng.SetScreenBrightnessOverride(200)
	req := env.disp.last()
	if req.ScreenBrightness != 200 || req.UseAutoBrightness {
		t.Fatalf("override not applied: %s", req)
	}

	// The override wins even in automatic mode.
	env.settings.set(settings.KeyScreenBrightnessMode, settings.BrightnessModeAutomatic)
	env.eng.HandleSettingsChanged()
	if env.disp.last().UseAutoBrightness {
		t.Fatal("auto-brightness enabled despite the override")
	}

	env.eng.SetScreenBrightnessOverride(-1)
	req = env.disp.last()
	if !req.UseAutoBrightness {
		t.Fatal("auto-brightness not restored after clearing the override")
	}
	if req.ScreenBrightness != display.BrightnessDefault {
		t.Fatalf("auto mode should request the default level, got %d", req.ScreenBrightness)
	}

	env.eng.SetTemporaryAutoBrightnessAdjustmentOverride(0.5)
	if env.disp.last().AutoBrightnessAdjustment != 0.5 {
		t.Fatalf("adjustment override not applied: %s", env.disp.last())
	}
}

func TestOutOfRangeOverrideIsClamped(t *testing.T) {
	env := newTestEngine(t, nil)
	env.eng.SetScreenBrightnessOverride(9999)
	if env.disp.last().ScreenBrightness != display.BrightnessOn {
		t.Fatalf("expected clamp to %d, got %d", display.BrightnessOn, env.disp.last().ScreenBrightness)
	}
}

// #endregion

// #region dream tests

func dreamSettings(env *testEnv) {
	env.settings.set(settings.KeyScreensaverEnabled, "true")
	env.settings.set(settings.KeyScreensaverActivateOnSleep, "true")
	env.eng.HandleSettingsChanged()
	env.batt.setState(true, PlugAC, 80)
	env.eng.HandleBatteryStateChanged()
}

func TestTimeoutNapsThenDreams(t *testing.T) {
	env := newTestEngine(t, nil)
	dreamSettings(env)

	env.clock.set(60000)
	env.kick()
	env.drain()

	if got := env.eng.Wakefulness(); got != WakefulnessDreaming {
		t.Fatalf("expected dreaming, got %s", got)
	}
	if env.dreams.starts != 1 {
		t.Fatalf("expected one dream start, got %d", env.dreams.starts)
	}
	if !env.notif.has("dream-started") {
		t.Fatalf("missing dream-started: %v", env.notif.events)
	}
}

func TestDreamStopsOnBatteryDrain(t *testing.T) {
	env := newTestEngine(t, nil)
	dreamSettings(env)

	env.clock.set(60000)
	env.kick()
	env.drain()
	if got := env.eng.Wakefulness(); got != WakefulnessDreaming {
		t.Fatalf("expected dreaming, got %s", got)
	}

	// Drain within the cutoff keeps the dream alive.
	env.batt.setState(true, PlugAC, 76)
	env.eng.HandleBatteryStateChanged()
	env.drain()
	if got := env.eng.Wakefulness(); got != WakefulnessDreaming {
		t.Fatalf("drain inside cutoff stopped the dream, got %s", got)
	}

	// Crossing the cutoff stops it and the device sleeps.
	env.batt.setState(true, PlugAC, 74)
	env.eng.HandleBatteryStateChanged()
	env.drain()
	if got := env.eng.Wakefulness(); got != WakefulnessAsleep {
		t.Fatalf("expected sleep after drain cutoff, got %s", got)
	}
	if env.dreams.stops == 0 || !env.notif.has("dream-stopped") {
		t.Fatalf("dream not stopped: stops=%d events=%v", env.dreams.stops, env.notif.events)
	}
}

func TestWakeUpEndsDream(t *testing.T) {
	env := newTestEngine(t, nil)
	dreamSettings(env)

	env.clock.set(60000)
	env.kick()
	env.drain()
	if got := env.eng.Wakefulness(); got != WakefulnessDreaming {
		t.Fatalf("expected dreaming, got %s", got)
	}

	env.eng.WakeUp(60000, CallerIdentity{})
	env.drain()
	if got := env.eng.Wakefulness(); got != WakefulnessAwake {
		t.Fatalf("expected awake, got %s", got)
	}
	if env.dreams.IsDreaming() {
		t.Fatal("dream host still dreaming after wake")
	}
	if !env.notif.has("dream-stopped") {
		t.Fatalf("dream session not closed: %v", env.notif.events)
	}
}

func TestNapWithoutDreamsReturnsToAwake(t *testing.T) {
	env := newTestEngine(t, nil)
	// Dreams disabled; user activity still fresh, so finishing the nap
	// lands back in awake rather than asleep.
	if err := env.eng.Nap(1000); err != nil {
		t.Fatalf("Nap: %v", err)
	}
	env.drain()
	if got := env.eng.Wakefulness(); got != WakefulnessAwake {
		t.Fatalf("expected awake, got %s", got)
	}
}

func TestDreamWithoutHostFallsAsleep(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.Dreams = nil
	})
	dreamSettings(env)

	env.clock.set(60000)
	env.kick()
	env.drain()
	if got := env.eng.Wakefulness(); got != WakefulnessAsleep {
		t.Fatalf("expected asleep with no dream host, got %s", got)
	}
	if env.notif.has("dream-started") || env.notif.has("dream-stopped") {
		t.Fatalf("phantom dream session: %v", env.notif.events)
	}
}

// #endregion

// #region power source tests

type fakeDock struct{ certain bool }

func (d *fakeDock) Update(bool, PlugType, int) bool { return d.certain }

func TestUncertainWirelessChargerDoesNotWake(t *testing.T) {
	dock := &fakeDock{certain: false}
	env := newTestEngine(t, func(cfg *Config) {
		cfg.DockDetector = dock
	})

	env.clock.set(2000)
	env.eng.GoToSleep(2000, SleepReasonUser)

	env.clock.set(3000)
	env.batt.setState(true, PlugWireless, 80)
	env.eng.HandleBatteryStateChanged()
	if got := env.eng.Wakefulness(); got != WakefulnessAsleep {
		t.Fatalf("uncertain wireless charger woke the device: %s", got)
	}
	if env.notif.has("wireless-charging-started") {
		t.Fatalf("unexpected charging notification: %v", env.notif.events)
	}
}

func TestDockedWirelessChargerWakes(t *testing.T) {
	dock := &fakeDock{certain: true}
	env := newTestEngine(t, func(cfg *Config) {
		cfg.DockDetector = dock
	})

	env.clock.set(2000)
	env.eng.GoToSleep(2000, SleepReasonUser)

	env.clock.set(3000)
	env.batt.setState(true, PlugWireless, 80)
	env.eng.HandleBatteryStateChanged()
	if got := env.eng.Wakefulness(); got != WakefulnessAwake {
		t.Fatalf("docking on a wireless charger should wake the device: %s", got)
	}
	if !env.notif.has("wireless-charging-started") {
		t.Fatalf("missing charging notification: %v", env.notif.events)
	}
}

func TestPlugInWakesFromSleep(t *testing.T) {
	env := newTestEngine(t, nil)

	env.clock.set(2000)
	env.eng.GoToSleep(2000, SleepReasonUser)

	env.clock.set(3000)
	env.batt.setState(true, PlugAC, 80)
	env.eng.HandleBatteryStateChanged()
	if got := env.eng.Wakefulness(); got != WakefulnessAwake {
		t.Fatalf("plugging in should wake the device: %s", got)
	}
}

func TestPlugInDoesNotInterruptDream(t *testing.T) {
	env := newTestEngine(t, nil)
	dreamSettings(env)

	env.clock.set(60000)
	env.kick()
	env.drain()
	if got := env.eng.Wakefulness(); got != WakefulnessDreaming {
		t.Fatalf("expected dreaming, got %s", got)
	}

	// Switching from AC to USB while dreaming must not wake the device.
	env.batt.setState(true, PlugUSB, 80)
	env.eng.HandleBatteryStateChanged()
	env.drain()
	if got := env.eng.Wakefulness(); got != WakefulnessDreaming {
		t.Fatalf("plug change interrupted the dream: %s", got)
	}
}

// #endregion

// #region dock and lights tests

func dockSettings(env *testEnv) {
	env.settings.set(settings.KeyScreensaverEnabled, "true")
	env.eng.HandleSettingsChanged()
	env.batt.setState(true, PlugAC, 80)
	env.eng.HandleBatteryStateChanged()
}

func TestTimeoutSleepsWhenNotDockedWithoutSleepActivation(t *testing.T) {
	env := newTestEngine(t, nil)
	dockSettings(env)

	env.clock.set(60000)
	env.kick()
	env.drain()
	if got := env.eng.Wakefulness(); got != WakefulnessAsleep {
		t.Fatalf("expected sleep with no dock and no sleep activation, got %s", got)
	}
}

func TestDockedDeviceDreamsAtTimeout(t *testing.T) {
	env := newTestEngine(t, nil)
	dockSettings(env)
	env.eng.SetDockState(DockStateDocked)

	env.clock.set(60000)
	env.kick()
	env.drain()
	if got := env.eng.Wakefulness(); got != WakefulnessDreaming {
		t.Fatalf("expected dock-activated dream, got %s", got)
	}
	if env.dreams.starts != 1 {
		t.Fatalf("expected one dream start, got %d", env.dreams.starts)
	}

	// Undocking removes the nap trigger but does not end a running dream.
	env.eng.SetDockState(DockStateUndocked)
	env.drain()
	if got := env.eng.Wakefulness(); got != WakefulnessDreaming {
		t.Fatalf("undocking interrupted the dream: %s", got)
	}
}

type fakeLights struct {
	mu       sync.Mutex
	button   int
	keyboard int
}

func (l *fakeLights) SetButtonBrightness(v int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.button = v
}

func (l *fakeLights) SetKeyboardBrightness(v int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keyboard = v
}

func (l *fakeLights) get() (button, keyboard int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.button, l.keyboard
}

func TestButtonAndKeyboardLights(t *testing.T) {
	lights := &fakeLights{}
	env := newTestEngine(t, func(cfg *Config) { cfg.Lights = lights })

	// Boot counts as user activity, so the button window is open.
	if b, _ := lights.get(); b != display.BrightnessDefault {
		t.Fatalf("expected default button brightness inside the window, got %d", b)
	}

	env.eng.SetButtonBrightnessOverride(7)
	if b, _ := lights.get(); b != 7 {
		t.Fatalf("button override not applied, got %d", b)
	}

	// The keyboard backlight follows the button light, but only while a
	// hardware keyboard is exposed.
	env.settings.set(settings.KeyKeyboardBrightness, "50")
	env.eng.HandleSettingsChanged()
	if _, k := lights.get(); k != 0 {
		t.Fatalf("keyboard lit while hidden, got %d", k)
	}
	env.eng.SetKeyboardVisibility(true)
	if _, k := lights.get(); k != 50 {
		t.Fatalf("keyboard not lit while visible, got %d", k)
	}

	// The button window closes before the screen window does.
	env.clock.set(7000)
	env.kick()
	if b, k := lights.get(); b != 0 || k != 0 {
		t.Fatalf("lights still on after the button window, button=%d keyboard=%d", b, k)
	}
}

// #endregion

// #region proximity release tests

func TestUnknownReleaseDoesNotLatchProximityWait(t *testing.T) {
	disp := &fakeDisplay{ready: true, proximity: true}
	env := newTestEngine(t, func(cfg *Config) { cfg.Display = disp })

	if err := env.eng.ReleaseWakeLock("nope", wakelock.FlagWaitForProximityNegative); err != nil {
		t.Fatalf("ReleaseWakeLock: %v", err)
	}
	env.eng.SetScreenBrightnessOverride(200)
	if disp.sawWait() {
		t.Fatal("unknown-handle release latched the proximity wait")
	}
}

// #endregion
