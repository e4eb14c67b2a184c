package main

import (
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielpatrickdp/power-coordinator/internal/engine"
)

// #region suspend sink

// sysfsSuspendSink drives the kernel wake lock files. Writing a name to
// wake_lock inhibits suspend until the same name is written to wake_unlock.
type sysfsSuspendSink struct {
	lockPath   string
	unlockPath string
}

func newSysfsSuspendSink(root string) *sysfsSuspendSink {
	return &sysfsSuspendSink{
		lockPath:   filepath.Join(root, "power", "wake_lock"),
		unlockPath: filepath.Join(root, "power", "wake_unlock"),
	}
}

func (s *sysfsSuspendSink) OnBlock(name string) {
	if err := os.WriteFile(s.lockPath, []byte(name), 0o200); err != nil {
		log.Printf("[PLATFORM] wake_lock %s: %v", name, err)
	}
}

func (s *sysfsSuspendSink) OnUnblock(name string) {
	if err := os.WriteFile(s.unlockPath, []byte(name), 0o200); err != nil {
		log.Printf("[PLATFORM] wake_unlock %s: %v", name, err)
	}
}

// #endregion

// #region display hardware

// sysfsHardware blanks through the backlight power control and toggles the
// kernel autosleep policy. Interactivity has no kernel surface here, so it
// is only logged.
type sysfsHardware struct {
	blankPath     string
	autosleepPath string
}

func newSysfsHardware(root string) *sysfsHardware {
	return &sysfsHardware{
		blankPath:     filepath.Join(root, "class", "backlight", "panel", "bl_power"),
		autosleepPath: filepath.Join(root, "power", "autosleep"),
	}
}

func (h *sysfsHardware) SetInteractive(on bool) {
	log.Printf("[PLATFORM] interactive=%v", on)
}

func (h *sysfsHardware) SetAutoSuspend(enable bool) {
	state := "off"
	if enable {
		state = "mem"
	}
	if err := os.WriteFile(h.autosleepPath, []byte(state), 0o200); err != nil {
		log.Printf("[PLATFORM] autosleep %s: %v", state, err)
	}
}

// bl_power takes FB_BLANK values: 0 unblanks, 4 powers down.
func (h *sysfsHardware) Blank()   { h.writeBlank("4") }
func (h *sysfsHardware) Unblank() { h.writeBlank("0") }

func (h *sysfsHardware) writeBlank(v string) {
	if err := os.WriteFile(h.blankPath, []byte(v), 0o200); err != nil {
		log.Printf("[PLATFORM] bl_power %s: %v", v, err)
	}
}

// #endregion

// #region battery

// sysfsBattery reads the power supply class. Each getter reads fresh so a
// recompute pass after a change callback sees current values.
type sysfsBattery struct {
	root string
}

func newSysfsBattery(root string) *sysfsBattery {
	return &sysfsBattery{root: filepath.Join(root, "class", "power_supply")}
}

var plugSupplies = map[string]engine.PlugType{
	"AC":       engine.PlugAC,
	"USB":      engine.PlugUSB,
	"WIRELESS": engine.PlugWireless,
}

func (b *sysfsBattery) IsPowered(mask engine.PlugMask) bool {
	return b.PlugType().Mask()&mask != 0
}

func (b *sysfsBattery) PlugType() engine.PlugType {
	for supply, plug := range plugSupplies {
		if b.readInt(filepath.Join(supply, "online"), 0) == 1 {
			return plug
		}
	}
	return engine.PlugNone
}

func (b *sysfsBattery) Level() int {
	return b.readInt(filepath.Join("BAT0", "capacity"), 100)
}

func (b *sysfsBattery) readInt(rel string, def int) int {
	raw, err := os.ReadFile(filepath.Join(b.root, rel))
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return def
	}
	return n
}

// pollBattery nudges the engine on a fixed cadence; the engine dedupes
// unchanged readings itself.
func pollBattery(src engine.BatterySource, eng *engine.Engine) (stop func()) {
	interval := time.Duration(envInt("POWERD_BATTERY_POLL_MS", 5000)) * time.Millisecond
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				eng.HandleBatteryStateChanged()
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// #endregion

// #region screensaver

// screensaverHost runs the configured screensaver binary as the dream. The
// dream ends when the process exits or StopDream kills it.
type screensaverHost struct {
	mu   sync.Mutex
	path string
	cmd  *exec.Cmd
}

func newScreensaverHost(path string) *screensaverHost {
	return &screensaverHost{path: path}
}

func (h *screensaverHost) StartDream() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd != nil {
		return nil
	}
	cmd := exec.Command(h.path)
	if err := cmd.Start(); err != nil {
		return err
	}
	h.cmd = cmd
	go func() {
		cmd.Wait()
		h.mu.Lock()
		if h.cmd == cmd {
			h.cmd = nil
		}
		h.mu.Unlock()
	}()
	log.Printf("[PLATFORM] screensaver started (pid=%d)", cmd.Process.Pid)
	return nil
}

func (h *screensaverHost) StopDream() {
	h.mu.Lock()
	cmd := h.cmd
	h.cmd = nil
	h.mu.Unlock()
	if cmd == nil {
		return
	}
	log.Printf("[PLATFORM] stopping screensaver (pid=%d)", cmd.Process.Pid)
	cmd.Process.Kill()
}

func (h *screensaverHost) IsDreaming() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cmd != nil
}

// #endregion
