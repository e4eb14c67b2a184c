package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/godbus/dbus/v5"

	"github.com/danielpatrickdp/power-coordinator/internal/busservice"
	"github.com/danielpatrickdp/power-coordinator/internal/display"
	"github.com/danielpatrickdp/power-coordinator/internal/engine"
	"github.com/danielpatrickdp/power-coordinator/internal/eventlog"
	"github.com/danielpatrickdp/power-coordinator/internal/settings"
)

// #region main
func main() {
	dbPath := envOr("POWERD_DB", "power_coordinator.db")
	busKind := envOr("POWERD_BUS", "system")
	sysfsRoot := envOr("POWERD_SYSFS", "/sys")
	screensaver := envOr("POWERD_SCREENSAVER", "")
	hasProximity := envOr("POWERD_PROXIMITY", "0") == "1"

	// Settings and event log share one database.
	store, err := settings.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open settings store: %v", err)
	}
	defer store.Close()

	events, err := eventlog.New(store.DB())
	if err != nil {
		log.Fatalf("failed to open event log: %v", err)
	}

	conn, err := openBus(busKind)
	if err != nil {
		log.Fatalf("failed to connect to %s bus: %v", busKind, err)
	}
	defer conn.Close()

	// The bus service doubles as the engine's liveness monitor, but it
	// needs the engine to serve calls; the indirection breaks the cycle.
	var svc *busservice.Service

	notifier := newBusNotifier(events, func() *busservice.Service { return svc })
	defer notifier.Close()

	var eng *engine.Engine
	blanker := display.NewBlanker(newSysfsHardware(sysfsRoot))
	sink := display.NewSink(blanker, hasProximity, func() {
		if eng != nil {
			eng.HandleDisplayStateChanged()
		}
	})

	cfg := engine.DefaultConfig()
	cfg.Display = sink
	cfg.Battery = newSysfsBattery(sysfsRoot)
	cfg.Suspend = newSysfsSuspendSink(sysfsRoot)
	cfg.Notifier = notifier
	cfg.Settings = store
	cfg.Liveness = deferredLiveness{svc: func() *busservice.Service { return svc }}
	if screensaver != "" {
		cfg.Dreams = newScreensaverHost(screensaver)
	} else {
		cfg.DreamsSupported = false
	}

	eng, err = engine.New(cfg)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	defer eng.Close()

	store.SetOnChange(eng.HandleSettingsChanged)

	svc = busservice.New(conn, eng)
	if err := svc.Start(); err != nil {
		log.Fatalf("failed to start bus service: %v", err)
	}
	defer svc.Close()

	eng.SystemReady()

	stopBattery := pollBattery(cfg.Battery, eng)
	defer stopBattery()

	log.Printf("power coordinator ready (db=%s bus=%s)", dbPath, busKind)

	sysch := make(chan os.Signal, 1)
	signal.Notify(sysch, syscall.SIGINT, syscall.SIGTERM)
	<-sysch
	log.Printf("shutting down")
}

// #endregion main

// #region wiring

func openBus(kind string) (*dbus.Conn, error) {
	if kind == "session" {
		return dbus.ConnectSessionBus()
	}
	return dbus.ConnectSystemBus()
}

// deferredLiveness delegates to the bus service once it exists. Nothing
// subscribes before the service starts, because wake locks only arrive over
// the bus.
type deferredLiveness struct {
	svc func() *busservice.Service
}

func (d deferredLiveness) Subscribe(handle string, onLost func()) (func(), error) {
	if s := d.svc(); s != nil {
		return s.Subscribe(handle, onLost)
	}
	return func() {}, nil
}

// #endregion wiring

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// #endregion helpers
