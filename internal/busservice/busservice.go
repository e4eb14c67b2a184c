// Package busservice exposes the power coordinator on the D-Bus system bus
// and watches wake lock owners for disappearance.
package busservice

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/danielpatrickdp/power-coordinator/internal/activity"
	"github.com/danielpatrickdp/power-coordinator/internal/engine"
	"github.com/danielpatrickdp/power-coordinator/internal/wakelock"
)

// #region constants

const (
	// BusName is the well-known name the service claims.
	BusName = "com.powercoordinator.PowerManager"
	// ObjectPath is where the manager object lives.
	ObjectPath dbus.ObjectPath = "/com/powercoordinator/PowerManager"
	// InterfaceName is the exported interface.
	InterfaceName = "com.powercoordinator.PowerManager"

	// ErrorInvalidArgument is returned for malformed requests.
	ErrorInvalidArgument = InterfaceName + ".Error.InvalidArgument"
	// ErrorInvalidState is returned when a request conflicts with live state.
	ErrorInvalidState = InterfaceName + ".Error.InvalidState"
	// ErrorFailed is returned for everything else.
	ErrorFailed = InterfaceName + ".Error.Failed"

	// SignalWakefulnessChanged carries the new wakefulness as a string.
	SignalWakefulnessChanged = "WakefulnessChanged"
	// SignalScreenOnChanged carries the new screen-on state as a bool.
	SignalScreenOnChanged = "ScreenOnChanged"

	nameOwnerChangedMember = "NameOwnerChanged"
)

// #endregion

// #region service

// Service is the D-Bus face of the engine. It owns the mapping from bus
// senders to the wake lock handles they acquired, which makes it the
// engine's liveness monitor: when a sender falls off the bus its handles
// are reported lost.
type Service struct {
	conn *dbus.Conn
	eng  *engine.Engine

	mu           sync.Mutex
	handleOwner  map[string]string
	ownerHandles map[string]map[string]struct{}
	onLost       map[string]func()

	signals chan *dbus.Signal
	quit    chan struct{}
	done    chan struct{}
}

// New wraps eng in a bus service on conn. The service is inert until Start.
func New(conn *dbus.Conn, eng *engine.Engine) *Service {
	return &Service{
		conn:         conn,
		eng:          eng,
		handleOwner:  make(map[string]string),
		ownerHandles: make(map[string]map[string]struct{}),
		onLost:       make(map[string]func()),
		signals:      make(chan *dbus.Signal, 16),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start exports the manager object, claims the bus name, and begins watching
// NameOwnerChanged for departing wake lock owners.
func (s *Service) Start() error {
	if err := s.conn.Export(s, ObjectPath, InterfaceName); err != nil {
		return fmt.Errorf("export manager object: %w", err)
	}
	if err := s.conn.Export(introspect.Introspectable(introXML), ObjectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := s.conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name %s: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", BusName)
	}

	if err := s.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember(nameOwnerChangedMember),
	); err != nil {
		return fmt.Errorf("match NameOwnerChanged: %w", err)
	}
	s.conn.Signal(s.signals)

	go s.watchOwners()
	log.Printf("[BUS] serving %s at %s", BusName, ObjectPath)
	return nil
}

// Close stops the owner watch. The bus connection itself belongs to the
// caller.
func (s *Service) Close() {
	close(s.quit)
	<-s.done
	s.conn.RemoveSignal(s.signals)
}

func (s *Service) watchOwners() {
	defer close(s.done)
	for {
		select {
		case sig, ok := <-s.signals:
			if !ok {
				return
			}
			s.handleBusSignal(sig)
		case <-s.quit:
			return
		}
	}
}

func (s *Service) handleBusSignal(sig *dbus.Signal) {
	if sig == nil || sig.Name != "org.freedesktop.DBus."+nameOwnerChangedMember {
		return
	}
	if len(sig.Body) != 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)
	if name == "" || newOwner != "" {
		return
	}
	s.handleOwnerGone(name)
}

// handleOwnerGone fires the loss callback for every handle the departed
// owner still holds. The callbacks release the locks through the engine,
// which unsubscribes and untracks each handle in turn.
func (s *Service) handleOwnerGone(owner string) {
	s.mu.Lock()
	handles := make([]func(), 0, len(s.ownerHandles[owner]))
	for handle := range s.ownerHandles[owner] {
		if fn := s.onLost[handle]; fn != nil {
			handles = append(handles, fn)
		}
	}
	s.mu.Unlock()

	if len(handles) > 0 {
		log.Printf("[BUS] owner %s gone, releasing %d wake lock(s)", owner, len(handles))
	}
	for _, fn := range handles {
		fn()
	}
}

// #endregion

// #region liveness monitor

// Subscribe implements engine.LivenessMonitor. Handles acquired outside the
// bus have no owner to watch and get a no-op subscription.
func (s *Service) Subscribe(handle string, onLost func()) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handleOwner[handle]; !ok {
		return func() {}, nil
	}
	s.onLost[handle] = onLost
	return func() { s.unsubscribe(handle) }, nil
}

func (s *Service) unsubscribe(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.onLost, handle)
	s.untrackLocked(handle)
}

// trackOwner points the handle at owner, evicting it from any previous
// owner's set so a departed former owner cannot report it lost. It returns
// the previous mapping so a failed acquire can restore it.
func (s *Service) trackOwner(owner, handle string) (prevOwner string, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prevOwner, existed = s.handleOwner[handle]
	if existed && prevOwner != owner {
		if set := s.ownerHandles[prevOwner]; set != nil {
			delete(set, handle)
			if len(set) == 0 {
				delete(s.ownerHandles, prevOwner)
			}
		}
	}
	s.handleOwner[handle] = owner
	set, ok := s.ownerHandles[owner]
	if !ok {
		set = make(map[string]struct{})
		s.ownerHandles[owner] = set
	}
	set[handle] = struct{}{}
	return prevOwner, existed
}

func (s *Service) untrack(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.untrackLocked(handle)
}

func (s *Service) untrackLocked(handle string) {
	owner, ok := s.handleOwner[handle]
	if !ok {
		return
	}
	delete(s.handleOwner, handle)
	if set := s.ownerHandles[owner]; set != nil {
		delete(set, handle)
		if len(set) == 0 {
			delete(s.ownerHandles, owner)
		}
	}
}

// #endregion

// #region methods

// AcquireWakeLock acquires or refreshes a wake lock on behalf of the sender.
func (s *Service) AcquireWakeLock(sender dbus.Sender, handle, level, tag, pkg string, flags uint32, workSource []int32, uid, pid int32) *dbus.Error {
	prevOwner, existed := s.trackOwner(string(sender), handle)
	err := s.eng.AcquireWakeLock(handle, wakelock.Level(level), wakelock.Flags(flags),
		tag, pkg, wakelock.WorkSource(workSource), uid, pid)
	if err != nil {
		// A rejected acquire must not disturb the live lock's tracking.
		if existed {
			s.trackOwner(prevOwner, handle)
		} else {
			s.untrack(handle)
		}
		return mapError(err)
	}
	return nil
}

// ReleaseWakeLock releases a wake lock. Unknown handles are a no-op, per
// the engine contract.
func (s *Service) ReleaseWakeLock(sender dbus.Sender, handle string, flags uint32) *dbus.Error {
	if err := s.eng.ReleaseWakeLock(handle, wakelock.Flags(flags)); err != nil {
		return mapError(err)
	}
	return nil
}

// UpdateWakeLockWorkSource replaces a wake lock's work source.
func (s *Service) UpdateWakeLockWorkSource(sender dbus.Sender, handle string, workSource []int32) *dbus.Error {
	if err := s.eng.UpdateWakeLockWorkSource(handle, wakelock.WorkSource(workSource)); err != nil {
		return mapError(err)
	}
	return nil
}

// UserActivity reports user interaction at eventTime milliseconds.
func (s *Service) UserActivity(eventTime int64, event string, flags uint32, uid int32) *dbus.Error {
	if err := s.eng.UserActivity(eventTime, activity.Event(event), activity.Flags(flags), uid); err != nil {
		return mapError(err)
	}
	return nil
}

// WakeUp forces the device awake.
func (s *Service) WakeUp(eventTime int64, uid, pid int32, pkg string) *dbus.Error {
	caller := engine.CallerIdentity{UID: uid, PID: pid, Package: pkg}
	if err := s.eng.WakeUp(eventTime, caller); err != nil {
		return mapError(err)
	}
	return nil
}

// GoToSleep puts the device to sleep.
func (s *Service) GoToSleep(eventTime int64, reason string) *dbus.Error {
	if err := s.eng.GoToSleep(eventTime, engine.SleepReason(reason)); err != nil {
		return mapError(err)
	}
	return nil
}

// Nap hands the device to the dream scheduler.
func (s *Service) Nap(eventTime int64) *dbus.Error {
	if err := s.eng.Nap(eventTime); err != nil {
		return mapError(err)
	}
	return nil
}

// IsScreenOn reports whether the screen is nominally on.
func (s *Service) IsScreenOn() (bool, *dbus.Error) {
	return s.eng.IsScreenOn(), nil
}

// GetWakefulness returns the current wakefulness state name.
func (s *Service) GetWakefulness() (string, *dbus.Error) {
	return string(s.eng.Wakefulness()), nil
}

// IsWakeLockLevelSupported reports whether the device honors the level.
func (s *Service) IsWakeLockLevelSupported(level string) (bool, *dbus.Error) {
	return s.eng.IsWakeLockLevelSupported(wakelock.Level(level)), nil
}

// Dump returns the human-readable engine state snapshot.
func (s *Service) Dump() (string, *dbus.Error) {
	var b strings.Builder
	s.eng.Dump(&b)
	return b.String(), nil
}

// #endregion

// #region signals

// EmitWakefulnessChanged broadcasts a wakefulness transition.
func (s *Service) EmitWakefulnessChanged(w engine.Wakefulness) {
	if err := s.conn.Emit(ObjectPath, InterfaceName+"."+SignalWakefulnessChanged, string(w)); err != nil {
		log.Printf("[BUS] emit %s: %v", SignalWakefulnessChanged, err)
	}
}

// EmitScreenOnChanged broadcasts a screen on/off crossing.
func (s *Service) EmitScreenOnChanged(on bool) {
	if err := s.conn.Emit(ObjectPath, InterfaceName+"."+SignalScreenOnChanged, on); err != nil {
		log.Printf("[BUS] emit %s: %v", SignalScreenOnChanged, err)
	}
}

// #endregion

// #region errors

func mapError(err error) *dbus.Error {
	switch {
	case errors.Is(err, engine.ErrInvalidArgument):
		return dbus.NewError(ErrorInvalidArgument, []interface{}{err.Error()})
	case errors.Is(err, engine.ErrInvalidState):
		return dbus.NewError(ErrorInvalidState, []interface{}{err.Error()})
	default:
		return dbus.NewError(ErrorFailed, []interface{}{err.Error()})
	}
}

// #endregion

// #region introspection

const introXML = `<node>
  <interface name="` + InterfaceName + `">
    <method name="AcquireWakeLock">
      <arg direction="in" type="s" name="handle"/>
      <arg direction="in" type="s" name="level"/>
      <arg direction="in" type="s" name="tag"/>
      <arg direction="in" type="s" name="package"/>
      <arg direction="in" type="u" name="flags"/>
      <arg direction="in" type="ai" name="work_source"/>
      <arg direction="in" type="i" name="uid"/>
      <arg direction="in" type="i" name="pid"/>
    </method>
    <method name="ReleaseWakeLock">
      <arg direction="in" type="s" name="handle"/>
      <arg direction="in" type="u" name="flags"/>
    </method>
    <method name="UpdateWakeLockWorkSource">
      <arg direction="in" type="s" name="handle"/>
      <arg direction="in" type="ai" name="work_source"/>
    </method>
    <method name="UserActivity">
      <arg direction="in" type="x" name="event_time"/>
      <arg direction="in" type="s" name="event"/>
      <arg direction="in" type="u" name="flags"/>
      <arg direction="in" type="i" name="uid"/>
    </method>
    <method name="WakeUp">
      <arg direction="in" type="x" name="event_time"/>
      <arg direction="in" type="i" name="uid"/>
      <arg direction="in" type="i" name="pid"/>
      <arg direction="in" type="s" name="package"/>
    </method>
    <method name="GoToSleep">
      <arg direction="in" type="x" name="event_time"/>
      <arg direction="in" type="s" name="reason"/>
    </method>
    <method name="Nap">
      <arg direction="in" type="x" name="event_time"/>
    </method>
    <method name="IsScreenOn">
      <arg direction="out" type="b" name="on"/>
    </method>
    <method name="GetWakefulness">
      <arg direction="out" type="s" name="wakefulness"/>
    </method>
    <method name="IsWakeLockLevelSupported">
      <arg direction="in" type="s" name="level"/>
      <arg direction="out" type="b" name="supported"/>
    </method>
    <method name="Dump">
      <arg direction="out" type="s" name="state"/>
    </method>
    <signal name="WakefulnessChanged">
      <arg type="s" name="wakefulness"/>
    </signal>
    <signal name="ScreenOnChanged">
      <arg type="b" name="on"/>
    </signal>
  </interface>` + introspect.IntrospectDataString + `</node>`

// #endregion
