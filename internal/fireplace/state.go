package fireplace

import (
	"fmt"
	"sync"
)

// State is the canonical fireplace snapshot.
//
// Levels use the 0-100 scale; the fireplace reports 0-10.
type State struct {
	LampOn    bool `json:"lamp_on"`
	LampLevel int  `json:"lamp_level"`
	LEDOn     bool `json:"led_on"`
	LEDColor  RGBW `json:"led_color"`
	FlameOn   bool `json:"flame_on"`
	FanOn     bool `json:"fan_on"`
	FanSpeed  int  `json:"fan_speed"`
	Connected bool `json:"connected"`
}

// Fields flattens the snapshot into named values for time-series and
// history storage.
func (s State) Fields() map[string]any {
	return map[string]any{
		"lamp_on":    s.LampOn,
		"lamp_level": s.LampLevel,
		"led_on":     s.LEDOn,
		"led_red":    s.LEDColor.Red,
		"led_green":  s.LEDColor.Green,
		"led_blue":   s.LEDColor.Blue,
		"led_white":  s.LEDColor.White,
		"flame_on":   s.FlameOn,
		"fan_on":     s.FanOn,
		"fan_speed":  s.FanSpeed,
		"connected":  s.Connected,
	}
}

// ObserverID identifies a registered observer.
type ObserverID uint64

type observer struct {
	id ObserverID
	fn func()
}

// Store holds the device state and the observer set.
//
// State mutations are serialised under mu; observers are always invoked
// with no lock held.
type Store struct {
	mu    sync.RWMutex
	state State

	obsMu     sync.Mutex
	observers []observer
	nextID    ObserverID

	logger Logger
}

// NewStore creates an empty store.
func NewStore(logger Logger) *Store {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Store{logger: logger}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Apply reduces a (property, value) pair into the state and notifies
// observers when the state was mutated. Parse failures leave the state
// untouched and are returned to the caller for logging.
func (s *Store) Apply(prop Property, value string) (bool, error) {
	s.mu.Lock()
	next := s.state
	applied, err := reduce(&next, prop, value)
	if err == nil && applied {
		s.state = next
	}
	s.mu.Unlock()

	if err != nil {
		return false, err
	}
	if applied {
		s.notify()
	}
	return applied, nil
}

// SetConnected updates the connectivity flag and notifies observers.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	s.state.Connected = connected
	s.mu.Unlock()
	s.notify()
}

// markDisconnected clears the connectivity flag without notifying.
func (s *Store) markDisconnected() {
	s.mu.Lock()
	s.state.Connected = false
	s.mu.Unlock()
}

// Subscribe registers fn to be called after every state change.
func (s *Store) Subscribe(fn func()) ObserverID {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.nextID++
	s.observers = append(s.observers, observer{id: s.nextID, fn: fn})
	return s.nextID
}

// Unsubscribe removes an observer. Unknown IDs are ignored.
func (s *Store) Unsubscribe(id ObserverID) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for i, o := range s.observers {
		if o.id == id {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

// ObserverCount returns the number of registered observers.
func (s *Store) ObserverCount() int {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	return len(s.observers)
}

func (s *Store) clearObservers() {
	s.obsMu.Lock()
	s.observers = nil
	s.obsMu.Unlock()
}

// notify calls every observer registered at the time of the call. A
// panicking observer is logged and does not stop the others.
func (s *Store) notify() {
	s.obsMu.Lock()
	snapshot := make([]observer, len(s.observers))
	copy(snapshot, s.observers)
	s.obsMu.Unlock()

	for _, o := range snapshot {
		s.invoke(o)
	}
}

func (s *Store) invoke(o observer) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("state observer panic",
				"observer", uint64(o.id),
				"error", fmt.Sprintf("%v", r),
			)
		}
	}()
	o.fn()
}
