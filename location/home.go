package location

import "sync"

// Home is the host's ambient home location. It changes independently of
// the weather settings, e.g. when the config file is edited or a new
// position arrives over MQTT.
type Home struct {
	mu        sync.RWMutex
	name      string
	latitude  float64
	longitude float64
	nextID    int
	listeners map[int]func()
}

func NewHome(name string, lat, lon float64) *Home {
	return &Home{
		name:      name,
		latitude:  lat,
		longitude: lon,
		listeners: make(map[int]func()),
	}
}

func (h *Home) Get() (lat, lon float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latitude, h.longitude
}

func (h *Home) Name() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.name
}

// Set stores a new home location and notifies every subscriber, even if
// the value is unchanged. Deciding whether it matters is up to them.
func (h *Home) Set(name string, lat, lon float64) {
	h.mu.Lock()
	if name != "" {
		h.name = name
	}
	h.latitude = lat
	h.longitude = lon
	fns := make([]func(), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Subscribe registers fn to be called after every Set. The returned func
// removes the registration and is safe to call more than once.
func (h *Home) Subscribe(fn func()) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}
