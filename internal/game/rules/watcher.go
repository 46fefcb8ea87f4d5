package rules

import (
	"sort"
	"sync"
)

// Watcher observes match events and keeps derived counters.
type Watcher interface {
	// Watch is called for every published event.
	Watch(event Event)

	// GetKey returns a unique key for this watcher instance.
	GetKey() string
}

// BaseWatcher provides the bookkeeping shared by watchers.
type BaseWatcher struct {
	key string
}

// NewBaseWatcher creates a base watcher registered under key.
func NewBaseWatcher(key string) *BaseWatcher {
	return &BaseWatcher{key: key}
}

// GetKey returns the unique key for this watcher.
func (bw *BaseWatcher) GetKey() string {
	return bw.key
}

// WatcherRegistry manages the watchers of a match.
type WatcherRegistry struct {
	mu       sync.RWMutex
	watchers map[string]Watcher
	order    []string
}

// NewWatcherRegistry creates a new watcher registry.
func NewWatcherRegistry() *WatcherRegistry {
	return &WatcherRegistry{watchers: make(map[string]Watcher)}
}

// AddWatcher adds a watcher to the registry, replacing one with the same key. Watchers
// without a key are ignored.
func (wr *WatcherRegistry) AddWatcher(watcher Watcher) {
	if watcher == nil || watcher.GetKey() == "" {
		return
	}
	wr.mu.Lock()
	defer wr.mu.Unlock()
	key := watcher.GetKey()
	if _, ok := wr.watchers[key]; !ok {
		wr.order = append(wr.order, key)
		sort.Strings(wr.order)
	}
	wr.watchers[key] = watcher
}

// NotifyWatchers delivers an event to every watcher in key order.
func (wr *WatcherRegistry) NotifyWatchers(event Event) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	for _, key := range wr.order {
		wr.watchers[key].Watch(event)
	}
}
