package config

import "sync"

// Manager is the process-wide cell the Finder publishes SiteConfig into
// and every Runner reads from before starting a cycle. It is the Go
// realization of component C9: a read-through cache guarded by a single
// RWMutex, with the write path swapping the whole snapshot under the write
// lock, grounded on the teacher's internal/config/admin/manager.go cache
// cell.
type Manager struct {
	mu   sync.RWMutex
	site SiteConfig
	subs []chan SiteConfig
}

// NewManager returns a Manager whose site config starts fully deactivated,
// matching the Finder's fail-safe clamp behavior before the first
// successful fetch.
func NewManager() *Manager {
	return &Manager{site: SiteConfig{Activate: false}}
}

// Current returns the latest published SiteConfig snapshot.
func (m *Manager) Current() SiteConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.site
}

// Update replaces the published SiteConfig and notifies every subscriber.
// Subscribers that are not ready to receive are skipped for this update
// rather than blocking the Finder.
func (m *Manager) Update(sc SiteConfig) {
	m.mu.Lock()
	m.site = sc
	subs := append([]chan SiteConfig(nil), m.subs...)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- sc:
		default:
		}
	}
}

// Deactivate is the fail-safe clamp the Finder applies when it cannot
// refresh the site config: activation drops to false but every other
// field (denied namespaces, defaults, header) is left as last known good.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.site.Activate = false
}

// Subscribe registers a buffered channel that receives every subsequent
// Update call's snapshot.
func (m *Manager) Subscribe() <-chan SiteConfig {
	ch := make(chan SiteConfig, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// IsNamespaceDenied reports whether ns is in the current denied-namespace
// set, the guardrail the Page Writer consults before editing a target.
func (m *Manager) IsNamespaceDenied(ns int32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.site.DeniedNS {
		if d == ns {
			return true
		}
	}
	return false
}
