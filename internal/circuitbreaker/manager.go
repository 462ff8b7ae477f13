package circuitbreaker

import (
	"sort"
	"sync"

	"traffic-duplicator/internal/common/logging"
)

// Manager hands out one shared breaker per name, so every worker client
// dispatching to a destination sees the same breaker state.
type Manager struct {
	config   Config
	breakers map[string]*Breaker
	logger   logging.Logger
	mu       sync.RWMutex
}

// NewManager creates a manager whose breakers all use config
func NewManager(config Config, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Manager{
		config:   config,
		breakers: make(map[string]*Breaker),
		logger:   logger.WithFields(logging.Field{Key: "component", Value: "circuitbreaker"}),
	}
}

// GetOrCreate gets an existing circuit breaker or creates a new one
func (m *Manager) GetOrCreate(name string) *Breaker {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()
	if exists {
		return breaker
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}
	breaker = New(name, m.config, m.logger)
	m.breakers[name] = breaker
	return breaker
}

// Get retrieves an existing circuit breaker by name
func (m *Manager) Get(name string) (*Breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	breaker, exists := m.breakers[name]
	return breaker, exists
}

// AllStats returns statistics for all circuit breakers, sorted by name
func (m *Manager) AllStats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make([]Stats, 0, len(m.breakers))
	for _, breaker := range m.breakers {
		stats = append(stats, breaker.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// OpenCount returns how many breakers currently reject calls
func (m *Manager) OpenCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var open int64
	for _, breaker := range m.breakers {
		if breaker.IsOpen() {
			open++
		}
	}
	return open
}
