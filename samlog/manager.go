package samlog

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/neehar-mavuduru/logring/logring"
)

// Manager manages multiple Logger instances, one per ring name
type Manager struct {
	loggers sync.Map // ring name (string) -> *Logger
	config  Config   // shared by every ring
	opts    []Option
}

// NewManager creates a new Manager
func NewManager(config Config, opts ...Option) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Manager{config: config, opts: opts}, nil
}

// sanitizeRingName validates a ring name and makes it safe to use in file
// and object names
func sanitizeRingName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("ring name cannot be empty")
	}

	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)

	if len(sanitized) > logring.MaxNameLen {
		sanitized = sanitized[:logring.MaxNameLen]
	}
	return sanitized, nil
}

// Get retrieves an existing logger or creates a new one for the ring
func (m *Manager) Get(name string) (*Logger, error) {
	sanitized, err := sanitizeRingName(name)
	if err != nil {
		return nil, err
	}

	if l, ok := m.loggers.Load(sanitized); ok {
		return l.(*Logger), nil
	}

	l, err := New(sanitized, m.config, m.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger for ring %s: %w", sanitized, err)
	}

	// Only one logger survives per ring
	actual, loaded := m.loggers.LoadOrStore(sanitized, l)
	if loaded {
		l.Close()
		return actual.(*Logger), nil
	}
	return l, nil
}

// Lookup returns the logger for name without creating it.
func (m *Manager) Lookup(name string) (*Logger, bool) {
	sanitized, err := sanitizeRingName(name)
	if err != nil {
		return nil, false
	}
	l, ok := m.loggers.Load(sanitized)
	if !ok {
		return nil, false
	}
	return l.(*Logger), true
}

// CloseRing closes and removes the logger for the ring
func (m *Manager) CloseRing(name string) error {
	sanitized, err := sanitizeRingName(name)
	if err != nil {
		return fmt.Errorf("invalid ring name: %w", err)
	}

	l, exists := m.loggers.LoadAndDelete(sanitized)
	if !exists {
		return fmt.Errorf("ring not found: %s", sanitized)
	}
	return l.(*Logger).Close()
}

// Names returns the names of all open rings, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0)
	m.loggers.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	slices.Sort(names)
	return names
}

// Close shuts down every ring
func (m *Manager) Close() error {
	var firstErr error
	m.loggers.Range(func(key, value any) bool {
		if err := value.(*Logger).Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("error closing ring %s: %w", key, err)
		}
		m.loggers.Delete(key)
		return true
	})
	return firstErr
}

// StatsSnapshot returns per-ring statistics keyed by ring name
func (m *Manager) StatsSnapshot() map[string]Stats {
	out := make(map[string]Stats)
	m.loggers.Range(func(key, value any) bool {
		out[key.(string)] = value.(*Logger).Stats()
		return true
	})
	return out
}

// Totals aggregates the logger counters across every ring
func (m *Manager) Totals() (totalLogs, droppedLogs, filteredLogs, bytesWritten int64) {
	m.loggers.Range(func(_, value any) bool {
		l := value.(*Logger)
		totalLogs += l.stats.TotalLogs.Load()
		droppedLogs += l.stats.DroppedLogs.Load()
		filteredLogs += l.stats.FilteredLogs.Load()
		bytesWritten += l.stats.BytesWritten.Load()
		return true
	})
	return totalLogs, droppedLogs, filteredLogs, bytesWritten
}
