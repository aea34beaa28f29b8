package vad

import (
	"fmt"
	"sort"
	"sync"

	"vad-server-go/internal/domain/vad/inter"
)

// Factory builds a detector instance for one session. Every session owns
// its own detector; factories must not share mutable state between the
// detectors they produce.
type Factory func(cfg inter.DetectorConfig) (inter.Detector, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a detector backend available under the given name.
// Backends register themselves from their package init.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Create instantiates a detector backend by name.
func Create(name string, cfg inter.DetectorConfig) (inter.Detector, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown VAD backend: %s", name)
	}

	detector, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create VAD backend %s: %w", name, err)
	}

	return detector, nil
}

// Backends lists the registered backend names, sorted.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
