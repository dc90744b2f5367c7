package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openmined/syftsync/internal/storage"
)

// Factory builds a strategy for backend. It fails with
// ErrImproperlyConfigured when backend is of the wrong kind.
type Factory func(backend storage.Backend, deps Deps) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// default strategy per backend kind
var guesses = map[string]string{
	storage.KindS3:         NameS3,
	storage.KindMinio:      NameMinio,
	storage.KindGCS:        NameGCS,
	storage.KindFilesystem: NameFilesystem,
	storage.KindMemory:     NameMemory,
}

func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("strategy: Register called twice for " + name)
	}
	registry[name] = f
}

// Names lists the registered strategies.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load builds the strategy registered as name. An empty name guesses one
// from the backend.
func Load(name string, backend storage.Backend, deps Deps) (Strategy, error) {
	if name == "" {
		guessed, err := Guess(backend)
		if err != nil {
			return nil, err
		}
		name = guessed
	}

	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q (have %v)", ErrImproperlyConfigured, name, Names())
	}
	return f(backend, deps)
}

// Guess returns the default strategy name for backend.
func Guess(backend storage.Backend) (string, error) {
	if name, ok := guesses[backend.Kind()]; ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: no default strategy for %q storage, set strategy explicitly", ErrImproperlyConfigured, backend.Kind())
}

func wrongBackend(name string, backend storage.Backend) error {
	return fmt.Errorf("%w: strategy %q does not support %q storage", ErrImproperlyConfigured, name, backend.Kind())
}
