package mlmodel

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/livevision/logging"
)

// A Constructor opens a backend on conf.Device. It returns an error wrapping
// ErrAcceleratorUnavailable when that device cannot be used.
type Constructor func(ctx context.Context, conf Config, logger logging.Logger) (Service, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register makes a backend available under name. It panics if name is taken.
func Register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := registry[name]; old {
		panic(errors.Errorf("trying to register two ml model backends with same name %s", name))
	}
	if constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for ml model backend %s", name))
	}
	registry[name] = constructor
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the configured backend.
func Open(ctx context.Context, conf Config, logger logging.Logger) (Service, error) {
	registryMu.RLock()
	constructor, ok := registry[conf.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("no ml model backend named %q, have %v", conf.Backend, Backends())
	}
	if conf.Device == "" {
		conf.Device = DeviceCPU
	}
	return constructor(ctx, conf, logger)
}
