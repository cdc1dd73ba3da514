package provider

import (
	"fmt"
	"sort"
	"sync"
	"temporal-sa/crypto-provider/cryptoerr"
)

// EngineFactory opens a new engine for algorithm.
type EngineFactory func(algorithm string, flags OpenFlags) (Engine, error)

type (
	registration struct {
		name       string
		algorithms map[string]struct{}
		factory    EngineFactory
	}

	// Registry maps implementation names to engine factories. Registration
	// order decides which implementation serves an algorithm by default.
	Registry struct {
		providers map[string]*registration
		order     []string
		mu        sync.RWMutex
	}
)

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*registration),
	}
}

func (r *Registry) Register(name string, algorithms []string, factory EngineFactory) error {
	if name == "" || factory == nil {
		return cryptoerr.New(cryptoerr.KindArgumentNull, "provider.Register", "name and factory are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	reg := &registration{
		name:       name,
		algorithms: make(map[string]struct{}, len(algorithms)),
		factory:    factory,
	}
	for _, alg := range algorithms {
		reg.algorithms[alg] = struct{}{}
	}

	r.providers[name] = reg
	r.order = append(r.order, name)
	return nil
}

// Resolve picks the factory serving algorithm. An empty implementation selects
// the first registered provider supporting it.
func (r *Registry) Resolve(algorithm, implementation string) (string, EngineFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if implementation == "" {
		for _, name := range r.order {
			reg := r.providers[name]
			if _, ok := reg.algorithms[algorithm]; ok {
				return reg.name, reg.factory, nil
			}
		}
		return "", nil, cryptoerr.New(cryptoerr.KindUnsupportedAlgorithm, "provider.Resolve", "no provider supports %s", algorithm)
	}

	reg, exists := r.providers[implementation]
	if !exists {
		return "", nil, cryptoerr.New(cryptoerr.KindPlatformUnsupported, "provider.Resolve", "provider %s is not available", implementation)
	}

	if _, ok := reg.algorithms[algorithm]; !ok {
		if !r.knownLocked(algorithm) {
			return "", nil, cryptoerr.New(cryptoerr.KindUnsupportedAlgorithm, "provider.Resolve", "no provider supports %s", algorithm)
		}
		return "", nil, cryptoerr.New(cryptoerr.KindPlatformUnsupported, "provider.Resolve", "%s is not available from %s", algorithm, implementation)
	}

	return reg.name, reg.factory, nil
}

func (r *Registry) knownLocked(algorithm string) bool {
	for _, reg := range r.providers {
		if _, ok := reg.algorithms[algorithm]; ok {
			return true
		}
	}
	return false
}

// Providers lists implementation names in registration order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Algorithms lists the sorted algorithms an implementation serves.
func (r *Registry) Algorithms(implementation string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.providers[implementation]
	if !exists {
		return nil, cryptoerr.New(cryptoerr.KindPlatformUnsupported, "provider.Algorithms", "provider %s is not available", implementation)
	}

	algorithms := make([]string, 0, len(reg.algorithms))
	for alg := range reg.algorithms {
		algorithms = append(algorithms, alg)
	}
	sort.Strings(algorithms)
	return algorithms, nil
}
