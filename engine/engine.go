package engine

import (
	"fmt"
	"temporal-sa/crypto-provider/engine/gm"
	"temporal-sa/crypto-provider/engine/legacy"
	"temporal-sa/crypto-provider/engine/primitive"
	"temporal-sa/crypto-provider/provider"

	"go.uber.org/fx"
)

var Module = fx.Provide(
	NewDefaultRegistry,
)

// NewDefaultRegistry registers the bundled providers. The primitive provider
// comes first and serves any algorithm it shares with the others by default.
func NewDefaultRegistry() (*provider.Registry, error) {
	registry := provider.NewRegistry()

	registrations := []struct {
		name     string
		register func(*provider.Registry) error
	}{
		{primitive.ProviderName, primitive.Register},
		{legacy.ProviderName, legacy.Register},
		{gm.ProviderName, gm.Register},
	}

	for _, r := range registrations {
		if err := r.register(registry); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", r.name, err)
		}
	}

	return registry, nil
}
