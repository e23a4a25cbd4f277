package logs

import (
	"github.com/rs/zerolog"

	"github.com/loggate-io/loggate/pkg/config"
	"github.com/loggate-io/loggate/pkg/errors"
)

// Factory is a function that creates a Source from the loaded configuration.
type Factory func(cfg *config.Config, log zerolog.Logger) (Source, error)

// registry maps source kinds (e.g., "docker") to their factory functions.
// Adapters register themselves via init() using Register().
var registry = map[Kind]Factory{}

// Register adds a Source factory under the given kind.
// Typically called from an adapter's init() function.
func Register(kind Kind, factory Factory) {
	registry[kind] = factory
}

// New creates a Source of the given kind.
// Returns an error if the kind is not registered.
func New(kind Kind, cfg *config.Config, log zerolog.Logger) (Source, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, errors.NotFoundError("log source kind", string(kind)).
			WithDetail("registered_kinds", registeredKinds())
	}
	return factory(cfg, log)
}

// registeredKinds returns the names of all registered source kinds.
func registeredKinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	return kinds
}
