package logs

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/loggate-io/loggate/pkg/config"
)

// Selector hands out per-kind Source singletons. Sources live for the
// process lifetime, so every connection shares one history ring and one set
// of API clients per kind.
type Selector struct {
	cfg *config.Config
	log zerolog.Logger

	mu      sync.Mutex
	sources map[Kind]Source
}

// NewSelector creates a Selector over the loaded configuration.
func NewSelector(cfg *config.Config, log zerolog.Logger) *Selector {
	return &Selector{
		cfg:     cfg,
		log:     log,
		sources: make(map[Kind]Source),
	}
}

// KindFor maps an environment name to the source kind backing it. The local
// environment reads straight from the Docker daemon; every other environment
// reads the aggregated CloudWatch streams.
func KindFor(environment string) Kind {
	if environment == config.EnvLocal {
		return KindDocker
	}
	return KindCloudWatch
}

// Active returns the source for the configured environment.
func (s *Selector) Active() (Source, error) {
	return s.Get(KindFor(s.cfg.Environment))
}

// Get returns the memoized source of the given kind, constructing it on
// first use. Construction failures are not cached, so a later call retries.
func (s *Selector) Get(kind Kind) (Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if source, ok := s.sources[kind]; ok {
		return source, nil
	}

	source, err := New(kind, s.cfg, s.log)
	if err != nil {
		return nil, err
	}

	s.sources[kind] = source
	return source, nil
}
