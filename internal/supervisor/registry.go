package supervisor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Registry holds one Supervisor per root directory. Build one per process
// and pass it to whatever needs supervisors.
type Registry struct {
	opts   []Option
	watch  bool
	logger *zap.Logger

	mu        sync.Mutex
	instances map[string]*Supervisor
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSupervisorOptions sets the options used for every new Supervisor.
func WithSupervisorOptions(opts ...Option) RegistryOption {
	return func(r *Registry) { r.opts = append(r.opts, opts...) }
}

// WithWatch starts a config watcher for each new Supervisor.
func WithWatch(enabled bool) RegistryOption {
	return func(r *Registry) { r.watch = enabled }
}

// WithRegistryLogger sets the registry's logger. It is also passed to new
// supervisors.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
			r.opts = append(r.opts, WithLogger(l))
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:    zap.NewNop(),
		instances: make(map[string]*Supervisor),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the Supervisor for rootDir, creating it on first access.
// Paths are compared after conversion to absolute, cleaned form.
func (r *Registry) Get(rootDir string) (*Supervisor, error) {
	if rootDir == "" {
		return nil, errors.New("supervisor root directory is required")
	}
	key, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving supervisor root %s: %w", rootDir, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.instances[key]; ok {
		return s, nil
	}

	s := New(key, r.opts...)
	if r.watch {
		if err := s.Watch(context.Background()); err != nil {
			r.logger.Warn("supervisor config watch unavailable", zap.String("root", key), zap.Error(err))
		}
	}
	r.instances[key] = s
	r.logger.Debug("supervisor created", zap.String("root", key))
	return s, nil
}

// Len returns the number of live supervisors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// Reset closes and forgets every supervisor. Later Get calls create fresh
// instances.
func (r *Registry) Reset() {
	r.mu.Lock()
	old := r.instances
	r.instances = make(map[string]*Supervisor)
	r.mu.Unlock()

	for _, s := range old {
		_ = s.Close()
	}
}

// Close is Reset for process shutdown.
func (r *Registry) Close() error {
	r.Reset()
	return nil
}
