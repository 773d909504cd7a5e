// Package supervisor layers prompt templates around user prompts and
// enforces output templates and structural rules on agent output.
//
// The pure functions (MergePrompt, ApplyOutputTemplate, Validate and their
// marker variants) do the work. A Supervisor resolves the effective
// configuration for a project under one root directory and delegates to
// them. Supervisors are obtained from a Registry, one per root.
package supervisor

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Supervisor resolves per-project configuration for one root directory.
// Loaded configs are cached until invalidated.
type Supervisor struct {
	rootDir string
	loader  *Loader
	logger  *zap.Logger

	mu       sync.RWMutex
	global   *GlobalConfig
	projects map[string]ProjectConfig
	// gen counts invalidations. A load only fills the cache if no
	// invalidation happened while it read from disk.
	gen uint64

	watcher *Watcher

	// loaded runs between a disk read and the cache write. Tests only.
	loaded func()
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Supervisor for rootDir. Configs are read lazily.
func New(rootDir string, opts ...Option) *Supervisor {
	s := &Supervisor{
		rootDir:  rootDir,
		loader:   NewLoader(rootDir),
		logger:   zap.NewNop(),
		projects: make(map[string]ProjectConfig),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("supervisor.root", rootDir))
	return s
}

// RootDir returns the root directory this supervisor serves.
func (s *Supervisor) RootDir() string {
	return s.rootDir
}

// GetConfig returns the effective config for projectID. The empty id
// resolves the global config only.
func (s *Supervisor) GetConfig(projectID string) (EffectiveConfig, error) {
	if err := ValidateProjectID(projectID); err != nil {
		return EffectiveConfig{}, err
	}

	global, err := s.globalConfig()
	if err != nil {
		return EffectiveConfig{}, err
	}
	project, err := s.projectConfig(projectID)
	if err != nil {
		return EffectiveConfig{}, err
	}
	return Merge(projectID, global, project), nil
}

// Compose builds the prompt for userPrompt under projectID. With the
// supervisor disabled the user prompt is passed through alone.
func (s *Supervisor) Compose(userPrompt, projectID string) (ComposedPrompt, error) {
	cfg, err := s.GetConfig(projectID)
	if err != nil {
		return ComposedPrompt{}, err
	}
	if !cfg.SupervisorEnabled {
		return MergePrompt("", "", userPrompt), nil
	}
	return MergePrompt(cfg.GlobalTemplate, cfg.ProjectTemplate, userPrompt), nil
}

// ComposeWithMarkers is Compose using MergePromptWithMarkers.
func (s *Supervisor) ComposeWithMarkers(userPrompt, projectID string) (ComposedPrompt, error) {
	cfg, err := s.GetConfig(projectID)
	if err != nil {
		return ComposedPrompt{}, err
	}
	if !cfg.SupervisorEnabled {
		return MergePromptWithMarkers("", "", userPrompt), nil
	}
	return MergePromptWithMarkers(cfg.GlobalTemplate, cfg.ProjectTemplate, userPrompt), nil
}

// Format applies the project's output template to raw.
func (s *Supervisor) Format(raw, projectID string) (FormattedOutput, error) {
	cfg, err := s.GetConfig(projectID)
	if err != nil {
		return FormattedOutput{}, err
	}
	if !cfg.SupervisorEnabled {
		return ApplyOutputTemplate(raw, ""), nil
	}
	return ApplyOutputTemplate(raw, cfg.OutputTemplate), nil
}

// Validate checks output against the global rules. A broken global config
// falls back to DefaultRules.
func (s *Supervisor) Validate(output string) ValidationResult {
	res, err := s.ValidateFor(output, "")
	if err != nil {
		s.logger.Warn("supervisor config unavailable, using default output rules", zap.Error(err))
		return Validate(output)
	}
	return res
}

// ValidateFor checks output against projectID's rules.
func (s *Supervisor) ValidateFor(output, projectID string) (ValidationResult, error) {
	cfg, err := s.GetConfig(projectID)
	if err != nil {
		return ValidationResult{}, err
	}
	if !cfg.SupervisorEnabled {
		return Validate(output, NonEmptyRule{}), nil
	}
	rules, err := cfg.OutputRules()
	if err != nil {
		return ValidationResult{}, fmt.Errorf("building output rules: %w", err)
	}
	return Validate(output, rules...), nil
}

// Invalidate drops the cached config for projectID.
func (s *Supervisor) Invalidate(projectID string) {
	s.mu.Lock()
	delete(s.projects, projectID)
	s.gen++
	s.mu.Unlock()
	s.logger.Debug("project config invalidated", zap.String("project.id", projectID))
}

// InvalidateAll drops every cached config.
func (s *Supervisor) InvalidateAll() {
	s.mu.Lock()
	s.global = nil
	s.projects = make(map[string]ProjectConfig)
	s.gen++
	s.mu.Unlock()
	s.logger.Debug("all supervisor configs invalidated")
}

// Close stops the config watcher, if any.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	return nil
}

func (s *Supervisor) globalConfig() (GlobalConfig, error) {
	s.mu.RLock()
	cached, gen := s.global, s.gen
	s.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	cfg, err := s.loader.LoadGlobal()
	if err != nil {
		return GlobalConfig{}, fmt.Errorf("loading global supervisor config: %w", err)
	}
	if s.loaded != nil {
		s.loaded()
	}

	s.mu.Lock()
	if s.gen == gen {
		s.global = &cfg
	}
	s.mu.Unlock()
	return cfg, nil
}

func (s *Supervisor) projectConfig(projectID string) (ProjectConfig, error) {
	if projectID == "" {
		return DefaultProjectConfig(), nil
	}

	s.mu.RLock()
	cached, ok := s.projects[projectID]
	gen := s.gen
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	cfg, err := s.loader.LoadProject(projectID)
	if err != nil {
		return ProjectConfig{}, fmt.Errorf("loading project %s supervisor config: %w", projectID, err)
	}
	if s.loaded != nil {
		s.loaded()
	}

	s.mu.Lock()
	if s.gen == gen {
		s.projects[projectID] = cfg
	}
	s.mu.Unlock()
	return cfg, nil
}
