package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	globalConfigName = "global"
	projectsDir      = "projects"
)

// configExtensions are tried in order for each config file.
var configExtensions = []string{".yaml", ".yml", ".toml"}

var projectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// ErrInvalidProjectID is returned for project ids that are not safe file
// names.
var ErrInvalidProjectID = errors.New("invalid project id")

// ValidateProjectID checks that id can name a project config file. The
// empty id selects the global config only and is valid.
func ValidateProjectID(id string) error {
	if id == "" {
		return nil
	}
	if !projectIDPattern.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidProjectID, id)
	}
	return nil
}

// Loader reads supervisor configs below a root directory:
//
//	<root>/global.{yaml,yml,toml}
//	<root>/projects/<project-id>.{yaml,yml,toml}
//
// Missing files yield the defaults.
type Loader struct {
	root string
}

// NewLoader creates a loader for root.
func NewLoader(root string) *Loader {
	return &Loader{root: root}
}

// GlobalPath returns the directory holding the global config.
func (l *Loader) GlobalPath() string {
	return l.root
}

// ProjectsPath returns the directory holding project configs.
func (l *Loader) ProjectsPath() string {
	return filepath.Join(l.root, projectsDir)
}

// LoadGlobal reads the global config. Keys absent from the file keep the
// values of DefaultGlobalConfig.
func (l *Loader) LoadGlobal() (GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	path, data, err := readFirst(l.root, globalConfigName)
	if err != nil {
		return GlobalConfig{}, err
	}
	if data == nil {
		return cfg, nil
	}

	var file GlobalConfig
	if err := decode(path, data, &file); err != nil {
		return GlobalConfig{}, err
	}
	cfg = overlayGlobal(cfg, file)

	if err := cfg.Validate(); err != nil {
		return GlobalConfig{}, fmt.Errorf("global config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadProject reads the config for projectID.
func (l *Loader) LoadProject(projectID string) (ProjectConfig, error) {
	if err := ValidateProjectID(projectID); err != nil {
		return ProjectConfig{}, err
	}
	if projectID == "" {
		return DefaultProjectConfig(), nil
	}

	path, data, err := readFirst(l.ProjectsPath(), projectID)
	if err != nil {
		return ProjectConfig{}, err
	}
	if data == nil {
		return DefaultProjectConfig(), nil
	}

	var cfg ProjectConfig
	if err := decode(path, data, &cfg); err != nil {
		return ProjectConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ProjectConfig{}, fmt.Errorf("project config %s: %w", path, err)
	}
	return cfg, nil
}

// readFirst reads dir/name with the first extension that exists. It
// returns nil data when none does.
func readFirst(dir, name string) (string, []byte, error) {
	for _, ext := range configExtensions {
		path := filepath.Join(dir, name+ext)
		data, err := readConfigFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		return path, data, nil
	}
	return "", nil, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	// Windows has a different permission model.
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o022 != 0 {
			return nil, fmt.Errorf("insecure config file permissions on %s: %v (must not be group or world writable)", path, perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// decode parses data by file extension: TOML directly, YAML through koanf.
func decode(path string, data []byte, out any) error {
	if filepath.Ext(path) == ".toml" {
		if _, err := toml.Decode(string(data), out); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	if err := k.Unmarshal("", out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return nil
}

// overlayGlobal copies the fields set in file over base.
func overlayGlobal(base, file GlobalConfig) GlobalConfig {
	if file.InputTemplate != "" {
		base.InputTemplate = file.InputTemplate
	}
	if file.OutputTemplate != "" {
		base.OutputTemplate = file.OutputTemplate
	}
	fr := file.SupervisorRules
	if fr.Enabled != nil {
		base.SupervisorRules.Enabled = fr.Enabled
	}
	if fr.TimeoutDefaultMS != nil {
		base.SupervisorRules.TimeoutDefaultMS = fr.TimeoutDefaultMS
	}
	if fr.MaxRetries != nil {
		base.SupervisorRules.MaxRetries = fr.MaxRetries
	}
	if fr.RequiredSections != nil {
		base.SupervisorRules.RequiredSections = fr.RequiredSections
	}
	if fr.ForbiddenPatterns != nil {
		base.SupervisorRules.ForbiddenPatterns = fr.ForbiddenPatterns
	}
	if fr.MaxOutputChars != nil {
		base.SupervisorRules.MaxOutputChars = fr.MaxOutputChars
	}
	return base
}
