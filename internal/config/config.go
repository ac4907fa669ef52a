// Package config loads and validates the standalone debugmcp configuration
// file.
//
// The file is UTF-8 JSON describing adapter launch descriptors and per
// language launch defaults. After validation every string value is expanded
// once: ${workspaceFolder} becomes the directory containing the file and
// ${env:NAME} the named environment variable (empty when unset). The loaded
// configuration is immutable and Load is idempotent.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	debugerrors "github.com/debugmcp/debugmcp/internal/errors"
	"github.com/debugmcp/debugmcp/pkg/types"
)

const (
	// ConfigFileName is the conventional file name searched for by Discover.
	ConfigFileName = "debugmcp.config.json"

	// DefaultPort is the default server port.
	DefaultPort = 3001

	// DefaultTimeoutSeconds is the default session timeout.
	DefaultTimeoutSeconds = 180
)

// variablePattern matches ${...} expressions.
var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Config is a loaded, expanded, immutable configuration.
type Config struct {
	types.StandaloneConfig

	// Path is the absolute path of the loaded file.
	Path string

	// WorkspaceFolder is the directory containing the file, slash-normalized.
	WorkspaceFolder string
}

// ServerPort returns the configured port, defaulted.
func (c *Config) ServerPort() int {
	if c.Port > 0 {
		return c.Port
	}
	return DefaultPort
}

// SessionTimeout returns the configured timeout, defaulted.
func (c *Config) SessionTimeout() time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return DefaultTimeoutSeconds * time.Second
}

// Load reads, validates and expands a configuration file.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, debugerrors.ConfigNotFound(path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, debugerrors.ConfigNotFound(absPath, err)
	}

	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, debugerrors.ConfigInvalid(absPath, err.Error())
	}

	// A structural decode before expansion catches type errors (args not a
	// list, adapters not an object) with their JSON names intact.
	var probe types.StandaloneConfig
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, debugerrors.ConfigInvalid(absPath, err.Error())
	}
	if probe.Adapters == nil {
		return nil, debugerrors.ConfigInvalid(absPath, "'adapters' must be an object")
	}
	for lang, desc := range probe.Adapters {
		if strings.TrimSpace(desc.Command) == "" {
			return nil, debugerrors.ConfigInvalid(absPath, "adapter '"+string(lang)+"' has an empty 'command'")
		}
	}

	workspace := filepath.ToSlash(filepath.Dir(absPath))
	expanded := expandValue(tree, workspace)

	expandedJSON, err := json.Marshal(expanded)
	if err != nil {
		return nil, debugerrors.ConfigInvalid(absPath, err.Error())
	}

	cfg := &Config{
		Path:            absPath,
		WorkspaceFolder: workspace,
	}
	if err := json.Unmarshal(expandedJSON, &cfg.StandaloneConfig); err != nil {
		return nil, debugerrors.ConfigInvalid(absPath, err.Error())
	}
	for lang, desc := range cfg.Adapters {
		if desc.Args == nil {
			desc.Args = []string{}
			cfg.Adapters[lang] = desc
		}
	}

	return cfg, nil
}

// Discover searches for a debugmcp.config.json starting from the given path
// and walking up the directory tree until found or reaching the root.
func Discover(startPath string) (string, error) {
	if startPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", debugerrors.ConfigNotFound(ConfigFileName, err)
		}
		startPath = cwd
	}

	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", debugerrors.ConfigNotFound(startPath, err)
	}
	if info, statErr := os.Stat(absPath); statErr == nil && !info.IsDir() {
		absPath = filepath.Dir(absPath)
	}

	current := absPath
	for {
		candidate := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", debugerrors.ConfigNotFound(ConfigFileName, nil).
		WithDetails("searchedFrom", startPath)
}

// LoadAndDiscover finds a configuration from the start path and loads it.
func LoadAndDiscover(startPath string) (*Config, error) {
	path, err := Discover(startPath)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// expandValue walks a decoded JSON tree and expands variables in every
// string. Expansion is single-pass: substituted values are not re-expanded.
func expandValue(v any, workspace string) any {
	switch val := v.(type) {
	case string:
		return expandString(val, workspace)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandValue(item, workspace)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item, workspace)
		}
		return out
	default:
		return v
	}
}

// expandString replaces ${workspaceFolder} and ${env:NAME} expressions.
// Unknown variables are left as written.
func expandString(text, workspace string) string {
	return variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := match[2 : len(match)-1]
		switch {
		case expr == "workspaceFolder":
			return workspace
		case strings.HasPrefix(expr, "env:"):
			return os.Getenv(strings.TrimPrefix(expr, "env:"))
		default:
			return match
		}
	})
}
