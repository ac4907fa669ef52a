package config

import (
	"path/filepath"
	"strings"

	"github.com/debugmcp/debugmcp/pkg/types"
)

// Provider supplies a ready-to-launch DebugConfig for a source file.
// Variants exist per environment; this package's implementation is backed by
// the standalone configuration file.
type Provider interface {
	// DebugConfigFor builds the launch configuration for a file.
	DebugConfigFor(fileFullPath, workingDir string) types.DebugConfig

	// AdapterFor returns the adapter descriptor for a language.
	AdapterFor(language types.Language) (types.AdapterDescriptor, bool)
}

// extensionLanguages maps source file extensions to adapter languages.
var extensionLanguages = map[string]types.Language{
	".py":   types.LanguagePython,
	".js":   types.LanguageNode,
	".ts":   types.LanguageNode,
	".jsx":  types.LanguageNode,
	".tsx":  types.LanguageNode,
	".java": types.LanguageJava,
	".cs":   "coreclr",
	".cpp":  "cppdbg",
	".cc":   "cppdbg",
	".c":    "cppdbg",
	".go":   types.LanguageGo,
	".rs":   "lldb",
	".php":  types.LanguagePHP,
	".rb":   types.LanguageRuby,
}

// LanguageForFile derives the adapter language from a file extension.
// Unknown extensions map to python.
func LanguageForFile(path string) types.Language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return types.LanguagePython
}

// FileProvider implements Provider over a loaded Config.
type FileProvider struct {
	cfg *Config
}

// NewFileProvider creates a provider backed by the given configuration.
func NewFileProvider(cfg *Config) *FileProvider {
	return &FileProvider{cfg: cfg}
}

// AdapterFor returns the configured descriptor for a language.
func (p *FileProvider) AdapterFor(language types.Language) (types.AdapterDescriptor, bool) {
	desc, ok := p.cfg.Adapters[language]
	return desc, ok
}

// DebugConfigFor merges the configured per-language defaults under the
// conventional launch fields for the file.
func (p *FileProvider) DebugConfigFor(fileFullPath, workingDir string) types.DebugConfig {
	language := LanguageForFile(fileFullPath)

	cfg := p.cfg.Defaults[language]
	if cfg.Type == "" {
		cfg.Type = string(language)
	}
	if cfg.Request == "" {
		cfg.Request = "launch"
	}
	if cfg.Name == "" {
		cfg.Name = "Standalone Debug: " + filepath.Base(fileFullPath)
	}
	if cfg.Console == "" {
		cfg.Console = "integratedTerminal"
	}
	cfg.Program = fileFullPath
	cfg.Cwd = workingDir

	return cfg
}
