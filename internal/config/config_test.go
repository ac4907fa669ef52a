package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	debugerrors "github.com/debugmcp/debugmcp/internal/errors"
	"github.com/debugmcp/debugmcp/pkg/types"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ExpandsVariables(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DEBUGMCP_TEST_TOKEN", "sekrit")
	t.Setenv("DEBUGMCP_TEST_UNSET", "")
	os.Unsetenv("DEBUGMCP_TEST_UNSET")

	path := writeConfig(t, dir, `{
		"port": 4100,
		"timeout": 60,
		"adapters": {
			"python": {
				"command": "${workspaceFolder}/bin/debugpy-adapter",
				"args": ["--root", "${workspaceFolder}", "--token", "${env:DEBUGMCP_TEST_TOKEN}"],
				"env": {"EXTRA": "${env:DEBUGMCP_TEST_UNSET}"}
			}
		},
		"defaults": {
			"python": {"type": "debugpy", "request": "launch", "name": "defaults", "console": "internalConsole"}
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	workspace := filepath.ToSlash(dir)
	assert.Equal(t, 4100, cfg.ServerPort())
	assert.Equal(t, int64(60), int64(cfg.SessionTimeout().Seconds()))
	assert.Equal(t, workspace, cfg.WorkspaceFolder)

	adapter := cfg.Adapters[types.LanguagePython]
	assert.Equal(t, workspace+"/bin/debugpy-adapter", adapter.Command)
	assert.Equal(t, []string{"--root", workspace, "--token", "sekrit"}, adapter.Args)
	assert.Equal(t, "", adapter.Env["EXTRA"], "unset env variables expand to empty")
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"adapters": {"python": {"command": "debugpy-adapter"}}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.ServerPort())
	assert.Equal(t, int64(DefaultTimeoutSeconds), int64(cfg.SessionTimeout().Seconds()))
	assert.NotNil(t, cfg.Adapters[types.LanguagePython].Args, "args default to an empty list")
	assert.Empty(t, cfg.Adapters[types.LanguagePython].Args)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeConfigNotFound))
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{not json`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeConfigInvalid))
}

func TestLoad_MissingAdapters(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"port": 3001}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeConfigInvalid))
}

func TestLoad_EmptyCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"adapters": {"python": {"command": "  "}}}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeConfigInvalid))
}

func TestLoad_ArgsMustBeList(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"adapters": {"python": {"command": "x", "args": "--oops"}}}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeConfigInvalid))
}

// TestLoad_RoundTrip pins that serializing a loaded config and loading it
// again yields equivalent adapter descriptors (post-expansion values).
func TestLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"adapters": {
			"python": {"command": "${workspaceFolder}/adapter", "args": ["dap"], "env": {"A": "1"}},
			"node": {"command": "js-debug", "mode": "tcp", "args": ["--port", "{{port}}"]}
		}
	}`)

	first, err := Load(path)
	require.NoError(t, err)

	serialized, err := json.Marshal(first.StandaloneConfig)
	require.NoError(t, err)
	rewritten := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(rewritten, serialized, 0o644))

	second, err := Load(rewritten)
	require.NoError(t, err)
	assert.Equal(t, first.Adapters, second.Adapters)
}

func TestLoad_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"adapters": {"go": {"command": "dlv", "args": ["dap"]}}}`)

	first, err := Load(path)
	require.NoError(t, err)
	second, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, first.StandaloneConfig, second.StandaloneConfig)
}

func TestDiscover_WalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	path := writeConfig(t, root, `{"adapters": {"go": {"command": "dlv"}}}`)

	found, err := Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestDiscover_NotFound(t *testing.T) {
	_, err := Discover(t.TempDir())
	require.Error(t, err)
	assert.True(t, debugerrors.HasCode(err, debugerrors.CodeConfigNotFound))
}

func TestLanguageForFile(t *testing.T) {
	cases := map[string]types.Language{
		"/x/main.py":   types.LanguagePython,
		"/x/app.js":    types.LanguageNode,
		"/x/app.ts":    types.LanguageNode,
		"/x/App.jsx":   types.LanguageNode,
		"/x/App.tsx":   types.LanguageNode,
		"/x/Main.java": types.LanguageJava,
		"/x/Prog.cs":   "coreclr",
		"/x/a.cpp":     "cppdbg",
		"/x/a.cc":      "cppdbg",
		"/x/a.c":       "cppdbg",
		"/x/main.go":   types.LanguageGo,
		"/x/main.rs":   "lldb",
		"/x/index.php": types.LanguagePHP,
		"/x/app.rb":    types.LanguageRuby,
		// Unknown extensions fall back to python.
		"/x/strange.xyz": types.LanguagePython,
		"/x/noext":       types.LanguagePython,
	}
	for path, want := range cases {
		assert.Equal(t, want, LanguageForFile(path), "path %s", path)
	}
}

func TestFileProvider_MergesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"adapters": {"python": {"command": "debugpy-adapter"}},
		"defaults": {
			"python": {"type": "debugpy", "request": "launch", "name": "", "justMyCode": false}
		}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	provider := NewFileProvider(cfg)
	dc := provider.DebugConfigFor("/work/src/app.py", "/work")

	assert.Equal(t, "debugpy", dc.Type, "defaults override the language type")
	assert.Equal(t, "launch", dc.Request)
	assert.Equal(t, "Standalone Debug: app.py", dc.Name)
	assert.Equal(t, "/work/src/app.py", dc.Program)
	assert.Equal(t, "/work", dc.Cwd)
	assert.Equal(t, "integratedTerminal", dc.Console)
	assert.Equal(t, false, dc.Extra["justMyCode"], "adapter-specific defaults pass through")
}

func TestFileProvider_NoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"adapters": {"go": {"command": "dlv", "args": ["dap"]}}}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	provider := NewFileProvider(cfg)
	dc := provider.DebugConfigFor("/proj/main.go", "/proj")

	assert.Equal(t, "go", dc.Type)
	assert.Equal(t, "launch", dc.Request)
	assert.Equal(t, "Standalone Debug: main.go", dc.Name)

	desc, ok := provider.AdapterFor(types.LanguageGo)
	require.True(t, ok)
	assert.Equal(t, "dlv", desc.Command)

	_, ok = provider.AdapterFor(types.LanguageRuby)
	assert.False(t, ok)
}
