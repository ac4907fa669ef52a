// Package adapters supervises debug adapter child processes.
//
// The Supervisor owns the lifecycle of at most one adapter at a time: it
// spawns the process described by an AdapterDescriptor, wires its stdio to a
// DAP client, forwards stderr to the diagnostic log, watches for exit, and
// performs ordered shutdown (disconnect, SIGTERM, SIGKILL).
package adapters

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	godap "github.com/google/go-dap"

	"github.com/debugmcp/debugmcp/internal/dap"
	debugerrors "github.com/debugmcp/debugmcp/internal/errors"
	"github.com/debugmcp/debugmcp/pkg/types"
)

const (
	// PortPlaceholder in a tcp-mode descriptor's args is replaced with an
	// allocated free port.
	PortPlaceholder = "{{port}}"

	// termGracePeriod is how long Stop waits between SIGTERM and SIGKILL.
	termGracePeriod = 2 * time.Second

	// tcpConnectTimeout bounds how long a tcp-mode adapter may take to
	// start listening.
	tcpConnectTimeout = 5 * time.Second
)

// activeAdapter is the currently supervised child process and its client.
type activeAdapter struct {
	language types.Language
	cmd      *exec.Cmd
	pid      int
	client   *dap.Client
	done     chan struct{}
}

// Supervisor spawns and supervises debug adapter processes. At most one
// adapter is active at a time.
type Supervisor struct {
	descriptors map[types.Language]types.AdapterDescriptor
	log         logr.Logger

	mu     sync.Mutex
	active *activeAdapter

	exitHandler  func(types.AdapterExit)
	crashHandler func(types.AdapterExit)
}

// NewSupervisor creates a supervisor over the configured adapter
// descriptors.
func NewSupervisor(descriptors map[types.Language]types.AdapterDescriptor, log logr.Logger) *Supervisor {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Supervisor{
		descriptors: descriptors,
		log:         log,
	}
}

// SetExitHandler registers the callback for every adapter exit.
func (s *Supervisor) SetExitHandler(handler func(types.AdapterExit)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exitHandler = handler
}

// SetCrashHandler registers the callback for exits with a nonzero code.
func (s *Supervisor) SetCrashHandler(handler func(types.AdapterExit)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crashHandler = handler
}

// Languages returns the configured adapter languages, sorted.
func (s *Supervisor) Languages() []string {
	langs := make([]string, 0, len(s.descriptors))
	for l := range s.descriptors {
		langs = append(langs, string(l))
	}
	sort.Strings(langs)
	return langs
}

// HasActive reports whether an adapter child is currently supervised.
func (s *Supervisor) HasActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Client returns the DAP client of the active adapter, or nil.
func (s *Supervisor) Client() *dap.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	return s.active.client
}

// Start spawns the adapter configured for language, wires up a DAP client
// and performs the initialize handshake. It refuses to start while another
// adapter is active.
func (s *Supervisor) Start(ctx context.Context, language types.Language, clientID, clientName string) (*dap.Client, *godap.Capabilities, error) {
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("a debug adapter is already active; stop it first")
	}
	desc, ok := s.descriptors[language]
	s.mu.Unlock()
	if !ok {
		return nil, nil, debugerrors.NoAdapterConfigured(string(language), s.Languages())
	}

	adapter, err := s.spawn(ctx, language, desc)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	if s.active != nil {
		// Lost the race to another Start; tear ours down.
		s.mu.Unlock()
		adapter.client.Close()
		_ = signalProcessGroup(adapter.pid, adapter.cmd, syscall.SIGKILL)
		go func() { _ = adapter.cmd.Wait() }()
		return nil, nil, fmt.Errorf("a debug adapter is already active; stop it first")
	}
	s.active = adapter
	s.mu.Unlock()

	go s.watchExit(adapter)

	caps, err := adapter.client.Initialize(clientID, clientName)
	if err != nil {
		s.Stop()
		return nil, nil, err
	}

	return adapter.client, caps, nil
}

// spawn starts the child process and builds a DAP client over it.
func (s *Supervisor) spawn(ctx context.Context, language types.Language, desc types.AdapterDescriptor) (*activeAdapter, error) {
	switch desc.Mode {
	case types.AdapterModeTCP:
		return s.spawnTCP(ctx, language, desc)
	default:
		return s.spawnStdio(language, desc)
	}
}

func (s *Supervisor) spawnStdio(language types.Language, desc types.AdapterDescriptor) (*activeAdapter, error) {
	//nolint:gosec // G204: spawning configured debug adapters is the point
	cmd := exec.Command(desc.Command, desc.Args...)
	cmd.Dir = desc.Cwd
	cmd.Env = mergedEnv(desc.Env)
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, debugerrors.AdapterSpawnFailed(desc.Command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, debugerrors.AdapterSpawnFailed(desc.Command, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, debugerrors.AdapterSpawnFailed(desc.Command, err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, debugerrors.AdapterSpawnFailed(desc.Command, err)
	}

	go s.forwardStderr(stderr)

	s.log.Info("launched debug adapter (stdio)",
		"language", language, "command", desc.Command, "args", desc.Args, "pid", cmd.Process.Pid)

	client := dap.NewClient(dap.NewStdioTransport(stdin, stdout))
	client.SetLogger(s.log.WithName("dap"))

	return &activeAdapter{
		language: language,
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		client:   client,
		done:     make(chan struct{}),
	}, nil
}

func (s *Supervisor) spawnTCP(ctx context.Context, language types.Language, desc types.AdapterDescriptor) (*activeAdapter, error) {
	port, err := freePort()
	if err != nil {
		return nil, debugerrors.AdapterSpawnFailed(desc.Command, err)
	}
	args := substitutePort(desc.Args, port)

	//nolint:gosec // G204: spawning configured debug adapters is the point
	cmd := exec.Command(desc.Command, args...)
	cmd.Dir = desc.Cwd
	cmd.Env = mergedEnv(desc.Env)
	setProcAttr(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, debugerrors.AdapterSpawnFailed(desc.Command, err)
	}

	if err := cmd.Start(); err != nil {
		stderr.Close()
		return nil, debugerrors.AdapterSpawnFailed(desc.Command, err)
	}

	go s.forwardStderr(stderr)

	s.log.Info("launched debug adapter (tcp)",
		"language", language, "command", desc.Command, "args", args, "pid", cmd.Process.Pid, "port", port)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	transport, err := dap.DialTCP(ctx, addr, tcpConnectTimeout)
	if err != nil {
		_ = signalProcessGroup(cmd.Process.Pid, cmd, syscall.SIGKILL)
		_ = cmd.Wait()
		return nil, debugerrors.AdapterSpawnFailed(desc.Command, err)
	}

	client := dap.NewClient(transport)
	client.SetLogger(s.log.WithName("dap"))

	return &activeAdapter{
		language: language,
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		client:   client,
		done:     make(chan struct{}),
	}, nil
}

// forwardStderr relays adapter stderr lines to the diagnostic log. Stderr is
// never protocol data and never fails a request.
func (s *Supervisor) forwardStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			s.log.Info("adapter stderr", "output", line)
		}
	}
}

// watchExit waits for the child to exit, then tears down the client, clears
// the active slot and notifies the exit handlers.
func (s *Supervisor) watchExit(adapter *activeAdapter) {
	waitErr := adapter.cmd.Wait()
	close(adapter.done)

	exit := types.AdapterExit{Type: "adapterExited"}
	if state := adapter.cmd.ProcessState; state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			exit.Signal = ws.Signal().String()
		} else {
			code := state.ExitCode()
			exit.Code = &code
		}
	}

	adapter.client.Close()

	s.mu.Lock()
	if s.active == adapter {
		s.active = nil
	}
	exitHandler := s.exitHandler
	crashHandler := s.crashHandler
	s.mu.Unlock()

	s.log.Info("debug adapter exited",
		"language", adapter.language, "code", exit.Code, "signal", exit.Signal, "waitErr", waitErr)

	if exitHandler != nil {
		exitHandler(exit)
	}
	if exit.Code != nil && *exit.Code != 0 && crashHandler != nil {
		crashed := exit
		crashed.Type = "adapterCrashed"
		crashHandler(crashed)
	}
}

// Stop performs ordered shutdown of the active adapter: best-effort
// disconnect, client close, SIGTERM, a grace period, then SIGKILL. Calling
// Stop with no active adapter is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	adapter := s.active
	s.active = nil
	s.mu.Unlock()

	if adapter == nil {
		return
	}

	// Best effort; the adapter may already be gone.
	if err := adapter.client.Disconnect(true); err != nil {
		s.log.V(1).Info("disconnect during stop failed", "error", err)
	}
	adapter.client.Close()

	select {
	case <-adapter.done:
		return
	default:
	}

	if err := signalProcessGroup(adapter.pid, adapter.cmd, syscall.SIGTERM); err != nil {
		s.log.V(1).Info("SIGTERM failed", "error", err)
	}

	select {
	case <-adapter.done:
		return
	case <-time.After(termGracePeriod):
	}

	if err := signalProcessGroup(adapter.pid, adapter.cmd, syscall.SIGKILL); err != nil {
		s.log.V(1).Info("SIGKILL failed", "error", err)
	}
	<-adapter.done
}

// mergedEnv layers the descriptor's environment over the host environment.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// substitutePort replaces the {{port}} placeholder in args.
func substitutePort(args []string, port int) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = strings.ReplaceAll(arg, PortPlaceholder, fmt.Sprintf("%d", port))
	}
	return result
}

// freePort finds an available TCP port by binding to port 0.
func freePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address type %T", listener.Addr())
	}
	return addr.Port, nil
}
