package dap

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"

	debugerrors "github.com/debugmcp/debugmcp/internal/errors"
)

// DefaultRequestTimeout bounds how long a request waits for its response.
const DefaultRequestTimeout = 30 * time.Second

// requestOutcome is the resolution of one pending request.
type requestOutcome struct {
	msg dap.Message
	err error
}

// pendingRequest tracks an in-flight request awaiting its response.
type pendingRequest struct {
	command string
	ch      chan requestOutcome
	timer   *time.Timer
	once    sync.Once
}

// resolve delivers the outcome exactly once.
func (p *pendingRequest) resolve(msg dap.Message, err error) {
	p.once.Do(func() {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.ch <- requestOutcome{msg: msg, err: err}
	})
}

// Client provides a high-level API for DAP operations over a Transport.
// One reader goroutine drains the transport; all pending-request and handler
// state is guarded so callers may issue requests from any goroutine.
type Client struct {
	transport Transport

	// Request correlation. Sequence numbers are monotonically increasing
	// from 1 and never reused.
	mu      sync.Mutex
	seq     int
	pending map[int]*pendingRequest
	closed  bool

	requestTimeout time.Duration

	// Event handling
	handlerMu      sync.Mutex
	eventHandler   func(dap.EventMessage)
	eventHandlers  map[string][]func(dap.EventMessage)
	reverseHandler func(dap.RequestMessage)
	orphanHandler  func(dap.ResponseMessage)
	closeHandler   func()

	// Initialization synchronization
	initialized     chan struct{}
	initializedOnce sync.Once

	closeOnce sync.Once
	log       logr.Logger
}

// NewClient creates a DAP client over the given transport and starts its
// reader goroutine.
func NewClient(transport Transport) *Client {
	c := &Client{
		transport:      transport,
		pending:        make(map[int]*pendingRequest),
		eventHandlers:  make(map[string][]func(dap.EventMessage)),
		requestTimeout: DefaultRequestTimeout,
		initialized:    make(chan struct{}),
		log:            logr.Discard(),
	}

	go c.readLoop()

	return c
}

// SetLogger routes the client's diagnostic output.
func (c *Client) SetLogger(log logr.Logger) {
	c.log = log
}

// SetRequestTimeout changes the per-request timeout for subsequent requests.
func (c *Client) SetRequestTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestTimeout = d
}

// SetEventHandler sets the handler receiving every adapter event.
func (c *Client) SetEventHandler(handler func(dap.EventMessage)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.eventHandler = handler
}

// OnEvent registers a handler for one named event. Handlers run on the
// reader goroutine in registration order.
func (c *Client) OnEvent(name string, handler func(dap.EventMessage)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.eventHandlers[name] = append(c.eventHandlers[name], handler)
}

// SetReverseRequestHandler sets the handler for requests initiated by the
// adapter. The client never answers them.
func (c *Client) SetReverseRequestHandler(handler func(dap.RequestMessage)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.reverseHandler = handler
}

// SetOrphanResponseHandler sets the handler for responses whose request has
// already timed out or was never issued.
func (c *Client) SetOrphanResponseHandler(handler func(dap.ResponseMessage)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.orphanHandler = handler
}

// SetCloseHandler sets a callback invoked once when the client closes,
// whether explicitly or because the input stream ended.
func (c *Client) SetCloseHandler(handler func()) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.closeHandler = handler
}

// readLoop continuously reads messages from the transport.
func (c *Client) readLoop() {
	for {
		msg, err := c.transport.ReadMessage()
		if err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				// One undecodable frame does not poison the stream.
				c.log.Error(parseErr.Err, "discarding undecodable DAP frame", "bytes", len(parseErr.Body))
				continue
			}
			// Input EOF or error: tear the client down.
			c.shutdown()
			return
		}
		c.handleMessage(msg)
	}
}

// handleMessage routes an incoming message to the matching pending request
// or event handler.
func (c *Client) handleMessage(msg dap.Message) {
	switch m := msg.(type) {
	case dap.ResponseMessage:
		c.handleResponse(m)
	case dap.EventMessage:
		c.handleEvent(m)
	case dap.RequestMessage:
		// Reverse request from the adapter.
		c.handlerMu.Lock()
		handler := c.reverseHandler
		c.handlerMu.Unlock()
		if handler != nil {
			handler(m)
		} else {
			c.log.V(1).Info("ignoring reverse request", "command", m.GetRequest().Command)
		}
	default:
		c.log.V(1).Info("ignoring unknown DAP message", "seq", msg.GetSeq())
	}
}

func (c *Client) handleResponse(msg dap.ResponseMessage) {
	resp := msg.GetResponse()

	c.mu.Lock()
	req, ok := c.pending[resp.RequestSeq]
	if ok {
		delete(c.pending, resp.RequestSeq)
	}
	c.mu.Unlock()

	if !ok {
		// Late or unsolicited response.
		c.handlerMu.Lock()
		handler := c.orphanHandler
		c.handlerMu.Unlock()
		if handler != nil {
			handler(msg)
		} else {
			c.log.V(1).Info("orphan DAP response", "command", resp.Command, "requestSeq", resp.RequestSeq)
		}
		return
	}

	if resp.Success {
		req.resolve(msg, nil)
	} else {
		req.resolve(nil, debugerrors.RequestFailed(req.command, resp.Message))
	}
}

func (c *Client) handleEvent(msg dap.EventMessage) {
	name := msg.GetEvent().Event

	if name == "initialized" {
		c.initializedOnce.Do(func() {
			close(c.initialized)
		})
	}

	c.handlerMu.Lock()
	named := make([]func(dap.EventMessage), len(c.eventHandlers[name]))
	copy(named, c.eventHandlers[name])
	generic := c.eventHandler
	c.handlerMu.Unlock()

	for _, h := range named {
		h(msg)
	}
	if generic != nil {
		generic(msg)
	}
}

// shutdown fails all pending requests and notifies the close handler.
// Idempotent; shared by Close and the read loop's error path.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		pending := c.pending
		c.pending = make(map[int]*pendingRequest)
		c.mu.Unlock()

		for _, req := range pending {
			req.resolve(nil, debugerrors.ClientClosed(req.command))
		}

		_ = c.transport.Close()

		c.handlerMu.Lock()
		handler := c.closeHandler
		c.handlerMu.Unlock()
		if handler != nil {
			handler()
		}
	})
}

// Close shuts down the client, failing every pending request. Idempotent.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}

// sendRequest issues a request and waits for its correlated response or the
// per-request timeout.
func (c *Client) sendRequest(req dap.RequestMessage) (dap.Message, error) {
	command := req.GetRequest().Command

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, debugerrors.ClientClosed(command)
	}
	c.seq++
	seq := c.seq
	timeout := c.requestTimeout

	req.GetRequest().Seq = seq
	req.GetRequest().Type = "request"

	pending := &pendingRequest{
		command: command,
		ch:      make(chan requestOutcome, 1),
	}
	// The entry is registered before the write so a response can never beat
	// its own bookkeeping.
	c.pending[seq] = pending
	pending.timer = time.AfterFunc(timeout, func() {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		pending.resolve(nil, debugerrors.RequestTimedOut(command, timeout))
	})
	c.mu.Unlock()

	if err := c.transport.WriteMessage(req); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		pending.resolve(nil, err)
	}

	outcome := <-pending.ch
	return outcome.msg, outcome.err
}

// sendRequestAsync issues a request without waiting. The returned channel
// receives the outcome when the response, timeout, or close arrives.
func (c *Client) sendRequestAsync(req dap.RequestMessage) <-chan requestOutcome {
	command := req.GetRequest().Command

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ch := make(chan requestOutcome, 1)
		ch <- requestOutcome{err: debugerrors.ClientClosed(command)}
		return ch
	}
	c.seq++
	seq := c.seq
	timeout := c.requestTimeout

	req.GetRequest().Seq = seq
	req.GetRequest().Type = "request"

	pending := &pendingRequest{
		command: command,
		ch:      make(chan requestOutcome, 1),
	}
	c.pending[seq] = pending
	pending.timer = time.AfterFunc(timeout, func() {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		pending.resolve(nil, debugerrors.RequestTimedOut(command, timeout))
	})
	c.mu.Unlock()

	if err := c.transport.WriteMessage(req); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		pending.resolve(nil, err)
	}

	return pending.ch
}

// WaitInitialized waits for the adapter's initialized event.
func (c *Client) WaitInitialized(timeout time.Duration) error {
	select {
	case <-c.initialized:
		return nil
	case <-time.After(timeout):
		return debugerrors.InitializationTimeout(timeout)
	}
}

// Initialize sends the initialize request and returns the adapter's
// capabilities.
func (c *Client) Initialize(clientID, clientName string) (*dap.Capabilities, error) {
	req := &dap.InitializeRequest{
		Request: dap.Request{Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{
			ClientID:                     clientID,
			ClientName:                   clientName,
			AdapterID:                    clientID,
			Locale:                       "en-US",
			LinesStartAt1:                true,
			ColumnsStartAt1:              true,
			PathFormat:                   "path",
			SupportsVariableType:         true,
			SupportsVariablePaging:       false,
			SupportsRunInTerminalRequest: false,
		},
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return nil, err
	}
	initResp, ok := resp.(*dap.InitializeResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	caps := initResp.Body
	return &caps, nil
}

// Launch sends a launch request and returns a channel carrying its eventual
// outcome. Several adapters do not answer launch until after
// configurationDone, so callers should not block on the result before
// completing the handshake.
func (c *Client) Launch(args map[string]any) (<-chan error, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal launch args: %w", err)
	}

	req := &dap.LaunchRequest{
		Request:   dap.Request{Command: "launch"},
		Arguments: argsJSON,
	}

	outcomes := c.sendRequestAsync(req)
	errCh := make(chan error, 1)
	go func() {
		outcome := <-outcomes
		errCh <- outcome.err
	}()
	return errCh, nil
}

// Attach sends an attach request; same response timing caveats as Launch.
func (c *Client) Attach(args map[string]any) (<-chan error, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attach args: %w", err)
	}

	req := &dap.AttachRequest{
		Request:   dap.Request{Command: "attach"},
		Arguments: argsJSON,
	}

	outcomes := c.sendRequestAsync(req)
	errCh := make(chan error, 1)
	go func() {
		outcome := <-outcomes
		errCh <- outcome.err
	}()
	return errCh, nil
}

// ConfigurationDone signals that breakpoint configuration is complete.
func (c *Client) ConfigurationDone() error {
	req := &dap.ConfigurationDoneRequest{
		Request: dap.Request{Command: "configurationDone"},
	}
	_, err := c.sendRequest(req)
	return err
}

// Disconnect ends the debug session.
func (c *Client) Disconnect(terminateDebuggee bool) error {
	req := &dap.DisconnectRequest{
		Request: dap.Request{Command: "disconnect"},
		Arguments: &dap.DisconnectArguments{
			TerminateDebuggee: terminateDebuggee,
		},
	}
	_, err := c.sendRequest(req)
	return err
}

// DisconnectRestart asks the adapter to disconnect with the restart flag set.
func (c *Client) DisconnectRestart() error {
	req := &dap.DisconnectRequest{
		Request: dap.Request{Command: "disconnect"},
		Arguments: &dap.DisconnectArguments{
			Restart:           true,
			TerminateDebuggee: true,
		},
	}
	_, err := c.sendRequest(req)
	return err
}

// Terminate asks the adapter to gracefully terminate the debuggee.
func (c *Client) Terminate() error {
	req := &dap.TerminateRequest{
		Request:   dap.Request{Command: "terminate"},
		Arguments: &dap.TerminateArguments{},
	}
	_, err := c.sendRequest(req)
	return err
}

// SetBreakpoints replaces the full breakpoint set for one source.
func (c *Client) SetBreakpoints(source dap.Source, breakpoints []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	req := &dap.SetBreakpointsRequest{
		Request: dap.Request{Command: "setBreakpoints"},
		Arguments: dap.SetBreakpointsArguments{
			Source:      source,
			Breakpoints: breakpoints,
		},
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return nil, err
	}
	bpResp, ok := resp.(*dap.SetBreakpointsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return bpResp.Body.Breakpoints, nil
}

// SetFunctionBreakpoints replaces the full function breakpoint set.
func (c *Client) SetFunctionBreakpoints(breakpoints []dap.FunctionBreakpoint) ([]dap.Breakpoint, error) {
	req := &dap.SetFunctionBreakpointsRequest{
		Request: dap.Request{Command: "setFunctionBreakpoints"},
		Arguments: dap.SetFunctionBreakpointsArguments{
			Breakpoints: breakpoints,
		},
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return nil, err
	}
	bpResp, ok := resp.(*dap.SetFunctionBreakpointsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return bpResp.Body.Breakpoints, nil
}

// Continue resumes execution of a thread.
func (c *Client) Continue(threadID int) (bool, error) {
	req := &dap.ContinueRequest{
		Request:   dap.Request{Command: "continue"},
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return false, err
	}
	contResp, ok := resp.(*dap.ContinueResponse)
	if !ok {
		return false, fmt.Errorf("unexpected response type: %T", resp)
	}
	return contResp.Body.AllThreadsContinued, nil
}

// Next steps over the current line.
func (c *Client) Next(threadID int) error {
	req := &dap.NextRequest{
		Request:   dap.Request{Command: "next"},
		Arguments: dap.NextArguments{ThreadId: threadID},
	}
	_, err := c.sendRequest(req)
	return err
}

// StepIn steps into the call on the current line.
func (c *Client) StepIn(threadID int) error {
	req := &dap.StepInRequest{
		Request:   dap.Request{Command: "stepIn"},
		Arguments: dap.StepInArguments{ThreadId: threadID},
	}
	_, err := c.sendRequest(req)
	return err
}

// StepOut runs until the current frame returns.
func (c *Client) StepOut(threadID int) error {
	req := &dap.StepOutRequest{
		Request:   dap.Request{Command: "stepOut"},
		Arguments: dap.StepOutArguments{ThreadId: threadID},
	}
	_, err := c.sendRequest(req)
	return err
}

// Pause interrupts a running thread.
func (c *Client) Pause(threadID int) error {
	req := &dap.PauseRequest{
		Request:   dap.Request{Command: "pause"},
		Arguments: dap.PauseArguments{ThreadId: threadID},
	}
	_, err := c.sendRequest(req)
	return err
}

// Threads lists the debuggee's threads.
func (c *Client) Threads() ([]dap.Thread, error) {
	req := &dap.ThreadsRequest{
		Request: dap.Request{Command: "threads"},
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return nil, err
	}
	threadsResp, ok := resp.(*dap.ThreadsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return threadsResp.Body.Threads, nil
}

// StackTrace fetches stack frames for a thread.
func (c *Client) StackTrace(threadID, startFrame, levels int) ([]dap.StackFrame, error) {
	req := &dap.StackTraceRequest{
		Request: dap.Request{Command: "stackTrace"},
		Arguments: dap.StackTraceArguments{
			ThreadId:   threadID,
			StartFrame: startFrame,
			Levels:     levels,
		},
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return nil, err
	}
	stackResp, ok := resp.(*dap.StackTraceResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return stackResp.Body.StackFrames, nil
}

// Scopes fetches the variable scopes of a frame.
func (c *Client) Scopes(frameID int) ([]dap.Scope, error) {
	req := &dap.ScopesRequest{
		Request:   dap.Request{Command: "scopes"},
		Arguments: dap.ScopesArguments{FrameId: frameID},
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return nil, err
	}
	scopesResp, ok := resp.(*dap.ScopesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return scopesResp.Body.Scopes, nil
}

// Variables fetches the variables behind a variables reference.
func (c *Client) Variables(variablesRef int) ([]dap.Variable, error) {
	req := &dap.VariablesRequest{
		Request:   dap.Request{Command: "variables"},
		Arguments: dap.VariablesArguments{VariablesReference: variablesRef},
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return nil, err
	}
	varsResp, ok := resp.(*dap.VariablesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return varsResp.Body.Variables, nil
}

// Evaluate evaluates an expression in the given frame and context.
func (c *Client) Evaluate(expression string, frameID int, context string) (*dap.EvaluateResponseBody, error) {
	req := &dap.EvaluateRequest{
		Request: dap.Request{Command: "evaluate"},
		Arguments: dap.EvaluateArguments{
			Expression: expression,
			FrameId:    frameID,
			Context:    context,
		},
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return nil, err
	}
	evalResp, ok := resp.(*dap.EvaluateResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return &evalResp.Body, nil
}

// Source fetches source content from the adapter.
func (c *Client) Source(sourceRef int, path string) (string, error) {
	req := &dap.SourceRequest{
		Request: dap.Request{Command: "source"},
		Arguments: dap.SourceArguments{
			Source: &dap.Source{
				Path:            path,
				SourceReference: sourceRef,
			},
			SourceReference: sourceRef,
		},
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return "", err
	}
	sourceResp, ok := resp.(*dap.SourceResponse)
	if !ok {
		return "", fmt.Errorf("unexpected response type: %T", resp)
	}
	return sourceResp.Body.Content, nil
}
