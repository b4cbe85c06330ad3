// Package session implements a debug adapter that simulates execution by
// walking the breakpoints of the launched program in line order.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/go-dap"
)

const (
	// ThreadID is the only thread the simulator reports.
	ThreadID   = 1
	threadName = "main thread"

	frameID   = 1
	frameName = "breakpoint_stop"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateConfiguring
	StateStopped
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateConfiguring:
		return "configuring"
	case StateStopped:
		return "stopped"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// LaunchArguments are the launch request fields the simulator reads.
type LaunchArguments struct {
	Program     string `json:"program"`
	StopOnEntry bool   `json:"stopOnEntry"`
}

// Session is the debug adapter state machine. Once configuration is done it
// stops at the first breakpoint of the launched program, moves one
// breakpoint forward on every step and terminates after the last one.
//
// A Session handles one request at a time; callers must not invoke handlers
// concurrently.
type Session struct {
	sink   Sink
	logger *slog.Logger
	store  *Store
	seq    int

	state   State
	program string

	// positions is the snapshot of the program's breakpoints taken at
	// configurationDone; index points at the current stop.
	positions []dap.Breakpoint
	index     int
}

var _ Handler = (*Session)(nil)

func New(sink Sink, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		sink:   sink,
		logger: logger,
		store:  NewStore(),
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State { return s.state }

// Program is the normalized path recorded by the last launch, if any.
func (s *Session) Program() string { return s.program }

// Current returns the breakpoint the session is stopped at.
func (s *Session) Current() (dap.Breakpoint, bool) {
	if s.state != StateStopped || s.index < 0 || s.index >= len(s.positions) {
		return dap.Breakpoint{}, false
	}
	return s.positions[s.index], true
}

// Breakpoints exposes the store for the given file.
func (s *Session) Breakpoints(file string) []dap.Breakpoint {
	return s.store.Breakpoints(file)
}

func (s *Session) send(message dap.Message) {
	s.sink.Send(message)
}

func (s *Session) output(category, format string, args ...any) {
	s.send(s.newOutputEvent(category, fmt.Sprintf(format, args...)+"\n"))
}

func (s *Session) transition(to State) {
	if s.state != to {
		s.logger.Debug("session state changed", "from", s.state, "to", to)
	}
	s.state = to
}

func (s *Session) running() bool {
	return s.state == StateStopped || s.state == StateTerminated
}

func (s *Session) OnInitializeRequest(request *dap.InitializeRequest) {
	if s.state != StateUninitialized {
		s.send(s.newErrorResponse(request.Seq, request.Command, "session is already initialized"))
		return
	}
	response := &dap.InitializeResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.ExceptionBreakpointFilters = []dap.ExceptionBreakpointsFilter{}
	s.send(response)

	// Breakpoints may be configured from here on; the client ends that
	// phase with configurationDone.
	s.transition(StateInitialized)
	s.send(&dap.InitializedEvent{Event: *s.newEvent("initialized")})
}

func (s *Session) OnLaunchRequest(request *dap.LaunchRequest) {
	if s.running() {
		s.send(s.newErrorResponse(request.Seq, request.Command, "the run has already started"))
		return
	}
	args := LaunchArguments{}
	if len(request.Arguments) > 0 {
		if err := json.Unmarshal(request.Arguments, &args); err != nil {
			s.logger.Warn("invalid launch arguments", "err", err)
			s.send(s.newErrorResponse(request.Seq, request.Command, "Invalid launch arguments"))
			return
		}
	}
	s.output("console", "[ink-trace] Initializing debug session for: %s", args.Program)
	if args.Program != "" {
		s.program = s.store.Key(args.Program)
	}
	s.logger.Debug("launch", "program", s.program, "stopOnEntry", args.StopOnEntry)
	if s.state == StateInitialized {
		s.transition(StateConfiguring)
	}

	response := &dap.LaunchResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

func (s *Session) OnSetBreakpointsRequest(request *dap.SetBreakpointsRequest) {
	file := request.Arguments.Source.Path
	bps := s.store.SetBreakpoints(file, request.Arguments.Breakpoints)
	if file != "" {
		key := s.store.Key(file)
		s.logger.Debug("setting breakpoints", "key", key, "count", len(bps))
		s.output("console", "[ink-trace] Set %d breakpoints in file: %s", len(bps), key)
	}
	response := &dap.SetBreakpointsResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.Breakpoints = bps
	s.send(response)
}

func (s *Session) OnSetExceptionBreakpointsRequest(request *dap.SetExceptionBreakpointsRequest) {
	response := &dap.SetExceptionBreakpointsResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

func (s *Session) OnConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	if s.running() {
		s.send(s.newErrorResponse(request.Seq, request.Command, "configuration is already done"))
		return
	}
	response := &dap.ConfigurationDoneResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)

	if s.program == "" {
		s.output("stderr", "Error: No program path was configured.")
		s.terminate()
		return
	}

	s.logger.Debug("looking for breakpoints", "key", s.program, "keys", s.store.Paths())
	s.positions = s.store.Breakpoints(s.program)
	s.index = 0
	s.logger.Debug("found active breakpoints", "count", len(s.positions))

	if len(s.positions) == 0 {
		s.output("console", "No breakpoints in %s. Finishing debug session.", s.program)
		s.terminate()
		return
	}
	s.transition(StateStopped)
	s.output("console", "Stopped on entry or first breakpoint. Line: %d", s.positions[0].Line)
	s.send(s.newStoppedEvent("breakpoint"))
}

func (s *Session) OnContinueRequest(request *dap.ContinueRequest) {
	if s.state != StateStopped {
		s.send(s.newErrorResponse(request.Seq, request.Command, "cannot continue: session is "+s.state.String()))
		return
	}
	// Continue runs to the end; later breakpoints are not visited.
	s.output("console", "Continued to the end. Program finished.")
	s.terminate()

	response := &dap.ContinueResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.AllThreadsContinued = true
	s.send(response)
}

func (s *Session) OnNextRequest(request *dap.NextRequest) {
	if !s.step(request.Seq, request.Command) {
		return
	}
	response := &dap.NextResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

func (s *Session) OnStepInRequest(request *dap.StepInRequest) {
	if !s.step(request.Seq, request.Command) {
		return
	}
	response := &dap.StepInResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

// step advances the cursor and emits the matching events. It reports false
// after sending an error response when the session is not stopped.
func (s *Session) step(seq int, command string) bool {
	if s.state != StateStopped {
		s.send(s.newErrorResponse(seq, command, "cannot step: session is "+s.state.String()))
		return false
	}
	s.index++
	if s.index < len(s.positions) {
		s.output("console", "Stepped. Stopped at breakpoint. Line: %d", s.positions[s.index].Line)
		s.send(s.newStoppedEvent("step"))
		return true
	}
	s.output("console", "End of breakpoints. Program finished.")
	s.terminate()
	return true
}

func (s *Session) terminate() {
	s.transition(StateTerminated)
	s.send(s.newTerminatedEvent())
}

func (s *Session) OnPauseRequest(request *dap.PauseRequest) {
	s.output("console", "[ink-trace] Pause request received (no-op in this simulator).")
	response := &dap.PauseResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

func (s *Session) OnDisconnectRequest(request *dap.DisconnectRequest) {
	s.output("console", "[ink-trace] Disconnecting debugger.")
	s.transition(StateTerminated)
	s.positions = nil
	s.index = 0
	response := &dap.DisconnectResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

func (s *Session) OnThreadsRequest(request *dap.ThreadsRequest) {
	response := &dap.ThreadsResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body = dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: ThreadID, Name: threadName}}}
	s.send(response)
}

func (s *Session) OnStackTraceRequest(request *dap.StackTraceRequest) {
	frames := []dap.StackFrame{}
	if bp, ok := s.Current(); ok && bp.Source != nil {
		name := bp.Source.Name
		if name == "" {
			name = "unknown"
		}
		frames = append(frames, dap.StackFrame{
			Id:     frameID,
			Name:   frameName,
			Source: &dap.Source{Name: name, Path: bp.Source.Path},
			Line:   bp.Line,
			Column: bp.Column,
		})
	}
	response := &dap.StackTraceResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body = dap.StackTraceResponseBody{
		StackFrames: frames,
		TotalFrames: len(frames),
	}
	s.send(response)
}

func (s *Session) OnScopesRequest(request *dap.ScopesRequest) {
	response := &dap.ScopesResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body = dap.ScopesResponseBody{Scopes: []dap.Scope{}}
	s.send(response)
}

func (s *Session) OnVariablesRequest(request *dap.VariablesRequest) {
	response := &dap.VariablesResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body = dap.VariablesResponseBody{Variables: []dap.Variable{}}
	s.send(response)
}

func (s *Session) OnUnsupportedRequest(seq int, command string) {
	s.send(s.newErrorResponse(seq, command, fmt.Sprintf("%s is not yet supported", command)))
}

// OnMalformedRequest answers a request whose arguments could not be decoded.
func (s *Session) OnMalformedRequest(seq int, command string, err error) {
	s.logger.Warn("malformed request", "seq", seq, "command", command, "err", err)
	s.send(s.newErrorResponse(seq, command, fmt.Sprintf("invalid %s request: %v", command, err)))
}
