package session

import (
	"github.com/google/go-dap"
)

// Handler has one method per DAP request the adapter understands. Requests
// without a dedicated method go to OnUnsupportedRequest.
type Handler interface {
	OnInitializeRequest(*dap.InitializeRequest)
	OnLaunchRequest(*dap.LaunchRequest)
	OnSetBreakpointsRequest(*dap.SetBreakpointsRequest)
	OnSetExceptionBreakpointsRequest(*dap.SetExceptionBreakpointsRequest)
	OnConfigurationDoneRequest(*dap.ConfigurationDoneRequest)
	OnContinueRequest(*dap.ContinueRequest)
	OnNextRequest(*dap.NextRequest)
	OnStepInRequest(*dap.StepInRequest)
	OnPauseRequest(*dap.PauseRequest)
	OnDisconnectRequest(*dap.DisconnectRequest)
	OnThreadsRequest(*dap.ThreadsRequest)
	OnStackTraceRequest(*dap.StackTraceRequest)
	OnScopesRequest(*dap.ScopesRequest)
	OnVariablesRequest(*dap.VariablesRequest)
	OnUnsupportedRequest(seq int, command string)
}

// Dispatch routes a decoded message to the matching Handler method. It
// reports false for messages that are not requests.
func Dispatch(h Handler, message dap.Message) bool {
	switch request := message.(type) {
	case *dap.InitializeRequest:
		h.OnInitializeRequest(request)
	case *dap.LaunchRequest:
		h.OnLaunchRequest(request)
	case *dap.SetBreakpointsRequest:
		h.OnSetBreakpointsRequest(request)
	case *dap.SetExceptionBreakpointsRequest:
		h.OnSetExceptionBreakpointsRequest(request)
	case *dap.ConfigurationDoneRequest:
		h.OnConfigurationDoneRequest(request)
	case *dap.ContinueRequest:
		h.OnContinueRequest(request)
	case *dap.NextRequest:
		h.OnNextRequest(request)
	case *dap.StepInRequest:
		h.OnStepInRequest(request)
	case *dap.PauseRequest:
		h.OnPauseRequest(request)
	case *dap.DisconnectRequest:
		h.OnDisconnectRequest(request)
	case *dap.ThreadsRequest:
		h.OnThreadsRequest(request)
	case *dap.StackTraceRequest:
		h.OnStackTraceRequest(request)
	case *dap.ScopesRequest:
		h.OnScopesRequest(request)
	case *dap.VariablesRequest:
		h.OnVariablesRequest(request)
	case *dap.AttachRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.TerminateRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.RestartRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.SetFunctionBreakpointsRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.StepOutRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.StepBackRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.ReverseContinueRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.GotoRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.SetVariableRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.SourceRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.EvaluateRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.CompletionsRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.LoadedSourcesRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	case *dap.BreakpointLocationsRequest:
		h.OnUnsupportedRequest(request.Seq, request.Command)
	default:
		return false
	}
	return true
}
