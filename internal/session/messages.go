package session

import (
	"github.com/google/go-dap"
)

const unsupportedErrorID = 12345

func (s *Session) newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  s.nextSeq(),
			Type: "event",
		},
		Event: event,
	}
}

func (s *Session) newResponse(requestSeq int, command string) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  s.nextSeq(),
			Type: "response",
		},
		Command:    command,
		RequestSeq: requestSeq,
		Success:    true,
	}
}

func (s *Session) newErrorResponse(requestSeq int, command string, message string) *dap.ErrorResponse {
	er := &dap.ErrorResponse{}
	er.Response = *s.newResponse(requestSeq, command)
	er.Success = false
	er.Message = message
	er.Body = dap.ErrorResponseBody{
		Error: &dap.ErrorMessage{},
	}
	er.Body.Error.Format = message
	er.Body.Error.Id = unsupportedErrorID
	return er
}

func (s *Session) newOutputEvent(category, output string) *dap.OutputEvent {
	return &dap.OutputEvent{
		Event: *s.newEvent("output"),
		Body:  dap.OutputEventBody{Category: category, Output: output},
	}
}

func (s *Session) newStoppedEvent(reason string) *dap.StoppedEvent {
	return &dap.StoppedEvent{
		Event: *s.newEvent("stopped"),
		Body:  dap.StoppedEventBody{Reason: reason, ThreadId: ThreadID, AllThreadsStopped: true},
	}
}

func (s *Session) newTerminatedEvent() *dap.TerminatedEvent {
	return &dap.TerminatedEvent{
		Event: *s.newEvent("terminated"),
	}
}

func (s *Session) nextSeq() int {
	s.seq++
	return s.seq
}
