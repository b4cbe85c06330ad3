package session

import (
	"sync"

	"github.com/google/go-dap"
)

// Sink receives every response and event produced by a Session, in the
// order they must reach the client.
type Sink interface {
	Send(message dap.Message)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(dap.Message)

func (f SinkFunc) Send(message dap.Message) { f(message) }

// Recorder is a Sink that keeps messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []dap.Message
}

func (r *Recorder) Send(message dap.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Messages returns everything recorded so far.
func (r *Recorder) Messages() []dap.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dap.Message(nil), r.messages...)
}

// Drain returns the recorded messages and forgets them.
func (r *Recorder) Drain() []dap.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.messages
	r.messages = nil
	return out
}
