package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type client struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	seq    int
}

func newClient(t *testing.T, conn net.Conn) *client {
	return &client{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *client) request(command string) dap.Request {
	c.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.seq, Type: "request"},
		Command:         command,
	}
}

// roundTrip sends message and reads exactly n replies.
func (c *client) roundTrip(message dap.Message, n int) []dap.Message {
	c.t.Helper()
	require.NoError(c.t, dap.WriteProtocolMessage(c.conn, message))
	out := make([]dap.Message, 0, n)
	for i := 0; i < n; i++ {
		reply, err := dap.ReadProtocolMessage(c.reader)
		require.NoError(c.t, err)
		out = append(out, reply)
	}
	return out
}

func startPipe(t *testing.T, ctx context.Context) (*client, <-chan error) {
	clientConn, serverConn := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- ServeConn(ctx, serverConn, discardLogger())
	}()
	return newClient(t, clientConn), done
}

func wait(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeConnSteppingSession(t *testing.T) {
	c, done := startPipe(t, context.Background())

	msgs := c.roundTrip(&dap.InitializeRequest{Request: c.request("initialize")}, 2)
	resp, ok := msgs[0].(*dap.InitializeResponse)
	require.True(t, ok, "got %T", msgs[0])
	assert.True(t, resp.Body.SupportsConfigurationDoneRequest)
	_, ok = msgs[1].(*dap.InitializedEvent)
	assert.True(t, ok, "got %T", msgs[1])

	msgs = c.roundTrip(&dap.SetBreakpointsRequest{
		Request: c.request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: "/proj/t.rs"},
			Breakpoints: []dap.SourceBreakpoint{{Line: 15}, {Line: 5}, {Line: 10}},
		},
	}, 2)
	bps, ok := msgs[1].(*dap.SetBreakpointsResponse)
	require.True(t, ok, "got %T", msgs[1])
	require.Len(t, bps.Body.Breakpoints, 3)
	assert.Equal(t, 5, bps.Body.Breakpoints[0].Line)

	args, err := json.Marshal(map[string]any{"program": "/proj/t.rs"})
	require.NoError(t, err)
	c.roundTrip(&dap.LaunchRequest{Request: c.request("launch"), Arguments: args}, 2)

	msgs = c.roundTrip(&dap.ConfigurationDoneRequest{Request: c.request("configurationDone")}, 3)
	stopped, ok := msgs[2].(*dap.StoppedEvent)
	require.True(t, ok, "got %T", msgs[2])
	assert.Equal(t, "breakpoint", stopped.Body.Reason)
	assert.Equal(t, 1, stopped.Body.ThreadId)

	for range 2 {
		msgs = c.roundTrip(&dap.NextRequest{Request: c.request("next")}, 3)
		stopped, ok = msgs[1].(*dap.StoppedEvent)
		require.True(t, ok, "got %T", msgs[1])
		assert.Equal(t, "step", stopped.Body.Reason)
	}

	msgs = c.roundTrip(&dap.StackTraceRequest{Request: c.request("stackTrace")}, 1)
	st, ok := msgs[0].(*dap.StackTraceResponse)
	require.True(t, ok, "got %T", msgs[0])
	require.Equal(t, 1, st.Body.TotalFrames)
	assert.Equal(t, 15, st.Body.StackFrames[0].Line)

	msgs = c.roundTrip(&dap.NextRequest{Request: c.request("next")}, 3)
	_, ok = msgs[1].(*dap.TerminatedEvent)
	assert.True(t, ok, "got %T", msgs[1])

	c.roundTrip(&dap.DisconnectRequest{Request: c.request("disconnect")}, 2)
	require.NoError(t, c.conn.Close())
	wait(t, done)
}

func TestServeConnUnsupportedRequest(t *testing.T) {
	c, done := startPipe(t, context.Background())

	msgs := c.roundTrip(&dap.AttachRequest{Request: c.request("attach")}, 1)
	resp, ok := msgs[0].(*dap.ErrorResponse)
	require.True(t, ok, "got %T", msgs[0])
	assert.False(t, resp.Success)
	assert.Equal(t, 1, resp.RequestSeq)

	require.NoError(t, c.conn.Close())
	wait(t, done)
}

func TestServeConnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, done := startPipe(t, ctx)
	c.roundTrip(&dap.ThreadsRequest{Request: c.request("threads")}, 1)

	cancel()
	wait(t, done)
	c.conn.Close()
}

func TestServeListener(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeListener(ctx, listener, discardLogger())
	}()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	c := newClient(t, conn)
	msgs := c.roundTrip(&dap.ThreadsRequest{Request: c.request("threads")}, 1)
	threads, ok := msgs[0].(*dap.ThreadsResponse)
	require.True(t, ok, "got %T", msgs[0])
	assert.Equal(t, "main thread", threads.Body.Threads[0].Name)

	cancel()
	wait(t, done)
	conn.Close()
}

func TestServeConnMalformedArguments(t *testing.T) {
	c, done := startPipe(t, context.Background())

	body := []byte(`{"seq":1,"type":"request","command":"setBreakpoints",` +
		`"arguments":{"source":{"path":"/proj/t.rs"},"breakpoints":[{"line":"five"}]}}`)
	require.NoError(t, dap.WriteBaseMessage(c.conn, body))
	reply, err := dap.ReadProtocolMessage(c.reader)
	require.NoError(t, err)
	resp, ok := reply.(*dap.ErrorResponse)
	require.True(t, ok, "got %T", reply)
	assert.Equal(t, 1, resp.RequestSeq)
	assert.Equal(t, "setBreakpoints", resp.Command)
	assert.False(t, resp.Success)

	// The session is still usable afterwards.
	c.seq = 1
	msgs := c.roundTrip(&dap.ThreadsRequest{Request: c.request("threads")}, 1)
	_, ok = msgs[0].(*dap.ThreadsResponse)
	assert.True(t, ok, "got %T", msgs[0])

	require.NoError(t, c.conn.Close())
	wait(t, done)
}

func TestServeConnUndecodableMessage(t *testing.T) {
	c, done := startPipe(t, context.Background())

	require.NoError(t, dap.WriteBaseMessage(c.conn, []byte(`{not json`)))
	msgs := c.roundTrip(&dap.InitializeRequest{Request: c.request("initialize")}, 2)
	_, ok := msgs[0].(*dap.InitializeResponse)
	assert.True(t, ok, "got %T", msgs[0])

	require.NoError(t, c.conn.Close())
	wait(t, done)
}

func TestServeStdioCancel(t *testing.T) {
	stdin, input := io.Pipe()
	defer input.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeStdio(ctx, stdin, io.Discard, discardLogger())
	}()

	cancel()
	wait(t, done)
}
