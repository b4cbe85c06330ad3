// Package server exposes the simulated debug session over the Debug Adapter
// Protocol, either on a TCP listener or on a pair of stdio streams.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/go-dap"

	"github.com/grafana/ink-trace-debugger/internal/session"
)

// Serve listens on addr and runs one debug session per accepted
// connection until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, listener, logger)
}

// ServeListener is Serve on an existing listener, which it closes on return.
func ServeListener(ctx context.Context, listener net.Listener, logger *slog.Logger) error {
	defer listener.Close()
	logger.Info("Started server", "addr", listener.Addr())

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			logger.Error("Connection failed", "err", err)
			continue
		}
		logger.Info("Accepted connection", "remote", conn.RemoteAddr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ServeConn(ctx, conn, logger); err != nil {
				logger.Error("session ended with error", "remote", conn.RemoteAddr(), "err", err)
			}
			logger.Debug("Closing connection", "remote", conn.RemoteAddr())
		}()
	}
}

// ServeStdio runs a single debug session over stdin and stdout. If stdin
// is an io.Closer it is closed when ctx is cancelled.
func ServeStdio(ctx context.Context, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	logger.Info("starting DAP using STDIN/STDOUT as communication protocol")
	closer, _ := stdin.(io.Closer)
	return serve(ctx, stdin, stdout, closer, logger)
}

// ServeConn runs a debug session on conn until the client hangs up or ctx
// is cancelled. conn is closed on return.
func ServeConn(ctx context.Context, conn io.ReadWriteCloser, logger *slog.Logger) error {
	return serve(ctx, conn, conn, conn, logger)
}

func serve(ctx context.Context, r io.Reader, w io.Writer, closer io.Closer, logger *slog.Logger) error {
	conn := &connection{
		reader:    bufio.NewReader(r),
		writer:    bufio.NewWriter(w),
		sendQueue: make(chan dap.Message),
		logger:    logger,
	}
	conn.session = session.New(session.SinkFunc(conn.send), logger)

	var closeOnce sync.Once
	closeConn := func() {
		if closer != nil {
			closeOnce.Do(func() { closer.Close() })
		}
	}
	defer closeConn()
	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	conn.sendWg.Add(1)
	go conn.sendFromQueue()

	err := conn.readLoop()
	close(conn.sendQueue)
	conn.sendWg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// connection couples one Session to a client stream. Requests are read and
// handled one at a time; everything the session emits goes through
// sendQueue to a single writer goroutine.
type connection struct {
	reader *bufio.Reader
	writer *bufio.Writer

	// sendQueue is drained by sendFromQueue, which exits once the channel
	// is closed.
	sendQueue chan dap.Message
	sendWg    sync.WaitGroup

	session *session.Session
	logger  *slog.Logger
}

func (c *connection) readLoop() error {
	for {
		err := c.handleRequest()
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			c.logger.Debug("No more data to read", "err", err)
			return nil
		}
		return fmt.Errorf("reading request: %w", err)
	}
}

// handleRequest reads one framed message and dispatches it. Only framing
// and I/O errors are returned; a message that cannot be decoded is answered
// and the loop goes on.
func (c *connection) handleRequest() error {
	content, err := dap.ReadBaseMessage(c.reader)
	if err != nil {
		return err
	}
	request, err := dap.DecodeProtocolMessage(content)
	if err != nil {
		c.rejectRequest(content, err)
		return nil
	}
	c.logger.Debug("received request", "request", fmt.Sprintf("%#v", request))
	if !session.Dispatch(c.session, request) {
		c.logger.Warn("ignoring message that is not a request", "type", fmt.Sprintf("%T", request))
	}
	return nil
}

// rejectRequest answers a message whose content failed to decode, using
// whatever seq and command can still be read from it.
func (c *connection) rejectRequest(content []byte, err error) {
	var decodeErr *dap.DecodeProtocolMessageFieldError
	if errors.As(err, &decodeErr) && decodeErr.SubType == "Request" {
		c.logger.Warn("unable to decode request", "err", err)
		c.session.OnUnsupportedRequest(decodeErr.Seq, decodeErr.FieldValue)
		return
	}
	var header struct {
		Seq     int    `json:"seq"`
		Type    string `json:"type"`
		Command string `json:"command"`
	}
	if json.Unmarshal(content, &header) != nil || header.Type != "request" {
		c.logger.Warn("dropping undecodable message", "err", err)
		return
	}
	c.session.OnMalformedRequest(header.Seq, header.Command, err)
}

func (c *connection) send(message dap.Message) {
	c.sendQueue <- message
}

// sendFromQueue writes queued messages to the client until the queue is
// closed. Write errors are logged; the reader notices a dead peer on its own.
func (c *connection) sendFromQueue() {
	defer c.sendWg.Done()
	for message := range c.sendQueue {
		if err := dap.WriteProtocolMessage(c.writer, message); err != nil {
			c.logger.Debug("failed to write message", "err", err)
			continue
		}
		c.logger.Debug("message sent", "data", message)
		if err := c.writer.Flush(); err != nil {
			c.logger.Debug("failed to flush message", "err", err)
		}
	}
}
