package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-dap"
	"github.com/gookit/color"
	"github.com/peterh/liner"

	"github.com/grafana/ink-trace-debugger/internal/config"
	"github.com/grafana/ink-trace-debugger/internal/scan"
	"github.com/grafana/ink-trace-debugger/internal/session"
)

// ReplDebugger drives a simulated session from the terminal. It plays the
// client side of the protocol: commands become requests and whatever the
// session emits is rendered.
type ReplDebugger struct {
	line     *liner.State
	out      io.Writer
	histFile string
	raw      string
	filename string
	attrs    []string

	session *session.Session
	events  *session.Recorder
	seq     int

	// breakpoints mirrors what was sent per file, since every
	// setBreakpoints request replaces the previous set.
	breakpoints map[string][]dap.SourceBreakpoint
	finished    bool
}

func MakeReplDebugger(filename, snippet string, cfg config.Config, logger *slog.Logger) *ReplDebugger {
	r := newReplDebugger(filename, snippet, cfg, logger, os.Stdout)
	r.line = liner.NewLiner()
	r.line.SetCtrlCAborts(true)
	if f, err := os.Open(r.histFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

func newReplDebugger(filename, snippet string, cfg config.Config, logger *slog.Logger, out io.Writer) *ReplDebugger {
	events := &session.Recorder{}
	return &ReplDebugger{
		out:         out,
		histFile:    cfg.History,
		raw:         snippet,
		filename:    filename,
		attrs:       cfg.TestAttributes,
		session:     session.New(events, logger),
		events:      events,
		breakpoints: map[string][]dap.SourceBreakpoint{},
	}
}

func (r *ReplDebugger) Run() {
	defer r.line.Close()
	r.line.SetCompleter(r.complete)
	r.start()
	for !r.finished {
		input, err := r.line.Prompt(r.prompt())
		if err == liner.ErrPromptAborted || errors.Is(err, io.EOF) {
			r.execute("q")
			break
		}
		if err != nil {
			slog.Error("reading input", "err", err)
			break
		}
		r.line.AppendHistory(input)
		r.execute(input)
	}
	if f, err := os.Create(r.histFile); err == nil {
		r.line.WriteHistory(f)
		f.Close()
	}
}

func (r *ReplDebugger) start() {
	r.send(&dap.InitializeRequest{Request: r.request("initialize")})
}

func (r *ReplDebugger) request(command string) dap.Request {
	r.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: r.seq, Type: "request"},
		Command:         command,
	}
}

func (r *ReplDebugger) send(request dap.Message) {
	session.Dispatch(r.session, request)
	for _, m := range r.events.Drain() {
		r.render(m)
	}
}

func (r *ReplDebugger) prompt() string {
	if bp, ok := r.session.Current(); ok {
		return fmt.Sprintf("%s:%d> ", bp.Source.Name, bp.Line)
	}
	return "> "
}

func (r *ReplDebugger) complete(line string) (c []string) {
	parts := strings.Split(line, " ")
	switch parts[0] {
	case "b", "break":
		if len(parts) < 2 {
			return
		}
		for _, loc := range r.testLocations() {
			if strings.HasPrefix(loc, parts[1]) {
				c = append(c, parts[0]+" "+loc)
			}
		}
	}
	return
}

// testLocations lists file:line of each test function declaration.
func (r *ReplDebugger) testLocations() []string {
	var locs []string
	for _, offset := range scan.Tests(r.raw, r.attrs...) {
		locs = append(locs, fmt.Sprintf("%s:%d", r.filename, scan.Line(r.raw, offset)+1))
	}
	return locs
}

// execute runs one command line.
func (r *ReplDebugger) execute(input string) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return
	}
	switch parts[0] {
	case "b", "break":
		if len(parts) < 2 {
			r.listBreakpoints()
			break
		}
		r.addBreakpoint(parts[1])
	case "clear":
		file := r.filename
		if len(parts) > 1 {
			file = absPath(parts[1])
		}
		delete(r.breakpoints, file)
		r.setBreakpoints(file)
	case "c", "continue":
		switch r.session.State() {
		case session.StateStopped:
			r.send(&dap.ContinueRequest{Request: r.request("continue")})
		default:
			r.launch()
		}
	case "n", "next", "s", "step":
		r.send(&dap.NextRequest{Request: r.request("next")})
	case "l", "list":
		if bp, ok := r.session.Current(); ok {
			r.printCurrentContext(bp.Line)
		} else {
			r.printFile()
		}
	case "trace", "bt":
		r.send(&dap.StackTraceRequest{Request: r.request("stackTrace")})
	case "threads":
		r.send(&dap.ThreadsRequest{Request: r.request("threads")})
	case "tests":
		for name, offset := range scan.Tests(r.raw, r.attrs...) {
			fmt.Fprintf(r.out, "- %s\t\t\t%s\n", name, color.Gray.Render(fmt.Sprintf("%s:%d", r.filename, scan.Line(r.raw, offset))))
		}
	case "q", "quit":
		r.send(&dap.DisconnectRequest{Request: r.request("disconnect")})
		r.finished = true
	default:
		fmt.Fprintf(r.out, "Unknown command: %s\n", input)
	}
}

func (r *ReplDebugger) launch() {
	args, err := json.Marshal(session.LaunchArguments{Program: r.filename})
	if err != nil {
		fmt.Fprintln(r.out, err)
		return
	}
	r.send(&dap.LaunchRequest{Request: r.request("launch"), Arguments: args})
	r.send(&dap.ConfigurationDoneRequest{Request: r.request("configurationDone")})
}

// addBreakpoint accepts file:line[:column] or a bare line in the current file.
func (r *ReplDebugger) addBreakpoint(location string) {
	binfo := strings.Split(location, ":")
	file := r.filename
	if len(binfo) >= 2 {
		file = absPath(binfo[0])
		binfo = binfo[1:]
	}
	line, err := strconv.Atoi(binfo[0])
	if err != nil || line < 1 {
		fmt.Fprintf(r.out, "Invalid line number: %s\n", binfo[0])
		return
	}
	bp := dap.SourceBreakpoint{Line: line}
	if len(binfo) == 2 {
		column, err := strconv.Atoi(binfo[1])
		if err != nil || column < 1 {
			fmt.Fprintf(r.out, "Invalid column number: %s\n", binfo[1])
			return
		}
		bp.Column = column
	}
	r.breakpoints[file] = append(r.breakpoints[file], bp)
	fmt.Fprintf(r.out, "Adding breakpoint at %s:%d\n", file, line)
	r.setBreakpoints(file)
}

func absPath(file string) string {
	if abs, err := filepath.Abs(file); err == nil {
		return abs
	}
	return file
}

func (r *ReplDebugger) setBreakpoints(file string) {
	r.send(&dap.SetBreakpointsRequest{
		Request: r.request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: file},
			Breakpoints: r.breakpoints[file],
		},
	})
}

func (r *ReplDebugger) listBreakpoints() {
	files := make([]string, 0, len(r.breakpoints))
	for f := range r.breakpoints {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		for _, bp := range r.session.Breakpoints(f) {
			fmt.Fprintf(r.out, "- %s:%d\n", bp.Source.Path, bp.Line)
		}
	}
}

func (r *ReplDebugger) render(m dap.Message) {
	switch m := m.(type) {
	case *dap.OutputEvent:
		if m.Body.Category == "stderr" {
			fmt.Fprint(r.out, color.Red.Render(m.Body.Output))
		} else {
			fmt.Fprint(r.out, color.Gray.Render(m.Body.Output))
		}
	case *dap.StoppedEvent:
		bp, ok := r.session.Current()
		if !ok {
			break
		}
		if m.Body.Reason == "breakpoint" {
			fmt.Fprint(r.out, color.Bold.Render("Hit breakpoint: "))
			fmt.Fprintln(r.out, color.OpUnderscore.Render(fmt.Sprintf("%s:%d", bp.Source.Path, bp.Line)))
		}
		r.printCurrentContext(bp.Line)
	case *dap.TerminatedEvent:
		fmt.Fprintln(r.out, color.Magenta.Render("Program finished."))
		r.finished = true
	case *dap.StackTraceResponse:
		for _, frame := range m.Body.StackFrames {
			fmt.Fprintf(r.out, "- %s", frame.Name)
			if frame.Source != nil {
				fmt.Fprint(r.out, "\t\t\t")
				fmt.Fprint(r.out, color.Gray.Render(fmt.Sprintf("%s:%d:%d", frame.Source.Path, frame.Line, frame.Column)))
			}
			fmt.Fprint(r.out, "\n")
		}
	case *dap.ThreadsResponse:
		for _, t := range m.Body.Threads {
			fmt.Fprintf(r.out, "- %d %s\n", t.Id, t.Name)
		}
	case *dap.ErrorResponse:
		fmt.Fprintln(r.out, color.Red.Render(m.Message))
	}
}

func (r *ReplDebugger) printCurrentContext(current int) {
	lines := append([]string{""}, strings.Split(r.raw, "\n")...)
	clines := 3 // how many lines of context to show
	for i := current - clines; i <= current+clines; i++ {
		if i < 1 || i >= len(lines) {
			continue
		}
		fmt.Fprint(r.out, color.Gray.Sprintf("%2d| ", i))
		if i == current {
			fmt.Fprintln(r.out, color.Blue.Render(lines[i]))
		} else {
			fmt.Fprintln(r.out, lines[i])
		}
	}
}

func (r *ReplDebugger) printFile() {
	fmt.Fprintf(r.out, "File: %s\n", color.FgBlue.Render(r.filename))
	for i, l := range strings.Split(r.raw, "\n") {
		fmt.Fprint(r.out, color.Gray.Sprintf("%2d| ", i+1))
		fmt.Fprintln(r.out, l)
	}
}
