package main

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/assert"

	"github.com/grafana/ink-trace-debugger/internal/config"
	"github.com/grafana/ink-trace-debugger/internal/session"
)

const flipper = `#[ink::contract]
mod flipper {
    #[drink::test]
    fn deploys() {
        let f = Flipper::new(false);
        f.flip();
        assert!(f.get());
    }
}`

func newTestRepl(t *testing.T) (*ReplDebugger, *bytes.Buffer) {
	color.Disable()
	t.Cleanup(func() { color.Enable = true })
	var out bytes.Buffer
	r := newReplDebugger("/proj/lib.rs", flipper, config.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)), &out)
	r.start()
	return r, &out
}

func TestReplStepsThroughBreakpoints(t *testing.T) {
	r, out := newTestRepl(t)
	r.execute("b 7")
	r.execute("b 5")
	out.Reset()

	r.execute("c")
	assert.Contains(t, out.String(), "Hit breakpoint: /proj/lib.rs:5")
	assert.Contains(t, out.String(), " 5|         let f = Flipper::new(false);")
	assert.Equal(t, "lib.rs:5> ", r.prompt())

	r.execute("n")
	assert.Equal(t, "lib.rs:7> ", r.prompt())

	out.Reset()
	r.execute("trace")
	assert.Contains(t, out.String(), "- breakpoint_stop")
	assert.Contains(t, out.String(), "/proj/lib.rs:7:0")

	r.execute("n")
	assert.True(t, r.finished)
	assert.Equal(t, session.StateTerminated, r.session.State())
}

func TestReplContinueFinishes(t *testing.T) {
	r, out := newTestRepl(t)
	r.execute("b 5")
	r.execute("b 6")
	r.execute("c")
	out.Reset()

	r.execute("c")
	assert.Contains(t, out.String(), "Program finished.")
	assert.NotContains(t, out.String(), "Line: 6")
	assert.True(t, r.finished)
}

func TestReplNoBreakpoints(t *testing.T) {
	r, out := newTestRepl(t)
	r.execute("c")
	assert.Contains(t, out.String(), "No breakpoints in /proj/lib.rs")
	assert.True(t, r.finished)
}

func TestReplBreakpointCommands(t *testing.T) {
	r, out := newTestRepl(t)
	r.execute("b x")
	assert.Contains(t, out.String(), "Invalid line number: x")

	r.execute("b /proj/lib.rs:6:9")
	r.execute("b 4")
	out.Reset()
	r.execute("b")
	assert.Equal(t, "- /proj/lib.rs:4\n- /proj/lib.rs:6\n", out.String())

	r.execute("clear")
	out.Reset()
	r.execute("b")
	assert.Empty(t, out.String())
}

func TestReplStepBeforeLaunch(t *testing.T) {
	r, out := newTestRepl(t)
	r.execute("n")
	assert.Contains(t, out.String(), "cannot step")
	assert.False(t, r.finished)
}

func TestReplTestsAndCompletion(t *testing.T) {
	r, out := newTestRepl(t)
	r.execute("tests")
	assert.Contains(t, out.String(), "- deploys")
	assert.Contains(t, out.String(), "/proj/lib.rs:3")

	assert.Equal(t, []string{"b /proj/lib.rs:4"}, r.complete("b /proj"))
	assert.Empty(t, r.complete("n"))
}

func TestReplQuit(t *testing.T) {
	r, out := newTestRepl(t)
	r.execute("bogus")
	assert.Contains(t, out.String(), "Unknown command: bogus")
	r.execute("q")
	assert.True(t, r.finished)
	assert.Equal(t, session.StateTerminated, r.session.State())
}
