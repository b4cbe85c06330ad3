package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/lmittmann/tint"

	"github.com/grafana/ink-trace-debugger/internal/config"
	"github.com/grafana/ink-trace-debugger/internal/launcher"
	"github.com/grafana/ink-trace-debugger/internal/scan"
	"github.com/grafana/ink-trace-debugger/internal/server"
)

var (
	// Set with `-ldflags="-X 'main.version=<version>'"`
	version = "dev"
)

func printVersion(o io.Writer) {
	fmt.Fprintf(o, "ink-trace-debugger version %s\n", version)
}

func usage(o io.Writer) {
	printVersion(o)
	fmt.Fprintln(o)
	fmt.Fprintln(o, "ink-trace-debugger {<option>} { <filename> }")
	fmt.Fprintln(o)
	fmt.Fprintln(o, "Available options:")
	fmt.Fprintln(o, "  -h / --help                This message")
	fmt.Fprintln(o, "  -c / --config <file>       Load settings from a .jsonnet, .json or .yaml file")
	fmt.Fprintln(o, "  -d / --dap                 Start a debug-adapter-protocol server")
	fmt.Fprintln(o, "  -s / --stdin               Start a debug-adapter-protocol session using stdin/stdout for communication")
	fmt.Fprintln(o, "  -p / --port <port>         Port of the debug-adapter-protocol server")
	fmt.Fprintln(o, "  -t / --tests               List the test functions found in filename")
	fmt.Fprintln(o, "  --describe                 Print the command an editor runs to start the adapter")
	fmt.Fprintln(o, "  -l / --log-level           Set the log level. Allowed values: debug,info,warn,error")
	fmt.Fprintln(o, "  --version                  Print version")
	fmt.Fprintln(o)
	fmt.Fprintln(o, "Without -d, -t or --describe the filename is opened in an interactive session.")
	fmt.Fprintln(o)
	fmt.Fprintln(o, "In all cases:")
	fmt.Fprintln(o, "  Multichar options are expanded e.g. -abc becomes -a -b -c.")
	fmt.Fprintln(o, "  The -- option suppresses option processing for subsequent arguments.")
}

type options struct {
	inputFile  string
	configFile string
	dap        bool
	stdin      bool
	tests      bool
	describe   bool
	port       string
	logLevel   string
}

type processArgsStatus int

const (
	processArgsStatusContinue processArgsStatus = iota
	processArgsStatusSuccessUsage
	processArgsStatusFailureUsage
	processArgsStatusSuccess
	processArgsStatusFailure
)

// nextArg retrieves the next argument from the commandline.
func nextArg(i *int, args []string) (string, error) {
	(*i)++
	if (*i) >= len(args) {
		return "", fmt.Errorf("expected another commandline argument after %s", args[*i-1])
	}
	return args[*i], nil
}

// simplifyArgs transforms an array of commandline arguments so that
// any -abc arg before the first -- (if any) are expanded into
// -a -b -c.
func simplifyArgs(args []string) (r []string) {
	r = make([]string, 0, len(args)*2)
	for i, arg := range args {
		if arg == "--" {
			r = append(r, args[i:]...)
			break
		}
		if len(arg) > 2 && arg[0] == '-' && arg[1] != '-' {
			for j := 1; j < len(arg); j++ {
				r = append(r, "-"+string(arg[j]))
			}
		} else {
			r = append(r, arg)
		}
	}
	return
}

func processArgs(givenArgs []string, opts *options, stdout io.Writer) (processArgsStatus, error) {
	args := simplifyArgs(givenArgs)

	remainingArgs := make([]string, 0, len(args))
	i := 0

	for ; i < len(args); i++ {
		arg := args[i]
		if arg == "-h" || arg == "--help" {
			return processArgsStatusSuccessUsage, nil
		} else if arg == "-v" || arg == "--version" {
			printVersion(stdout)
			return processArgsStatusSuccess, nil
		} else if arg == "-s" || arg == "--stdin" {
			opts.stdin = true
		} else if arg == "-d" || arg == "--dap" {
			opts.dap = true
		} else if arg == "-t" || arg == "--tests" {
			opts.tests = true
		} else if arg == "--describe" {
			opts.describe = true
		} else if arg == "--" {
			// All subsequent args are not options.
			i++
			for ; i < len(args); i++ {
				remainingArgs = append(remainingArgs, args[i])
			}
			break
		} else if arg == "-c" || arg == "--config" {
			file, err := nextArg(&i, args)
			if err != nil {
				return processArgsStatusFailure, err
			}
			if len(file) == 0 {
				return processArgsStatusFailure, fmt.Errorf("-c argument was empty string")
			}
			opts.configFile = file
		} else if arg == "-p" || arg == "--port" {
			port, err := nextArg(&i, args)
			if err != nil {
				return processArgsStatusFailure, err
			}
			if len(port) == 0 {
				return processArgsStatusFailure, fmt.Errorf("no port specified")
			}
			opts.port = port
		} else if arg == "-l" || arg == "--log-level" {
			level, err := nextArg(&i, args)
			if err != nil {
				return processArgsStatusFailure, err
			}
			if _, err := config.ParseLevel(level); err != nil {
				return processArgsStatusFailure, err
			}
			opts.logLevel = level
		} else if len(arg) > 1 && arg[0] == '-' {
			return processArgsStatusFailure, fmt.Errorf("unrecognized argument: %s", arg)
		} else {
			remainingArgs = append(remainingArgs, arg)
		}
	}

	if opts.dap || opts.describe {
		return processArgsStatusContinue, nil
	}

	if len(remainingArgs) == 0 {
		return processArgsStatusFailureUsage, fmt.Errorf("must give filename")
	}
	if len(remainingArgs) != 1 {
		return processArgsStatusFailureUsage, fmt.Errorf("expected a single input file, got %d", len(remainingArgs))
	}

	opts.inputFile = remainingArgs[0]
	return processArgsStatusContinue, nil
}

// loadConfig applies the config file, if any, and then the commandline
// overrides.
func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		var err error
		cfg, err = config.Load(opts.configFile)
		if err != nil {
			return cfg, err
		}
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, cfg.Validate()
}

func listTests(o io.Writer, file string, attrs []string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	src := string(raw)
	for name, offset := range scan.Tests(src, attrs...) {
		fmt.Fprintf(o, "%s:%d\t%s\n", file, scan.Line(src, offset), name)
	}
	return nil
}

func describe(ctx context.Context, o io.Writer, cfg config.Config) error {
	entry := cfg.Entry
	if entry == "" {
		self, err := os.Executable()
		if err != nil {
			return err
		}
		entry = self
	}
	p := &launcher.Provisioner{
		Candidates: cfg.Runtimes,
		Entry:      entry,
		Args:       cfg.Args,
		Env:        cfg.Env,
	}
	d, err := p.Prepare(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(o)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// notifyContext cancels on SIGINT, except for stdio sessions: a blocked read
// on the terminal cannot be interrupted, so those keep the default handler
// and exit right away.
func notifyContext(opts options) (context.Context, context.CancelFunc) {
	if opts.dap && opts.stdin {
		return context.WithCancel(context.Background())
	}
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func run(ctx context.Context, opts options, cfg config.Config, logger *slog.Logger) error {
	switch {
	case opts.describe:
		return describe(ctx, os.Stdout, cfg)
	case opts.dap && opts.stdin:
		return server.ServeStdio(ctx, os.Stdin, os.Stdout, logger)
	case opts.dap:
		return server.Serve(ctx, ":"+cfg.Port, logger)
	case opts.tests:
		return listTests(os.Stdout, opts.inputFile, cfg.TestAttributes)
	}

	program, err := config.ResolveLaunch(opts.inputFile, cfg.Extensions)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(program)
	if err != nil {
		return err
	}
	repl := MakeReplDebugger(program, string(raw), cfg, logger)
	repl.Run()
	return nil
}

func main() {
	opts := options{}
	status, err := processArgs(os.Args[1:], &opts, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: "+err.Error())
	}
	switch status {
	case processArgsStatusContinue:
		break
	case processArgsStatusSuccessUsage:
		usage(os.Stdout)
		os.Exit(0)
	case processArgsStatusFailureUsage:
		if err != nil {
			fmt.Fprintln(os.Stderr, "")
		}
		usage(os.Stderr)
		os.Exit(1)
	case processArgsStatusSuccess:
		os.Exit(0)
	case processArgsStatusFailure:
		os.Exit(1)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: "+err.Error())
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := notifyContext(opts)
	defer stop()

	if err := run(ctx, opts, cfg, logger); err != nil {
		slog.Error("ink-trace-debugger terminated", "err", err)
		stop()
		os.Exit(1)
	}
}
