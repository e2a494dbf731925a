// Command ragvec builds a vector index over a document folder and answers
// questions from it.
//
// Usage:
//
//	ragvec [-config FILE] [-log-level LEVEL] build
//	ragvec [-config FILE] query [-k N] [-floor F] [QUESTION...]
//	ragvec [-config FILE] serve [-addr ADDR]
//	ragvec [-config FILE] inspect -q TEXT [-k N]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/viant/sqlite-rag/internal/telemetry"
	"github.com/viant/sqlite-rag/vector"
)

// version is reported to the trace collector.
var version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError reports a malformed command line.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ragvec", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file")
	logLevel := fs.String("log-level", "", "log level override (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ragvec [options] <build|query|serve|inspect> [command options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	a, err := newApp(*configPath, *logLevel, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	shutdown, err := telemetry.InitTracer(ctx, "ragvec", version, a.cfg.Tracing(), a.logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			a.logger.Warn("tracer shutdown", "error", err)
		}
	}()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "build":
		err = a.build(ctx, rest)
	case "query":
		err = a.query(ctx, rest)
	case "serve":
		err = a.serve(ctx, rest)
	case "inspect":
		err = a.inspect(ctx, rest)
	default:
		err = usageError{msg: fmt.Sprintf("unknown command %q", cmd)}
	}
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	var usage usageError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.As(err, &usage),
		errors.Is(err, vector.ErrInvalidConfiguration),
		errors.Is(err, vector.ErrInvalidArgument):
		return exitUsage
	default:
		return exitFailure
	}
}
