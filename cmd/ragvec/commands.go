package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/viant/sqlite-rag/config"
	"github.com/viant/sqlite-rag/internal/logging"
	"github.com/viant/sqlite-rag/loader"
	"github.com/viant/sqlite-rag/oracle"
	"github.com/viant/sqlite-rag/pipeline"
	"github.com/viant/sqlite-rag/server"
	"github.com/viant/sqlite-rag/store"
	"github.com/viant/sqlite-rag/vector"
)

const (
	questionPrompt = "What would you like to know? "
	noMatchMessage = "Unable to find matching results."
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// closers release oracle clients after the command.
	closers []io.Closer
}

func newApp(configPath, logLevel string, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, vector.ErrInvalidConfiguration)
	}
	return &app{cfg: cfg, logger: logger, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close oracle client", "error", err)
		}
	}
	a.closers = nil
}

func (a *app) track(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}

func (a *app) embedder(ctx context.Context) (oracle.Embedder, error) {
	e, err := oracle.NewEmbedder(ctx, a.cfg.EmbeddingSettings())
	if err != nil {
		return nil, err
	}
	a.track(e)
	return oracle.NewGuard(a.cfg.Guard("embedding"), a.logger).Embedder(e), nil
}

func (a *app) generator(ctx context.Context) (oracle.Generator, error) {
	g, err := oracle.NewGenerator(ctx, a.cfg.AnswerSettings())
	if err != nil {
		return nil, err
	}
	a.track(g)
	return oracle.NewGuard(a.cfg.Guard("answer"), a.logger).Generator(g), nil
}

// controller wires the pipeline; the answer oracle is only built when
// withAnswer is set.
func (a *app) controller(ctx context.Context, cfg pipeline.Config, withAnswer bool) (*pipeline.Controller, error) {
	emb, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}
	var gen oracle.Generator
	if withAnswer {
		if gen, err = a.generator(ctx); err != nil {
			return nil, err
		}
	}
	src := loader.New(a.cfg.DocsDir, a.cfg.Patterns...)
	src.Logger = a.logger
	return pipeline.New(cfg, src, emb, gen, pipeline.WithLogger(a.logger))
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{msg: err.Error()}
	}
	return nil
}

func (a *app) build(ctx context.Context, args []string) error {
	fs := newFlagSet("build", a.stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	defer a.close()
	ctrl, err := a.controller(ctx, a.cfg.Pipeline(), false)
	if err != nil {
		return err
	}
	stats, err := ctrl.Rebuild(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Saved %d chunks to %s.\n", stats.Chunks, stats.Path)
	return nil
}

func (a *app) query(ctx context.Context, args []string) error {
	cfg := a.cfg.Pipeline()
	fs := newFlagSet("query", a.stderr)
	fs.IntVar(&cfg.TopK, "k", cfg.TopK, "number of chunks to retrieve")
	fs.Float64Var(&cfg.RelevanceFloor, "floor", cfg.RelevanceFloor, "minimum relevance of the best chunk")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	defer a.close()
	ctrl, err := a.controller(ctx, cfg, true)
	if err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return a.answer(ctx, ctrl, strings.Join(fs.Args(), " "))
	}

	scanner := bufio.NewScanner(a.stdin)
	for {
		fmt.Fprint(a.stdout, questionPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(a.stdout)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		err := a.answer(ctx, ctrl, question)
		switch {
		case err == nil:
		case errors.Is(err, vector.ErrOracleUnavailable):
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
		default:
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (a *app) answer(ctx context.Context, ctrl *pipeline.Controller, question string) error {
	ans, err := ctrl.AnswerQuery(ctx, question)
	if err != nil {
		return err
	}
	if ans.NoMatch {
		fmt.Fprintln(a.stdout, noMatchMessage)
		return nil
	}
	fmt.Fprintf(a.stdout, "Response: %s\nSources: %s\n", ans.Text, formatSources(ans.Sources))
	return nil
}

func formatSources(sources []string) string {
	quoted := make([]string, len(sources))
	for i, s := range sources {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func (a *app) serve(ctx context.Context, args []string) error {
	fs := newFlagSet("serve", a.stderr)
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	defer a.close()
	ctrl, err := a.controller(ctx, a.cfg.Pipeline(), true)
	if err != nil {
		return err
	}
	if _, err := ctrl.EnsureIndexBuilt(ctx); err != nil {
		return err
	}
	srv := server.New(server.Config{
		Addr:            *addr,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, ctrl, a.logger)
	return srv.Run(ctx)
}

func (a *app) inspect(ctx context.Context, args []string) error {
	fs := newFlagSet("inspect", a.stderr)
	text := fs.String("q", "", "query text")
	k := fs.Int("k", a.cfg.TopK, "number of chunks to list")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*text) == "" {
		return usageError{msg: "inspect: -q is required"}
	}
	defer a.close()

	meta, err := store.ReadMeta(ctx, a.cfg.IndexPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Index %s: %d chunks, dimension %d, kind %s, model %q, built %s\n",
		a.cfg.IndexPath, meta.Count, meta.Dimension, meta.Kind, meta.Model, meta.CreatedAt.Format("2006-01-02 15:04:05"))

	emb, err := a.embedder(ctx)
	if err != nil {
		return err
	}
	q, err := emb.Embed(ctx, *text)
	if err != nil {
		return err
	}
	results, err := store.ScanPersisted(ctx, a.cfg.IndexPath, q, *k)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(a.stdout, noMatchMessage)
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(a.stdout, "%d. %.4f %s [%s]\n   %s\n", i+1, r.Score, r.Chunk.Source, r.Chunk.ID, preview(r.Chunk.Content, 120))
	}
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
