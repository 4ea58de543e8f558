// Command contractrag indexes service agreements and answers questions
// about them, from the terminal or over HTTP.
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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag"
	"github.com/kailas-cloud/contractrag/internal/config"
	logpkg "github.com/kailas-cloud/contractrag/internal/logger"
	healthuc "github.com/kailas-cloud/contractrag/internal/usecase/health"
	"github.com/kailas-cloud/contractrag/internal/version"
)

const usage = `usage: contractrag [-config path] [-env name] [-v] <command> [flags]

commands:
  index                                 parse, split and store the catalog documents
  ask [-strategy s] [-limit n] <question>  answer a question from the stored pages
  search [-strategy s] [-limit n] <query>  list the best matching pages
  serve                                 run the HTTP API
  health                                probe storage and model backends
  version                               print build information

strategies: bm25 (keyword), vector (semantic), hybrid
`

// errUsage marks command line mistakes; they exit with status 2.
var errUsage = errors.New("usage")

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("contractrag", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "config file (default: config/<env>.yaml)")
	env := fs.String("env", config.GetEnv(), "environment: local, docker, prod")
	verbose := fs.Bool("v", false, "log at the configured level instead of warnings only")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	if cmd == "version" {
		fmt.Fprintln(stdout, "contractrag", version.String())
		return 0
	}

	cfg, err := loadConfig(*configPath, *env)
	if err != nil {
		printError(stderr, err)
		return 1
	}

	logger, err := newLogger(cmd, *env, *verbose, cfg.Logging.Level)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	client, err := contractrag.New(contractrag.WithConfig(cfg), contractrag.WithLogger(logger))
	if err != nil {
		printError(stderr, err)
		return 1
	}

	out := newPrinter(stdout)
	switch cmd {
	case "index":
		err = runIndex(ctx, client, out)
	case "ask":
		err = runAsk(ctx, client, rest, out, stderr)
	case "search":
		err = runSearch(ctx, client, rest, out, stderr)
	case "health":
		err = runHealth(ctx, client, out)
	case "serve":
		err = runServe(ctx, client, cfg, logger)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}

	switch {
	case errors.Is(err, errUsage):
		return 2
	case err != nil:
		printError(stderr, err)
		return 1
	}
	return 0
}

func loadConfig(path, env string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load(env)
}

// newLogger keeps terminal commands quiet unless -v is given; serve logs
// the way the environment says.
func newLogger(cmd, env string, verbose bool, level string) (*zap.Logger, error) {
	if cmd == "serve" {
		return logpkg.NewLogger(env, level)
	}
	if verbose {
		return logpkg.NewLogger("cli", level)
	}
	return logpkg.NewLogger("cli")
}

func runIndex(ctx context.Context, client *contractrag.Client, out *printer) error {
	rep, err := client.Index(ctx)
	if err != nil {
		return err
	}
	out.indexReport(rep)
	return nil
}

// queryFlags parses the flags shared by ask and search and returns the
// remaining words joined as the query.
func queryFlags(name string, args []string, stderr io.Writer) (string, []contractrag.QueryOption, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	strategy := fs.String("strategy", "", "bm25, vector or hybrid (default from config)")
	limit := fs.Int("limit", 0, "number of passages (default from config)")
	if err := fs.Parse(args); err != nil {
		return "", nil, errUsage
	}
	q := joinArgs(fs.Args())
	if q == "" {
		fmt.Fprintf(stderr, "%s: a query is required\n", name)
		return "", nil, errUsage
	}
	return q, []contractrag.QueryOption{contractrag.WithStrategy(*strategy), contractrag.WithLimit(*limit)}, nil
}

func runAsk(ctx context.Context, client *contractrag.Client, args []string, out *printer, stderr io.Writer) error {
	q, opts, err := queryFlags("ask", args, stderr)
	if err != nil {
		return err
	}
	ans, err := client.Ask(ctx, q, opts...)
	if err != nil {
		return err
	}
	out.answer(ans)
	return nil
}

func runSearch(ctx context.Context, client *contractrag.Client, args []string, out *printer, stderr io.Writer) error {
	q, opts, err := queryFlags("search", args, stderr)
	if err != nil {
		return err
	}
	res, err := client.Search(ctx, q, opts...)
	if err != nil {
		return err
	}
	out.results(res)
	return nil
}

func runHealth(ctx context.Context, client *contractrag.Client, out *printer) error {
	rep := client.Health(ctx)
	out.health(rep)
	if rep.Status != healthuc.Healthy {
		return fmt.Errorf("status %s", rep.Status)
	}
	return nil
}
