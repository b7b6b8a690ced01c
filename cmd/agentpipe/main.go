// agentpipe drives a task through the agent pipeline: plan, implement,
// review, test, fix, judge.
//
//	agentpipe run --task "add a rate limiter" [--config config.yaml] [--auto]
//	agentpipe queue --tasks tasks.txt [--stop-on-failure]
//	agentpipe sessions [--project .]
//	agentpipe version
//
// The model backend is linked in by the embedding build: assign NewBackend
// before main runs (an init function in a separate file is the usual spot).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentpipe/config"
	"github.com/BaSui01/agentpipe/internal/metrics"
	"github.com/BaSui01/agentpipe/llm"
	"github.com/BaSui01/agentpipe/llm/cache"
	contextopt "github.com/BaSui01/agentpipe/llm/context"
	"github.com/BaSui01/agentpipe/llm/pool"
	"github.com/BaSui01/agentpipe/llm/retry"
	"github.com/BaSui01/agentpipe/session"
	"github.com/BaSui01/agentpipe/types"
	"github.com/BaSui01/agentpipe/workflow"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// NewBackend builds the raw model backend from configuration. The default
// refuses to run; an embedding build assigns a real constructor here.
var NewBackend = func(cfg *config.Config, logger *zap.Logger) (llm.AgentBackend, error) {
	return nil, types.NewError(types.ErrConfigInvalid,
		"no model backend linked into this build; assign cmd/agentpipe.NewBackend")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runRun(os.Args[2:]))
	case "queue":
		os.Exit(runQueue(os.Args[2:]))
	case "sessions":
		os.Exit(runSessions(os.Args[2:]))
	case "version":
		fmt.Printf("agentpipe %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: agentpipe <command> [flags]

Commands:
  run       drive a single task through the pipeline
  queue     run a file of tasks sequentially
  sessions  list stored sessions for a project
  version   print version information
`)
}

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	task := fs.String("task", "", "task description (required)")
	auto := fs.Bool("auto", false, "skip approval prompts")
	sessionID := fs.String("session", "", "resume from this session id")
	fs.Parse(args)

	if *task == "" && *sessionID == "" {
		fmt.Fprintln(os.Stderr, "run: --task or --session is required")
		return 1
	}

	app, err := buildApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := app.runOptions()
	opts.Task = *task
	opts.SessionID = *sessionID
	if *auto {
		opts.Auto = true
	}

	final, err := app.runner.RunWorkflow(ctx, opts)
	if err != nil {
		app.logger.Error("run failed", zap.Error(err))
		return 1
	}
	fmt.Printf("final state: %s (iterations: %d, transitions: %d)\n",
		final.State, final.Iteration, len(final.History))
	if final.State != workflow.StateQAApproved {
		return 1
	}
	return 0
}

func runQueue(args []string) int {
	fs := flag.NewFlagSet("queue", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	tasksPath := fs.String("tasks", "", "file with one task per line (required)")
	auto := fs.Bool("auto", true, "skip approval prompts")
	stopOnFailure := fs.Bool("stop-on-failure", false, "skip remaining tasks after a failure")
	fs.Parse(args)

	if *tasksPath == "" {
		fmt.Fprintln(os.Stderr, "queue: --tasks is required")
		return 1
	}
	tasks, err := readTasks(*tasksPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read tasks: %v\n", err)
		return 1
	}

	app, err := buildApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := workflow.QueueOptions{
		RunOptions:    app.runOptions(),
		StopOnFailure: *stopOnFailure || app.cfg.Workflow.StopOnFailure,
	}
	opts.Auto = *auto

	results := app.runner.RunTaskQueue(ctx, tasks, opts)

	failed := 0
	for _, res := range results {
		fmt.Printf("%-10s %-12s %s\n", res.Status, res.Duration.Round(10*time.Millisecond), res.Task)
		if res.Status != workflow.TaskCompleted {
			failed++
		}
	}
	if failed > 0 {
		fmt.Printf("%d of %d tasks did not complete\n", failed, len(results))
		return 1
	}
	return 0
}

func runSessions(args []string) int {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	project := fs.String("project", ".", "project root")
	fs.Parse(args)

	store := session.NewFileStore(zap.NewNop())
	ids, err := store.List(context.Background(), *project)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list sessions: %v\n", err)
		return 1
	}
	if len(ids) == 0 {
		fmt.Println("no sessions")
		return 0
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return 0
}

func readTasks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tasks []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			tasks = append(tasks, line)
		}
	}
	return tasks, scanner.Err()
}

// app holds the assembled object graph for one invocation.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	runner    *workflow.Runner
	connPool  *pool.Pool
	metricsrv *http.Server
}

func buildApp(configPath string) (*app, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	logger := initLogger(cfg.Log)

	backend, err := NewBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	var collector *metrics.Collector
	var metricsrv *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		collector = metrics.NewCollector(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	var tokenizer contextopt.Tokenizer = contextopt.NewEstimateTokenizer()
	if cfg.Context.TokenizerModel != "" {
		tokenizer = contextopt.NewTiktokenTokenizer(cfg.Context.TokenizerModel)
	}
	optimizer := contextopt.NewOptimizer(contextopt.OptimizerConfig{
		MaxTokens:          cfg.Context.MaxTokens,
		MinRecentTokens:    cfg.Context.MinRecentTokens,
		KeepSystemMessages: cfg.Context.KeepSystemMessages,
	}, tokenizer, logger)

	connPool := pool.New(pool.Config{
		MaxConnections: cfg.Pool.MaxConnections,
		IdleTimeout:    cfg.Pool.IdleTimeout,
		MaxLifetime:    cfg.Pool.MaxLifetime,
	}, logger)

	var rdb *redis.Client
	if cfg.Cache.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
	}
	responseCache := cache.NewTiered[*llm.InvokeResponse](cache.Config{
		MaxSize: cfg.Cache.MaxSize,
		TTL:     cfg.Cache.TTL,
	}, rdb, logger)

	retryer := retry.NewBackoffRetryer(&retry.Policy{
		MaxAttempts: cfg.Backend.MaxRetries,
		Delay:       cfg.Backend.RetryDelay,
		Backoff:     true,
		Jitter:      true,
	}, logger)

	usage := session.NewUsageTracker()

	resilient := llm.NewResilientBackend(backend, llm.ResilientConfig{
		RequestTimeout: cfg.Backend.RequestTimeout,
		RateLimit:      cfg.Backend.RateLimit,
		RateBurst:      cfg.Backend.RateBurst,
		CacheEnabled:   cfg.Cache.Enabled,
	}, logger,
		llm.WithCache(responseCache),
		llm.WithPool(connPool),
		llm.WithOptimizer(optimizer),
		llm.WithRetryer(retryer),
		llm.WithUsageRecorder(usage),
		llm.WithCollector(collector),
	)

	runnerOpts := []workflow.RunnerOption{
		workflow.WithLogger(logger),
		workflow.WithUsageTracker(usage),
		workflow.WithCollector(collector),
		workflow.WithApproval(consoleApproval),
	}
	if cfg.Workflow.TestCommand != "" {
		runnerOpts = append(runnerOpts, workflow.WithTestRunner(workflow.CommandTestRunner{
			Command: cfg.Workflow.TestCommand,
			Args:    cfg.Workflow.TestArgs,
			Timeout: cfg.Workflow.TestTimeout,
		}))
	}
	runner := workflow.NewRunner(resilient, session.NewFileStore(logger), runnerOpts...)

	return &app{
		cfg:       cfg,
		logger:    logger,
		runner:    runner,
		connPool:  connPool,
		metricsrv: metricsrv,
	}, nil
}

func (a *app) runOptions() workflow.RunOptions {
	return workflow.RunOptions{
		ProjectRoot:   a.cfg.Workflow.ProjectRoot,
		Auto:          a.cfg.Workflow.Auto,
		MaxIterations: a.cfg.Workflow.MaxIterations,
		ContextPaths:  a.cfg.Workflow.ContextPaths,
		Streaming:     a.cfg.Workflow.Streaming,
		OnChunk:       func(chunk string) { fmt.Print(chunk) },
	}
}

func (a *app) close() {
	a.connPool.Close()
	if a.metricsrv != nil {
		a.metricsrv.Close()
	}
	a.logger.Sync()
}

// consoleApproval asks on stdin after each step.
func consoleApproval(_ context.Context, wctx workflow.Context) (workflow.Decision, error) {
	fmt.Printf("\nstate: %s (iteration %d). [a]pprove / [r]etry / a[b]ort? ", wctx.State, wctx.Iteration)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return workflow.DecisionAbort, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "r", "retry":
		return workflow.DecisionRetry, nil
	case "b", "abort":
		return workflow.DecisionAbort, nil
	default:
		return workflow.DecisionApprove, nil
	}
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
