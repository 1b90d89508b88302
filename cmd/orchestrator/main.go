// Copyright 2025 James Ross
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/holocron/orchestrator/internal/admin"
	"github.com/holocron/orchestrator/internal/config"
	"github.com/holocron/orchestrator/internal/connector"
	"github.com/holocron/orchestrator/internal/dispatch"
	"github.com/holocron/orchestrator/internal/events"
	"github.com/holocron/orchestrator/internal/ingest"
	"github.com/holocron/orchestrator/internal/lake"
	"github.com/holocron/orchestrator/internal/obs"
	"github.com/holocron/orchestrator/internal/registry"
	"github.com/holocron/orchestrator/internal/scheduler"
	"github.com/holocron/orchestrator/internal/store"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "enqueue":
			os.Exit(runEnqueue(os.Args[2:]))
		case "inspect":
			os.Exit(runInspect(os.Args[2:]))
		case "admin":
			os.Exit(runAdminCmd(os.Args[2:]))
		case "version", "-version", "--version":
			fmt.Println(version)
			return
		}
	}
	runWorker(os.Args[1:])
}

// ---- shared setup ----

func loadBackend(ctx context.Context, cfg *config.Config) (store.AdminBackend, error) {
	switch cfg.State.Driver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.State.DSN, cfg.State.MigrationsDir)
	default:
		return store.NewSQLiteStore(ctx, cfg.State.DSN, cfg.State.MigrationsDir)
	}
}

func loadLake(cfg *config.Config) lake.Backend {
	// Only the local backend is wired here; S3 requires a live AWS
	// session the CLI has no business constructing for a one-shot command.
	return lake.NewLocalBackend(cfg.Storage.Root, cfg.Storage.Compress)
}

func fatalf(format string, args ...interface{}) int {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return 1
}

// ---- worker role (ingest/dispatch/scheduler loops) ----

func runWorker(args []string) {
	var role string
	var configPath string
	var dryRun bool
	var showVersion bool
	fs := flag.NewFlagSet("orchestrator", flag.ExitOnError)
	fs.StringVar(&role, "role", "all", "Role to run: ingest|dispatch|scheduler|all")
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.BoolVar(&dryRun, "dry-run", false, "Run the dispatcher in dry-run execution mode")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(args)

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := loadBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open state backend", obs.Err(err))
	}
	defer backend.Close()

	readyCheck := func(c context.Context) error {
		_, err := backend.WorkItemStats(c)
		return err
	}
	httpSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()
	metricsSrv := obs.StartMetricsServer(cfg)
	defer func() { _ = metricsSrv.Shutdown(context.Background()) }()

	obs.StartQueueDepthUpdater(ctx, backend, 15*time.Second, logger)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	lakeBack := loadLake(cfg)
	connectors := buildConnectors(cfg)
	var publisher events.Publisher = events.NopPublisher{}

	statsMirror, err := store.NewStatsMirror(cfg.State.StatsMirror.Clickhouse, logger, cfg.State.StatsMirror.BufferSize)
	if err != nil {
		logger.Warn("stats mirror init failed, snapshots disabled", obs.Err(err))
	}
	if statsMirror != nil {
		defer statsMirror.Close()
	}

	runIngest := func() {
		ingestCfg := ingest.DefaultConfig("ingest:" + uuid.NewString())
		ingestCfg.BatchSize = cfg.Runner.BatchSize
		ingestCfg.LeaseSeconds = cfg.Runner.LeaseSeconds
		ingestCfg.RequestsPerSecond = cfg.Runner.RequestsPerSecond
		runner := ingest.New(ingestCfg, backend, lakeBack, connectors, nil, logger)
		pollLoop(ctx, time.Duration(ingestCfg.PollSeconds)*time.Second, logger, "ingest", func(ctx context.Context) (int, error) {
			return runner.RunBatch(ctx)
		})
	}
	runDispatch := func() {
		dispatchCfg := dispatch.DefaultConfig("dispatch:"+uuid.NewString(), dryRun)
		dispatchCfg.LeaseSeconds = cfg.Runner.LeaseSeconds
		d := dispatch.New(dispatchCfg, backend, lakeBack, registry.Default(), publisher, logger)
		pollLoop(ctx, time.Duration(dispatchCfg.PollSeconds)*time.Second, logger, "dispatch", func(ctx context.Context) (int, error) {
			claimed, err := d.DispatchOnce(ctx)
			if !claimed {
				return 0, err
			}
			return 1, err
		})
	}
	runScheduler := func() {
		sched := scheduler.New(scheduler.DefaultConfig(), backend, statsMirror, logger)
		if err := sched.Start(ctx); err != nil {
			logger.Error("scheduler error", obs.Err(err))
			cancel()
		}
		<-ctx.Done()
		sched.Stop()
	}

	registry.Default().Start()

	switch role {
	case "ingest":
		runIngest()
	case "dispatch":
		runDispatch()
	case "scheduler":
		runScheduler()
	case "all":
		go runIngest()
		go runScheduler()
		runDispatch()
	default:
		logger.Fatal("unknown role", obs.String("role", role))
	}
}

// pollLoop calls work repeatedly until ctx is done, sleeping interval
// between empty polls so an idle worker doesn't spin.
func pollLoop(ctx context.Context, interval time.Duration, log *zap.Logger, name string, work func(context.Context) (int, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := work(ctx)
		if err != nil {
			log.Error(name+" loop error", obs.Err(err))
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}
}

// buildConnectors wires a fixture-backed TestConnector per configured
// source; a real upstream connector is out of scope for this repo.
func buildConnectors(cfg *config.Config) map[string]connector.Connector {
	out := make(map[string]connector.Connector, len(cfg.Sources))
	for _, src := range cfg.Sources {
		out[src.Name] = connector.NewTestConnector(src.Name)
	}
	return out
}

// ---- enqueue subcommand ----

func runEnqueue(args []string) int {
	var configPath, entityType, entityID, evidence, evidenceFile, interrogation, model string
	var priority, maxAttempts int
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&entityType, "entity-type", "", "Entity type the job derives facts about")
	fs.StringVar(&entityID, "entity-id", "", "Entity identifier")
	fs.StringVar(&evidence, "evidence", "", "Inline evidence JSON")
	fs.StringVar(&evidenceFile, "evidence-file", "", "Path to a file containing evidence JSON")
	fs.StringVar(&interrogation, "interrogation", "", "Interrogation key naming the prompt/schema contract")
	fs.StringVar(&model, "model", "", "Model hint to record on the job")
	fs.IntVar(&priority, "priority", 100, "Job priority (higher claims first)")
	fs.IntVar(&maxAttempts, "max-attempts", 3, "Maximum delivery attempts before the job goes dead")
	_ = fs.Parse(args)

	if entityType == "" || entityID == "" || interrogation == "" {
		return fatalf("enqueue requires --entity-type, --entity-id, and --interrogation")
	}

	evidenceJSON := evidence
	if evidenceFile != "" {
		b, err := os.ReadFile(evidenceFile)
		if err != nil {
			return fatalf("failed to read --evidence-file: %v", err)
		}
		evidenceJSON = string(b)
	}

	input := map[string]interface{}{
		"entity_type": entityType,
		"entity_id":   entityID,
	}
	if evidenceJSON != "" {
		var parsed interface{}
		if err := json.Unmarshal([]byte(evidenceJSON), &parsed); err != nil {
			return fatalf("--evidence is not valid JSON: %v", err)
		}
		input["evidence"] = parsed
	}
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return fatalf("failed to encode job input: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()
	backend, err := loadBackend(ctx, cfg)
	if err != nil {
		return fatalf("failed to open state backend: %v", err)
	}
	defer backend.Close()

	job := &store.Job{
		JobID:            uuid.NewString(),
		InterrogationKey: interrogation,
		InputJSON:        string(inputJSON),
		Status:           store.JobQueued,
		Priority:         priority,
		MaxAttempts:      maxAttempts,
		ModelHint:        model,
		DedupeKey:        interrogation + ":" + entityType + ":" + entityID,
	}
	res, err := backend.EnqueueJob(ctx, job)
	if err != nil {
		return fatalf("enqueue failed: %v", err)
	}
	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
	return 0
}

// ---- inspect subcommand ----

func runInspect(args []string) int {
	var configPath, status, jobID, search string
	var list, showStats, trend bool
	var limit int
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.BoolVar(&list, "list", false, "List recent jobs")
	fs.IntVar(&limit, "limit", 20, "Max rows for --list")
	fs.StringVar(&status, "status", "", "Filter --list to one job status")
	fs.StringVar(&jobID, "job-id", "", "Show one job's runs and artifacts")
	fs.BoolVar(&showStats, "stats", false, "Print row counts by status for both tables")
	fs.StringVar(&search, "search", "", "Fuzzy-search jobs by interrogation_key")
	fs.BoolVar(&trend, "trend", false, "Render a queue-depth sparkline for the jobs table")
	_ = fs.Parse(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()
	backend, err := loadBackend(ctx, cfg)
	if err != nil {
		return fatalf("failed to open state backend: %v", err)
	}
	defer backend.Close()

	switch {
	case showStats:
		res, err := admin.Stats(ctx, backend)
		if err != nil {
			return fatalf("stats failed: %v", err)
		}
		printJSON(res)
	case jobID != "":
		detail, err := admin.InspectJob(ctx, backend, jobID)
		if err != nil {
			return fatalf("inspect failed: %v", err)
		}
		printJSON(detail)
	case search != "":
		results, err := admin.SearchJobs(ctx, backend, search, 500)
		if err != nil {
			return fatalf("search failed: %v", err)
		}
		printJSON(results)
	case trend:
		stats, err := admin.Stats(ctx, backend)
		if err != nil {
			return fatalf("trend failed: %v", err)
		}
		var samples []float64
		for _, n := range stats.Jobs.ByStatus {
			samples = append(samples, float64(n))
		}
		fmt.Println(admin.QueueDepthTrend("jobs by status", samples))
	case list:
		resolved, err := admin.ResolveJobStatus(status)
		if err != nil {
			return fatalf("%v", err)
		}
		jobs, err := admin.ListJobs(ctx, backend, resolved, limit)
		if err != nil {
			return fatalf("list failed: %v", err)
		}
		printJSON(jobs)
	default:
		return fatalf("inspect requires one of --list, --job-id, --stats, --search, --trend")
	}
	return 0
}

// ---- admin subcommand ----

func runAdminCmd(args []string) int {
	var configPath, sourceSystem, sourceName, reason string
	var yes bool
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&sourceSystem, "source-system", "", "Source system for mark-source-failed")
	fs.StringVar(&sourceName, "source-name", "", "Source name for mark-source-failed")
	fs.StringVar(&reason, "reason", "", "Reason recorded on failed work items")
	fs.BoolVar(&yes, "yes", false, "Automatic yes to prompts (dangerous operations)")
	if len(args) == 0 {
		return fatalf("admin requires a subcommand: mark-source-failed|reset-completed-to-pending|purge-dlq")
	}
	cmd := args[0]
	_ = fs.Parse(args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		return fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()
	backend, err := loadBackend(ctx, cfg)
	if err != nil {
		return fatalf("failed to open state backend: %v", err)
	}
	defer backend.Close()

	switch cmd {
	case "mark-source-failed":
		n, err := admin.MarkSourceFailed(ctx, backend, sourceSystem, sourceName, reason)
		if err != nil {
			return fatalf("mark-source-failed failed: %v", err)
		}
		printJSON(map[string]int64{"updated": n})
	case "reset-completed-to-pending":
		if !yes {
			return fatalf("refusing to reset without --yes")
		}
		n, err := admin.ResetCompletedToPending(ctx, backend)
		if err != nil {
			return fatalf("reset-completed-to-pending failed: %v", err)
		}
		printJSON(map[string]int64{"updated": n})
	case "purge-dlq":
		if !yes {
			return fatalf("refusing to purge without --yes")
		}
		n, err := admin.PurgeDeadJobs(ctx, backend)
		if err != nil {
			return fatalf("purge-dlq failed: %v", err)
		}
		printJSON(map[string]int64{"purged": n})
	default:
		return fatalf("unknown admin subcommand %q", cmd)
	}
	return 0
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
