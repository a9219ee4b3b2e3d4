// Command poolrun runs the shell commands in a file on a bounded worker
// pool and records each one as a job in SQLite. Commands that completed in
// an earlier run against the same database are skipped.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Swind/go-executor/config"
	"github.com/Swind/go-executor/core"
	"github.com/Swind/go-executor/jobs"
	obs "github.com/Swind/go-executor/observability/prometheus"
)

const description = `Run shell commands concurrently on a bounded worker pool`

type options struct {
	infile      string
	configPath  string
	lines       int
	core        int
	max         int
	queue       int
	db          string
	metricsAddr string
	verbose     bool
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	parser := argparse.NewParser("poolrun", description)
	optI := parser.String("i", "infile", &argparse.Options{Required: true, Help: "Input shell command file (one command per line or grouped by -l)"})
	optC := parser.String("c", "config", &argparse.Options{Help: "Executor config file (.yaml, .yml or .json)"})
	optL := parser.Int("l", "line", &argparse.Options{Default: 1, Help: "Number of lines to group as one job"})
	optP := parser.Int("p", "core", &argparse.Options{Default: 0, Help: "Core pool size (default: from config, else 1)"})
	optM := parser.Int("m", "max", &argparse.Options{Default: 0, Help: "Maximum pool size (default: from config, else core size)"})
	optQ := parser.Int("q", "queue", &argparse.Options{Default: -1, Help: "Queue capacity, 0 for unbounded (default: from config, else unbounded)"})
	optDB := parser.String("", "db", &argparse.Options{Help: "Job database (default: <infile>.db)"})
	optMetrics := parser.String("", "metrics-addr", &argparse.Options{Help: "Serve Prometheus metrics on this address"})
	optV := parser.Flag("v", "verbose", &argparse.Options{Help: "Debug logging"})

	if err := parser.Parse(args); err != nil {
		fmt.Fprint(stderr, parser.Usage(err))
		return 2
	}

	opts := options{
		infile:      *optI,
		configPath:  *optC,
		lines:       *optL,
		core:        *optP,
		max:         *optM,
		queue:       *optQ,
		db:          *optDB,
		metricsAddr: *optMetrics,
		verbose:     *optV,
	}
	if err := execute(opts, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "poolrun: %v\n", err)
		if errors.Is(err, errJobsFailed) {
			return 1
		}
		return 2
	}
	return 0
}

var errJobsFailed = errors.New("some jobs did not complete")

func execute(opts options, stdout, stderr io.Writer) error {
	level := core.LevelInfo
	if opts.verbose {
		level = core.LevelDebug
	}
	logger := core.NewLeveledLogger(stderr, level)

	fileCfg := &config.FileConfig{}
	if opts.configPath != "" {
		var err error
		if fileCfg, err = config.LoadFile(opts.configPath); err != nil {
			return err
		}
		if err := fileCfg.Validate(); err != nil {
			return err
		}
	}
	cfg, err := executorConfig(fileCfg, opts)
	if err != nil {
		return err
	}
	cfg.Logger = logger

	dbPath := opts.db
	if dbPath == "" {
		dbPath = fileCfg.Jobs.Database
	}
	if dbPath == "" {
		abs, err := filepath.Abs(opts.infile)
		if err != nil {
			return err
		}
		dbPath = abs + ".db"
	}

	groups, err := readCommands(opts.infile, opts.lines)
	if err != nil {
		return err
	}

	store, err := jobs.OpenSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var poller *obs.SnapshotPoller
	metricsAddr := opts.metricsAddr
	if metricsAddr == "" {
		metricsAddr = fileCfg.Metrics.Addr
	}
	if metricsAddr != "" {
		reg := prom.NewRegistry()
		exporter, err := obs.NewMetricsExporter("poolrun", reg, obs.ExporterOptions{})
		if err != nil {
			return err
		}
		cfg.Metrics = exporter
		interval, err := fileCfg.PollInterval(time.Second)
		if err != nil {
			return err
		}
		if poller, err = obs.NewSnapshotPoller(reg, interval); err != nil {
			return err
		}
		stop := serveMetrics(metricsAddr, reg, logger)
		defer stop()
	}

	pool, err := core.NewThreadPoolExecutorWithConfig(cfg)
	if err != nil {
		return err
	}
	retry, err := fileCfg.RetryPolicy()
	if err != nil {
		return err
	}
	runner := jobs.NewRunner(pool, store, jobs.WithLogger(logger), jobs.WithRetryPolicy(retry))
	if err := jobs.RegisterCommandHandler(runner); err != nil {
		return err
	}
	if poller != nil {
		poller.AddPool(pool.Name(), pool)
		poller.AddJobRunner("poolrun", runner)
		poller.Start(context.Background())
		defer poller.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("interrupted, stopping jobs")
			runner.CancelDrained(pool.ShutdownNow())
		case <-finished:
		}
	}()

	ctx := context.Background()
	submitted, skipped := 0, 0
	for _, g := range groups {
		ok, err := submitCommand(ctx, runner, store, g)
		if err != nil {
			logger.Warn("job not scheduled", core.F("job", g.id), core.F("error", err))
			continue
		}
		if ok {
			submitted++
		} else {
			skipped++
		}
	}
	logger.Info("jobs scheduled", core.F("submitted", submitted), core.F("skipped", skipped), core.F("pool", pool.String()))

	pool.Shutdown()
	if err := runner.Wait(ctx); err != nil {
		return err
	}
	if err := pool.AwaitTerminationContext(ctx); err != nil {
		return err
	}

	return summarize(ctx, store, stdout)
}

// executorConfig layers the command-line sizes over the file config.
func executorConfig(fileCfg *config.FileConfig, opts options) (core.Config, error) {
	cfg, err := fileCfg.ToExecutorConfig()
	if err != nil {
		return cfg, err
	}
	if fileCfg.Executor.CorePoolSize == nil && fileCfg.Executor.MaxPoolSize == 0 {
		cfg.CorePoolSize, cfg.MaxPoolSize = 1, 1
	}
	if fileCfg.Executor.Name == "" {
		cfg.Name = "poolrun"
	}
	if opts.core > 0 {
		cfg.CorePoolSize = opts.core
		cfg.MaxPoolSize = max(cfg.MaxPoolSize, opts.core)
	}
	if opts.max > 0 {
		cfg.MaxPoolSize = opts.max
	}
	if opts.queue == 0 {
		cfg.Queue = core.NewUnboundedFIFOQueue()
	} else if opts.queue > 0 {
		cfg.Queue = core.NewFIFOQueue(opts.queue)
	}
	// The job runner records rejected jobs; silent drops would leave them PENDING.
	cfg.RejectedTaskHandler = &core.AbortPolicy{}
	return cfg, cfg.Validate()
}

type commandGroup struct {
	id     string
	script string
}

// readCommands splits the file into jobs of n lines each. Blank lines
// count towards a group but a group of only blank lines is dropped.
func readCommands(path string, n int) ([]commandGroup, error) {
	if n <= 0 {
		n = 1
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		groups []commandGroup
		buf    []string
		seq    int
	)
	flush := func() {
		seq++
		script := strings.TrimSpace(strings.Join(buf, "\n"))
		if script != "" {
			groups = append(groups, commandGroup{id: fmt.Sprintf("work_%06d", seq), script: script})
		}
		buf = buf[:0]
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		buf = append(buf, scanner.Text())
		if len(buf) == n {
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(buf) > 0 {
		flush()
	}
	return groups, nil
}

// submitCommand schedules g unless the store already has it COMPLETED.
// An earlier unfinished record is replaced.
func submitCommand(ctx context.Context, runner *jobs.Runner, store jobs.Store, g commandGroup) (bool, error) {
	existing, err := store.GetJob(ctx, g.id)
	switch {
	case err == nil && existing.Status == jobs.JobStatusCompleted:
		return false, nil
	case err == nil:
		if err := store.DeleteJob(ctx, g.id); err != nil {
			return false, err
		}
	case !errors.Is(err, jobs.ErrJobNotFound):
		return false, err
	}
	return true, runner.SubmitCommand(ctx, g.id, jobs.CommandSpec{Shell: "sh", Script: g.script})
}

func summarize(ctx context.Context, store jobs.Store, w io.Writer) error {
	all, err := store.ListJobs(ctx, jobs.JobFilter{})
	if err != nil {
		return err
	}

	var failed []*jobs.JobEntity
	for _, j := range all {
		if j.Status != jobs.JobStatusCompleted {
			failed = append(failed, j)
		}
	}

	fmt.Fprintf(w, "All jobs: %d\nSucceeded: %d\nFailed: %d\n", len(all), len(all)-len(failed), len(failed))
	if len(failed) == 0 {
		return nil
	}
	fmt.Fprintln(w, "Failed jobs:")
	for _, j := range failed {
		fmt.Fprintf(w, "%s\t%s\texit=%d\n", j.ID, j.Status, j.ExitCode)
	}
	return errJobsFailed
}

func serveMetrics(addr string, reg *prom.Registry, logger core.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", core.F("addr", addr), core.F("error", err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
