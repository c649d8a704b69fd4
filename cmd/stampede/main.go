package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mbaxter/stampede/internal/behavior"
	"github.com/mbaxter/stampede/internal/config"
	"github.com/mbaxter/stampede/internal/httpclient"
	"github.com/mbaxter/stampede/internal/metrics"
	"github.com/mbaxter/stampede/internal/orchestrator"
	"github.com/mbaxter/stampede/internal/output"
	"github.com/mbaxter/stampede/internal/runner"
	"github.com/mbaxter/stampede/internal/threshold"
	"github.com/mbaxter/stampede/internal/tracing"
	"github.com/mbaxter/stampede/internal/workload"
)

const (
	progressInterval = time.Second
	baseRetryDelay   = 100 * time.Millisecond
	maxRetryDelay    = 5 * time.Second
)

type stderrFailureLogger struct {
	mu sync.Mutex
}

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	profiles, err := resolveProfiles(cfg.Profiles)
	if err != nil {
		return err
	}

	executor, err := httpclient.NewExecutor(httpclient.Target{
		BaseURL:        cfg.Host,
		DefaultTimeout: cfg.Timeout,
		DefaultHeaders: cfg.Headers,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracer, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Protocol:    cfg.Tracing.Protocol,
		Insecure:    cfg.Tracing.Insecure,
		SampleRate:  cfg.Tracing.SampleRate,
		ServiceName: cfg.Tracing.ServiceName,
		Propagate:   cfg.Tracing.Propagate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()
	if tracer.Active() {
		executor.WithTracer(tracer.Tracer())
	}

	var wrapped runner.Executor = executor
	if cfg.Retries > 0 {
		wrapped = runner.WithRetry(wrapped, newRetryPolicy(cfg.Retries, cfg.RetryDelay))
	}

	var logger runner.FailureLogger
	if cfg.LogErrors {
		logger = &stderrFailureLogger{}
	}

	aggregator := metrics.NewAggregator()

	orch, err := orchestrator.New(orchestrator.Options{
		TargetHost:  cfg.Host,
		Executor:    wrapped,
		Aggregator:  aggregator,
		TagFilter:   cfg.Tags,
		StopMode:    runner.StopMode(cfg.StopMode),
		GracePeriod: cfg.GracePeriod,
		Duration:    cfg.Duration,
		MaxIters:    cfg.Iterations,
		Seed:        cfg.Seed,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if !cfg.JSONOutput {
		orch.AddListener(orchestrator.ListenerFuncs{
			OnTestStart: func(host string, at time.Time) {
				fmt.Fprintf(os.Stdout, "Load test starting against %s\n", host)
			},
			OnTestStop: func(final metrics.Snapshot) {
				fmt.Fprintln(os.Stdout, "\nLoad test completed")
			},
		})
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput {
		progress = output.NewProgressReporter(aggregator, orch.State().CurrentUserCount, progressInterval, os.Stdout)
		progress.Start()
	}

	rampErr := orch.Start(ctx, poolSpecs(cfg, profiles))
	if rampErr != nil {
		var partial *runner.PartialRampError
		if !errors.As(rampErr, &partial) {
			if progress != nil {
				progress.Stop()
			}
			return rampErr
		}
		// Users already running keep running on a partial ramp.
		fmt.Fprintf(os.Stderr, "[stampede] %v\n", rampErr)
	}

	select {
	case <-ctx.Done():
	case <-orch.Done():
	}
	snap := orch.Stop()

	if progress != nil {
		progress.Stop()
		fmt.Fprintln(os.Stdout)
	}

	if forced := orch.ForceTerminated(); forced > 0 {
		fmt.Fprintf(os.Stderr, "[stampede] %d users force-terminated after grace period\n", forced)
	}

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(os.Stdout, snap); err != nil {
			return err
		}
	} else {
		output.PrintReport(os.Stdout, snap)
	}

	if len(thresholds) > 0 {
		results := threshold.NewEvaluator(thresholds).Evaluate(snap)
		failed := 0
		fmt.Fprintln(os.Stdout, "\nThresholds:")
		for _, result := range results {
			fmt.Fprintf(os.Stdout, "  %s\n", result.Message)
			if !result.Pass {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d thresholds failed", failed, len(results))
		}
	}

	return nil
}

// resolveProfiles maps each configured name to a builtin profile or a YAML
// profile file. An empty list defaults to the chat profile.
func resolveProfiles(names []string) ([]behavior.Profile, error) {
	if len(names) == 0 {
		return []behavior.Profile{workload.Chat()}, nil
	}
	profiles := make([]behavior.Profile, 0, len(names))
	for _, name := range names {
		if workload.IsBuiltin(name) {
			p, err := workload.Builtin(name)
			if err != nil {
				return nil, err
			}
			profiles = append(profiles, p)
			continue
		}
		p, err := config.LoadProfileFile(name)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// poolSpecs splits the target population and spawn rate across profiles.
// Earlier profiles absorb the remainder when the division is uneven.
func poolSpecs(cfg *config.Config, profiles []behavior.Profile) []orchestrator.PoolSpec {
	n := len(profiles)
	specs := make([]orchestrator.PoolSpec, 0, n)
	base := cfg.Users / n
	extra := cfg.Users % n
	for i, p := range profiles {
		users := base
		if i < extra {
			users++
		}
		if users == 0 {
			continue
		}
		specs = append(specs, orchestrator.PoolSpec{
			Profile:   p,
			Users:     users,
			SpawnRate: cfg.SpawnRate * float64(users) / float64(cfg.Users),
		})
	}
	return specs
}

func (l *stderrFailureLogger) LogFailure(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(os.Stderr, "[stampede] request failed: %v\n", err)
}

func newRetryPolicy(retries int, fixedDelay time.Duration) runner.RetryPolicy {
	policy := runner.RetryPolicy{
		MaxAttempts: retries + 1,
	}
	if fixedDelay > 0 {
		policy.Delay = fixedDelay
		return policy
	}

	source := &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
	policy.DelayFunc = func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		backoff := maxRetryDelay
		if shift := uint(attempt - 1); shift < 16 {
			if d := baseRetryDelay << shift; d < maxRetryDelay {
				backoff = d
			}
		}
		return backoff + source.jitter(backoff/2)
	}
	return policy
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}
