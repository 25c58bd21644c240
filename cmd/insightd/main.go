// Command insightd is the engine's process entrypoint: it loads the
// YAML configuration, wires the storage layer and every outbound
// adapter, runs the ambient health/metrics HTTP surface, and drives the
// daily batch job on a fixed schedule until the process receives a
// shutdown signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wtthornton/homeiq-insight/internal/config"
	"github.com/wtthornton/homeiq-insight/pkg/askai"
	"github.com/wtthornton/homeiq-insight/pkg/capability"
	"github.com/wtthornton/homeiq-insight/pkg/deploy"
	"github.com/wtthornton/homeiq-insight/pkg/entities"
	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/httpapi"
	"github.com/wtthornton/homeiq-insight/pkg/llm"
	"github.com/wtthornton/homeiq-insight/pkg/metrics"
	"github.com/wtthornton/homeiq-insight/pkg/nlp"
	"github.com/wtthornton/homeiq-insight/pkg/notify"
	"github.com/wtthornton/homeiq-insight/pkg/orchestrator"
	"github.com/wtthornton/homeiq-insight/pkg/patterns"
	"github.com/wtthornton/homeiq-insight/pkg/retrieval"
	"github.com/wtthornton/homeiq-insight/pkg/shared/logging"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
	"github.com/wtthornton/homeiq-insight/pkg/suggestions"
	"github.com/wtthornton/homeiq-insight/pkg/synergy"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the engine's YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.Logging)

	shutdownTracing, err := orchestrator.InitTracing(cfg.Tracing.ServiceName, cfg.Tracing.Enabled, os.Stderr)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RunGuard.RedisAddr})
	defer redisClient.Close()
	runGuard := storage.NewRunGuard(redisClient, cfg.RunGuard.LockTTL.Duration)

	fetcher := events.New(
		events.NewHTTPPrimarySource(cfg.Events.PrimaryURL),
		events.NewHTTPFallbackSource(cfg.Events.FallbackURL),
		events.Config{
			TotalTimeout: cfg.Events.TotalTimeout.Duration,
			MaxRetries:   cfg.Events.MaxRetries,
			BackoffBase:  time.Second,
			RateLimitRPS: cfg.Events.RateLimitRPS,
		},
		log,
	)

	registry := capability.NewHTTPRegistry(cfg.Capability.RegistryURL, log)
	analyzer := capability.New(capability.Config{DeviceMinActivity: cfg.Capability.DeviceMinActivity})

	llmProvider, err := llm.NewClient(llm.Config{
		Provider:     cfg.LLM.Provider,
		Model:        cfg.LLM.Model,
		Endpoint:     cfg.LLM.Endpoint,
		Timeout:      cfg.LLM.Timeout.Duration,
		MaxRetries:   cfg.LLM.RetryCount,
		RateLimitRPS: 5,
	}, log)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	embedder := nlp.NewHTTPEmbeddingAdapter(cfg.NLP.EmbeddingEndpoint, cfg.NLP.EmbeddingDim)
	nerAdapter := nlp.NewHTTPNERAdapter(cfg.NLP.NEREndpoint)

	publisher := newPublisher(cfg.Notify, log)

	// deployer backs suggestions.Approve on suggestion approval. Nothing
	// in this binary's own ambient HTTP surface calls Approve yet, so it is built here and
	// left ready rather than invoked.
	deployer := deploy.NewHTTPAdapter(cfg.Deploy.EndpointURL)
	_ = deployer

	detectors := []patterns.Detector{
		patterns.TimeOfDayDetector{},
		patterns.CoOccurrenceDetector{},
		patterns.AnomalyDetector{},
	}
	patternCfg := patterns.Config{
		MinSupport:           cfg.Patterns.MinSupport,
		ConfidenceFloor:      cfg.Patterns.ConfidenceFloor,
		CoOccurrenceWindow:   cfg.Patterns.CoOccurrenceWindow.Duration,
		OverrideWindow:       cfg.Patterns.OverrideWindow.Duration,
		Contamination:        cfg.Patterns.Contamination,
		EmpiricalBayesWeight: cfg.Patterns.EmpiricalBayesWeight,
	}
	synergyEngine := synergy.New(synergy.Config{
		SynergyFloor:      cfg.Synergy.SynergyFloor,
		EdgeFloor:         cfg.Synergy.EdgeFloor,
		MinSupportChain:   cfg.Synergy.MinSupportChain,
		PValueChiCritical: cfg.Synergy.PValueChiCritical,
		EffectSizeFloor:   cfg.Synergy.EffectSizeFloor,
		SimilarityFloor:   cfg.Synergy.SimilarityFloor,
	})
	describer := suggestions.NewDescriber(llmProvider)
	m := metrics.New()

	orch := orchestrator.New(
		store, fetcher, registry, detectors, patternCfg, synergyEngine,
		analyzer, describer, publisher, embedder,
		orchestrator.Config{
			EventWindow:       cfg.Orchestrator.EventWindow.Duration,
			FetchCeiling:      cfg.Orchestrator.FetchCeiling.Duration,
			DetectorsCeiling:  cfg.Orchestrator.DetectorsCeiling.Duration,
			SynergiesCeiling:  cfg.Orchestrator.SynergiesCeiling.Duration,
			FeaturesCeiling:   cfg.Orchestrator.FeaturesCeiling.Duration,
			ComposeCeiling:    cfg.Orchestrator.ComposeCeiling.Duration,
			HardAbortMultiple: cfg.Orchestrator.HardAbortMultiple,
			HouseholdUserID:   cfg.Orchestrator.HouseholdUserID,
		},
		log,
		m,
	)

	// The resolver, ask-AI pipeline, and retrieval cache are wired here
	// so the whole collaborator graph is built and
	// ready at process start, even though nothing in this binary's own
	// ambient HTTP surface calls them: the query-facing facade is a
	// library surface consumed by an out-of-scope caller, the same way
	// the deployment adapter's other side is out of scope.
	retrievalCache, err := retrieval.New(embedder, store)
	if err != nil {
		return fmt.Errorf("build retrieval cache: %w", err)
	}
	resolver := entities.New(entities.DefaultWeights(), embedder, store)
	registryLookup := askai.NewEventRegistryLookup(fetcher, cfg.Orchestrator.EventWindow.Duration, embedder)
	askaiPipeline := askai.New(store, nerAdapter, resolver, retrievalCache, describer, registryLookup)
	_ = askaiPipeline

	httpServer := httpapi.NewServer(":"+cfg.Server.HealthPort, store.DB, &runSummaryReader{store: store}, m, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpServer.ListenAndServe(gctx) })
	g.Go(func() error { return runSchedule(gctx, cfg.Orchestrator.Schedule, runGuard, orch, log) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("insightd: %w", err)
	}
	return nil
}

// runSummaryReader adapts storage.Store's analysis-run repository to
// httpapi.RunStatusReader.
type runSummaryReader struct {
	store *storage.Store
}

func (r *runSummaryReader) LatestRunSummary() (string, string, *time.Time, error) {
	run, err := r.store.LatestAnalysisRun()
	if err != nil {
		return "", "", nil, err
	}
	return run.ID, string(run.Status), run.FinishedAt, nil
}

// runSchedule drives the daily batch job at the configured
// hour/minute, serializing concurrent triggers through the redis
// run-guard. The schedule's minute/hour fields are parsed directly
// against a daily time.Timer rather than pulling in a cron library for
// a single fixed-time-of-day trigger.
func runSchedule(ctx context.Context, schedule string, guard *storage.RunGuard, orch *orchestrator.Orchestrator, log *logrus.Logger) error {
	minute, hour, err := parseDailySchedule(schedule)
	if err != nil {
		return fmt.Errorf("parse orchestrator schedule: %w", err)
	}

	fields := logging.NewFields().Component("insightd").Operation("schedule")
	now := time.Now()
	next := nextDailyFire(now, hour, minute)
	log.WithFields(fields.Logrus()).Infof("next analysis run scheduled at %s", next)

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fired := <-timer.C:
			triggerRun(ctx, guard, orch, fired, log)
			next = nextDailyFire(fired, hour, minute)
			timer.Reset(time.Until(next))
		}
	}
}

// parseDailySchedule reads the minute and hour fields out of a 5-field
// cron-shaped "M H * * *" string, the only shape the default schedule
// ("0 3 * * *") and this engine's scheduling need actually require.
func parseDailySchedule(schedule string) (minute, hour int, err error) {
	fields := strings.Fields(schedule)
	if len(fields) != 5 {
		return 0, 0, fmt.Errorf("expected 5 cron fields, got %q", schedule)
	}
	minute, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute field %q: %w", fields[0], err)
	}
	hour, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour field %q: %w", fields[1], err)
	}
	return minute, hour, nil
}

// nextDailyFire returns the next occurrence of hour:minute strictly
// after from, rolling over to tomorrow if that time has already passed
// today.
func nextDailyFire(from time.Time, hour, minute int) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// triggerRun acquires the distributed run-guard before invoking the
// orchestrator, skipping this tick entirely (not erroring) when another
// process already holds the lock.
func triggerRun(ctx context.Context, guard *storage.RunGuard, orch *orchestrator.Orchestrator, now time.Time, log *logrus.Logger) {
	fields := logging.NewFields().Component("insightd").Operation("trigger_run")

	runID := now.UTC().Format(time.RFC3339)
	acquired, err := guard.Acquire(ctx, runID)
	if err != nil {
		log.WithFields(fields.Error(err).Logrus()).Warn("run-guard acquire failed, skipping this tick")
		return
	}
	if !acquired {
		log.WithFields(fields.Logrus()).Info("another process already holds the run-guard lock, skipping this tick")
		return
	}
	defer func() {
		if err := guard.Release(ctx, runID); err != nil {
			log.WithFields(fields.Error(err).Logrus()).Warn("run-guard release failed")
		}
	}()

	if _, err := orch.Run(ctx, now); err != nil {
		log.WithFields(fields.Error(err).Logrus()).Error("analysis run failed")
	}
}

func newPublisher(cfg config.NotifyConfig, log *logrus.Logger) notify.Publisher {
	if cfg.SlackChannel == "" {
		return notify.NoopPublisher{}
	}
	return notify.NewSlackPublisher(cfg.SlackToken, cfg.SlackChannel, log)
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
