// Package orchestrator implements the six-phase daily analysis job: a
// single top-level Run method coordinating narrowly-scoped collaborators
// from one cooperative scheduler loop, rather than a generic job-queue
// abstraction.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wtthornton/homeiq-insight/pkg/capability"
	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/metrics"
	"github.com/wtthornton/homeiq-insight/pkg/nlp"
	"github.com/wtthornton/homeiq-insight/pkg/notify"
	"github.com/wtthornton/homeiq-insight/pkg/patterns"
	"github.com/wtthornton/homeiq-insight/pkg/shared/logging"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
	"github.com/wtthornton/homeiq-insight/pkg/suggestions"
	"github.com/wtthornton/homeiq-insight/pkg/synergy"
)

// Orchestrator wires the event source, detectors, synergy engine,
// feature analyzer, and composer into the daily batch job under a
// single AnalysisRun row.
type Orchestrator struct {
	store      *storage.Store
	fetcher    *events.Adapter
	registry   capability.Registry
	detectors  []patterns.Detector
	patternCfg patterns.Config
	synergyEngine *synergy.Engine
	analyzer   *capability.Analyzer
	describer  *suggestions.Describer
	notifier   notify.Publisher
	embedder   nlp.EmbeddingAdapter // optional; nil skips similarity demotion
	cfg        Config
	log        *logrus.Logger
	metrics    *metrics.Metrics // optional; nil-safe throughout
}

// New wires an Orchestrator from its collaborators. embedder may be nil,
// in which case synergy chain similarity demotion is skipped. m
// may be nil, in which case every metrics recording call below is a
// no-op (pkg/metrics.Metrics' nil-safe contract).
func New(
	store *storage.Store,
	fetcher *events.Adapter,
	registry capability.Registry,
	detectors []patterns.Detector,
	patternCfg patterns.Config,
	synergyEngine *synergy.Engine,
	analyzer *capability.Analyzer,
	describer *suggestions.Describer,
	notifier notify.Publisher,
	embedder nlp.EmbeddingAdapter,
	cfg Config,
	log *logrus.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		store: store, fetcher: fetcher, registry: registry, detectors: detectors,
		patternCfg: patternCfg, synergyEngine: synergyEngine, analyzer: analyzer,
		describer: describer, notifier: notifier, embedder: embedder, cfg: cfg, log: log,
		metrics: m,
	}
}

// phaseResult is what runPhase reports back for one phase's timing entry.
type phaseResult struct {
	timing storage.PhaseTiming
	err    error
}

// Run executes the six-phase daily job once, under a fresh AnalysisRun.
// A phase failure marks the run failed with the failing phase identified
// but leaves prior phases' writes in place: each phase
// commits its own work independently through the single writer.
func (o *Orchestrator) Run(ctx context.Context, now time.Time) (storage.AnalysisRun, error) {
	runID, err := o.store.StartAnalysisRun(now)
	if err != nil {
		return storage.AnalysisRun{}, err
	}

	fields := logging.NewFields().Component("orchestrator").Operation("run").Resource("analysis_run", runID)
	o.log.WithFields(fields.Logrus()).Info("analysis run started")

	var timings []storage.PhaseTiming
	counts := storage.RunCounts{}

	finish := func(status storage.RunStatus, errDetail, failingPhase string) (storage.AnalysisRun, error) {
		finishedAt := now
		o.metrics.ObserveRunStatus(string(status))
		if ferr := o.store.FinishAnalysisRun(runID, status, timings, counts, errDetail, failingPhase, finishedAt); ferr != nil {
			return storage.AnalysisRun{}, ferr
		}
		return o.store.GetAnalysisRun(runID)
	}

	// Phase 1: refresh device capabilities from the external registry.
	var devices []storage.DeviceCapability
	if pr := o.runPhase(ctx, runID, "capabilities", o.cfg.FetchCeiling, func(pctx context.Context) error {
		var err error
		devices, err = o.registry.ListDevices(pctx)
		o.metrics.ObserveAdapterCall("capability_registry", callOutcome(err))
		if err != nil {
			return err
		}
		for _, dc := range devices {
			if err := o.store.UpsertDeviceCapability(dc, now); err != nil {
				return err
			}
		}
		return nil
	}); pr.err != nil {
		timings = append(timings, pr.timing)
		return finish(storage.RunFailed, pr.err.Error(), "capabilities")
	} else {
		timings = append(timings, pr.timing)
	}

	// Phase 2: fetch events for the analysis window.
	start := now.Add(-o.cfg.EventWindow)
	var window []events.Event
	var weather []events.Event
	if pr := o.runPhase(ctx, runID, "fetch", o.cfg.FetchCeiling, func(pctx context.Context) error {
		var err error
		window, err = o.fetcher.FetchEvents(pctx, start, now, events.Filter{}, 0)
		if err != nil {
			o.metrics.ObserveAdapterCall("event_source", "error")
			return err
		}
		weather, err = o.fetcher.WeatherTaggedEvents(pctx, start, now)
		o.metrics.ObserveAdapterCall("event_source", callOutcome(err))
		return err
	}); pr.err != nil {
		timings = append(timings, pr.timing)
		return finish(storage.RunFailed, pr.err.Error(), "fetch")
	} else {
		timings = append(timings, pr.timing)
	}
	if len(window) == 0 {
		window, _ = o.fetcher.FetchEvents(ctx, now.Add(-patterns.FallbackSliceWindow), now, events.Filter{}, 0)
	}

	// Phase 3: the detector families fan out over a bounded worker pool,
	// then the synergy engine reads their committed output. Pattern
	// inserts happen-before the synergy read, so the two halves of this
	// phase run sequentially; only the detector fan-out itself is
	// parallel.
	var persistedPatterns []storage.Pattern
	var persistedSynergies []storage.Synergy
	if pr := o.runPhase(ctx, runID, "detectors_synergies", o.cfg.DetectorsCeiling, func(pctx context.Context) error {
		persisted, err := o.runDetectors(pctx, window, now)
		if err != nil {
			return err
		}
		persistedPatterns = persisted
		counts.Patterns = len(persisted)
		for _, p := range persisted {
			o.metrics.AddPatterns(string(p.Kind), 1)
		}

		all, err := o.store.ListPatterns("")
		if err != nil {
			return err
		}

		valid := validEvents(window)
		embeddings := o.buildEmbeddings(pctx, all)
		baseWindow := o.patternCfg.CoOccurrenceWindow
		raw := o.synergyEngine.Run(all, valid, weather, baseWindow, embeddings)
		for _, s := range raw {
			id, _, err := o.store.InsertSynergy(s, now)
			if err != nil {
				return err
			}
			s.ID = id
			persistedSynergies = append(persistedSynergies, s)
			o.metrics.AddSynergies(string(s.Type), 1)
		}
		counts.Synergies = len(persistedSynergies)
		return nil
	}); pr.err != nil {
		timings = append(timings, pr.timing)
		return finish(storage.RunFailed, pr.err.Error(), "detectors_synergies")
	} else {
		timings = append(timings, pr.timing)
	}

	// Phase 4: feature analysis against the same event slice.
	var featureCandidates []capability.Candidate
	if pr := o.runPhase(ctx, runID, "features", o.cfg.FeaturesCeiling, func(pctx context.Context) error {
		featureCandidates = o.runFeatureAnalysis(devices, window, now)
		return nil
	}); pr.err != nil {
		timings = append(timings, pr.timing)
		return finish(storage.RunFailed, pr.err.Error(), "features")
	} else {
		timings = append(timings, pr.timing)
	}

	// Phase 5: compose and persist suggestions.
	var suggestionIDs []string
	if pr := o.runPhase(ctx, runID, "compose", o.cfg.ComposeCeiling, func(pctx context.Context) error {
		candidates := o.buildCandidates(persistedPatterns, persistedSynergies, featureCandidates, now)
		prefs, err := o.store.GetPreferences(o.cfg.HouseholdUserID)
		if err != nil {
			return err
		}
		ids, err := suggestions.ComposeAndPersist(pctx, o.store, o.describer, candidates, prefs, o.cfg.HouseholdUserID, now)
		if err != nil {
			return err
		}
		suggestionIDs = ids
		counts.Suggestions = len(ids)
		o.metrics.AddSuggestionsDrafted(len(ids))
		return nil
	}); pr.err != nil {
		timings = append(timings, pr.timing)
		return finish(storage.RunFailed, pr.err.Error(), "compose")
	} else {
		timings = append(timings, pr.timing)
	}

	// Phase 6: publish a "new suggestions" notification. Fire-and-forget:
	// Publisher itself never returns an error.
	o.notifier.Publish(ctx, "new_suggestions", map[string]interface{}{
		"run_id":      runID,
		"count":       len(suggestionIDs),
		"suggestions": suggestionIDs,
	})
	o.metrics.ObserveAdapterCall("notifier", "ok")

	return finish(storage.RunSucceeded, "", "")
}

// runPhase times fn, logs a warning if it overruns the soft ceiling, and
// hard-aborts it if it overruns 3x the ceiling, wrapping the
// call in its own tracing span.
func (o *Orchestrator) runPhase(ctx context.Context, runID, phase string, ceiling time.Duration, fn func(context.Context) error) phaseResult {
	spanCtx, span := startPhaseSpan(ctx, runID, phase)
	defer span.End()

	hardCtx, cancel := context.WithTimeout(spanCtx, time.Duration(float64(ceiling)*hardAbortMultiple(o.cfg)))
	defer cancel()

	started := time.Now()
	done := make(chan error, 1)
	go func() { done <- fn(hardCtx) }()

	var err error
	select {
	case err = <-done:
	case <-hardCtx.Done():
		err = fmt.Errorf("phase %s exceeded hard abort ceiling: %w", phase, hardCtx.Err())
	}
	elapsed := time.Since(started)

	fields := logging.NewFields().Component("orchestrator").Operation(phase).Duration(elapsed)
	status := "ok"
	switch {
	case err != nil:
		status = "failed"
		o.log.WithFields(fields.Error(err).Logrus()).Warn("phase failed")
	case elapsed > ceiling:
		status = "partial"
		o.log.WithFields(fields.Logrus()).Warn("phase exceeded soft ceiling")
	default:
		o.log.WithFields(fields.Logrus()).Info("phase completed")
	}
	o.metrics.ObservePhase(phase, status, elapsed)

	return phaseResult{timing: storage.PhaseTiming{Phase: phase, Duration: elapsed, Status: status}, err: err}
}

func callOutcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func hardAbortMultiple(cfg Config) float64 {
	if cfg.HardAbortMultiple <= 0 {
		return 3
	}
	return cfg.HardAbortMultiple
}

// runDetectors fans the detector families out over a bounded worker pool
//, cross-validates their combined output, and persists every
// surviving candidate, returning the canonical persisted Patterns.
func (o *Orchestrator) runDetectors(ctx context.Context, slice []events.Event, now time.Time) ([]storage.Pattern, error) {
	results := make([][]patterns.Candidate, len(o.detectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range o.detectors {
		i, d := i, d
		g.Go(func() error {
			out, err := d.Detect(gctx, slice, o.patternCfg)
			if err != nil {
				o.log.WithFields(logging.NewFields().Component("orchestrator").Operation("detect").Resource("detector", d.Name()).Error(err).Logrus()).
					Warn("detector failed, its candidates are skipped")
				return nil
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []patterns.Candidate
	for _, r := range results {
		merged = append(merged, r...)
	}
	survivors := patterns.CrossValidate(merged)

	out := make([]storage.Pattern, 0, len(survivors))
	for _, c := range survivors {
		id, _, err := o.store.UpsertPattern(c.Kind, c.Anchor, c.Metadata, c.Confidence, c.Occurrences, now)
		if err != nil {
			return nil, err
		}
		p, err := o.store.GetPattern(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// runFeatureAnalysis walks every known device's commandable capabilities
// against this run's event slice and rate-limits the result to one
// feature candidate per device. The capability name doubles
// as the attribute key and "default" as the sentinel default value; a
// real deployment's capability registry would carry a richer attribute
// mapping, but the core's own contract does not specify one.
func (o *Orchestrator) runFeatureAnalysis(devices []storage.DeviceCapability, slice []events.Event, now time.Time) []capability.Candidate {
	byDevice := map[string][]events.Event{}
	for _, e := range slice {
		if e.Valid() && e.NewState == "on" {
			byDevice[e.DeviceID] = append(byDevice[e.DeviceID], e)
		}
	}

	var flagged []capability.FlaggedUsage
	for _, dc := range devices {
		active := byDevice[dc.DeviceID]
		for _, cap := range dc.Capabilities {
			if !cap.Commandable {
				continue
			}
			fu, underutilized := o.analyzer.AnalyzeCapability(dc, cap, active, cap.Name, "default")
			if err := o.store.InsertFeatureUsage(fu); err != nil {
				o.log.WithFields(logging.NewFields().Component("orchestrator").Operation("feature_usage").Error(err).Logrus()).Warn("failed to persist feature usage")
			}
			if underutilized {
				flagged = append(flagged, capability.FlaggedUsage{Usage: fu, ActiveCount: len(active)})
			}
		}
	}
	return capability.RankCandidates(flagged)
}

// buildEmbeddings embeds every distinct entity id appearing in patterns
// so the synergy engine's chain similarity demotion
// has vectors to compare. Returns nil when no embedding adapter is
// configured, which the engine treats as "skip demotion".
func (o *Orchestrator) buildEmbeddings(ctx context.Context, all []storage.Pattern) map[string][]float64 {
	if o.embedder == nil {
		return nil
	}
	seen := map[string]bool{}
	out := map[string][]float64{}
	for _, p := range all {
		if p.AnchorEntityID == "" || seen[p.AnchorEntityID] {
			continue
		}
		seen[p.AnchorEntityID] = true
		v, err := o.embedder.Embed(ctx, p.AnchorEntityID)
		if err != nil {
			continue
		}
		out[p.AnchorEntityID] = v
	}
	return out
}

// buildCandidates assembles the uniform Candidate list the composer ranks from this
// run's three sources, scoring feature candidates
// against device centrality derived from the co-occurrence edge graph
//.
func (o *Orchestrator) buildCandidates(patternsOut []storage.Pattern, synergiesOut []storage.Synergy, featuresOut []capability.Candidate, now time.Time) []suggestions.Candidate {
	var out []suggestions.Candidate
	for _, p := range patternsOut {
		out = append(out, suggestions.NewPatternCandidate(p, now, patternDevices(p)))
	}

	weights := storage.DefaultPriorityWeights()
	for _, s := range synergiesOut {
		out = append(out, suggestions.NewSynergyCandidate(s, weights, s.Type == storage.SynergyTypeDeviceChain))
	}

	centrality := synergy.DeviceCentrality(patternsOut)
	for _, f := range featuresOut {
		out = append(out, suggestions.NewFeatureCandidate(f.DeviceID, f.CapabilityName, f.Utilization, centrality[f.DeviceID]))
	}
	return out
}

// patternDevices returns the device set a pattern candidate implicates:
// just the anchor for time-of-day/anomaly patterns, anchor+partner for
// co-occurrence patterns.
func patternDevices(p storage.Pattern) []string {
	if p.Kind == storage.PatternKindCoOccurrence && p.Metadata.CoOccurrence != nil {
		return []string{p.AnchorEntityID, p.Metadata.CoOccurrence.Partner}
	}
	return []string{p.AnchorEntityID}
}

// validEvents filters a slice down to well-formed events without
// restricting the new state: the synergy engine must see every
// transition, because a chain can run through a lock's "locked" or a
// cover's "closed" event, and pre-filtering to "on" here would make
// those chains unverifiable. Layers that only care about activations
// filter for themselves.
func validEvents(slice []events.Event) []events.Event {
	out := make([]events.Event, 0, len(slice))
	for _, e := range slice {
		if e.Valid() {
			out = append(out, e)
		}
	}
	return out
}
