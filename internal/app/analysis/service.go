// Package analysis implements the analysis orchestrator: the application
// service that claims one eligible session per scheduled tick, runs the
// per-dimension inference sequence, and finalizes the session's durable state.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sessionlens/analyzer/internal/domain/analysis"
	"github.com/sessionlens/analyzer/pkg/common/logger"
)

// Service orchestrates one analysis run over the claim/run/finalize state
// machine. All collaborators are passed in explicitly at construction; the
// service holds no global state and a single instance is driven by the
// scheduler one run at a time.
type Service struct {
	phase string // environment namespace for artifact paths

	sessions     analysis.SessionRepository
	observations analysis.ObservationRepository
	scripts      analysis.ScriptStore
	reports      analysis.ReportStore
	inference    analysis.InferenceRunner

	logger *logger.Logger
	tracer trace.Tracer
}

// NewService constructs the orchestrator with its full dependency graph.
func NewService(
	phase string,
	sessions analysis.SessionRepository,
	observations analysis.ObservationRepository,
	scripts analysis.ScriptStore,
	reports analysis.ReportStore,
	inference analysis.InferenceRunner,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Service {
	logger = logger.With("component", "analyze_service")
	return &Service{
		phase:        phase,
		sessions:     sessions,
		observations: observations,
		scripts:      scripts,
		reports:      reports,
		inference:    inference,
		logger:       logger,
		tracer:       tracer,
	}
}

// RunScheduled executes one orchestrator tick: claim exactly one eligible
// session, analyze its script, persist the report artifact, and finalize the
// session state. Finding no eligible session ends the run silently. Any
// failure after the claim moves the session to ERROR in an independent
// transaction and is logged, not re-raised to the scheduler; only claim
// failures themselves propagate to the caller.
func (s *Service) RunScheduled(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "analyze_service.run_scheduled")
	defer span.End()

	session, err := s.sessions.ClaimNextReady(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return fmt.Errorf("claiming next ready session: %w", err)
	}
	if session == nil {
		span.AddEvent("no_eligible_session")
		s.logger.Debug(ctx, "no session ready for analysis")
		return nil
	}

	log := s.logger.With("session_id", session.ID())
	span.SetAttributes(attribute.Int64("session_id", session.ID()))
	log.Info(ctx, "claimed session for analysis", "script_ref", session.SourceScriptURL())

	// The claim query only selects sessions with a script reference, but a
	// session loaded through another path could still arrive here without
	// one. Marking it ERROR keeps it from sitting at START forever.
	if session.SourceScriptURL() == "" {
		err := analysis.NewMissingScriptError(session.ID())
		s.failSession(ctx, log, session.ID(), err)
		return nil
	}

	report, err := s.Analyze(ctx, session.SourceScriptURL())
	if err != nil {
		s.failSession(ctx, log, session.ID(), err)
		return nil
	}

	artifactRef, err := s.export(ctx, report, session.ID())
	if err != nil {
		s.failSession(ctx, log, session.ID(), err)
		return nil
	}

	if err := s.sessions.FinalizeSuccess(ctx, session.ID(), artifactRef); err != nil {
		s.failSession(ctx, log, session.ID(), err)
		return nil
	}

	log.Info(ctx, "analysis complete", "artifact_ref", artifactRef)
	return nil
}

// Analyze downloads and assembles the referenced script, then runs the full
// observation catalog through the inference pipeline sequentially,
// accumulating one normalized report per dimension. Transport failures abort
// the run; malformed response shapes do not.
func (s *Service) Analyze(ctx context.Context, scriptRef string) (analysis.AnalyzeReport, error) {
	ctx, span := s.tracer.Start(ctx, "analyze_service.analyze",
		trace.WithAttributes(attribute.String("script_ref", scriptRef)),
	)
	defer span.End()

	var zero analysis.AnalyzeReport

	data, err := s.scripts.Download(ctx, scriptRef)
	if err != nil {
		return zero, analysis.NewScriptDownloadError(scriptRef, err)
	}
	script, err := analysis.ParseScript(data)
	if err != nil {
		return zero, analysis.NewScriptDownloadError(scriptRef, err)
	}
	text := analysis.MergeScript(script)

	observations, err := s.observations.List(ctx)
	if err != nil {
		return zero, fmt.Errorf("listing observation catalog: %w", err)
	}
	if len(observations) == 0 {
		return zero, analysis.NewObservationNotFoundError(-1)
	}
	span.SetAttributes(attribute.Int("observation_count", len(observations)))

	builder := analysis.NewReportBuilder()
	for _, obs := range observations {
		s.logger.Debug(ctx, "running observation", "dimension", obs.DisplayName())

		raw, err := s.inference.Run(ctx, obs.DisplayName(), text)
		if err != nil {
			span.RecordError(err)
			return zero, analysis.NewTransportError(obs.DisplayName(), err)
		}

		report := analysis.NormalizeResponse(raw, obs)
		if report.Level == analysis.LevelUndetermined {
			s.logger.Warn(ctx, "undetermined result for dimension", "dimension", obs.DisplayName())
		}
		builder.Add(obs.CanonicalName(), report)
	}

	return builder.Finish(), nil
}

// export serializes the composite report and writes it through the report
// store under a path scoped by environment phase and session id.
func (s *Service) export(ctx context.Context, report analysis.AnalyzeReport, sessionID int64) (string, error) {
	path := fmt.Sprintf("%s/%d", s.phase, sessionID)
	ref, err := s.reports.Upload(ctx, report, path)
	if err != nil {
		return "", analysis.NewArtifactUploadError(path, err)
	}
	return ref, nil
}

// failSession performs the best-effort ERROR transition for a claimed
// session. The finalize write runs in its own transaction so a mid-pipeline
// failure cannot leave the session stuck at START with no closing write; if
// the write itself fails it is logged and not retried within this tick.
func (s *Service) failSession(ctx context.Context, log *logger.Logger, sessionID int64, cause error) {
	log.Error(ctx, "analysis run failed", "error", cause)

	// The run context may already be canceled or timed out; the closing
	// write must still go through.
	ctx = context.WithoutCancel(ctx)

	if err := s.sessions.FinalizeFailure(ctx, sessionID); err != nil {
		var domainErr *analysis.Error
		if errors.As(err, &domainErr) && domainErr.Kind() == analysis.ErrKindStaleSession {
			log.Warn(ctx, "session concurrently mutated; skipping error transition", "error", err)
			return
		}
		log.Error(ctx, "failed to mark session as errored", "error", err)
	}
}
