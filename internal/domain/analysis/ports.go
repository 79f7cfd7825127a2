package analysis

import "context"

// SessionRepository is the durable substrate of the analysis state machine.
// Implementations must make ClaimNextReady a single atomic read-modify-write
// so that two racing claimers can never select the same session.
type SessionRepository interface {
	// ClaimNextReady atomically selects one eligible session (READY analyze
	// state with a non-empty script reference) and transitions it to START
	// within a single transaction. It returns (nil, nil) when no eligible
	// session exists; that is not an error.
	ClaimNextReady(ctx context.Context) (*Session, error)

	// FinalizeSuccess sets the session's analyze state to DONE and records
	// the artifact reference. It returns a stale-session error if the row is
	// no longer at START.
	FinalizeSuccess(ctx context.Context, sessionID int64, artifactRef string) error

	// FinalizeFailure sets the session's analyze state to ERROR. It must run
	// in its own transaction, isolated from whatever failed the run.
	FinalizeFailure(ctx context.Context, sessionID int64) error

	// Create persists a new session and returns it with its assigned id.
	Create(ctx context.Context, session *Session) (*Session, error)

	// Get loads one session by id, or (nil, nil) if it does not exist.
	Get(ctx context.Context, sessionID int64) (*Session, error)
}

// ObservationRepository provides the read-only observation catalog.
type ObservationRepository interface {
	// List returns the full catalog in its reference order.
	List(ctx context.Context) ([]Observation, error)

	// Get loads one catalog entry by id, or (nil, nil) if it does not exist.
	Get(ctx context.Context, id int64) (*Observation, error)
}

// ScriptStore reads and writes stored transcript artifacts.
type ScriptStore interface {
	// Download fetches the script artifact at the given reference path.
	Download(ctx context.Context, ref string) ([]byte, error)

	// Upload writes a script artifact under the given path with a versioned
	// object name and returns the stored reference.
	Upload(ctx context.Context, data []byte, path string) (string, error)

	// List returns the object references under the given path prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ReportStore persists composite analyze reports.
type ReportStore interface {
	// Upload serializes the report under the given path with a versioned
	// object name and returns the stored reference.
	Upload(ctx context.Context, report AnalyzeReport, path string) (string, error)

	// Download fetches and decodes a previously stored report.
	Download(ctx context.Context, ref string) (AnalyzeReport, error)
}

// InferenceRunner issues one external inference call per observation
// dimension. A transport failure surfaces as a transport-kind error and the
// returned bytes are nil; implementations must never panic on upstream
// misbehavior. Shape repair of the response body is the normalizer's job.
type InferenceRunner interface {
	Run(ctx context.Context, dimensionLabel, scriptText string) ([]byte, error)
}
