// Package postgres provides PostgreSQL-backed storage for the analysis
// domain: the session state machine's durable substrate and the read-only
// observation catalog.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sessionlens/analyzer/internal/domain/analysis"
	"github.com/sessionlens/analyzer/internal/infra/storage"
)

var _ analysis.SessionRepository = (*sessionStore)(nil)

// sessionStore provides persistent storage for analysis sessions using
// PostgreSQL. The claim operation is a single atomic read-modify-write so
// that racing orchestrator instances can never select the same session.
type sessionStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewSessionStore creates a PostgreSQL-backed session store using the
// provided connection pool.
func NewSessionStore(pool *pgxpool.Pool, tracer trace.Tracer) *sessionStore {
	return &sessionStore{pool: pool, tracer: tracer}
}

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

const sessionColumns = `id, case_id, name, session_state, script_state, encoding_state,
	analyze_state, source_video_url, source_script_url, analyze_url, created_at`

// ClaimNextReady atomically selects one eligible session and moves it to
// START. The inner select takes a row lock with SKIP LOCKED so concurrent
// claimers either pick different sessions or come back empty; the update and
// select commit as one statement. A session without a script reference is
// never eligible.
func (s *sessionStore) ClaimNextReady(ctx context.Context) (*analysis.Session, error) {
	var session *analysis.Session

	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.analysis.claim_next_ready", defaultDBAttributes, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, fmt.Sprintf(`
			UPDATE sessions
			SET analyze_state = $1, updated_at = NOW()
			WHERE id = (
				SELECT id FROM sessions
				WHERE analyze_state = $2 AND source_script_url <> ''
				ORDER BY id
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING %s`, sessionColumns),
			analysis.StateStart.String(), analysis.StateReady.String(),
		)

		claimed, err := scanSession(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("claiming ready session: %w", err)
		}
		session = claimed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// FinalizeSuccess records the artifact reference and moves the session to
// DONE. The update is guarded on the row still being at START; losing that
// optimistic check yields a stale-session error.
func (s *sessionStore) FinalizeSuccess(ctx context.Context, sessionID int64, artifactRef string) error {
	dbAttrs := append(defaultDBAttributes, attribute.Int64("session_id", sessionID))

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.analysis.finalize_success", dbAttrs, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, `
			UPDATE sessions
			SET analyze_state = $1, analyze_url = $2, updated_at = NOW()
			WHERE id = $3 AND analyze_state = $4`,
			analysis.StateDone.String(), artifactRef, sessionID, analysis.StateStart.String(),
		)
		if err != nil {
			return fmt.Errorf("finalizing session %d: %w", sessionID, err)
		}
		if tag.RowsAffected() == 0 {
			state, err := s.currentState(ctx, sessionID)
			if err != nil {
				return err
			}
			return analysis.NewStaleSessionError(sessionID, state)
		}
		return nil
	})
}

// FinalizeFailure moves the session to the terminal ERROR state. The write
// acquires its own connection from the pool, independent of whatever
// transaction failed the run.
func (s *sessionStore) FinalizeFailure(ctx context.Context, sessionID int64) error {
	dbAttrs := append(defaultDBAttributes, attribute.Int64("session_id", sessionID))

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.analysis.finalize_failure", dbAttrs, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, `
			UPDATE sessions
			SET analyze_state = $1, updated_at = NOW()
			WHERE id = $2 AND analyze_state = $3`,
			analysis.StateError.String(), sessionID, analysis.StateStart.String(),
		)
		if err != nil {
			return fmt.Errorf("marking session %d errored: %w", sessionID, err)
		}
		if tag.RowsAffected() == 0 {
			state, err := s.currentState(ctx, sessionID)
			if err != nil {
				return err
			}
			return analysis.NewStaleSessionError(sessionID, state)
		}
		return nil
	})
}

// Create persists a new session and returns it with its assigned id.
func (s *sessionStore) Create(ctx context.Context, session *analysis.Session) (*analysis.Session, error) {
	dbAttrs := append(defaultDBAttributes, attribute.Int64("case_id", session.CaseID()))

	var created *analysis.Session
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.analysis.create_session", dbAttrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, fmt.Sprintf(`
			INSERT INTO sessions (case_id, name, session_state, script_state, encoding_state,
				analyze_state, source_video_url, source_script_url, analyze_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING %s`, sessionColumns),
			session.CaseID(), session.Name(),
			session.SessionState().String(), session.ScriptState().String(),
			session.EncodingState().String(), session.AnalyzeState().String(),
			session.SourceVideoURL(), session.SourceScriptURL(), session.AnalyzeURL(),
		)

		var err error
		created, err = scanSession(row)
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get loads one session by id, or (nil, nil) if it does not exist.
func (s *sessionStore) Get(ctx context.Context, sessionID int64) (*analysis.Session, error) {
	dbAttrs := append(defaultDBAttributes, attribute.Int64("session_id", sessionID))

	var session *analysis.Session
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.analysis.get_session", dbAttrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx,
			fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns), sessionID)

		found, err := scanSession(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("getting session %d: %w", sessionID, err)
		}
		session = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionStore) currentState(ctx context.Context, sessionID int64) (analysis.AnalyzeState, error) {
	var state string
	if err := s.pool.QueryRow(ctx,
		`SELECT analyze_state FROM sessions WHERE id = $1`, sessionID,
	).Scan(&state); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("session %d does not exist", sessionID)
		}
		return "", fmt.Errorf("reading state of session %d: %w", sessionID, err)
	}
	return analysis.ParseAnalyzeState(state), nil
}

func scanSession(row pgx.Row) (*analysis.Session, error) {
	var (
		id, caseID                                 int64
		name                                       string
		sessionState, scriptState, encodingState   string
		analyzeState                               string
		sourceVideoURL, sourceScriptURL, analyzeURL string
		createdAt                                  time.Time
	)
	if err := row.Scan(
		&id, &caseID, &name,
		&sessionState, &scriptState, &encodingState, &analyzeState,
		&sourceVideoURL, &sourceScriptURL, &analyzeURL, &createdAt,
	); err != nil {
		return nil, err
	}

	return analysis.ReconstructSession(
		id, caseID, name,
		analysis.ParseAnalyzeState(sessionState),
		analysis.ParseAnalyzeState(scriptState),
		analysis.ParseAnalyzeState(encodingState),
		analysis.ParseAnalyzeState(analyzeState),
		sourceVideoURL, sourceScriptURL, analyzeURL,
		createdAt,
	), nil
}
