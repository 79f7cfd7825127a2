// Package memory provides in-memory implementations of the analysis
// repositories for testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sessionlens/analyzer/internal/domain/analysis"
)

var _ analysis.SessionRepository = (*SessionStore)(nil)

// SessionStore is an in-memory session repository. The mutex stands in for
// the claim transaction's atomicity.
type SessionStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]*analysis.Session
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{nextID: 1, sessions: make(map[int64]*analysis.Session)}
}

// ClaimNextReady selects the lowest-id eligible session and moves it to START.
func (s *SessionStore) ClaimNextReady(ctx context.Context) (*analysis.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		session := s.sessions[id]
		if !session.Eligible() {
			continue
		}
		if err := session.Start(); err != nil {
			return nil, err
		}
		return copySession(session), nil
	}
	return nil, nil
}

// FinalizeSuccess moves a claimed session to DONE with its artifact reference.
func (s *SessionStore) FinalizeSuccess(ctx context.Context, sessionID int64, artifactRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.AnalyzeState() != analysis.StateStart {
		state := analysis.AnalyzeState("")
		if ok {
			state = session.AnalyzeState()
		}
		return analysis.NewStaleSessionError(sessionID, state)
	}
	return session.Complete(artifactRef)
}

// FinalizeFailure moves a claimed session to ERROR.
func (s *SessionStore) FinalizeFailure(ctx context.Context, sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.AnalyzeState() != analysis.StateStart {
		state := analysis.AnalyzeState("")
		if ok {
			state = session.AnalyzeState()
		}
		return analysis.NewStaleSessionError(sessionID, state)
	}
	return session.Fail()
}

// Create persists a session with the next free id.
func (s *SessionStore) Create(ctx context.Context, session *analysis.Session) (*analysis.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	stored := analysis.ReconstructSession(
		id, session.CaseID(), session.Name(),
		session.SessionState(), session.ScriptState(), session.EncodingState(), session.AnalyzeState(),
		session.SourceVideoURL(), session.SourceScriptURL(), session.AnalyzeURL(),
		session.CreatedAt(),
	)
	s.sessions[id] = stored
	return copySession(stored), nil
}

// Get loads a session by id, or (nil, nil) if absent.
func (s *SessionStore) Get(ctx context.Context, sessionID int64) (*analysis.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return copySession(session), nil
}

func copySession(session *analysis.Session) *analysis.Session {
	return analysis.ReconstructSession(
		session.ID(), session.CaseID(), session.Name(),
		session.SessionState(), session.ScriptState(), session.EncodingState(), session.AnalyzeState(),
		session.SourceVideoURL(), session.SourceScriptURL(), session.AnalyzeURL(),
		session.CreatedAt(),
	)
}
