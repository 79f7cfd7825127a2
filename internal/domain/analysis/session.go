package analysis

import "time"

// Session is an aggregate root representing one analyzable unit of a case:
// a recorded therapy session with its transcript and pipeline states. The
// aggregate owns the analyze-state lifecycle; the script and encoding states
// belong to collaborating pipelines and are carried here read-only.
type Session struct {
	// Identity.
	id     int64
	caseID int64
	name   string

	// Pipeline states. Only analyzeState is mutated by this domain.
	sessionState  AnalyzeState
	scriptState   AnalyzeState
	encodingState AnalyzeState
	analyzeState  AnalyzeState

	// Source and artifact references.
	sourceVideoURL  string
	sourceScriptURL string
	analyzeURL      string

	createdAt time.Time
}

// NewSession creates a session as the contents-management service would:
// analysis prerequisites not yet met.
func NewSession(caseID int64, name string) *Session {
	return &Session{
		caseID:        caseID,
		name:          name,
		sessionState:  StateReady,
		scriptState:   StateNone,
		encodingState: StateNone,
		analyzeState:  StateNone,
		createdAt:     time.Now(),
	}
}

// ReconstructSession creates a Session instance from persisted data without
// enforcing creation-time invariants. This should only be used by
// repositories when hydrating from storage.
func ReconstructSession(
	id int64,
	caseID int64,
	name string,
	sessionState AnalyzeState,
	scriptState AnalyzeState,
	encodingState AnalyzeState,
	analyzeState AnalyzeState,
	sourceVideoURL string,
	sourceScriptURL string,
	analyzeURL string,
	createdAt time.Time,
) *Session {
	return &Session{
		id:              id,
		caseID:          caseID,
		name:            name,
		sessionState:    sessionState,
		scriptState:     scriptState,
		encodingState:   encodingState,
		analyzeState:    analyzeState,
		sourceVideoURL:  sourceVideoURL,
		sourceScriptURL: sourceScriptURL,
		analyzeURL:      analyzeURL,
		createdAt:       createdAt,
	}
}

// Getters for Session.
func (s *Session) ID() int64                   { return s.id }
func (s *Session) CaseID() int64               { return s.caseID }
func (s *Session) Name() string                { return s.name }
func (s *Session) SessionState() AnalyzeState  { return s.sessionState }
func (s *Session) ScriptState() AnalyzeState   { return s.scriptState }
func (s *Session) EncodingState() AnalyzeState { return s.encodingState }
func (s *Session) AnalyzeState() AnalyzeState  { return s.analyzeState }
func (s *Session) SourceVideoURL() string      { return s.sourceVideoURL }
func (s *Session) SourceScriptURL() string     { return s.sourceScriptURL }
func (s *Session) AnalyzeURL() string          { return s.analyzeURL }
func (s *Session) CreatedAt() time.Time        { return s.createdAt }

// Eligible reports whether the session may be claimed for analysis. A session
// without a script reference is never eligible regardless of analyze state.
func (s *Session) Eligible() bool {
	return s.analyzeState == StateReady && s.sourceScriptURL != ""
}

// AttachScript records the script reference and promotes the session to
// READY for analysis. Used by tests and the contents collaborator path.
func (s *Session) AttachScript(ref string) error {
	if err := s.analyzeState.ValidateTransition(StateReady); err != nil {
		return err
	}
	s.sourceScriptURL = ref
	s.scriptState = StateDone
	s.analyzeState = StateReady
	return nil
}

// Start transitions the session to the claimed state, granting exclusive
// ownership to one orchestrator run.
func (s *Session) Start() error {
	if err := s.analyzeState.ValidateTransition(StateStart); err != nil {
		return err
	}
	s.analyzeState = StateStart
	return nil
}

// Complete finalizes a successful run, recording the artifact reference.
func (s *Session) Complete(artifactRef string) error {
	if err := s.analyzeState.ValidateTransition(StateDone); err != nil {
		return err
	}
	s.analyzeState = StateDone
	s.analyzeURL = artifactRef
	return nil
}

// Fail moves a claimed session to the terminal error state.
func (s *Session) Fail() error {
	if err := s.analyzeState.ValidateTransition(StateError); err != nil {
		return err
	}
	s.analyzeState = StateError
	return nil
}
