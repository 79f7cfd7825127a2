package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sessionlens/analyzer/internal/domain/analysis"
	"github.com/sessionlens/analyzer/internal/infra/storage/analysis/memory"
	"github.com/sessionlens/analyzer/pkg/common/logger"
)

type fakeScriptStore struct {
	objects     map[string][]byte
	downloadErr error
}

func (f *fakeScriptStore) Download(ctx context.Context, ref string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	data, ok := f.objects[ref]
	if !ok {
		return nil, fmt.Errorf("no object at %q", ref)
	}
	return data, nil
}

func (f *fakeScriptStore) Upload(ctx context.Context, data []byte, path string) (string, error) {
	ref := path + "/script_v1.json"
	f.objects[ref] = data
	return ref, nil
}

func (f *fakeScriptStore) List(ctx context.Context, prefix string) ([]string, error) {
	var refs []string
	for ref := range f.objects {
		refs = append(refs, ref)
	}
	return refs, nil
}

type fakeReportStore struct {
	uploads   []analysis.AnalyzeReport
	paths     []string
	uploadErr error
}

func (f *fakeReportStore) Upload(ctx context.Context, report analysis.AnalyzeReport, path string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, report)
	f.paths = append(f.paths, path)
	return fmt.Sprintf("%s/analyze_report_v%d.json", path, len(f.uploads)), nil
}

func (f *fakeReportStore) Download(ctx context.Context, ref string) (analysis.AnalyzeReport, error) {
	return analysis.AnalyzeReport{}, errors.New("not implemented")
}

// stubInference answers each dimension from a fixed response table; labels
// without an entry fail with a transport error.
type stubInference struct {
	responses map[string][]byte
	calls     []string
}

func (s *stubInference) Run(ctx context.Context, dimensionLabel, scriptText string) ([]byte, error) {
	s.calls = append(s.calls, dimensionLabel)
	raw, ok := s.responses[dimensionLabel]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return raw, nil
}

func wellFormedResponse(t *testing.T, level int) []byte {
	t.Helper()

	message := fmt.Sprintf("```json\n{\"reports\": {\"descriptions\": \"observed\", \"interactions\": [\"T: mm\"], \"level\": %d}}\n```", level)
	raw, err := json.Marshal(map[string]any{
		"outputs": []any{
			map[string]any{
				"outputs": []any{
					map[string]any{
						"messages": []any{map[string]any{"message": message}},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	return raw
}

func testCatalog() []analysis.Observation {
	return []analysis.Observation{
		analysis.NewObservation(1, "경청", "active_listening"),
		analysis.NewObservation(2, "공감", "empathy"),
		analysis.NewObservation(3, "구조화", "structuring"),
	}
}

func testScript(t *testing.T) []byte {
	t.Helper()

	data, err := json.Marshal(map[string]any{
		"scripts": []any{
			map[string]any{"speaker": "상담사", "text": "오늘 기분이 어떠세요?", "start_time": "00:00:01", "end_time": "00:00:04"},
			map[string]any{"speaker": "내담자", "text": "조금 나아졌어요.", "start_time": "00:00:05", "end_time": "00:00:08"},
		},
	})
	require.NoError(t, err)
	return data
}

func newTestService(
	sessions analysis.SessionRepository,
	observations analysis.ObservationRepository,
	scripts analysis.ScriptStore,
	reports analysis.ReportStore,
	inference analysis.InferenceRunner,
) *Service {
	log := logger.New(io.Discard, logger.LevelInfo, "TEST", nil)
	return NewService("LOCAL", sessions, observations, scripts, reports, inference, log, noop.NewTracerProvider().Tracer("test"))
}

func createReadySession(t *testing.T, store *memory.SessionStore, scriptRef string) *analysis.Session {
	t.Helper()

	session := analysis.NewSession(1, "intake")
	require.NoError(t, session.AttachScript(scriptRef))
	stored, err := store.Create(context.Background(), session)
	require.NoError(t, err)
	return stored
}

func TestRunScheduledHappyPath(t *testing.T) {
	ctx := context.Background()

	sessions := memory.NewSessionStore()
	stored := createReadySession(t, sessions, "1/script_v1.json")

	scripts := &fakeScriptStore{objects: map[string][]byte{"1/script_v1.json": testScript(t)}}
	reports := &fakeReportStore{}
	inference := &stubInference{responses: map[string][]byte{
		"경청":  wellFormedResponse(t, 2),
		"공감":  wellFormedResponse(t, 1),
		"구조화": wellFormedResponse(t, 0),
	}}

	svc := newTestService(sessions, memory.NewObservationStore(testCatalog()), scripts, reports, inference)
	require.NoError(t, svc.RunScheduled(ctx))

	// One call per catalog dimension, display labels on the wire.
	assert.ElementsMatch(t, []string{"경청", "공감", "구조화"}, inference.calls)

	// One composite artifact under {phase}/{session_id}, keyed canonically.
	require.Len(t, reports.uploads, 1)
	assert.Equal(t, fmt.Sprintf("LOCAL/%d", stored.ID()), reports.paths[0])
	composite := reports.uploads[0]
	require.Len(t, composite.Reports, 3)
	assert.Equal(t, 2, composite.Reports["active_listening"].Level)
	assert.Equal(t, 1, composite.Reports["empathy"].Level)
	assert.Equal(t, 0, composite.Reports["structuring"].Level)

	final, err := sessions.Get(ctx, stored.ID())
	require.NoError(t, err)
	assert.Equal(t, analysis.StateDone, final.AnalyzeState())
	assert.NotEmpty(t, final.AnalyzeURL())
}

func TestRunScheduledNoEligibleSession(t *testing.T) {
	ctx := context.Background()

	sessions := memory.NewSessionStore()

	// A session without a script reference is not claimable even at READY.
	_, err := sessions.Create(ctx, analysis.NewSession(1, "unclaimed"))
	require.NoError(t, err)

	reports := &fakeReportStore{}
	inference := &stubInference{responses: map[string][]byte{}}
	svc := newTestService(sessions, memory.NewObservationStore(testCatalog()), &fakeScriptStore{objects: map[string][]byte{}}, reports, inference)

	require.NoError(t, svc.RunScheduled(ctx))
	assert.Empty(t, inference.calls)
	assert.Empty(t, reports.uploads)
}

func TestRunScheduledMalformedResponsesStillComplete(t *testing.T) {
	ctx := context.Background()

	sessions := memory.NewSessionStore()
	stored := createReadySession(t, sessions, "1/script_v1.json")

	scripts := &fakeScriptStore{objects: map[string][]byte{"1/script_v1.json": testScript(t)}}
	reports := &fakeReportStore{}
	inference := &stubInference{responses: map[string][]byte{
		"경청":  []byte("not json"),
		"공감":  []byte(`{"outputs": []}`),
		"구조화": wellFormedResponse(t, 1),
	}}

	svc := newTestService(sessions, memory.NewObservationStore(testCatalog()), scripts, reports, inference)
	require.NoError(t, svc.RunScheduled(ctx))

	require.Len(t, reports.uploads, 1)
	composite := reports.uploads[0]
	require.Len(t, composite.Reports, 3)
	assert.Equal(t, analysis.LevelUndetermined, composite.Reports["active_listening"].Level)
	assert.Equal(t, analysis.LevelUndetermined, composite.Reports["empathy"].Level)
	assert.Equal(t, 1, composite.Reports["structuring"].Level)

	final, err := sessions.Get(ctx, stored.ID())
	require.NoError(t, err)
	assert.Equal(t, analysis.StateDone, final.AnalyzeState())
}

func TestRunScheduledTransportFailureAbortsRun(t *testing.T) {
	ctx := context.Background()

	sessions := memory.NewSessionStore()
	stored := createReadySession(t, sessions, "1/script_v1.json")

	scripts := &fakeScriptStore{objects: map[string][]byte{"1/script_v1.json": testScript(t)}}
	reports := &fakeReportStore{}

	// Only the first dimension answers; the second dies on the wire.
	inference := &stubInference{responses: map[string][]byte{
		"구조화": wellFormedResponse(t, 1),
	}}

	svc := newTestService(sessions, memory.NewObservationStore(testCatalog()[:2]), scripts, reports, inference)
	require.NoError(t, svc.RunScheduled(ctx))

	assert.Empty(t, reports.uploads)

	final, err := sessions.Get(ctx, stored.ID())
	require.NoError(t, err)
	assert.Equal(t, analysis.StateError, final.AnalyzeState())
	assert.Empty(t, final.AnalyzeURL())
}

func TestRunScheduledScriptDownloadFailure(t *testing.T) {
	ctx := context.Background()

	sessions := memory.NewSessionStore()
	stored := createReadySession(t, sessions, "1/script_v1.json")

	scripts := &fakeScriptStore{objects: map[string][]byte{}, downloadErr: errors.New("bucket unreachable")}
	reports := &fakeReportStore{}
	inference := &stubInference{responses: map[string][]byte{}}

	svc := newTestService(sessions, memory.NewObservationStore(testCatalog()), scripts, reports, inference)
	require.NoError(t, svc.RunScheduled(ctx))

	assert.Empty(t, inference.calls)

	final, err := sessions.Get(ctx, stored.ID())
	require.NoError(t, err)
	assert.Equal(t, analysis.StateError, final.AnalyzeState())
}

func TestRunScheduledEmptyCatalogFailsRun(t *testing.T) {
	ctx := context.Background()

	sessions := memory.NewSessionStore()
	stored := createReadySession(t, sessions, "1/script_v1.json")

	scripts := &fakeScriptStore{objects: map[string][]byte{"1/script_v1.json": testScript(t)}}
	reports := &fakeReportStore{}
	inference := &stubInference{responses: map[string][]byte{}}

	svc := newTestService(sessions, memory.NewObservationStore(nil), scripts, reports, inference)
	require.NoError(t, svc.RunScheduled(ctx))

	assert.Empty(t, reports.uploads)

	final, err := sessions.Get(ctx, stored.ID())
	require.NoError(t, err)
	assert.Equal(t, analysis.StateError, final.AnalyzeState())
}

func TestRunScheduledArtifactUploadFailure(t *testing.T) {
	ctx := context.Background()

	sessions := memory.NewSessionStore()
	stored := createReadySession(t, sessions, "1/script_v1.json")

	scripts := &fakeScriptStore{objects: map[string][]byte{"1/script_v1.json": testScript(t)}}
	reports := &fakeReportStore{uploadErr: errors.New("access denied")}
	inference := &stubInference{responses: map[string][]byte{
		"경청":  wellFormedResponse(t, 1),
		"공감":  wellFormedResponse(t, 1),
		"구조화": wellFormedResponse(t, 1),
	}}

	svc := newTestService(sessions, memory.NewObservationStore(testCatalog()), scripts, reports, inference)
	require.NoError(t, svc.RunScheduled(ctx))

	final, err := sessions.Get(ctx, stored.ID())
	require.NoError(t, err)
	assert.Equal(t, analysis.StateError, final.AnalyzeState())
}

// failingSessionRepo simulates the claim query itself failing.
type failingSessionRepo struct{ analysis.SessionRepository }

func (f *failingSessionRepo) ClaimNextReady(ctx context.Context) (*analysis.Session, error) {
	return nil, errors.New("connection reset")
}

func TestRunScheduledClaimFailurePropagates(t *testing.T) {
	svc := newTestService(
		&failingSessionRepo{},
		memory.NewObservationStore(testCatalog()),
		&fakeScriptStore{objects: map[string][]byte{}},
		&fakeReportStore{},
		&stubInference{responses: map[string][]byte{}},
	)

	err := svc.RunScheduled(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claiming next ready session")
}
