package analysis

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envelope wraps a message body in the upstream response shape.
func envelope(t *testing.T, message string) []byte {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"outputs": []any{
			map[string]any{
				"outputs": []any{
					map[string]any{
						"messages": []any{
							map[string]any{"message": message},
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	return raw
}

func TestNormalizeResponseWellFormed(t *testing.T) {
	obs := NewObservation(1, "경청", "active_listening")
	message := "```json\n" + `{"reports": {"descriptions": "listens and reflects", "interactions": ["T: go on", "C: so I said"], "level": 2}}` + "\n```"

	report := NormalizeResponse(envelope(t, message), obs)

	assert.Equal(t, "active_listening", report.Category)
	assert.Equal(t, "listens and reflects", report.Descriptions)
	assert.Equal(t, []any{"T: go on", "C: so I said"}, report.Interactions)
	assert.Equal(t, 2, report.Level)
}

func TestNormalizeResponseWithoutCodeFence(t *testing.T) {
	obs := NewObservation(1, "공감", "empathy")
	message := `{"reports": {"descriptions": "warm tone", "interactions": [], "level": 1}}`

	report := NormalizeResponse(envelope(t, message), obs)

	assert.Equal(t, "empathy", report.Category)
	assert.Equal(t, 1, report.Level)
}

func TestNormalizeResponseMalformedShapes(t *testing.T) {
	obs := NewObservation(1, "경청", "active_listening")

	tests := []struct {
		name string
		raw  []byte
	}{
		{"not json at all", []byte("upstream exploded")},
		{"empty outputs", []byte(`{"outputs": []}`)},
		{"empty inner outputs", []byte(`{"outputs": [{"outputs": []}]}`)},
		{"no messages", []byte(`{"outputs": [{"outputs": [{"messages": []}]}]}`)},
		{"message not json", nil},
		{"message missing reports", nil},
	}
	tests[4].raw = envelope(t, "I could not produce JSON, sorry")
	tests[5].raw = envelope(t, `{"something_else": 1}`)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NormalizeResponse(tt.raw, obs)

			assert.Equal(t, "active_listening", report.Category)
			assert.Empty(t, report.Descriptions)
			assert.Empty(t, report.Interactions)
			assert.Equal(t, LevelUndetermined, report.Level)
		})
	}
}

func TestNormalizeResponseNonMappingReportsBecomesLevel(t *testing.T) {
	obs := NewObservation(1, "경청", "active_listening")

	report := NormalizeResponse(envelope(t, `{"reports": 3}`), obs)

	assert.Equal(t, 3, report.Level)
	assert.Empty(t, report.Descriptions)
	assert.Empty(t, report.Interactions)
}

func TestNormalizeResponseNonNumericReportsIsUndetermined(t *testing.T) {
	obs := NewObservation(1, "경청", "active_listening")

	report := NormalizeResponse(envelope(t, `{"reports": "fine overall"}`), obs)

	assert.Equal(t, LevelUndetermined, report.Level)
}

func TestNormalizeResponseNullLevel(t *testing.T) {
	obs := NewObservation(1, "경청", "active_listening")
	message := `{"reports": {"descriptions": "unclear", "interactions": [], "level": null}}`

	report := NormalizeResponse(envelope(t, message), obs)

	assert.Equal(t, LevelUndetermined, report.Level)
	assert.Equal(t, "unclear", report.Descriptions)
}

func TestNormalizeResponseMissingLevel(t *testing.T) {
	obs := NewObservation(1, "경청", "active_listening")
	message := `{"reports": {"descriptions": "no level given", "interactions": []}}`

	report := NormalizeResponse(envelope(t, message), obs)

	assert.Equal(t, LevelUndetermined, report.Level)
}

func TestNormalizeResponseScalarInteractionsWrapped(t *testing.T) {
	obs := NewObservation(1, "경청", "active_listening")
	message := `{"reports": {"descriptions": "one moment", "interactions": "T: tell me more", "level": 1}}`

	report := NormalizeResponse(envelope(t, message), obs)

	assert.Equal(t, []any{"T: tell me more"}, report.Interactions)
}

func TestNormalizeResponseStringLevelCoerced(t *testing.T) {
	obs := NewObservation(1, "경청", "active_listening")
	message := `{"reports": {"descriptions": "", "interactions": [], "level": "2"}}`

	report := NormalizeResponse(envelope(t, message), obs)

	assert.Equal(t, 2, report.Level)
}

func TestNormalizeResponseCategoryAlwaysCanonical(t *testing.T) {
	obs := NewObservation(1, "경청", "active_listening")

	// Even when the upstream claims another category the canonical label wins.
	message := `{"reports": {"category": "whatever", "descriptions": "", "interactions": [], "level": 0}}`
	report := NormalizeResponse(envelope(t, message), obs)

	assert.Equal(t, "active_listening", report.Category)
}

func TestCoerceLevel(t *testing.T) {
	tests := []struct {
		input any
		want  int
	}{
		{float64(3), 3},
		{json.Number("4"), 4},
		{"5", 5},
		{" 2 ", 2},
		{7, 7},
		{"high", LevelUndetermined},
		{true, LevelUndetermined},
		{nil, LevelUndetermined},
		{[]any{1}, LevelUndetermined},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			assert.Equal(t, tt.want, coerceLevel(tt.input))
		})
	}
}
