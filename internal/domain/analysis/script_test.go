package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScript(t *testing.T) {
	data := []byte(`{
		"scripts": [
			{"speaker": "상담사", "text": "오늘 기분이 어떠세요?", "start_time": "00:00:01", "end_time": "00:00:04"},
			{"speaker": "내담자", "text": "조금 나아졌어요.", "start_time": "00:00:05", "end_time": "00:00:08"}
		]
	}`)

	script, err := ParseScript(data)
	require.NoError(t, err)
	require.Len(t, script.Records, 2)
	assert.Equal(t, "상담사", script.Records[0].Speaker)
	assert.Equal(t, "00:00:05", script.Records[1].StartTime)
}

func TestParseScriptInvalidJSON(t *testing.T) {
	_, err := ParseScript([]byte("not a script"))
	require.Error(t, err)
}

func TestMergeScriptPreservesOrder(t *testing.T) {
	script := Script{Records: []Record{
		{Speaker: "T", Text: "how was your week"},
		{Speaker: "C", Text: "hard, honestly"},
		{Speaker: "T", Text: "tell me more"},
	}}

	merged := MergeScript(script)

	assert.Equal(t, "T: how was your week\nC: hard, honestly\nT: tell me more\n", merged)
}

func TestMergeScriptEmpty(t *testing.T) {
	assert.Empty(t, MergeScript(Script{}))
}
