package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one transcript utterance with its speaker and timing.
type Record struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Script is the stored ordered transcript of one session.
type Script struct {
	Records []Record `json:"scripts"`
}

// ParseScript decodes the stored script artifact.
func ParseScript(data []byte) (Script, error) {
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("decoding script artifact: %w", err)
	}
	return s, nil
}

// MergeScript flattens a transcript into one text block, one line per record
// in stored order. No normalization or truncation is applied; the inference
// pipeline receives the transcript exactly as persisted.
func MergeScript(s Script) string {
	var b strings.Builder
	for _, r := range s.Records {
		b.WriteString(r.Speaker)
		b.WriteString(": ")
		b.WriteString(r.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
