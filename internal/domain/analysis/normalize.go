package analysis

import (
	"encoding/json"
	"strconv"
	"strings"
)

// inferenceEnvelope mirrors the nested message path of the upstream response:
// outputs[0].outputs[0].messages[0].message.
type inferenceEnvelope struct {
	Outputs []struct {
		Outputs []struct {
			Messages []struct {
				Message string `json:"message"`
			} `json:"messages"`
		} `json:"outputs"`
	} `json:"outputs"`
}

// NormalizeResponse repairs a raw upstream envelope into a well-formed
// BatchPromptReport for the given observation. The upstream pipeline is
// unreliable, so every malformed shape is absorbed here:
//
//   - a missing message path or unparseable payload yields the undetermined
//     sentinel report,
//   - a non-mapping reports value becomes the severity level,
//   - a missing or null level becomes the undetermined sentinel,
//   - a scalar interactions value is wrapped in a single-element list.
//
// The result always carries the observation's canonical label as category.
// This function never fails; shape problems must not abort a run.
func NormalizeResponse(raw []byte, obs Observation) BatchPromptReport {
	report := NewBatchPromptReport()
	report.Category = obs.CanonicalName()

	reports, ok := extractReports(raw)
	if !ok {
		return report
	}

	fields, ok := reports.(map[string]any)
	if !ok {
		// The pipeline emitted a bare value where a mapping was expected;
		// treat it as the severity level.
		report.Level = coerceLevel(reports)
		return report
	}

	if desc, ok := fields["descriptions"].(string); ok {
		report.Descriptions = desc
	}
	if level, ok := fields["level"]; ok && level != nil {
		report.Level = coerceLevel(level)
	}
	if interactions, ok := fields["interactions"]; ok && interactions != nil {
		if list, ok := interactions.([]any); ok {
			report.Interactions = list
		} else {
			report.Interactions = []any{interactions}
		}
	}
	return report
}

// extractReports digs the reports payload out of the envelope: first nested
// message body, fence wrapper stripped, parsed as JSON. The second return is
// false whenever any step fails.
func extractReports(raw []byte) (any, bool) {
	var envelope inferenceEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false
	}
	if len(envelope.Outputs) == 0 ||
		len(envelope.Outputs[0].Outputs) == 0 ||
		len(envelope.Outputs[0].Outputs[0].Messages) == 0 {
		return nil, false
	}
	message := envelope.Outputs[0].Outputs[0].Messages[0].Message

	message = strings.ReplaceAll(message, "```json", "")
	message = strings.ReplaceAll(message, "```", "")
	message = strings.TrimSpace(message)

	var payload struct {
		Reports any `json:"reports"`
	}
	if err := json.Unmarshal([]byte(message), &payload); err != nil {
		return nil, false
	}
	return payload.Reports, true
}

// coerceLevel converts a loosely typed level value to an int, falling back
// to the undetermined sentinel for anything non-numeric.
func coerceLevel(v any) int {
	switch level := v.(type) {
	case float64:
		return int(level)
	case json.Number:
		if n, err := level.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(level)); err == nil {
			return n
		}
	case int:
		return level
	}
	return LevelUndetermined
}
