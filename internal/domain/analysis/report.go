package analysis

// LevelUndetermined is the reserved severity sentinel meaning the inference
// pipeline could not produce a usable level for a dimension.
const LevelUndetermined = -1

// BatchPromptReport is one dimension's normalized result: a category label,
// a free-text description, the supporting interaction excerpts, and an
// integer severity level.
type BatchPromptReport struct {
	Category     string `json:"category"`
	Descriptions string `json:"descriptions"`
	Interactions []any  `json:"interactions"`
	Level        int    `json:"level"`
}

// NewBatchPromptReport returns a report with the catalog defaults applied:
// unknown category, empty description, no interactions, undetermined level.
func NewBatchPromptReport() BatchPromptReport {
	return BatchPromptReport{
		Category:     "unknown",
		Interactions: []any{},
		Level:        LevelUndetermined,
	}
}

// AnalyzeReport is the composite artifact of one successful run: one
// BatchPromptReport per catalog dimension, keyed by canonical label.
type AnalyzeReport struct {
	Reports map[string]BatchPromptReport `json:"reports"`
}

// ReportBuilder accumulates per-dimension reports into a composite
// AnalyzeReport. It performs no completeness validation; covering the full
// catalog is the orchestrator's invariant.
type ReportBuilder struct {
	reports map[string]BatchPromptReport
}

// NewReportBuilder creates an empty builder.
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{reports: make(map[string]BatchPromptReport)}
}

// Add inserts a dimension's report keyed by its canonical label. The last
// write wins if the same label is added twice.
func (b *ReportBuilder) Add(canonicalName string, report BatchPromptReport) {
	b.reports[canonicalName] = report
}

// Len returns the number of accumulated dimension reports.
func (b *ReportBuilder) Len() int { return len(b.reports) }

// Finish returns the accumulated composite report. It copies the mapping so
// repeated calls return equal, independent snapshots.
func (b *ReportBuilder) Finish() AnalyzeReport {
	out := make(map[string]BatchPromptReport, len(b.reports))
	for k, v := range b.reports {
		out[k] = v
	}
	return AnalyzeReport{Reports: out}
}
