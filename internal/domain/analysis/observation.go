package analysis

// Observation is one behavioral evaluation dimension from the read-only
// catalog. The display name is the label sent to the inference pipeline; the
// canonical name keys the composite report.
type Observation struct {
	id            int64
	displayName   string
	canonicalName string
}

// NewObservation creates a catalog entry. Empty labels fall back to
// "Unknown" to match the persisted catalog's defaults.
func NewObservation(id int64, displayName, canonicalName string) Observation {
	if displayName == "" {
		displayName = "Unknown"
	}
	if canonicalName == "" {
		canonicalName = "Unknown"
	}
	return Observation{id: id, displayName: displayName, canonicalName: canonicalName}
}

func (o Observation) ID() int64             { return o.id }
func (o Observation) DisplayName() string   { return o.displayName }
func (o Observation) CanonicalName() string { return o.canonicalName }
