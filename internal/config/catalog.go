package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sessionlens/analyzer/internal/domain/analysis"
)

// catalogFile is the layout of a standalone observation catalog seed file.
type catalogFile struct {
	Observations []ObservationSeed `yaml:"observations"`
}

// LoadCatalog reads an observation catalog seed file. The catalog is
// reference data owned by ops; keeping it in its own file lets it ship
// separately from the service configuration.
func LoadCatalog(path string) ([]analysis.Observation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file %q: %w", path, err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog file %q: %w", path, err)
	}

	return SeedObservations(f.Observations), nil
}

// SeedObservations converts seed entries to domain observations. Ids are
// positional; the database assigns real ids on insert.
func SeedObservations(seeds []ObservationSeed) []analysis.Observation {
	observations := make([]analysis.Observation, 0, len(seeds))
	for i, seed := range seeds {
		observations = append(observations, analysis.NewObservation(int64(i+1), seed.DisplayName, seed.CanonicalName))
	}
	return observations
}
