package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sessionlens/analyzer/internal/domain/analysis"
	"github.com/sessionlens/analyzer/internal/infra/storage"
)

var _ analysis.ObservationRepository = (*observationStore)(nil)

// observationStore provides read access to the observation catalog: the
// fixed list of behavioral dimensions evaluated on every run.
type observationStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewObservationStore creates a PostgreSQL-backed observation catalog store.
func NewObservationStore(pool *pgxpool.Pool, tracer trace.Tracer) *observationStore {
	return &observationStore{pool: pool, tracer: tracer}
}

// List returns the full catalog in its reference order (descending id, the
// order the catalog was defined to be evaluated in).
func (s *observationStore) List(ctx context.Context) ([]analysis.Observation, error) {
	var observations []analysis.Observation

	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.analysis.list_observations", defaultDBAttributes, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx,
			`SELECT id, display_name, canonical_name FROM observations ORDER BY id DESC`)
		if err != nil {
			return fmt.Errorf("listing observations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id                         int64
				displayName, canonicalName string
			)
			if err := rows.Scan(&id, &displayName, &canonicalName); err != nil {
				return fmt.Errorf("scanning observation: %w", err)
			}
			observations = append(observations, analysis.NewObservation(id, displayName, canonicalName))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return observations, nil
}

// Get loads one catalog entry by id, or (nil, nil) if it does not exist.
func (s *observationStore) Get(ctx context.Context, id int64) (*analysis.Observation, error) {
	dbAttrs := append(defaultDBAttributes, attribute.Int64("observation_id", id))

	var observation *analysis.Observation
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.analysis.get_observation", dbAttrs, func(ctx context.Context) error {
		var (
			displayName, canonicalName string
		)
		err := s.pool.QueryRow(ctx,
			`SELECT display_name, canonical_name FROM observations WHERE id = $1`, id,
		).Scan(&displayName, &canonicalName)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("getting observation %d: %w", id, err)
		}
		obs := analysis.NewObservation(id, displayName, canonicalName)
		observation = &obs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return observation, nil
}

// Seed inserts catalog entries when the table is empty. It is used at
// startup to load the reference catalog from configuration.
func (s *observationStore) Seed(ctx context.Context, observations []analysis.Observation) error {
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.analysis.seed_observations", defaultDBAttributes, func(ctx context.Context) error {
		var count int
		if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM observations`).Scan(&count); err != nil {
			return fmt.Errorf("counting observations: %w", err)
		}
		if count > 0 {
			return nil
		}

		for _, obs := range observations {
			if _, err := s.pool.Exec(ctx,
				`INSERT INTO observations (display_name, canonical_name) VALUES ($1, $2)`,
				obs.DisplayName(), obs.CanonicalName(),
			); err != nil {
				return fmt.Errorf("seeding observation %q: %w", obs.CanonicalName(), err)
			}
		}
		return nil
	})
}
