package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"singbirds-quiz-service/internal/domain"
)

// PoolLoader reads hotspots and species pools from the catalog mirror.
type PoolLoader struct {
	pool *pgxpool.Pool
}

func NewPoolLoader(pool *pgxpool.Pool) *PoolLoader {
	return &PoolLoader{pool: pool}
}

// ListSpecies returns the mirrored pool in catalog order. A hotspot that was
// never mirrored, or mirrored empty, yields domain.ErrEmptyPool.
func (l *PoolLoader) ListSpecies(ctx context.Context, hotspotID string) ([]domain.Species, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT species_id, common_name FROM hotspot_species WHERE hotspot_id=$1 ORDER BY position`, hotspotID)
	if err != nil {
		return nil, fmt.Errorf("list species: %w", err)
	}
	defer rows.Close()

	var species []domain.Species
	for rows.Next() {
		var s domain.Species
		if err := rows.Scan(&s.ID, &s.CommonName); err != nil {
			return nil, fmt.Errorf("scan species: %w", err)
		}
		species = append(species, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list species: %w", err)
	}
	if len(species) == 0 {
		return nil, fmt.Errorf("hotspot %s: %w", hotspotID, domain.ErrEmptyPool)
	}
	return species, nil
}

// ListHotspots returns every mirrored hotspot ordered by name.
func (l *PoolLoader) ListHotspots(ctx context.Context) ([]domain.Hotspot, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, name FROM hotspots ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list hotspots: %w", err)
	}
	defer rows.Close()

	hotspots := []domain.Hotspot{}
	for rows.Next() {
		var h domain.Hotspot
		if err := rows.Scan(&h.ID, &h.Name); err != nil {
			return nil, fmt.Errorf("scan hotspot: %w", err)
		}
		hotspots = append(hotspots, h)
	}
	return hotspots, rows.Err()
}
