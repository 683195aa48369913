package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"singbirds-quiz-service/internal/domain"
)

// HotspotRow mirrors one catalog hotspot.
type HotspotRow struct {
	bun.BaseModel `bun:"table:hotspots"`

	ID       string    `bun:"id,pk"`
	Name     string    `bun:"name,notnull"`
	SyncedAt time.Time `bun:"synced_at,notnull,default:current_timestamp"`
}

// HotspotSpeciesRow is one entry of a mirrored species pool. Position keeps
// the catalog order.
type HotspotSpeciesRow struct {
	bun.BaseModel `bun:"table:hotspot_species"`

	HotspotID  string `bun:"hotspot_id,pk"`
	SpeciesID  string `bun:"species_id,pk"`
	CommonName string `bun:"common_name,notnull"`
	Position   int    `bun:"position,notnull"`
}

// MirrorWriter writes catalog data into Postgres through bun.
type MirrorWriter struct {
	db  *bun.DB
	now func() time.Time
}

func NewMirrorWriter(db *bun.DB) *MirrorWriter {
	return &MirrorWriter{db: db, now: time.Now}
}

// UpsertHotspots inserts or renames hotspots.
func (w *MirrorWriter) UpsertHotspots(ctx context.Context, hotspots []domain.Hotspot) error {
	if len(hotspots) == 0 {
		return nil
	}
	now := w.now()
	rows := make([]HotspotRow, len(hotspots))
	for i, h := range hotspots {
		rows[i] = HotspotRow{ID: h.ID, Name: h.Name, SyncedAt: now}
	}
	_, err := w.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("synced_at = EXCLUDED.synced_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert hotspots: %w", err)
	}
	return nil
}

// ReplaceSpecies swaps a hotspot's pool in one transaction.
func (w *MirrorWriter) ReplaceSpecies(ctx context.Context, hotspotID string, species []domain.Species) error {
	return w.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*HotspotSpeciesRow)(nil)).
			Where("hotspot_id = ?", hotspotID).
			Exec(ctx); err != nil {
			return fmt.Errorf("clear species for %s: %w", hotspotID, err)
		}
		if len(species) == 0 {
			return nil
		}

		rows := make([]HotspotSpeciesRow, len(species))
		for i, s := range species {
			rows[i] = HotspotSpeciesRow{HotspotID: hotspotID, SpeciesID: s.ID, CommonName: s.CommonName, Position: i}
		}
		if _, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (hotspot_id, species_id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("insert species for %s: %w", hotspotID, err)
		}
		return nil
	})
}

// CatalogSource is what Sync reads from, normally the catalog client.
type CatalogSource interface {
	ListHotspots(ctx context.Context) ([]domain.Hotspot, error)
	ListSpecies(ctx context.Context, hotspotID string) ([]domain.Species, error)
}

// MirrorStore is what Sync writes to.
type MirrorStore interface {
	UpsertHotspots(ctx context.Context, hotspots []domain.Hotspot) error
	ReplaceSpecies(ctx context.Context, hotspotID string, species []domain.Species) error
}

// SyncReport summarizes a mirror run.
type SyncReport struct {
	Hotspots int
	Species  int
	Empty    int
	Failed   []string
}

// Sync copies hotspots and their pools from src into dst. When only is
// non-empty, just those hotspot IDs are refreshed. A hotspot whose listing
// fails keeps its previous pool and is reported in Failed.
func Sync(ctx context.Context, src CatalogSource, dst MirrorStore, only []string, logger *slog.Logger) (SyncReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var report SyncReport

	hotspots, err := src.ListHotspots(ctx)
	if err != nil {
		return report, fmt.Errorf("list hotspots: %w", err)
	}
	if len(only) > 0 {
		hotspots = filterHotspots(hotspots, only)
	}
	if err := dst.UpsertHotspots(ctx, hotspots); err != nil {
		return report, err
	}
	report.Hotspots = len(hotspots)

	for _, h := range hotspots {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		species, err := src.ListSpecies(ctx, h.ID)
		switch {
		case errors.Is(err, domain.ErrEmptyPool):
			species = nil
			report.Empty++
		case err != nil:
			logger.Warn("species listing failed, keeping previous mirror", "hotspot_id", h.ID, "error", err)
			report.Failed = append(report.Failed, h.ID)
			continue
		}
		if err := dst.ReplaceSpecies(ctx, h.ID, species); err != nil {
			return report, err
		}
		report.Species += len(species)
		logger.Debug("hotspot mirrored", "hotspot_id", h.ID, "species", len(species))
	}
	return report, nil
}

func filterHotspots(hotspots []domain.Hotspot, only []string) []domain.Hotspot {
	wanted := make(map[string]struct{}, len(only))
	for _, id := range only {
		wanted[id] = struct{}{}
	}
	out := hotspots[:0:0]
	for _, h := range hotspots {
		if _, ok := wanted[h.ID]; ok {
			out = append(out, h)
		}
	}
	return out
}
