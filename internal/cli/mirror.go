package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"singbirds-quiz-service/internal/config"
	"singbirds-quiz-service/internal/infra/postgres"
)

// NewMirrorCmd copies catalog hotspots and species pools into Postgres.
func NewMirrorCmd(configPath *string) *cobra.Command {
	var hotspots []string

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Mirror catalog hotspots and species pools into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg, logLevel)

			if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
				return err
			}
			db, err := openBunDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			client := newCatalogClient(cfg, logger)
			start := time.Now()
			report, err := postgres.Sync(ctx, client, postgres.NewMirrorWriter(db), hotspots, logger)
			if err != nil {
				return err
			}
			logger.Info("catalog mirrored",
				"hotspots", report.Hotspots, "species", report.Species,
				"empty", report.Empty, "failed", len(report.Failed),
				"duration", time.Since(start))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&hotspots, "hotspot", nil, "only mirror these hotspot IDs (repeatable)")
	return cmd
}
