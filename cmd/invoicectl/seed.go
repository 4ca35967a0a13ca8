package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/infrastructure/cache"
	"github.com/invoiceflow/backend/internal/infrastructure/logger"
	"github.com/invoiceflow/backend/internal/infrastructure/persistence"
	"github.com/invoiceflow/backend/internal/infrastructure/seed"
)

func newSeedCmd(c *cli) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed [file]",
		Short: "Upsert vendor mappings from a YAML seed file",
		Long: `Creates or updates vendor mappings by name from a YAML file:

  vendor_mappings:
    - vendor_name: Acme Corp
      field_mappings:
        invoice_number: [doc_no]
      regex_patterns:
        project_number: 'Project\s+(\d+)'

Without an argument the file configured as processing.seed_file is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfg.Processing.SeedFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no seed file given and processing.seed_file is not set")
			}

			f, err := seed.LoadFile(path)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d vendor mappings OK\n", path, len(f.VendorMappings))
				return nil
			}

			db, err := persistence.NewDatabase(&c.cfg.Database,
				persistence.WithGormLogger(logger.NewGormLogger(c.log, logger.MapGormLogLevel(c.logLevel))),
			)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					c.log.Warn("Failed to close database", zap.Error(err))
				}
			}()
			if db.Driver == "sqlite" {
				if err := persistence.AutoMigrate(db.DB); err != nil {
					return err
				}
			}

			// Seeding through the configured cache keeps a shared Redis cache in sync.
			// A process-local cache would die with the command, so Redis must be reachable.
			mappingCache, closeCache, err := cache.NewVendorMappingCacheFactory(c.cfg.Cache, c.cfg.Redis,
				cache.WithLogger(c.log),
				cache.WithInMemoryFallback(false),
			).Create(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeCache() }()

			svc := invoiceapp.NewVendorMappingService(
				persistence.NewGormVendorMappingRepository(db.DB),
				persistence.NewGormInvoiceRepository(db.DB),
				invoiceapp.WithMappingCache(mappingCache),
				invoiceapp.WithMappingLogger(c.log),
			)
			res, err := seed.NewSeeder(svc, c.log).Apply(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created=%d updated=%d\n", res.Created, res.Updated)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only validate the seed file")
	return cmd
}
