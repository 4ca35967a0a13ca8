package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/invoiceflow/backend/internal/infrastructure/migration"
)

func newMigrateCmd(c *cli) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
		Long: `Applies the SQL migrations under the migrations directory.

SQLite databases are created from the persistence models by the server and
do not use these migrations.`,
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "Migrations directory (default: database.migrations_path)")

	// withMigrator opens the database and runs fn against a migrator
	withMigrator := func(fn func(*migration.Migrator) error) error {
		dir, err := migrationsDir(path, c.cfg.Database.MigrationsPath)
		if err != nil {
			return err
		}
		if c.cfg.Database.Driver != "postgres" {
			return fmt.Errorf("migrations require the postgres driver, got %q", c.cfg.Database.Driver)
		}

		db, err := sql.Open("postgres", c.cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return fmt.Errorf("ping database: %w", err)
		}

		m, err := migration.New(db, dir, c.log)
		if err != nil {
			_ = db.Close()
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				c.log.Warn("Failed to close migrator", zap.Error(err))
			}
		}()
		return fn(m)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator((*migration.Migrator).Up)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator((*migration.Migrator).Down)
			},
		},
		&cobra.Command{
			Use:   "step <n>",
			Short: "Apply n migrations, or roll back when n is negative",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return withMigrator(func(m *migration.Migrator) error { return m.Steps(n) })
			},
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate up or down to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return withMigrator(func(m *migration.Migrator) error { return m.GoTo(uint(version)) })
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return withMigrator(func(m *migration.Migrator) error { return m.Force(version) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migration.Migrator) error {
					status, err := m.Status()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", status.Version, status.Dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "create <name> [description]",
			Short: "Create a new pair of up/down migration files",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := migrationsDir(path, c.cfg.Database.MigrationsPath)
				if err != nil {
					return err
				}
				description := ""
				if len(args) > 1 {
					description = args[1]
				}
				mf, err := migration.CreateMigration(dir, args[0], description)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), mf.UpPath)
				fmt.Fprintln(cmd.OutOrStdout(), mf.DownPath)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List migration files",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := migrationsDir(path, c.cfg.Database.MigrationsPath)
				if err != nil {
					return err
				}
				files, err := migration.ListMigrations(dir)
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
				return nil
			},
		},
	)
	return cmd
}

// migrationsDir resolves the migrations directory. An explicit flag wins over
// the configured path; a relative configured path is also tried next to the binary.
func migrationsDir(flagPath, configured string) (string, error) {
	dir := flagPath
	if dir == "" {
		dir = configured
		if _, err := os.Stat(dir); err != nil && !filepath.IsAbs(dir) {
			if exe, err := os.Executable(); err == nil {
				candidate := filepath.Join(filepath.Dir(exe), dir)
				if _, err := os.Stat(candidate); err == nil {
					dir = candidate
				}
			}
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path: %w", err)
	}
	return abs, nil
}
