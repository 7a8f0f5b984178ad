package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/AgriBot-NLU/internal/config"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/postgres"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// migrator is the subset of the postgres migration helpers used here.
type migrator struct {
	up     func(dbURL, path string) error
	down   func(dbURL, path string, steps int) error
	status func(dbURL, path string) (uint, bool, error)
	force  func(dbURL, path string, version int) error
}

var migrations = migrator{
	up:     postgres.RunMigrations,
	down:   postgres.RollbackMigration,
	status: postgres.MigrationStatus,
	force:  postgres.ForceMigrationVersion,
}

// NewMigrateCmd creates the migrate command for the audit-log schema.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the extraction audit-log schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return errors.New(errors.ErrCodeValidation, "steps must be at least 1")
			}
			return runMigration(cmd, "down", func(url, path string) error {
				return migrations.down(url, path, steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigration(cmd, "up", migrations.up)
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version",
			Args:  cobra.NoArgs,
			RunE:  runMigrationStatus,
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations (clears the dirty flag)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil || version < -1 {
					return errors.New(errors.ErrCodeValidation, "version must be an integer >= -1").WithDetail(args[0])
				}
				return runMigration(cmd, "force", func(url, path string) error {
					return migrations.force(url, path, version)
				})
			},
		},
	)
	return cmd
}

func databaseTarget(cfg *config.Config) (string, string) {
	return postgres.DSN(cfg.Database.PostgresConfig), cfg.Database.MigrationsPath
}

func runMigration(cmd *cobra.Command, action string, fn func(url, path string) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	url, path := databaseTarget(cliCtx.Config)
	cliCtx.Logger.Info("Running migration",
		logging.String("action", action),
		logging.String("host", cliCtx.Config.Database.Host),
		logging.String("database", cliCtx.Config.Database.Database))

	if err := fn(url, path); err != nil {
		return err
	}
	PrintSuccess(cmd, fmt.Sprintf("migrate %s completed", action))
	return nil
}

type migrationStatusOutput struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (o migrationStatusOutput) TableHeaders() []string { return []string{"Version", "Dirty"} }

func (o migrationStatusOutput) TableRows() [][]string {
	return [][]string{{strconv.FormatUint(uint64(o.Version), 10), strconv.FormatBool(o.Dirty)}}
}

func (o migrationStatusOutput) String() string {
	if o.Dirty {
		return fmt.Sprintf("version %d (dirty)", o.Version)
	}
	return fmt.Sprintf("version %d", o.Version)
}

func runMigrationStatus(cmd *cobra.Command, _ []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	url, path := databaseTarget(cliCtx.Config)
	version, dirty, err := migrations.status(url, path)
	if err != nil {
		return err
	}
	return PrintResult(cmd, migrationStatusOutput{Version: version, Dirty: dirty})
}

//Personal.AI order the ending
