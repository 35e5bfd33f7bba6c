package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/ResumeLens/internal/infrastructure/database/postgres"
	"github.com/turtacn/ResumeLens/pkg/errors"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the build report schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPostgres(cmd, func(conn *postgres.Connection) error {
					if err := conn.MigrateUp(); err != nil {
						return err
					}
					PrintSuccess(cmd, "migrations applied")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down STEPS",
			Short: "Roll back the given number of migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps, err := strconv.Atoi(args[0])
				if err != nil {
					return errors.Validation("steps", "steps must be an integer")
				}
				return withPostgres(cmd, func(conn *postgres.Connection) error {
					if err := conn.MigrateDown(steps); err != nil {
						return err
					}
					PrintSuccess(cmd, fmt.Sprintf("rolled back %d migration(s)", steps))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPostgres(cmd, func(conn *postgres.Connection) error {
					status, err := conn.MigrationVersion()
					if err != nil {
						return err
					}
					return PrintResult(cmd, status)
				})
			},
		},
	)
	return cmd
}

func newReportsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List stored corpus build reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPostgres(cmd, func(conn *postgres.Connection) error {
				cliCtx, err := GetCLIContext(cmd)
				if err != nil {
					return err
				}
				reports, err := postgres.NewReportStore(conn, cliCtx.Logger).ListReports(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return PrintResult(cmd, reportList(reports))
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports")
	return cmd
}

func withPostgres(cmd *cobra.Command, fn func(conn *postgres.Connection) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	rt := newRuntime(cliCtx)
	defer rt.Close()
	conn, err := rt.postgres(cmd.Context())
	if err != nil {
		return err
	}
	return fn(conn)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// No config is needed to print the version.
		PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return nil },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "resumelens %s (commit: %s, built: %s)\n", Version, GitCommit, BuildDate)
			return nil
		},
	}
}
