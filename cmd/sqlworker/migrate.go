package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/sqlworker/internal/migrate"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Long: `Apply every pending ".up.sql" migration from the migrations
directory, in version order. Filenames follow the
"<version>_<name>.up.sql" convention. Already applied versions are
skipped, so re-running is safe.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVarP(&migrationsDir, "dir", "d", "migrations", "Directory containing migration files")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.close()

	ledger := migrate.New(e.worker)
	applied, err := ledger.ApplyFS(cmd.Context(), os.DirFS(migrationsDir), ".")
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	if applied == 0 {
		fmt.Println("no pending migrations")
		return nil
	}
	fmt.Printf("applied %d migration(s)\n", applied)
	return nil
}
