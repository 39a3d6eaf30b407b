package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/sqlworker/internal/migrate"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine and migration status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.close()

	fmt.Printf("database: %s\n", e.cfg.Database.Path)
	fmt.Printf("queue depth: %d\n", e.worker.QueueLen())
	fmt.Printf("in transaction: %v\n", e.worker.InTransaction())

	ledger := migrate.New(e.worker)
	records, err := ledger.Applied(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading migration ledger: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("migrations: none applied")
		return nil
	}
	fmt.Printf("migrations: %d applied\n", len(records))
	for _, r := range records {
		fmt.Printf("  %s  %s  %s\n", r.Version, r.Name, r.AppliedAt.Format(time.RFC3339))
	}
	return nil
}
