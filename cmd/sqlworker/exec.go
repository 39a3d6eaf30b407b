package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec <sql> [args...]",
	Short: "Execute a single statement",
	Long: `Execute one SQL statement through the worker. Positional arguments
after the statement are bound as string parameters in order.

Examples:
  sqlworker exec "SELECT * FROM users WHERE age > ?" 30
  sqlworker exec "INSERT INTO users (name) VALUES (?)" ada`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.close()

	params := make([]any, len(args)-1)
	for i, a := range args[1:] {
		params[i] = a
	}

	resp, err := e.worker.Exec(cmd.Context(), args[0], params...)
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	if resp.Rows != nil {
		for _, row := range resp.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = fmt.Sprintf("%v", v)
			}
			fmt.Println(strings.Join(cells, "\t"))
		}
		fmt.Printf("(%d rows)\n", len(resp.Rows))
		return nil
	}

	fmt.Printf("rows affected: %d", resp.RowsAffected)
	if resp.LastInsertID > 0 {
		fmt.Printf(", last insert id: %d", resp.LastInsertID)
	}
	fmt.Println()
	return nil
}
