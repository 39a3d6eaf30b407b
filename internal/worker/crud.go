package worker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// identifierPattern is the safe identifier shape for tables and columns.
// Anything else is rejected before statement text is generated, so caller
// input can never change the shape of the SQL. Values are never
// interpolated at all; they always travel as bound parameters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// orderByPattern additionally allows a direction suffix.
var orderByPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(?: (?i:ASC|DESC))?$`)

// validateIdentifier rejects unsafe table/column names.
func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// sortedKeys returns the map's keys in sorted order, for deterministic
// generated SQL.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Insert submits an INSERT built from a column-to-value mapping.
//
// Identifiers are validated against a safe pattern; values are passed as
// bound parameters. Column order in the generated statement is the sorted
// key order, so the same mapping always generates the same SQL.
//
// Returns the correlation token, or ErrInvalidIdentifier before anything
// is enqueued.
func (w *Worker) Insert(table string, values map[string]any) (Token, error) {
	if err := validateIdentifier(table); err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", fmt.Errorf("worker: insert into %q with no values", table)
	}

	cols := sortedKeys(values)
	args := make([]any, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for _, col := range cols {
		if err := validateIdentifier(col); err != nil {
			return "", err
		}
		args = append(args, values[col])
		placeholders = append(placeholders, "?")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)
	return w.Submit(query, args...)
}

// Update submits an UPDATE built from value and condition mappings.
// An empty conditions map updates every row.
func (w *Worker) Update(table string, values, conditions map[string]any) (Token, error) {
	if err := validateIdentifier(table); err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", fmt.Errorf("worker: update %q with no values", table)
	}

	var args []any

	setCols := sortedKeys(values)
	setParts := make([]string, 0, len(setCols))
	for _, col := range setCols {
		if err := validateIdentifier(col); err != nil {
			return "", err
		}
		setParts = append(setParts, col+" = ?")
		args = append(args, values[col])
	}

	query := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(setParts, ", "))

	whereSQL, whereArgs, err := buildWhere(conditions)
	if err != nil {
		return "", err
	}
	query += whereSQL
	args = append(args, whereArgs...)

	return w.Submit(query, args...)
}

// Delete submits a DELETE built from a condition mapping.
// An empty conditions map deletes every row.
func (w *Worker) Delete(table string, conditions map[string]any) (Token, error) {
	if err := validateIdentifier(table); err != nil {
		return "", err
	}

	query := "DELETE FROM " + table

	whereSQL, whereArgs, err := buildWhere(conditions)
	if err != nil {
		return "", err
	}
	query += whereSQL

	return w.Submit(query, whereArgs...)
}

// SelectOptions shape a generated SELECT.
type SelectOptions struct {
	// Columns to project; empty means "*".
	Columns []string

	// Conditions are ANDed equality filters, values bound as parameters.
	Conditions map[string]any

	// OrderBy is a single column, optionally suffixed with ASC or DESC.
	OrderBy string

	// Limit caps the row count when positive.
	Limit int
}

// Select submits a SELECT built from SelectOptions.
func (w *Worker) Select(table string, opts SelectOptions) (Token, error) {
	if err := validateIdentifier(table); err != nil {
		return "", err
	}

	projection := "*"
	if len(opts.Columns) > 0 {
		for _, col := range opts.Columns {
			if err := validateIdentifier(col); err != nil {
				return "", err
			}
		}
		projection = strings.Join(opts.Columns, ", ")
	}

	query := fmt.Sprintf("SELECT %s FROM %s", projection, table)

	whereSQL, args, err := buildWhere(opts.Conditions)
	if err != nil {
		return "", err
	}
	query += whereSQL

	if opts.OrderBy != "" {
		if !orderByPattern.MatchString(opts.OrderBy) {
			return "", fmt.Errorf("%w: order by %q", ErrInvalidIdentifier, opts.OrderBy)
		}
		query += " ORDER BY " + opts.OrderBy
	}

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	return w.Submit(query, args...)
}

// buildWhere renders an ANDed equality WHERE clause from a condition
// mapping, in sorted key order. Returns an empty clause for an empty map.
func buildWhere(conditions map[string]any) (string, []any, error) {
	if len(conditions) == 0 {
		return "", nil, nil
	}

	cols := sortedKeys(conditions)
	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		if err := validateIdentifier(col); err != nil {
			return "", nil, err
		}
		parts = append(parts, col+" = ?")
		args = append(args, conditions[col])
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}
