package worker

import (
	"strings"

	"github.com/google/uuid"
)

// Token correlates a submitted Request with its Response.
// Callers hold only the token; the worker owns the Request until the
// Response is published.
type Token string

// newToken generates a unique correlation token.
func newToken() Token {
	return Token("req-" + uuid.NewString())
}

// ControlOp is a transaction control operation submitted through the queue.
type ControlOp int

const (
	// ControlBegin opens an explicit transaction.
	ControlBegin ControlOp = iota + 1
	// ControlCommit commits the open transaction.
	ControlCommit
	// ControlRollback rolls back the open transaction.
	ControlRollback
)

// String returns the SQL keyword for the control operation.
func (op ControlOp) String() string {
	switch op {
	case ControlBegin:
		return "BEGIN"
	case ControlCommit:
		return "COMMIT"
	case ControlRollback:
		return "ROLLBACK"
	default:
		return "UNKNOWN"
	}
}

// Kind classifies a statement by its leading keyword.
type Kind int

const (
	// KindOther covers DDL and anything not classified below.
	KindOther Kind = iota
	// KindSelect is a row-returning statement.
	KindSelect
	// KindInsert is an INSERT statement.
	KindInsert
	// KindUpdate is an UPDATE statement.
	KindUpdate
	// KindDelete is a DELETE statement.
	KindDelete
)

// String returns a lowercase name for the kind, used in log fields,
// event topics and telemetry tags.
func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "other"
	}
}

// classify determines the statement kind from its first keyword.
func classify(query string) Kind {
	q := strings.TrimSpace(query)
	if len(q) == 0 {
		return KindOther
	}
	end := strings.IndexFunc(q, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	if end == -1 {
		end = len(q)
	}
	switch strings.ToUpper(q[:end]) {
	case "SELECT":
		return KindSelect
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	default:
		return KindOther
	}
}

// request is a unit of work owned by the dispatch loop from enqueue until
// its Response is published. Immutable once created.
type request struct {
	token   Token
	seq     uint64
	query   string
	args    []any
	control ControlOp // zero means a raw statement
}

// Response is the outcome of one Request, matched to its Token.
// It is created exactly once, on the dispatch goroutine, and delivered to
// at most one waiting caller.
type Response struct {
	// Token identifies the Request this Response answers.
	Token Token

	// Rows holds the result rows of a row-returning statement, in order.
	// Nil for statements that return no rows.
	Rows [][]any

	// RowsAffected is the number of rows changed by a write statement.
	RowsAffected int64

	// LastInsertID is the rowid generated by an INSERT, when applicable.
	LastInsertID int64

	// Err is the classified failure, nil on success. Statement errors,
	// lock timeouts and transaction state errors all arrive here; they
	// never escape through any other channel.
	Err error
}
