// Package migrate provides a versioned migration ledger on top of the
// worker.
//
// The ledger records applied schema versions in a schema_migrations
// table. Each Apply or Rollback runs its script and the matching ledger
// write inside one scoped transaction, so a failing script leaves both
// the schema and the ledger untouched. Re-applying a recorded version is
// a no-op, which makes migration runs idempotent.
//
// Scripts are split on semicolons into individual statements. Semicolons
// inside string literals or comments are not handled; keep migration
// scripts free of them.
package migrate
