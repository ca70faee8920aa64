// Package sqlite persists invoices, the sync cursor and scheduler history.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. One Store provides:
//
//   - DocumentStore: invoices and their line items, replaced as a unit
//   - CursorStore: the single sync watermark
//   - SchedulerStore: task state and run history
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Atomicity
//
// A document upsert deletes every stored line for its uuid and inserts the
// current set inside the same transaction as the invoice row. Batches use one
// transaction with a savepoint per document, so a failing document rolls back
// alone. Identical re-upserts are detected by content hash and write nothing.
//
// # Thread Safety
//
// All operations are safe for concurrent use. The database runs in WAL mode.
package sqlite
