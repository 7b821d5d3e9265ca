// Package tasks persists upload task snapshots in the local SQLite database.
//
// A snapshot is replaced as a whole: callers delete every row and insert the
// current set inside one transaction (see dbx.WithTx). Rows come back in
// submission order (seq).
package tasks
