// Package sqlblob implements db.KVDB on a relational database as a table of
// (id, value) blobs.
//
// Three dialects are supported through database/sql: SQLite (modernc.org/sqlite,
// pure Go), PostgreSQL (lib/pq) and MySQL/MariaDB (go-sql-driver/mysql). Keys
// are stored as binary primary keys, so a prefix scan is the key range
// [prefix, PrefixEnd(prefix)) and is returned in key order. Scans are paged by
// key so no connection is held while the callback runs.
//
// Swap and SetIfAbsent run in a transaction (SELECT ... FOR UPDATE where the
// dialect has it), SetMany and DeleteMany are one transaction each.
//
// For SQLite the pool is limited to one connection; every connection to
// ":memory:" would otherwise open a separate empty database.
package sqlblob
