package sqlblob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"

	// database/sql drivers for the supported dialects
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var log = logger.GetLogger("engine/sql")

const (
	// DefaultTable is the blob table used when Options.Table is empty
	DefaultTable = "evkv_blob"

	// batchChunk bounds the number of keys per IN (...) clause
	batchChunk = 256
	// scanPage is the number of rows fetched per scan round trip
	scanPage = 256
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options configures the SQL blob table engine
type Options struct {
	// Dialect name: sqlite, postgres or mysql
	Dialect string
	// DSN is passed to sql.Open
	DSN string
	// Table name (created if missing)
	Table string
	// MaxOpenConns limits the pool (0 = unlimited, forced to 1 for sqlite)
	MaxOpenConns int
}

// sqlBlobDB implements db.KVDB with a two column table (id, value).
// Keys are compared as bytes, so prefix scans are key range queries in key order.
type sqlBlobDB struct {
	db      *sql.DB
	dialect Dialect
	table   string
	q       queries
	closed  atomic.Bool
}

// Open connects to the database and creates the blob table if needed
func Open(o Options) (db.KVDB, error) {
	dialect, err := ParseDialect(o.Dialect)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(dialect.Name, o.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlblob: open %s: %w", dialect.Name, err)
	}

	maxConns := o.MaxOpenConns
	if dialect.Name == SQLite.Name {
		// sqlite allows one writer, and every connection to :memory: is its own database
		maxConns = 1
	}
	sqlDB.SetMaxOpenConns(maxConns)

	kv, err := OpenDB(sqlDB, dialect, o.Table)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return kv, nil
}

// OpenDB uses an existing connection pool. The engine takes ownership of sqlDB.
func OpenDB(sqlDB *sql.DB, dialect Dialect, table string) (db.KVDB, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("sqlblob: invalid table name %q", table)
	}

	s := &sqlBlobDB{
		db:      sqlDB,
		dialect: dialect,
		table:   table,
		q:       dialect.queries(table),
	}
	if _, err := sqlDB.Exec(s.q.create); err != nil {
		return nil, fmt.Errorf("sqlblob: create table %s: %w", table, err)
	}

	log.Infof("using %s table %s", dialect.Name, table)
	return s, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (s *sqlBlobDB) check() error {
	if s.closed.Load() {
		return db.ErrClosed
	}
	return nil
}

type queryer interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func (s *sqlBlobDB) get(q queryer, query string, key []byte) ([]byte, bool, error) {
	var value []byte
	err := q.QueryRow(query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return util.CopyValue(value), true, nil
}

// inTx runs fn in a transaction and commits if fn succeeds
func (s *sqlBlobDB) inTx(fn func(tx *sql.Tx) error) error {
	if err := s.check(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func args(keys [][]byte) []interface{} {
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (s *sqlBlobDB) Set(key, value []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.db.Exec(s.q.upsert, key, util.CopyValue(value))
	return err
}

// SetMany upserts all entries in one transaction
func (s *sqlBlobDB) SetMany(keys, values [][]byte) error {
	if err := db.CheckBatch(keys, values); err != nil {
		return err
	}
	if len(keys) == 0 {
		return s.check()
	}
	return s.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(s.q.upsert)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range keys {
			if _, err := stmt.Exec(keys[i], util.CopyValue(values[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqlBlobDB) Swap(key, value []byte) (old []byte, found bool, err error) {
	err = s.inTx(func(tx *sql.Tx) error {
		var err error
		if old, found, err = s.get(tx, s.q.getForUpdate, key); err != nil {
			return err
		}
		_, err = tx.Exec(s.q.upsert, key, util.CopyValue(value))
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return old, found, nil
}

// SetIfAbsent inserts with conflicts ignored and reads the current value if nothing was inserted
func (s *sqlBlobDB) SetIfAbsent(key, value []byte) (existing []byte, found bool, err error) {
	err = s.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(s.q.insertIgnore, key, util.CopyValue(value))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 1 {
			return err
		}
		existing, found, err = s.get(tx, s.q.get, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return existing, found, nil
}

func (s *sqlBlobDB) Delete(key []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.db.Exec(s.q.delete, key)
	return err
}

// DeleteMany deletes in chunks inside one transaction
func (s *sqlBlobDB) DeleteMany(keys [][]byte) error {
	if len(keys) == 0 {
		return s.check()
	}
	return s.inTx(func(tx *sql.Tx) error {
		for start := 0; start < len(keys); start += batchChunk {
			chunk := keys[start:min(start+batchChunk, len(keys))]
			query := fmt.Sprintf("DELETE FROM %s WHERE %s", s.table, s.dialect.keyIn(len(chunk)))
			if _, err := tx.Exec(query, args(chunk)...); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeletePrefix deletes the key range of prefix with one statement
func (s *sqlBlobDB) DeletePrefix(prefix []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	where, whereArgs := s.dialect.keyRange(prefix, util.PrefixEnd(prefix))
	_, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s", s.table, where), whereArgs...)
	return err
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

func (s *sqlBlobDB) Get(key []byte) ([]byte, bool, error) {
	if err := s.check(); err != nil {
		return nil, false, err
	}
	return s.get(s.db, s.q.get, key)
}

// GetMany fetches chunks of keys with IN (...) queries
func (s *sqlBlobDB) GetMany(keys [][]byte) ([][]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	found := make(map[string][]byte, len(keys))
	for start := 0; start < len(keys); start += batchChunk {
		chunk := keys[start:min(start+batchChunk, len(keys))]
		query := fmt.Sprintf("SELECT id, value FROM %s WHERE %s", s.table, s.dialect.keyIn(len(chunk)))
		rows, err := s.db.Query(query, args(chunk)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id, value []byte
			if err := rows.Scan(&id, &value); err != nil {
				rows.Close()
				return nil, err
			}
			found[string(id)] = util.CopyValue(value)
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = found[string(k)]
	}
	return out, nil
}

func (s *sqlBlobDB) Has(key []byte) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRow(s.q.has, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

type row struct {
	id, value []byte
}

// page fetches up to scanPage rows of the key range of prefix with id > after
// (all rows of the range if after is nil)
func (s *sqlBlobDB) page(prefix, end, after []byte) ([]row, error) {
	where, whereArgs := s.dialect.keyRange(prefix, end)
	if after != nil {
		where += " AND id > " + s.dialect.placeholders(len(whereArgs)+1, 1)
		whereArgs = append(whereArgs, after)
	}
	query := fmt.Sprintf("SELECT id, value FROM %s WHERE %s ORDER BY id LIMIT %d", s.table, where, scanPage)

	rows, err := s.db.Query(query, whereArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.value); err != nil {
			return nil, err
		}
		r.value = util.CopyValue(r.value)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Scan pages through the key range of prefix in key order. No connection is
// held while fn runs, so fn may use the database.
func (s *sqlBlobDB) Scan(prefix []byte, fn db.ScanFunc) error {
	if err := s.check(); err != nil {
		return err
	}
	end := util.PrefixEnd(prefix)

	var after []byte
	for {
		rows, err := s.page(prefix, end, after)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if !fn(r.id, r.value) {
				return nil
			}
		}
		if len(rows) < scanPage {
			return nil
		}
		after = rows[len(rows)-1].id
	}
}

func (s *sqlBlobDB) Count(prefix []byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	where, whereArgs := s.dialect.keyRange(prefix, util.PrefixEnd(prefix))
	var n int
	err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", s.table, where), whereArgs...).Scan(&n)
	return n, err
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Flush is a no-op, every statement commits
func (s *sqlBlobDB) Flush() error {
	return s.check()
}

// ForceFlush is a no-op, committed transactions are durable
func (s *sqlBlobDB) ForceFlush() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.db.Ping()
}

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

const features = db.FeatureOrderedScan | db.FeatureAtomicBatch | db.FeatureAtomicSwap | db.FeatureDurable

func (s *sqlBlobDB) SupportsFeature(feature db.Feature) bool {
	return features&feature == feature
}

// Info is the engine specific metadata reported by GetInfo
type Info struct {
	Dialect   string `json:"dialect"`
	Table     string `json:"table"`
	OpenConns int    `json:"open_conns"`
	InUse     int    `json:"in_use"`
}

func (s *sqlBlobDB) GetInfo() db.DatabaseInfo {
	stats := s.db.Stats()
	info := db.DatabaseInfo{
		DbType:            db.ImplSQL,
		SupportedFeatures: features.Features(),
		Metadata: Info{
			Dialect:   s.dialect.Name,
			Table:     s.table,
			OpenConns: stats.OpenConnections,
			InUse:     stats.InUse,
		},
	}
	if s.check() == nil {
		info.Entries, _ = s.Count(nil)
	}
	return info
}

func (s *sqlBlobDB) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
