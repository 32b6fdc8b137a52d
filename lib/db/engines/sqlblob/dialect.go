package sqlblob

import (
	"fmt"
	"strings"
)

// Dialect captures the SQL differences between the supported databases
type Dialect struct {
	// Name of the dialect, also the database/sql driver name
	Name string

	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// column types of the blob table
	keyType, valueType string
	// suffix appended to INSERT to turn it into an upsert, %s is the table
	upsertSuffix string
	// INSERT variant that skips existing keys
	insertIgnore string
	// locking clause for SELECT inside a read-modify-write transaction
	forUpdate string
}

var (
	// SQLite uses modernc.org/sqlite (driver "sqlite")
	SQLite = Dialect{
		Name:         "sqlite",
		keyType:      "BLOB",
		valueType:    "BLOB",
		upsertSuffix: " ON CONFLICT (id) DO UPDATE SET value = excluded.value",
		insertIgnore: "INSERT INTO %s (id, value) VALUES (%s) ON CONFLICT (id) DO NOTHING",
	}

	// Postgres uses github.com/lib/pq (driver "postgres")
	Postgres = Dialect{
		Name:         "postgres",
		numbered:     true,
		keyType:      "BYTEA",
		valueType:    "BYTEA",
		upsertSuffix: " ON CONFLICT (id) DO UPDATE SET value = excluded.value",
		insertIgnore: "INSERT INTO %s (id, value) VALUES (%s) ON CONFLICT (id) DO NOTHING",
		forUpdate:    " FOR UPDATE",
	}

	// MySQL uses github.com/go-sql-driver/mysql (driver "mysql").
	// Keys are limited to 767 bytes by the primary key index.
	MySQL = Dialect{
		Name:         "mysql",
		keyType:      "VARBINARY(767)",
		valueType:    "LONGBLOB",
		upsertSuffix: " ON DUPLICATE KEY UPDATE value = VALUES(value)",
		insertIgnore: "INSERT IGNORE INTO %s (id, value) VALUES (%s)",
		forUpdate:    " FOR UPDATE",
	}
)

// ParseDialect returns the dialect with the given name
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("sqlblob: unsupported SQL dialect %q", name)
	}
}

// placeholders returns n comma separated placeholders, numbered from start (1 based)
func (d Dialect) placeholders(start, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		if d.numbered {
			fmt.Fprintf(&sb, "$%d", start+i)
		} else {
			sb.WriteByte('?')
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Statements
// --------------------------------------------------------------------------

// queries holds all statements for one table
type queries struct {
	create       string
	get          string
	getForUpdate string
	has          string
	upsert       string
	insertIgnore string
	delete       string
}

func (d Dialect) queries(table string) queries {
	p1 := d.placeholders(1, 1)
	return queries{
		create: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id %s PRIMARY KEY, value %s NOT NULL)",
			table, d.keyType, d.valueType),
		get:          fmt.Sprintf("SELECT value FROM %s WHERE id = %s", table, p1),
		getForUpdate: fmt.Sprintf("SELECT value FROM %s WHERE id = %s%s", table, p1, d.forUpdate),
		has:          fmt.Sprintf("SELECT 1 FROM %s WHERE id = %s", table, p1),
		upsert: fmt.Sprintf("INSERT INTO %s (id, value) VALUES (%s)%s",
			table, d.placeholders(1, 2), d.upsertSuffix),
		insertIgnore: fmt.Sprintf(d.insertIgnore, table, d.placeholders(1, 2)),
		delete:       fmt.Sprintf("DELETE FROM %s WHERE id = %s", table, p1),
	}
}

// keyIn returns "id IN (...)" for n keys
func (d Dialect) keyIn(n int) string {
	return "id IN (" + d.placeholders(1, n) + ")"
}

// keyRange returns the predicate selecting all keys starting with prefix and
// its arguments. An empty prefix selects everything, a prefix without upper
// bound (only 0xff bytes) is open ended.
func (d Dialect) keyRange(prefix, end []byte) (string, []interface{}) {
	switch {
	case len(prefix) == 0:
		return "1 = 1", nil
	case end == nil:
		return "id >= " + d.placeholders(1, 1), []interface{}{prefix}
	default:
		return "id >= " + d.placeholders(1, 1) + " AND id < " + d.placeholders(2, 1), []interface{}{prefix, end}
	}
}
