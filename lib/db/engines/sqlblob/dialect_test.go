package sqlblob

import (
	"testing"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"sqlite", "sqlite", false},
		{"SQLite3", "sqlite", false},
		{"postgresql", "postgres", false},
		{" mariadb ", "mysql", false},
		{"oracle", "", true},
	}
	for _, tt := range tests {
		d, err := ParseDialect(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDialect(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if d.Name != tt.want {
			t.Errorf("ParseDialect(%q) = %q, want %q", tt.in, d.Name, tt.want)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	if got := SQLite.placeholders(1, 3); got != "?, ?, ?" {
		t.Errorf("SQLite.placeholders() = %q", got)
	}
	if got := Postgres.placeholders(2, 3); got != "$2, $3, $4" {
		t.Errorf("Postgres.placeholders() = %q", got)
	}
	if got := Postgres.keyIn(2); got != "id IN ($1, $2)" {
		t.Errorf("Postgres.keyIn() = %q", got)
	}
}

func TestKeyRange(t *testing.T) {
	where, args := Postgres.keyRange(nil, nil)
	if where != "1 = 1" || len(args) != 0 {
		t.Errorf("keyRange(empty) = %q, %v", where, args)
	}

	where, args = Postgres.keyRange([]byte{0xff}, nil)
	if where != "id >= $1" || len(args) != 1 {
		t.Errorf("keyRange(0xff) = %q, %v", where, args)
	}

	where, args = MySQL.keyRange([]byte("a"), []byte("b"))
	if where != "id >= ? AND id < ?" || len(args) != 2 {
		t.Errorf("keyRange(a) = %q, %v", where, args)
	}
}

func TestQueries(t *testing.T) {
	q := MySQL.queries("t")
	if want := "INSERT INTO t (id, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)"; q.upsert != want {
		t.Errorf("upsert = %q, want %q", q.upsert, want)
	}
	if want := "INSERT IGNORE INTO t (id, value) VALUES (?, ?)"; q.insertIgnore != want {
		t.Errorf("insertIgnore = %q, want %q", q.insertIgnore, want)
	}
	if want := "SELECT value FROM t WHERE id = $1 FOR UPDATE"; Postgres.queries("t").getForUpdate != want {
		t.Errorf("getForUpdate = %q, want %q", Postgres.queries("t").getForUpdate, want)
	}
}
