package server

import (
	"fmt"
	"path/filepath"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/engines/badger"
	"github.com/ValentinKolb/evkv/lib/db/engines/bolt"
	"github.com/ValentinKolb/evkv/lib/db/engines/leveldb"
	"github.com/ValentinKolb/evkv/lib/db/engines/maple"
	"github.com/ValentinKolb/evkv/lib/db/engines/pebble"
)

// openEngine opens a local engine by name. An empty dataDir keeps the data in
// memory, for engines that support it.
func openEngine(engine, dataDir, name string) (db.KVDB, error) {
	path := ""
	if dataDir != "" {
		path = filepath.Join(dataDir, fmt.Sprintf("%s-%s", engine, name))
	}

	switch engine {
	case "leveldb":
		return leveldb.Open(leveldb.Options{Path: path})
	case "pebble":
		return pebble.Open(pebble.Options{Path: path})
	case "badger":
		return badger.Open(badger.DefaultOptions(path))
	case "bolt":
		if path == "" {
			return nil, fmt.Errorf("engine bolt needs a data directory")
		}
		return bolt.Open(bolt.Options{Path: path + ".db"})
	case "maple":
		if path != "" {
			path += ".data"
		}
		return maple.NewMapleDB(&maple.DBOptions{Path: path})
	default:
		return nil, fmt.Errorf("unknown engine %q", engine)
	}
}
