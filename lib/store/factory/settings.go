package factory

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/evkv/lib/db/engines/raft"
	"github.com/ValentinKolb/evkv/lib/store"
	"github.com/ValentinKolb/evkv/rpc/common"
)

// Default file name patterns of the file-backed backends. %s is replaced by the store name.
var DefaultFilePatterns = map[store.Backend]string{
	store.BackendLevelDB: "leveldb-%s",
	store.BackendPebble:  "pebble-%s",
	store.BackendBadger:  "badger-%s",
	store.BackendBolt:    "bolt-%s.db",
	store.BackendMaple:   "maple-%s.data",
}

// RedisSettings configures the redis backend
type RedisSettings struct {
	Addr     string
	Password string
	Database int
	// SaveOnForceFlush issues SAVE on ForceFlush
	SaveOnForceFlush bool
}

// SQLSettings configures the sql backend
type SQLSettings struct {
	Dialect      string // sqlite, postgres or mysql
	DSN          string
	Table        string
	MaxOpenConns int
}

// RaftSettings configures the raft backend. All raft stores share one shard.
type RaftSettings struct {
	raft.Config
	ShardID uint64
	// Engine is the local backend of the replicated state machine
	Engine store.Backend
	// Timeout of a single proposal or read
	Timeout time.Duration
	// ReadyTimeout bounds the wait for the shard leader on first use
	ReadyTimeout time.Duration
}

// RemoteSettings configures the remote backend. All remote stores share one shard
// of an evkv server.
type RemoteSettings struct {
	common.ClientConfig
	ShardID uint64
}

// Settings configures a Factory
type Settings struct {
	// DefaultBackend is used for stores without an explicit or with an unknown backend
	DefaultBackend store.Backend
	// DataDir holds the files of the file-backed backends. If empty, leveldb,
	// pebble, badger and maple run in memory and bolt is unavailable.
	DataDir string
	// FilePatterns overrides DefaultFilePatterns per backend
	FilePatterns map[store.Backend]string

	// Engine tuning
	CacheSizeMB int
	SyncWrites  bool

	// ReadCacheSize enables an LRU read cache with this many entries per store (0 = off)
	ReadCacheSize int
	// Metrics records per store operation metrics
	Metrics bool
	// TrackCodecs records encoded and decoded value sizes per store
	TrackCodecs bool

	Redis  RedisSettings
	SQL    SQLSettings
	Raft   RaftSettings
	Remote RemoteSettings
}

// DefaultSettings returns settings for in-memory leveldb stores
func DefaultSettings() Settings {
	return Settings{
		DefaultBackend: store.BackendLevelDB,
		Redis: RedisSettings{
			Addr: "localhost:6379",
		},
		SQL: SQLSettings{
			Dialect: "sqlite",
			DSN:     ":memory:",
		},
		Raft: RaftSettings{
			Config: raft.Config{
				RTTMillisecond:     100,
				SnapshotEntries:    10000,
				CompactionOverhead: 5000,
				ReplicaID:          1,
			},
			ShardID:      1,
			Engine:       store.BackendLevelDB,
			Timeout:      raft.DefaultTimeout,
			ReadyTimeout: 30 * time.Second,
		},
		Remote: RemoteSettings{
			ClientConfig: common.DefaultClientConfig(),
			ShardID:      1,
		},
	}
}

// FilePattern returns the file name pattern of a file-backed backend
func (s *Settings) FilePattern(b store.Backend) string {
	if p, ok := s.FilePatterns[b]; ok {
		return p
	}
	return DefaultFilePatterns[b]
}

// Validate checks the settings for errors
func (s *Settings) Validate() error {
	if _, ok := store.ParseBackend(string(s.DefaultBackend)); !ok {
		return fmt.Errorf("factory: unknown default backend %q", s.DefaultBackend)
	}
	for b, p := range s.FilePatterns {
		if strings.Count(p, "%s") != 1 {
			return fmt.Errorf("factory: file pattern %q of backend %s must contain %%s exactly once", p, b)
		}
	}
	if s.CacheSizeMB < 0 || s.ReadCacheSize < 0 {
		return fmt.Errorf("factory: cache sizes must not be negative")
	}
	return nil
}

// String returns a formatted string representation of the settings
func (s *Settings) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	dataDir := s.DataDir
	if dataDir == "" {
		dataDir = "(in memory)"
	}

	addSection("Stores")
	addField("Default Backend", string(s.DefaultBackend))
	addField("Data Directory", dataDir)
	addField("Cache Size", fmt.Sprintf("%d MB", s.CacheSizeMB))
	addField("Sync Writes", strconv.FormatBool(s.SyncWrites))
	addField("Read Cache", strconv.Itoa(s.ReadCacheSize))
	addField("Metrics", strconv.FormatBool(s.Metrics))
	addField("Track Codecs", strconv.FormatBool(s.TrackCodecs))

	switch s.DefaultBackend {
	case store.BackendRedis:
		addSection("Redis")
		addField("Address", s.Redis.Addr)
		addField("Database", strconv.Itoa(s.Redis.Database))
	case store.BackendSQL:
		addSection("SQL")
		addField("Dialect", s.SQL.Dialect)
		addField("Table", s.SQL.Table)
	case store.BackendRaft:
		addSection("Raft")
		addField("Shard", strconv.FormatUint(s.Raft.ShardID, 10))
		addField("Replica", strconv.FormatUint(s.Raft.ReplicaID, 10))
		addField("Engine", string(s.Raft.Engine))
	case store.BackendRemote:
		addSection("Remote")
		addField("Shard", strconv.FormatUint(s.Remote.ShardID, 10))
		addField("Endpoints", strings.Join(s.Remote.Endpoints, ", "))
	}

	return sb.String()
}
