package redis

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/gomodule/redigo/redis"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("engine/redis")

// getSetNX returns {1, current} if the key exists, otherwise stores the value and returns {0}
var getSetNX = redis.NewScript(1, `
local key = KEYS[1]
local val = ARGV[1]

if redis.call('exists', key) == 1 then
  return {1, redis.call('get', key)}
end
redis.call('set', key, val)
return {0}
`)

// Options configures the redis engine
type Options struct {
	Addr         string        // host:port of the redis server
	Password     string        // AUTH password (optional)
	Database     int           // SELECT index
	MaxIdle      int           // idle connections kept in the pool
	MaxActive    int           // max connections (0 = unlimited)
	DialTimeout  time.Duration // connect timeout
	ReadTimeout  time.Duration // per reply timeout
	WriteTimeout time.Duration // per command timeout
	ScanCount    int           // COUNT hint for SCAN
	// SaveOnForceFlush issues SAVE on ForceFlush, blocking the server until the
	// RDB snapshot is written
	SaveOnForceFlush bool
}

// DefaultOptions returns options for a local redis server
func DefaultOptions(addr string) Options {
	return Options{
		Addr:         addr,
		MaxIdle:      8,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		ScanCount:    512,
	}
}

// redisDB implements db.KVDB on a redis server. Every key maps to one redis string.
type redisDB struct {
	pool   *redis.Pool
	opts   Options
	closed atomic.Bool
}

// Open creates the connection pool and checks connectivity with PING
func Open(o Options) (db.KVDB, error) {
	if o.ScanCount <= 0 {
		o.ScanCount = 512
	}

	pool := &redis.Pool{
		MaxIdle:     o.MaxIdle,
		MaxActive:   o.MaxActive,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", o.Addr,
				redis.DialConnectTimeout(o.DialTimeout),
				redis.DialReadTimeout(o.ReadTimeout),
				redis.DialWriteTimeout(o.WriteTimeout),
				redis.DialPassword(o.Password),
				redis.DialDatabase(o.Database),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	conn := pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", o.Addr, err)
	}

	log.Infof("connected to redis at %s (db %d)", o.Addr, o.Database)
	return &redisDB{pool: pool, opts: o}, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// do runs one command on a pooled connection
func (r *redisDB) do(cmd string, args ...interface{}) (interface{}, error) {
	if r.closed.Load() {
		return nil, db.ErrClosed
	}
	conn := r.pool.Get()
	defer conn.Close()
	return conn.Do(cmd, args...)
}

// optionalBytes maps a nil reply to found=false
func optionalBytes(reply interface{}, err error) ([]byte, bool, error) {
	b, err := redis.Bytes(reply, err)
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if b == nil {
		b = []byte{}
	}
	return b, true, nil
}

// globEscaper escapes the metacharacters of redis glob patterns
var globEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
	`^`, `\^`,
)

// matchPattern returns the SCAN MATCH pattern of all keys starting with prefix
func matchPattern(prefix []byte) string {
	return globEscaper.Replace(string(prefix)) + "*"
}

// scanKeys calls fn for each chunk of keys matching prefix
func (r *redisDB) scanKeys(prefix []byte, fn func(keys [][]byte) (bool, error)) error {
	if r.closed.Load() {
		return db.ErrClosed
	}
	conn := r.pool.Get()
	defer conn.Close()

	pattern := matchPattern(prefix)
	cursor := 0
	for {
		values, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", pattern, "COUNT", r.opts.ScanCount))
		if err != nil {
			return err
		}
		if len(values) != 2 {
			return fmt.Errorf("redis: unexpected SCAN reply of length %d", len(values))
		}
		if cursor, err = redis.Int(values[0], nil); err != nil {
			return err
		}
		keys, err := redis.ByteSlices(values[1], nil)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			cont, err := fn(keys)
			if err != nil || !cont {
				return err
			}
		}
		if cursor == 0 {
			return nil
		}
	}
}

func keyArgs(keys [][]byte) []interface{} {
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (r *redisDB) Set(key, value []byte) error {
	_, err := r.do("SET", key, value)
	return err
}

// SetMany uses MSET, which redis applies atomically
func (r *redisDB) SetMany(keys, values [][]byte) error {
	if err := db.CheckBatch(keys, values); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	args := make([]interface{}, 0, 2*len(keys))
	for i := range keys {
		args = append(args, keys[i], values[i])
	}
	_, err := r.do("MSET", args...)
	return err
}

func (r *redisDB) Swap(key, value []byte) ([]byte, bool, error) {
	return optionalBytes(r.do("GETSET", key, value))
}

func (r *redisDB) SetIfAbsent(key, value []byte) ([]byte, bool, error) {
	if r.closed.Load() {
		return nil, false, db.ErrClosed
	}
	conn := r.pool.Get()
	defer conn.Close()

	reply, err := redis.Values(getSetNX.Do(conn, key, value))
	if err != nil {
		return nil, false, err
	}
	if len(reply) == 0 {
		return nil, false, fmt.Errorf("redis: empty getsetnx reply")
	}
	if existed, _ := redis.Int(reply[0], nil); existed == 0 {
		return nil, false, nil
	}
	if len(reply) < 2 {
		return nil, false, fmt.Errorf("redis: getsetnx reply without value")
	}
	return optionalBytes(reply[1], nil)
}

func (r *redisDB) Delete(key []byte) error {
	_, err := r.do("DEL", key)
	return err
}

func (r *redisDB) DeleteMany(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.do("DEL", keyArgs(keys)...)
	return err
}

// DeletePrefix deletes the matching keys chunk by chunk, the operation is not atomic
func (r *redisDB) DeletePrefix(prefix []byte) error {
	var all [][]byte
	err := r.scanKeys(prefix, func(keys [][]byte) (bool, error) {
		all = append(all, keys...)
		return true, nil
	})
	if err != nil {
		return err
	}
	const chunk = 512
	for start := 0; start < len(all); start += chunk {
		end := min(start+chunk, len(all))
		if err := r.DeleteMany(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

func (r *redisDB) Get(key []byte) ([]byte, bool, error) {
	return optionalBytes(r.do("GET", key))
}

// GetMany uses MGET
func (r *redisDB) GetMany(keys [][]byte) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}
	values, err := redis.Values(r.do("MGET", keyArgs(keys)...))
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		b, _, err := optionalBytes(v, nil)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func (r *redisDB) Has(key []byte) (bool, error) {
	return redis.Bool(r.do("EXISTS", key))
}

// Scan walks SCAN MATCH <prefix>* and fetches each chunk with MGET.
// Keys may be visited more than once if the keyspace is resized during the scan.
func (r *redisDB) Scan(prefix []byte, fn db.ScanFunc) error {
	return r.scanKeys(prefix, func(keys [][]byte) (bool, error) {
		values, err := r.GetMany(keys)
		if err != nil {
			return false, err
		}
		for i, k := range keys {
			// deleted between SCAN and MGET
			if values[i] == nil {
				continue
			}
			if !fn(k, values[i]) {
				return false, nil
			}
		}
		return true, nil
	})
}

func (r *redisDB) Count(prefix []byte) (int, error) {
	if len(prefix) == 0 {
		return redis.Int(r.do("DBSIZE"))
	}
	n := 0
	err := r.scanKeys(prefix, func(keys [][]byte) (bool, error) {
		n += len(keys)
		return true, nil
	})
	return n, err
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Flush is a no-op, durability is configured on the server
func (r *redisDB) Flush() error {
	if r.closed.Load() {
		return db.ErrClosed
	}
	return nil
}

// ForceFlush issues SAVE if configured, otherwise it only checks the connection
func (r *redisDB) ForceFlush() error {
	if r.opts.SaveOnForceFlush {
		_, err := r.do("SAVE")
		return err
	}
	_, err := r.do("PING")
	return err
}

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

const features = db.FeatureAtomicBatch | db.FeatureAtomicSwap | db.FeatureRemote

func (r *redisDB) SupportsFeature(feature db.Feature) bool {
	return features&feature == feature
}

// Info is the engine specific metadata reported by GetInfo
type Info struct {
	Addr        string `json:"addr"`
	Database    int    `json:"database"`
	ActiveConns int    `json:"active_conns"`
	IdleConns   int    `json:"idle_conns"`
}

func (r *redisDB) GetInfo() db.DatabaseInfo {
	stats := r.pool.Stats()
	info := db.DatabaseInfo{
		DbType:            db.ImplRedis,
		SupportedFeatures: features.Features(),
		Metadata: Info{
			Addr:        r.opts.Addr,
			Database:    r.opts.Database,
			ActiveConns: stats.ActiveCount,
			IdleConns:   stats.IdleCount,
		},
	}
	info.Entries, _ = r.Count(nil)
	return info
}

func (r *redisDB) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.pool.Close()
}
