package raft

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/engines/raft/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

var log = logger.GetLogger("engine/raft")

const (
	// DefaultTimeout bounds a single proposal or linearizable read
	DefaultTimeout = 5 * time.Second
	// DefaultRetries is the number of attempts when the node host is busy
	DefaultRetries = 5
)

// Options configures the client side of a replicated database
type Options struct {
	Timeout time.Duration
	Retries int
}

// CommandError is returned when a replica rejects or fails a command
type CommandError struct {
	Op  string
	Msg string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("raft: %s failed: %s", e.Op, e.Msg)
}

// --------------------------------------------------------------------------
// Replica access
// --------------------------------------------------------------------------

// replica is the part of the dragonboat NodeHost used by the database
type replica interface {
	propose(ctx context.Context, cmd []byte) (sm.Result, error)
	read(ctx context.Context, query interface{}, stale bool) (interface{}, error)
}

type nodeHostReplica struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
}

func (r *nodeHostReplica) propose(ctx context.Context, cmd []byte) (sm.Result, error) {
	return r.nh.SyncPropose(ctx, r.cs, cmd)
}

func (r *nodeHostReplica) read(ctx context.Context, query interface{}, stale bool) (interface{}, error) {
	if stale {
		return r.nh.StaleRead(r.shardID, query)
	}
	return r.nh.SyncRead(ctx, r.shardID, query)
}

// --------------------------------------------------------------------------
// Database
// --------------------------------------------------------------------------

// raftDB implements db.KVDB on a dragonboat shard. Writes are proposed to the
// raft log and applied on every replica, reads are linearizable (SyncRead)
// except GetInfo, which uses a stale local read.
type raftDB struct {
	r       replica
	shardID uint64
	timeout time.Duration
	retries int
	closed  atomic.Bool
}

// Open returns a database for a shard that is started on nh. Closing the
// database does not stop the shard.
func Open(nh *dragonboat.NodeHost, shardID uint64, o Options) db.KVDB {
	return newRaftDB(&nodeHostReplica{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
	}, shardID, o)
}

func newRaftDB(r replica, shardID uint64, o Options) *raftDB {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	return &raftDB{
		r:       r,
		shardID: shardID,
		timeout: o.Timeout,
		retries: o.Retries,
	}
}

// write proposes cmd and returns the result data of the state machine.
func (s *raftDB) write(cmd internal.Command) ([]byte, error) {
	if s.closed.Load() {
		return nil, db.ErrClosed
	}

	data := cmd.Serialize()
	for i := 0; i < s.retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.r.propose(ctx, data)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, s.retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("raft: propose %s: %w", cmd.Type, err)
		}

		switch internal.ResultCode(res.Value) {
		case internal.ResultSuccess:
			return res.Data, nil
		case internal.ResultClosed:
			return nil, db.ErrClosed
		default:
			return nil, &CommandError{Op: cmd.Type.String(), Msg: string(res.Data)}
		}
	}
	return nil, fmt.Errorf("raft: propose %s: %w", cmd.Type, dragonboat.ErrSystemBusy)
}

// read queries the state machine and converts the response into the expected type R.
//
// SyncRead is used by default. If linearizability is not required, stale can be
// set to use the faster StaleRead. Reads failing with ErrSystemBusy are retried.
func read[R any](s *raftDB, q internal.Query, stale bool) (R, error) {
	var zero R
	if s.closed.Load() {
		return zero, db.ErrClosed
	}

	for i := 0; i < s.retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.r.read(ctx, q, stale)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, s.retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if errors.Is(err, db.ErrClosed) {
			return zero, db.ErrClosed
		}
		if err != nil {
			return zero, fmt.Errorf("raft: read %s: %w", q.Type, err)
		}

		casted, ok := res.(R)
		if !ok {
			return zero, fmt.Errorf("raft: read %s: unexpected type %T, expected %T", q.Type, res, zero)
		}
		return casted, nil
	}
	return zero, fmt.Errorf("raft: read %s: %w", q.Type, dragonboat.ErrSystemBusy)
}

// --------------------------------------------------------------------------
// Interface Methods (docs see db.KVDB)
// --------------------------------------------------------------------------

func (s *raftDB) Set(key, value []byte) error {
	_, err := s.write(internal.Command{
		Type:   internal.CommandTSet,
		Keys:   [][]byte{key},
		Values: [][]byte{value},
	})
	return err
}

func (s *raftDB) SetMany(keys, values [][]byte) error {
	if err := db.CheckBatch(keys, values); err != nil {
		return err
	}
	_, err := s.write(internal.Command{
		Type:   internal.CommandTSetMany,
		Keys:   keys,
		Values: values,
	})
	return err
}

func (s *raftDB) Swap(key, value []byte) ([]byte, bool, error) {
	data, err := s.write(internal.Command{
		Type:   internal.CommandTSwap,
		Keys:   [][]byte{key},
		Values: [][]byte{value},
	})
	if err != nil {
		return nil, false, err
	}
	return internal.DecodeFound(data)
}

func (s *raftDB) SetIfAbsent(key, value []byte) ([]byte, bool, error) {
	data, err := s.write(internal.Command{
		Type:   internal.CommandTSetIfAbsent,
		Keys:   [][]byte{key},
		Values: [][]byte{value},
	})
	if err != nil {
		return nil, false, err
	}
	return internal.DecodeFound(data)
}

func (s *raftDB) Delete(key []byte) error {
	_, err := s.write(internal.Command{
		Type: internal.CommandTDelete,
		Keys: [][]byte{key},
	})
	return err
}

func (s *raftDB) DeleteMany(keys [][]byte) error {
	_, err := s.write(internal.Command{
		Type: internal.CommandTDeleteMany,
		Keys: keys,
	})
	return err
}

func (s *raftDB) DeletePrefix(prefix []byte) error {
	_, err := s.write(internal.Command{
		Type: internal.CommandTDeletePrefix,
		Keys: [][]byte{prefix},
	})
	return err
}

func (s *raftDB) Get(key []byte) ([]byte, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTGet,
		Key:  key,
	}, false)
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (s *raftDB) GetMany(keys [][]byte) ([][]byte, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTGetMany,
		Keys: keys,
	}, false)
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

func (s *raftDB) Has(key []byte) (bool, error) {
	return read[bool](s, internal.Query{
		Type: internal.QueryTHas,
		Key:  key,
	}, false)
}

// Scan collects the matching entries on the replica and then calls fn, so fn
// may use the database.
func (s *raftDB) Scan(prefix []byte, fn db.ScanFunc) error {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTScan,
		Key:  prefix,
	}, false)
	if err != nil {
		return err
	}
	for i := range res.Keys {
		if !fn(res.Keys[i], res.Values[i]) {
			return nil
		}
	}
	return nil
}

func (s *raftDB) Count(prefix []byte) (int, error) {
	return read[int](s, internal.Query{
		Type: internal.QueryTCount,
		Key:  prefix,
	}, false)
}

// Flush is a no-op, committed commands are in the raft log of a majority of replicas
func (s *raftDB) Flush() error {
	if s.closed.Load() {
		return db.ErrClosed
	}
	return nil
}

// ForceFlush flushes the database of every replica
func (s *raftDB) ForceFlush() error {
	_, err := s.write(internal.Command{Type: internal.CommandTForceFlush})
	return err
}

const features = db.FeatureAtomicBatch | db.FeatureAtomicSwap | db.FeatureDurable | db.FeatureReplicated

func (s *raftDB) SupportsFeature(feature db.Feature) bool {
	return features&feature == feature
}

// Info is the engine specific metadata reported by GetInfo
type Info struct {
	ShardID  uint64            `json:"shard_id"`
	Engine   db.Implementation `json:"engine,omitempty"`
	Metadata interface{}       `json:"metadata,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func (s *raftDB) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		DbType:            db.ImplRaft,
		SupportedFeatures: features.Features(),
	}

	local, err := read[db.DatabaseInfo](s, internal.Query{Type: internal.QueryTGetDBInfo}, true)
	if err != nil {
		info.Metadata = Info{ShardID: s.shardID, Error: err.Error()}
		return info
	}

	info.Entries = local.Entries
	info.SizeBytes = local.SizeBytes
	info.Metadata = Info{
		ShardID:  s.shardID,
		Engine:   local.DbType,
		Metadata: local.Metadata,
	}
	return info
}

func (s *raftDB) Close() error {
	s.closed.Store(true)
	return nil
}
