package raft

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/engines/raft/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// snapshotBatch is the number of entries written per SetMany while recovering
const snapshotBatch = 512

// snapshotEnd terminates the entry stream of a snapshot
const snapshotEnd = ^uint32(0)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// DBFactory creates the database of one replica
type DBFactory func(shardID, replicaID uint64) (db.KVDB, error)

// KVStateMachine is a state machine implementation for Dragonboat RAFT.
// Every replica applies the same commands to its own db.KVDB.
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB
}

// NewStateMachine wraps database in a state machine
func NewStateMachine(shardID, replicaID uint64, database db.KVDB) *KVStateMachine {
	return &KVStateMachine{
		replicaID: replicaID,
		shardID:   shardID,
		database:  database,
	}
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host.
// A database that fails to open panics, since dragonboat cannot start the replica without it.
func CreateStateMachineFactory(dbFactory DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		database, err := dbFactory(shardID, replicaID)
		if err != nil {
			log.Panicf("failed to open database for shard %d replica %d: %v", shardID, replicaID, err)
		}
		return NewStateMachine(shardID, replicaID, database)
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding KVDB method.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, fmt.Errorf("invalid query type: %T", itf)
	}

	switch q.Type {
	case internal.QueryTGet:
		value, found, err := fsm.database.Get(q.Key)
		return internal.QueryResult{Value: value, Ok: found}, err
	case internal.QueryTGetMany:
		values, err := fsm.database.GetMany(q.Keys)
		return internal.QueryResult{Values: values}, err
	case internal.QueryTHas:
		return fsm.database.Has(q.Key)
	case internal.QueryTScan:
		var res internal.QueryResult
		err := fsm.database.Scan(q.Key, func(key, value []byte) bool {
			res.Keys = append(res.Keys, append([]byte(nil), key...))
			res.Values = append(res.Values, append([]byte{}, value...))
			return true
		})
		return res, err
	case internal.QueryTCount:
		return fsm.database.Count(q.Key)
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, fmt.Errorf("unknown query operation: %s", q.Type)
	}
}

// apply executes one command and returns its result data
func (fsm *KVStateMachine) apply(cmd *internal.Command) ([]byte, error) {
	switch cmd.Type {
	case internal.CommandTSet:
		return nil, fsm.database.Set(cmd.Key(), cmd.Value())
	case internal.CommandTSetMany:
		return nil, fsm.database.SetMany(cmd.Keys, cmd.Values)
	case internal.CommandTSwap:
		old, found, err := fsm.database.Swap(cmd.Key(), cmd.Value())
		return internal.EncodeFound(old, found), err
	case internal.CommandTSetIfAbsent:
		existing, found, err := fsm.database.SetIfAbsent(cmd.Key(), cmd.Value())
		return internal.EncodeFound(existing, found), err
	case internal.CommandTDelete:
		return nil, fsm.database.Delete(cmd.Key())
	case internal.CommandTDeleteMany:
		return nil, fsm.database.DeleteMany(cmd.Keys)
	case internal.CommandTDeletePrefix:
		return nil, fsm.database.DeletePrefix(cmd.Key())
	case internal.CommandTForceFlush:
		return nil, fsm.database.ForceFlush()
	default:
		return nil, errInvalidCommand
	}
}

var errInvalidCommand = errors.New("unknown command operation")

// Update handles write commands on the KVDB instance
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	var cmd internal.Command
	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(internal.ResultInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{
				Value: uint64(internal.ResultInvalidOperation),
				Data:  []byte(fmt.Sprintf("failed to deserialize command: %v", err)),
			}
			continue
		}

		data, err := fsm.apply(&cmd)
		switch {
		case err == nil:
			entries[idx].Result = sm.Result{Value: uint64(internal.ResultSuccess), Data: data}
		case errors.Is(err, db.ErrClosed):
			entries[idx].Result = sm.Result{Value: uint64(internal.ResultClosed), Data: []byte(err.Error())}
		case errors.Is(err, errInvalidCommand):
			entries[idx].Result = sm.Result{
				Value: uint64(internal.ResultInvalidOperation),
				Data:  []byte(fmt.Sprintf("%v: %s", err, cmd.Type)),
			}
		default:
			// the command is applied (or not) identically on every replica, the error is only reported
			log.Warningf("shard %d: %s failed at index %d: %v", fsm.shardID, cmd.Type, e.Index, err)
			entries[idx].Result = sm.Result{Value: uint64(internal.ResultInternalError), Data: []byte(err.Error())}
		}
	}

	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		log.Infof("state machine took long to update: %d entries in %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// PrepareSnapshot is not used. Snapshots are fuzzy.
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot streams every entry as [u32 key length][key][u32 value length][value]
// followed by an end marker. Writes racing with the snapshot may or may not be included,
// the raft log entries after the snapshot index are replayed on recovery.
func (fsm *KVStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, done <-chan struct{}) error {
	w := bufio.NewWriter(writer)
	var hdr [4]byte
	var writeErr error

	writeChunk := func(b []byte) {
		binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
		if _, err := w.Write(hdr[:]); err != nil {
			writeErr = err
			return
		}
		if _, err := w.Write(b); err != nil {
			writeErr = err
		}
	}

	err := fsm.database.Scan(nil, func(key, value []byte) bool {
		select {
		case <-done:
			writeErr = sm.ErrSnapshotStopped
			return false
		default:
		}
		writeChunk(key)
		writeChunk(value)
		return writeErr == nil
	})
	if err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}

	binary.BigEndian.PutUint32(hdr[:], snapshotEnd)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	return w.Flush()
}

// RecoverFromSnapshot replaces the content of the database with the snapshot
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, done <-chan struct{}) error {
	if err := fsm.database.DeletePrefix(nil); err != nil {
		return fmt.Errorf("clear database: %w", err)
	}

	br := bufio.NewReader(r)
	readChunk := func() ([]byte, bool, error) {
		var hdr [4]byte
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			return nil, false, err
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n == snapshotEnd {
			return nil, true, nil
		}
		b := make([]byte, n)
		_, err := io.ReadFull(br, b)
		return b, false, err
	}

	keys := make([][]byte, 0, snapshotBatch)
	values := make([][]byte, 0, snapshotBatch)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		err := fsm.database.SetMany(keys, values)
		keys, values = keys[:0], values[:0]
		return err
	}

	for {
		select {
		case <-done:
			return sm.ErrSnapshotStopped
		default:
		}

		key, end, err := readChunk()
		if err != nil {
			return fmt.Errorf("read snapshot key: %w", err)
		}
		if end {
			break
		}
		value, end, err := readChunk()
		if err != nil {
			return fmt.Errorf("read snapshot value: %w", err)
		}
		if end {
			return fmt.Errorf("read snapshot value: unexpected end marker")
		}

		keys = append(keys, key)
		values = append(values, value)
		if len(keys) == snapshotBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// Close closes the database of the replica.
func (fsm *KVStateMachine) Close() error {
	return fsm.database.Close()
}
