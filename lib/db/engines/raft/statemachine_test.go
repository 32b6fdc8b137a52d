package raft

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/engines/raft/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func TestSnapshotRoundTrip(t *testing.T) {
	source := NewStateMachine(1, 1, newMaple(t))
	defer source.Close()

	want := map[string]string{"empty": ""}
	for i := 0; i < 2*snapshotBatch+3; i++ {
		want[fmt.Sprintf("key-%d", i)] = fmt.Sprintf("value-%d", i)
	}
	for k, v := range want {
		if err := source.database.Set([]byte(k), []byte(v)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	var buf bytes.Buffer
	if err := source.SaveSnapshot(nil, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	target := NewStateMachine(1, 2, newMaple(t))
	defer target.Close()
	// stale data must be replaced by the snapshot
	if err := target.database.Set([]byte("stale"), []byte("x")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := target.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot() error = %v", err)
	}

	n, err := target.database.Count(nil)
	if err != nil || n != len(want) {
		t.Fatalf("Count() after recovery = %d, %v; want %d", n, err, len(want))
	}
	for k, v := range want {
		got, found, err := target.database.Get([]byte(k))
		if err != nil || !found || string(got) != v {
			t.Errorf("Get(%q) = %q, %v, %v; want %q", k, got, found, err, v)
		}
	}
}

func TestRecoverFromTruncatedSnapshot(t *testing.T) {
	source := NewStateMachine(1, 1, newMaple(t))
	defer source.Close()
	_ = source.database.Set([]byte("k"), []byte("v"))

	var buf bytes.Buffer
	if err := source.SaveSnapshot(nil, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-4]

	target := NewStateMachine(1, 2, newMaple(t))
	defer target.Close()
	if err := target.RecoverFromSnapshot(bytes.NewReader(truncated), nil, nil); err == nil {
		t.Fatal("RecoverFromSnapshot() of a truncated snapshot should fail")
	}
}

func TestUpdateResults(t *testing.T) {
	fsm := NewStateMachine(1, 1, newMaple(t))

	set := internal.Command{Type: internal.CommandTSet, Keys: [][]byte{[]byte("k")}, Values: [][]byte{[]byte("v")}}
	swap := internal.Command{Type: internal.CommandTSwap, Keys: [][]byte{[]byte("k")}, Values: [][]byte{[]byte("w")}}

	entries := []sm.Entry{
		{Index: 1, Cmd: set.Serialize()},
		{Index: 2, Cmd: nil},
		{Index: 3, Cmd: []byte{1, 2}},
		{Index: 4, Cmd: (&internal.Command{Type: 200}).Serialize()},
		{Index: 5, Cmd: swap.Serialize()},
	}
	entries, err := fsm.Update(entries)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	wantCodes := []internal.ResultCode{
		internal.ResultSuccess,
		internal.ResultInvalidOperation,
		internal.ResultInvalidOperation,
		internal.ResultInvalidOperation,
		internal.ResultSuccess,
	}
	for i, e := range entries {
		if got := internal.ResultCode(e.Result.Value); got != wantCodes[i] {
			t.Errorf("entry %d: result = %s, want %s", e.Index, got, wantCodes[i])
		}
	}

	old, found, err := internal.DecodeFound(entries[4].Result.Data)
	if err != nil || !found || string(old) != "v" {
		t.Errorf("Swap result = %q, %v, %v; want \"v\"", old, found, err)
	}

	// commands on a closed replica report ResultClosed
	if err := fsm.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	entries, _ = fsm.Update([]sm.Entry{{Index: 6, Cmd: set.Serialize()}})
	if got := internal.ResultCode(entries[0].Result.Value); got != internal.ResultClosed {
		t.Errorf("result on closed replica = %s, want %s", got, internal.ResultClosed)
	}
}

func TestClosedReplicaMapsToErrClosed(t *testing.T) {
	database, fsm := newTestDB(t)
	if err := fsm.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := database.Set([]byte("k"), []byte("v")); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Set() on closed replica error = %v, want ErrClosed", err)
	}
	if _, _, err := database.Get([]byte("k")); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Get() on closed replica error = %v, want ErrClosed", err)
	}
}

func TestGetInfoWrapsReplica(t *testing.T) {
	database, _ := newTestDB(t)
	_ = database.Set([]byte("a"), []byte("1"))
	_ = database.Set([]byte("b"), []byte("2"))

	info := database.GetInfo()
	if info.DbType != db.ImplRaft {
		t.Errorf("DbType = %s, want %s", info.DbType, db.ImplRaft)
	}
	if info.Entries != 2 {
		t.Errorf("Entries = %d, want 2", info.Entries)
	}
	meta, ok := info.Metadata.(Info)
	if !ok || meta.Engine != db.ImplMaple {
		t.Errorf("Metadata = %#v, want maple engine", info.Metadata)
	}
}
