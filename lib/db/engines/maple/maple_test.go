package maple

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestKeyWidth(t *testing.T) {
	database := newTestDB(t, &DBOptions{NumShards: 4, KeyWidth: 8})
	defer database.Close()

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, 42)

	if err := database.Set(key, []byte("v")); err != nil {
		t.Fatalf("Set with 8 byte key failed: %v", err)
	}
	if err := database.Set([]byte("short"), []byte("v")); !errors.Is(err, ErrKeyWidth) {
		t.Errorf("Set with 5 byte key: expected ErrKeyWidth, got %v", err)
	}
	if _, _, err := database.Get([]byte("too-long-key")); !errors.Is(err, ErrKeyWidth) {
		t.Errorf("Get with 12 byte key: expected ErrKeyWidth, got %v", err)
	}
	if err := database.SetMany([][]byte{key, []byte("x")}, [][]byte{nil, nil}); !errors.Is(err, ErrKeyWidth) {
		t.Errorf("SetMany with a wrong key: expected ErrKeyWidth, got %v", err)
	}
	if v, ok, _ := database.Get(key); !ok || string(v) != "v" {
		t.Errorf("rejected batch must not write anything, got %q", v)
	}

	if _, err := NewMapleDB(&DBOptions{KeyWidth: -1}); err == nil {
		t.Errorf("negative key width should be rejected")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maple-test.data")

	first := newTestDB(t, &DBOptions{NumShards: 3, Path: path})
	for i := 0; i < 100; i++ {
		key := []byte{byte(i), 'k'}
		if err := first.Set(key, bytes.Repeat([]byte{byte(i)}, i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := first.ForceFlush(); err != nil {
		t.Fatalf("ForceFlush failed: %v", err)
	}
	if err := first.Set([]byte("after-flush"), []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// a different shard count must not matter
	second := newTestDB(t, &DBOptions{NumShards: 7, Path: path})
	defer second.Close()

	if n, _ := second.Count(nil); n != 101 {
		t.Errorf("Count after reload = %d, want 101", n)
	}
	for i := 0; i < 100; i++ {
		v, ok, err := second.Get([]byte{byte(i), 'k'})
		if err != nil || !ok || !bytes.Equal(v, bytes.Repeat([]byte{byte(i)}, i)) {
			t.Errorf("entry %d not restored: %v, %v, %v", i, v, ok, err)
		}
	}
	if _, ok, _ := second.Get([]byte("after-flush")); !ok {
		t.Errorf("Close should write a final snapshot")
	}
}

func TestCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maple-corrupt.data")

	database := newTestDB(t, &DBOptions{Path: path})
	if err := database.Set([]byte("key"), []byte("value")); err != nil {
		t.Fatal(err)
	}
	if err := database.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-10] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewMapleDB(&DBOptions{Path: path}); !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("expected ErrCorruptSnapshot, got %v", err)
	}
}

func TestSnapshotWithHugeLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maple-huge.data")

	var buf bytes.Buffer
	buf.WriteString(magicNum)
	buf.WriteByte(mapleVersion)
	_ = binary.Write(&buf, binary.LittleEndian, uint64(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0xfffffff0)) // key length
	buf.WriteString("only a few bytes follow")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewMapleDB(&DBOptions{Path: path}); !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("expected ErrCorruptSnapshot, got %v", err)
	}
}
