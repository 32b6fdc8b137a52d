package db

import (
	"fmt"

	"github.com/ValentinKolb/evkv/lib/db/util"
)

// --------------------------------------------------------------------------
// Loop fallbacks
// --------------------------------------------------------------------------
//
// Engines without a native batch or read-modify-write primitive build their
// KVDB methods from these helpers. None of them is atomic.

// CheckBatch validates that keys and values can be zipped
func CheckBatch(keys, values [][]byte) error {
	if len(keys) != len(values) {
		return fmt.Errorf("db: batch has %d keys but %d values", len(keys), len(values))
	}
	return nil
}

// GetManyLoop implements GetMany with one Get per key
func GetManyLoop(kv KVDB, keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, ok, err := kv.Get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = v
		}
	}
	return out, nil
}

// SetManyLoop implements SetMany with one Set per entry
func SetManyLoop(kv KVDB, keys, values [][]byte) error {
	if err := CheckBatch(keys, values); err != nil {
		return err
	}
	for i := range keys {
		if err := kv.Set(keys[i], values[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteManyLoop implements DeleteMany with one Delete per key
func DeleteManyLoop(kv KVDB, keys [][]byte) error {
	for _, k := range keys {
		if err := kv.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// SwapLoop implements Swap as Get followed by Set
func SwapLoop(kv KVDB, key, value []byte) ([]byte, bool, error) {
	old, found, err := kv.Get(key)
	if err != nil {
		return nil, false, err
	}
	if err := kv.Set(key, value); err != nil {
		return nil, false, err
	}
	return old, found, nil
}

// SetIfAbsentLoop implements SetIfAbsent as Get followed by an optional Set
func SetIfAbsentLoop(kv KVDB, key, value []byte) ([]byte, bool, error) {
	existing, found, err := kv.Get(key)
	if err != nil || found {
		return existing, found, err
	}
	return nil, false, kv.Set(key, value)
}

// CountLoop implements Count by scanning
func CountLoop(kv KVDB, prefix []byte) (int, error) {
	n := 0
	err := kv.Scan(prefix, func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}

// DeletePrefixLoop collects all keys under prefix and deletes them
func DeletePrefixLoop(kv KVDB, prefix []byte) error {
	var keys [][]byte
	err := kv.Scan(prefix, func(k, _ []byte) bool {
		keys = append(keys, util.CloneBytes(k))
		return true
	})
	if err != nil {
		return err
	}
	return kv.DeleteMany(keys)
}
