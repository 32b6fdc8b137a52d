package kvstore

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ValentinKolb/evkv/lib/codec"
	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/store"
)

// Separator is appended to the store name to build the key prefix of a prefixed store.
const Separator = ":"

type storeImpl[K comparable, V any] struct {
	name   string
	db     db.KVDB
	keys   codec.Codec[K]
	values codec.Codec[V]
	prefix []byte
}

// New creates a typed store on top of kvdb. The store owns kvdb and closes it on Close.
//
// With prefixed set, every key is stored as "<name>:" followed by the encoded key,
// and all bulk and scan operations are limited to that prefix. Without a prefix the
// store assumes it is the only user of kvdb.
func New[K comparable, V any](kvdb db.KVDB, name string, keyCodec codec.Codec[K], valueCodec codec.Codec[V], prefixed bool) store.KeyValueDb[K, V] {
	s := &storeImpl[K, V]{
		name:   name,
		db:     kvdb,
		keys:   keyCodec,
		values: valueCodec,
	}
	if prefixed {
		s.prefix = Prefix(name)
	}
	return s
}

// Prefix returns the key prefix used by a prefixed store with the given name.
func Prefix(name string) []byte {
	return []byte(name + Separator)
}

// CheckName reports whether name can be used as a store name. Names must not
// contain Separator, otherwise the prefix of "a" would also cover the keys of
// "a:b". They end up in file names, so path separators, "." and ".." are
// refused as well.
func CheckName(name string) error {
	switch {
	case name == "":
		return errors.New("store name must not be empty")
	case name == "." || name == "..":
		return fmt.Errorf("store name %q is reserved", name)
	case strings.Contains(name, Separator):
		return fmt.Errorf("store name %q must not contain %q", name, Separator)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("store name %q must not contain path separators", name)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (s *storeImpl[K, V]) encodeKey(key K) ([]byte, error) {
	return codec.EncodeWithPrefix(s.keys, s.prefix, key)
}

func (s *storeImpl[K, V]) encodeKeys(keys []K) ([][]byte, error) {
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		b, err := s.encodeKey(k)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}
	return raw, nil
}

func (s *storeImpl[K, V]) decodeKey(raw []byte) (K, error) {
	return codec.DecodeAt(s.keys, len(s.prefix), raw)
}

func (s *storeImpl[K, V]) decodeValue(raw []byte) (V, error) {
	return codec.Decode(s.values, raw)
}

// decodeFound decodes raw if found is set
func (s *storeImpl[K, V]) decodeFound(raw []byte, found bool, err error) (V, bool, error) {
	var zero V
	if err != nil || !found {
		return zero, false, err
	}
	v, err := s.decodeValue(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// scan visits every raw entry of the store and stops at the first error of fn
func (s *storeImpl[K, V]) scan(fn func(key, value []byte) error) error {
	var fnErr error
	err := s.db.Scan(s.prefix, func(key, value []byte) bool {
		fnErr = fn(key, value)
		return fnErr == nil
	})
	if err != nil {
		return err
	}
	if fnErr == errStop {
		return nil
	}
	return fnErr
}

// errStop ends a scan without an error
var errStop = errors.New("stop")

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl[K, V]) Name() string {
	return s.name
}

func (s *storeImpl[K, V]) Get(key K) (V, bool, error) {
	var zero V
	k, err := s.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	return s.decodeFound(s.db.Get(k))
}

func (s *storeImpl[K, V]) GetOrDefault(key K, def V) (V, error) {
	v, found, err := s.Get(key)
	if err != nil {
		return def, err
	}
	if !found {
		return def, nil
	}
	return v, nil
}

func (s *storeImpl[K, V]) ContainsKey(key K) (bool, error) {
	k, err := s.encodeKey(key)
	if err != nil {
		return false, err
	}
	return s.db.Has(k)
}

func (s *storeImpl[K, V]) ContainsValue(value V) (bool, error) {
	want, err := codec.Encode(s.values, value)
	if err != nil {
		return false, err
	}
	found := false
	err = s.scan(func(_, v []byte) error {
		if bytes.Equal(v, want) {
			found = true
			return errStop
		}
		return nil
	})
	return found, err
}

func (s *storeImpl[K, V]) Size() (int, error) {
	return s.db.Count(s.prefix)
}

func (s *storeImpl[K, V]) IsEmpty() (bool, error) {
	empty := true
	err := s.db.Scan(s.prefix, func(_, _ []byte) bool {
		empty = false
		return false
	})
	return empty, err
}

func (s *storeImpl[K, V]) Set(key K, value V) error {
	k, err := s.encodeKey(key)
	if err != nil {
		return err
	}
	v, err := codec.Encode(s.values, value)
	if err != nil {
		return err
	}
	return s.db.Set(k, v)
}

func (s *storeImpl[K, V]) Put(key K, value V) (V, bool, error) {
	var zero V
	k, err := s.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	v, err := codec.Encode(s.values, value)
	if err != nil {
		return zero, false, err
	}
	return s.decodeFound(s.db.Swap(k, v))
}

func (s *storeImpl[K, V]) PutIfAbsent(key K, value V) (V, bool, error) {
	var zero V
	k, err := s.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	v, err := codec.Encode(s.values, value)
	if err != nil {
		return zero, false, err
	}
	return s.decodeFound(s.db.SetIfAbsent(k, v))
}

// PutIfPresent is a Has followed by a Swap. It is not atomic against a
// concurrent Delete of the same key, which may be undone by the Swap.
func (s *storeImpl[K, V]) PutIfPresent(key K, value V) (V, bool, error) {
	var zero V
	k, err := s.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	present, err := s.db.Has(k)
	if err != nil || !present {
		return zero, false, err
	}
	v, err := codec.Encode(s.values, value)
	if err != nil {
		return zero, false, err
	}
	return s.decodeFound(s.db.Swap(k, v))
}

func (s *storeImpl[K, V]) Delete(key K) error {
	k, err := s.encodeKey(key)
	if err != nil {
		return err
	}
	return s.db.Delete(k)
}

// Remove is a Get followed by a Delete. Concurrent writers of the same key
// may see their value removed while Remove reports the one read before.
func (s *storeImpl[K, V]) Remove(key K) (V, bool, error) {
	var zero V
	k, err := s.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	prev, found, err := s.db.Get(k)
	if err != nil || !found {
		return zero, false, err
	}
	if err := s.db.Delete(k); err != nil {
		return zero, false, err
	}
	return s.decodeFound(prev, true, nil)
}

func (s *storeImpl[K, V]) Clear() error {
	return s.db.DeletePrefix(s.prefix)
}

func (s *storeImpl[K, V]) GetAll(keys []K) (map[K]V, error) {
	result := make(map[K]V, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	raw, err := s.encodeKeys(keys)
	if err != nil {
		return nil, err
	}
	values, err := s.db.GetMany(raw)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		decoded, err := s.decodeValue(v)
		if err != nil {
			return nil, err
		}
		result[keys[i]] = decoded
	}
	return result, nil
}

func (s *storeImpl[K, V]) PutAll(entries map[K]V) error {
	if len(entries) == 0 {
		return nil
	}
	keys := make([][]byte, 0, len(entries))
	values := make([][]byte, 0, len(entries))
	for key, value := range entries {
		k, err := s.encodeKey(key)
		if err != nil {
			return err
		}
		v, err := codec.Encode(s.values, value)
		if err != nil {
			return err
		}
		keys = append(keys, k)
		values = append(values, v)
	}
	return s.db.SetMany(keys, values)
}

func (s *storeImpl[K, V]) RemoveAll(keys []K) error {
	if len(keys) == 0 {
		return nil
	}
	raw, err := s.encodeKeys(keys)
	if err != nil {
		return err
	}
	return s.db.DeleteMany(raw)
}

func (s *storeImpl[K, V]) Keys() ([]K, error) {
	var keys []K
	err := s.scan(func(k, _ []byte) error {
		key, err := s.decodeKey(k)
		if err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *storeImpl[K, V]) Values() ([]V, error) {
	var values []V
	err := s.scan(func(_, v []byte) error {
		value, err := s.decodeValue(v)
		if err != nil {
			return err
		}
		values = append(values, value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (s *storeImpl[K, V]) Entries() ([]store.Entry[K, V], error) {
	var entries []store.Entry[K, V]
	err := s.ForEach(func(key K, value V) bool {
		entries = append(entries, store.Entry[K, V]{Key: key, Value: value})
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *storeImpl[K, V]) ForEach(fn func(key K, value V) bool) error {
	return s.scan(func(k, v []byte) error {
		key, err := s.decodeKey(k)
		if err != nil {
			return err
		}
		value, err := s.decodeValue(v)
		if err != nil {
			return err
		}
		if !fn(key, value) {
			return errStop
		}
		return nil
	})
}

func (s *storeImpl[K, V]) Flush() error {
	return s.db.Flush()
}

func (s *storeImpl[K, V]) ForceFlush() error {
	return s.db.ForceFlush()
}

func (s *storeImpl[K, V]) Info() db.DatabaseInfo {
	info := s.db.GetInfo()
	info.Name = s.name
	return info
}

func (s *storeImpl[K, V]) Close() error {
	return s.db.Close()
}
