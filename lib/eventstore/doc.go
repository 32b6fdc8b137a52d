// Package eventstore implements key event stores: an append-only list of
// events per key, cached in memory and persisted as one list value per key in
// a store.KeyValueDb.
//
// Appended events are buffered per key. Flush writes them to the backend once
// the cache holds SoftLimit events, an Append that brings the cache to
// HardLimit events flushes synchronously before it returns. A flush reads the
// persisted lists of FlushBatchSize keys, appends the (optionally compacted)
// cached events and writes the batch back with one PutAll. Keys of written
// batches leave the cache, so a failed flush (*FlushError) keeps the rest
// cached and can be retried without duplicating events.
//
// GetAll returns the persisted events followed by the cached ones. DeleteAll
// drops both.
//
// Factory opens event stores by name through a factory.Factory and registers
// them with its lifetime.Lifetime:
//
//	events, err := eventstore.GetStore(f, eventstore.StoreOptions[int64, string]{Name: "orders"})
//	err = events.Append(42, "created")
package eventstore
