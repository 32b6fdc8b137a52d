package eventstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/evkv/lib/codec"
	"github.com/ValentinKolb/evkv/lib/store"
	"github.com/ValentinKolb/evkv/lib/store/factory"
	"github.com/puzpuzpuz/xsync/v3"
)

// Defaults of Settings
const (
	DefaultSoftLimit           = 1 << 16
	DefaultHardLimit           = 1 << 17
	DefaultFlushBatchSize      = 64
	DefaultAverageEventsPerKey = 10
)

// Settings configures the event stores of a Factory
type Settings struct {
	SoftLimit      int
	HardLimit      int
	FlushBatchSize int
	// AverageEventsPerKey sizes the list codec estimate (-1 = unknown)
	AverageEventsPerKey int
	// Compression of the persisted event lists: none, snappy, zstd or lz4
	Compression string
}

// DefaultSettings returns the default event store settings
func DefaultSettings() Settings {
	return Settings{
		SoftLimit:           DefaultSoftLimit,
		HardLimit:           DefaultHardLimit,
		FlushBatchSize:      DefaultFlushBatchSize,
		AverageEventsPerKey: DefaultAverageEventsPerKey,
		Compression:         "none",
	}
}

// Options returns the store options of the settings
func (s *Settings) Options() Options {
	return Options{
		SoftLimit:      s.SoftLimit,
		HardLimit:      s.HardLimit,
		FlushBatchSize: s.FlushBatchSize,
	}
}

// Validate checks the settings for errors
func (s *Settings) Validate() error {
	if err := s.Options().Validate(); err != nil {
		return err
	}
	if s.AverageEventsPerKey < -1 {
		return fmt.Errorf("eventstore: average events per key must be >= -1, got %d", s.AverageEventsPerKey)
	}
	_, err := codec.ParseAlgorithm(s.Compression)
	return err
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

	addSection("Event Stores")
	addField("Soft Limit", strconv.Itoa(s.SoftLimit))
	addField("Hard Limit", strconv.Itoa(s.HardLimit))
	addField("Flush Batch Size", strconv.Itoa(s.FlushBatchSize))
	addField("Avg Events Per Key", strconv.Itoa(s.AverageEventsPerKey))
	addField("Compression", s.Compression)

	return sb.String()
}

// StoreOptions identifies a logical event store
type StoreOptions[K comparable, E any] struct {
	Name    string
	Backend store.Backend
	// KeyCodec and EventCodec override the registry of the store factory
	KeyCodec   codec.Codec[K]
	EventCodec codec.Codec[E]
	// Compacter of the cached events (nil keeps every event)
	Compacter Compacter[E]
}

// Factory creates event stores on top of the stores of a store factory
type Factory struct {
	stores   *factory.Factory
	settings Settings
	cache    *xsync.MapOf[string, any]
}

// NewFactory creates an event store factory
func NewFactory(stores *factory.Factory, settings Settings) (*Factory, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Factory{
		stores:   stores,
		settings: settings,
		cache:    xsync.NewMapOf[string, any](),
	}, nil
}

// Settings returns the settings of the factory
func (f *Factory) Settings() Settings {
	return f.settings
}

// GetStore returns the event store with the given name, creating it on first use.
// The events of every key are persisted as one list value in the store of the
// same name.
func GetStore[K comparable, E any](f *Factory, opts StoreOptions[K, E]) (*CachingStore[K, E], error) {
	if cached, ok := f.cache.Load(opts.Name); ok {
		s, ok := cached.(*CachingStore[K, E])
		if !ok {
			return nil, &store.ConfigError{Store: opts.Name, Reason: "event store already opened with other types"}
		}
		return s, nil
	}

	eventCodec := opts.EventCodec
	if eventCodec == nil {
		c, err := codec.Resolve[E](f.stores.Registry())
		if err != nil {
			return nil, err
		}
		eventCodec = c
	}
	listCodec := codec.ListOf(eventCodec, f.settings.AverageEventsPerKey)
	algo, err := codec.ParseAlgorithm(f.settings.Compression)
	if err != nil {
		return nil, err
	}
	if algo != 0 {
		if listCodec, err = codec.Compressed(listCodec, algo); err != nil {
			return nil, err
		}
	}

	db, err := factory.GetDb(f.stores, store.DbOptions[K, []E]{
		Name:       opts.Name,
		Backend:    opts.Backend,
		KeyCodec:   opts.KeyCodec,
		ValueCodec: listCodec,
	})
	if err != nil {
		return nil, err
	}

	s, err := New(db, opts.Compacter, f.settings.Options())
	if err != nil {
		return nil, err
	}

	if _, loaded := f.cache.LoadOrStore(opts.Name, s); loaded {
		// lost the race, the winner owns the backing store
		s.stats.stop()
		return GetStore[K, E](f, opts)
	}

	if err := f.stores.Lifetime().Register("event store "+opts.Name, s); err != nil {
		return nil, err
	}
	return s, nil
}
