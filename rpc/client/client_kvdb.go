package client

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/rpc/common"
	"github.com/ValentinKolb/evkv/rpc/serializer"
	"github.com/ValentinKolb/evkv/rpc/transport"
)

// Open connects to the servers of config and returns the database of shardID.
// Transport and serializer are picked by the names in config.
func Open(config common.ClientConfig, shardID uint64) (db.KVDB, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	t, err := NewClientTransport(config)
	if err != nil {
		return nil, err
	}
	s, err := serializer.New(config.Serializer)
	if err != nil {
		return nil, err
	}
	return NewRPCKVDB(shardID, config, t, s)
}

// NewRPCKVDB connects transport and returns a db.KVDB whose operations are
// executed by the server hosting shardId. The features of the remote database
// are fetched once.
func NewRPCKVDB(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (db.KVDB, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	r := &rpcKVDB{
		rpcClientAdapter: rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	resp, err := r.invoke(common.NewFeaturesRequest())
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("rpc: shard %d: %w", shardId, err)
	}
	r.features = db.Feature(resp.Count) | db.FeatureRemote

	return r, nil
}

type rpcKVDB struct {
	rpcClientAdapter
	features db.Feature
	closed   atomic.Bool
}

// Info is the metadata reported by GetInfo
type Info struct {
	ShardID    uint64          `json:"shard_id"`
	Endpoints  []string        `json:"endpoints"`
	Transport  string          `json:"transport"`
	Serializer string          `json:"serializer"`
	Server     json.RawMessage `json:"server,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.KVDB)
// --------------------------------------------------------------------------

func (r *rpcKVDB) Set(key, value []byte) error {
	_, err := r.call(common.NewSetRequest(key, value))
	return err
}

func (r *rpcKVDB) SetMany(keys, values [][]byte) error {
	if len(keys) != len(values) {
		return fmt.Errorf("rpc: SetMany: %d keys but %d values", len(keys), len(values))
	}
	_, err := r.call(common.NewSetManyRequest(keys, values))
	return err
}

func (r *rpcKVDB) Swap(key, value []byte) ([]byte, bool, error) {
	resp, err := r.call(common.NewSwapRequest(key, value))
	if err != nil {
		return nil, false, err
	}
	return found(resp.Value, resp.Ok), resp.Ok, nil
}

func (r *rpcKVDB) SetIfAbsent(key, value []byte) ([]byte, bool, error) {
	resp, err := r.call(common.NewSetIfAbsentRequest(key, value))
	if err != nil {
		return nil, false, err
	}
	return found(resp.Value, resp.Ok), resp.Ok, nil
}

func (r *rpcKVDB) Delete(key []byte) error {
	_, err := r.call(common.NewDeleteRequest(key))
	return err
}

func (r *rpcKVDB) DeleteMany(keys [][]byte) error {
	_, err := r.call(common.NewDeleteManyRequest(keys))
	return err
}

func (r *rpcKVDB) DeletePrefix(prefix []byte) error {
	_, err := r.call(common.NewDeletePrefixRequest(prefix))
	return err
}

func (r *rpcKVDB) Get(key []byte) ([]byte, bool, error) {
	resp, err := r.call(common.NewGetRequest(key))
	if err != nil {
		return nil, false, err
	}
	return found(resp.Value, resp.Ok), resp.Ok, nil
}

func (r *rpcKVDB) GetMany(keys [][]byte) ([][]byte, error) {
	resp, err := r.call(common.NewGetManyRequest(keys))
	if err != nil {
		return nil, err
	}
	if len(resp.Found) != len(keys) || len(resp.Values) != len(keys) {
		return nil, fmt.Errorf("rpc: GetMany: %d results for %d keys", len(resp.Found), len(keys))
	}
	values := make([][]byte, len(keys))
	for i, ok := range resp.Found {
		values[i] = found(resp.Values[i], ok)
	}
	return values, nil
}

func (r *rpcKVDB) Has(key []byte) (bool, error) {
	resp, err := r.call(common.NewHasRequest(key))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// Scan fetches all matching entries in one request and calls fn for them
func (r *rpcKVDB) Scan(prefix []byte, fn db.ScanFunc) error {
	resp, err := r.call(common.NewScanRequest(prefix))
	if err != nil {
		return err
	}
	if len(resp.Keys) != len(resp.Values) {
		return fmt.Errorf("rpc: Scan: %d keys but %d values", len(resp.Keys), len(resp.Values))
	}
	for i, key := range resp.Keys {
		if !fn(key, found(resp.Values[i], true)) {
			break
		}
	}
	return nil
}

func (r *rpcKVDB) Count(prefix []byte) (int, error) {
	resp, err := r.call(common.NewCountRequest(prefix))
	if err != nil {
		return 0, err
	}
	return int(resp.Count), nil
}

func (r *rpcKVDB) Flush() error {
	_, err := r.call(common.NewFlushRequest(false))
	return err
}

func (r *rpcKVDB) ForceFlush() error {
	_, err := r.call(common.NewFlushRequest(true))
	return err
}

func (r *rpcKVDB) SupportsFeature(feature db.Feature) bool {
	return r.features&feature == feature
}

func (r *rpcKVDB) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		Name:              fmt.Sprintf("shard-%d", r.shardId),
		DbType:            db.ImplRemote,
		SupportedFeatures: r.features.Features(),
	}
	meta := Info{
		ShardID:    r.shardId,
		Endpoints:  r.config.Endpoints,
		Transport:  r.config.Transport,
		Serializer: r.config.Serializer,
	}

	resp, err := r.call(common.NewInfoRequest())
	if err == nil {
		var server db.DatabaseInfo
		if err = json.Unmarshal(resp.Meta, &server); err == nil {
			info.Entries = server.Entries
			info.SizeBytes = server.SizeBytes
			meta.Server = resp.Meta
		}
	}
	if err != nil {
		meta.Error = err.Error()
	}
	info.Metadata = meta
	return info
}

// Close closes the connections of the client, the remote database stays open
func (r *rpcKVDB) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.transport.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (r *rpcKVDB) call(req *common.Message) (*common.Message, error) {
	if r.closed.Load() {
		return nil, db.ErrClosed
	}
	return r.invoke(req)
}

// found normalizes a value of a present key to a non-nil slice, some
// serializers do not distinguish empty from nil
func found(value []byte, ok bool) []byte {
	if !ok {
		return nil
	}
	if value == nil {
		return []byte{}
	}
	return value
}
