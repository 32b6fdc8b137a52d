package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/evkv/lib/db"
	dbtesting "github.com/ValentinKolb/evkv/lib/db/testing"
	"github.com/ValentinKolb/evkv/rpc/common"
	"github.com/ValentinKolb/evkv/rpc/server"
	"github.com/stretchr/testify/require"
)

const testShards = 32

// freeTCPEndpoint returns a localhost endpoint that was free a moment ago
func freeTCPEndpoint(t testing.TB) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	endpoint := l.Addr().String()
	require.NoError(t, l.Close())
	return endpoint
}

// unixEndpoint returns a short socket path, t.TempDir may exceed the socket path limit
func unixEndpoint(t testing.TB) string {
	dir, err := os.MkdirTemp("", "evkv")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "rpc.sock")
}

// startServer serves testShards empty maple shards and returns the matching client config
func startServer(t testing.TB, transport, serializer string) common.ClientConfig {
	cfg := common.DefaultServerConfig()
	cfg.Transport = transport
	cfg.Serializer = serializer
	cfg.LogLevel = "error"
	cfg.Shards = nil
	for id := uint64(1); id <= testShards; id++ {
		cfg.Shards = append(cfg.Shards, common.ServerShard{ShardID: id, Engine: "maple"})
	}
	if transport == common.TransportUnix {
		cfg.Endpoint = unixEndpoint(t)
	} else {
		cfg.Endpoint = freeTCPEndpoint(t)
	}

	s, err := server.New(cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()
	t.Cleanup(func() {
		_ = s.Close()
		<-done
	})

	clientCfg := common.DefaultClientConfig()
	clientCfg.Endpoints = []string{cfg.Endpoint}
	clientCfg.Transport = transport
	clientCfg.Serializer = serializer
	clientCfg.RetryCount = 1

	// wait until the server answers
	require.Eventually(t, func() bool {
		kv, err := Open(clientCfg, 1)
		if err != nil {
			return false
		}
		_ = kv.Close()
		return true
	}, 10*time.Second, 20*time.Millisecond)

	return clientCfg
}

func Test(t *testing.T) {
	combinations := []struct{ transport, serializer string }{
		{common.TransportUnix, common.SerializerBinary},
		{common.TransportUnix, common.SerializerJSON},
		{common.TransportUnix, common.SerializerGOB},
		{common.TransportUnix, common.SerializerCBOR},
		{common.TransportTCP, common.SerializerBinary},
		{common.TransportHTTP, common.SerializerBinary},
	}

	for _, c := range combinations {
		cfg := startServer(t, c.transport, c.serializer)

		// every database gets its own (empty) shard
		var next atomic.Uint64
		dbtesting.RunKVDBTests(t, fmt.Sprintf("%s-%s", c.transport, c.serializer), func() db.KVDB {
			shard := next.Add(1)
			if shard > testShards {
				t.Fatalf("test needs more than %d shards", testShards)
			}
			kv, err := Open(cfg, shard)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			return kv
		})
	}
}

func TestRemoteFeaturesAndInfo(t *testing.T) {
	cfg := startServer(t, common.TransportUnix, common.SerializerBinary)

	kv, err := Open(cfg, 2)
	require.NoError(t, err)
	defer kv.Close()

	require.True(t, kv.SupportsFeature(db.FeatureRemote))
	require.True(t, kv.SupportsFeature(db.FeatureAtomicSwap))
	require.False(t, kv.SupportsFeature(db.FeatureReplicated))

	require.NoError(t, kv.SetMany([][]byte{[]byte("a"), []byte("b")}, [][]byte{[]byte("1"), []byte("2")}))

	info := kv.GetInfo()
	require.Equal(t, db.ImplRemote, info.DbType)
	require.Equal(t, 2, info.Entries)
	meta, ok := info.Metadata.(Info)
	require.True(t, ok)
	require.Empty(t, meta.Error)
	require.Equal(t, uint64(2), meta.ShardID)
	require.Contains(t, string(meta.Server), `"db_type":"maple"`)
}

func TestUnknownShard(t *testing.T) {
	cfg := startServer(t, common.TransportUnix, common.SerializerBinary)

	_, err := Open(cfg, testShards+1)
	require.Error(t, err)

	var rpcErr *common.Error
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, common.RetCShardNotFound, rpcErr.Code)
}

func TestCloseKeepsServerData(t *testing.T) {
	cfg := startServer(t, common.TransportTCP, common.SerializerCBOR)

	kv, err := Open(cfg, 3)
	require.NoError(t, err)
	require.NoError(t, kv.Set([]byte("k"), []byte("v")))
	require.NoError(t, kv.Close())
	_, _, err = kv.Get([]byte("k"))
	require.ErrorIs(t, err, db.ErrClosed)

	kv, err = Open(cfg, 3)
	require.NoError(t, err)
	defer kv.Close()
	v, ok, err := kv.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestOpenFailsWithoutServer(t *testing.T) {
	cfg := common.DefaultClientConfig()
	cfg.Endpoints = []string{freeTCPEndpoint(t)}
	cfg.RetryCount = 1
	_, err := Open(cfg, 1)
	require.Error(t, err)

	cfg.Serializer = "yaml"
	_, err = Open(cfg, 1)
	require.Error(t, err)
}
