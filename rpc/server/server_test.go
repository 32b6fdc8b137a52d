package server

import (
	"encoding/json"
	"testing"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/engines/maple"
	"github.com/ValentinKolb/evkv/rpc/common"
	"github.com/ValentinKolb/evkv/rpc/serializer"
	"github.com/stretchr/testify/require"
)

func newMaple(t *testing.T) db.KVDB {
	database, err := maple.NewMapleDB(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestAdapter(t *testing.T) {
	database := newMaple(t)
	adapter := NewKVDBServerAdapter()

	handle := func(req *common.Message) *common.Message {
		resp := adapter.Handle(req, database)
		require.NoError(t, resp.ToError())
		require.Equal(t, req.MsgType, resp.MsgType)
		return resp
	}

	handle(common.NewSetManyRequest(
		[][]byte{[]byte("a:1"), []byte("a:2"), []byte("b:1")},
		[][]byte{[]byte("x"), {}, []byte("z")},
	))

	resp := handle(common.NewGetManyRequest([][]byte{[]byte("a:1"), []byte("a:2"), []byte("missing")}))
	require.Equal(t, []bool{true, true, false}, resp.Found)
	require.Equal(t, []byte("x"), resp.Values[0])
	require.Nil(t, resp.Values[2])

	resp = handle(common.NewSwapRequest([]byte("a:1"), []byte("y")))
	require.True(t, resp.Ok)
	require.Equal(t, []byte("x"), resp.Value)

	resp = handle(common.NewSetIfAbsentRequest([]byte("a:1"), []byte("ignored")))
	require.True(t, resp.Ok)
	require.Equal(t, []byte("y"), resp.Value)

	resp = handle(common.NewScanRequest([]byte("a:")))
	require.Len(t, resp.Keys, 2)
	require.Len(t, resp.Values, 2)

	resp = handle(common.NewCountRequest(nil))
	require.Equal(t, int64(3), resp.Count)

	handle(common.NewDeletePrefixRequest([]byte("a:")))
	resp = handle(common.NewHasRequest([]byte("a:1")))
	require.False(t, resp.Ok)

	resp = handle(common.NewFeaturesRequest())
	require.Equal(t, int64(db.FeatureAtomicSwap), resp.Count)

	resp = handle(common.NewInfoRequest())
	var info db.DatabaseInfo
	require.NoError(t, json.Unmarshal(resp.Meta, &info))
	require.Equal(t, db.ImplMaple, info.DbType)
	require.Equal(t, 1, info.Entries)

	handle(common.NewFlushRequest(false))
	handle(common.NewFlushRequest(true))
}

func TestAdapterErrors(t *testing.T) {
	database := newMaple(t)
	adapter := NewKVDBServerAdapter()

	resp := adapter.Handle(&common.Message{MsgType: common.MsgTSuccess}, database)
	require.Equal(t, common.RetCUnsupportedOperation, resp.Code)

	resp = adapter.Handle(&common.Message{
		MsgType: common.MsgTSetMany,
		Keys:    [][]byte{[]byte("a")},
	}, database)
	require.Equal(t, common.RetCInvalidOperation, resp.Code)

	resp = adapter.Handle(common.NewGetRequest([]byte("a")), nil)
	require.Equal(t, common.RetCInternalError, resp.Code)

	require.NoError(t, database.Close())
	resp = adapter.Handle(common.NewGetRequest([]byte("a")), database)
	require.ErrorIs(t, resp.ToError(), db.ErrClosed)
}

func TestHandleRoutesShards(t *testing.T) {
	s := NewRPCServer(common.DefaultServerConfig(), nil, serializer.NewBinarySerializer())
	s.shards.Store(7, serverShard{DB: newMaple(t), Adapter: NewKVDBServerAdapter()})

	call := func(shard uint64, req *common.Message) *common.Message {
		b, err := s.serializer.Serialize(*req)
		require.NoError(t, err)
		var resp common.Message
		require.NoError(t, s.serializer.Deserialize(s.handle(shard, b), &resp))
		return &resp
	}

	resp := call(7, common.NewSetRequest([]byte("k"), []byte("v")))
	require.NoError(t, resp.ToError())

	resp = call(7, common.NewGetRequest([]byte("k")))
	require.True(t, resp.Ok)
	require.Equal(t, []byte("v"), resp.Value)

	resp = call(8, common.NewGetRequest([]byte("k")))
	require.Equal(t, common.RetCShardNotFound, resp.Code)

	var garbage common.Message
	require.NoError(t, s.serializer.Deserialize(s.handle(7, []byte{1}), &garbage))
	require.Equal(t, common.RetCInvalidOperation, garbage.Code)
}

func TestOpenEngine(t *testing.T) {
	dir := t.TempDir()
	for _, engine := range common.LocalEngines {
		t.Run(engine, func(t *testing.T) {
			database, err := openEngine(engine, dir, "shard-1")
			require.NoError(t, err)
			require.NoError(t, database.Set([]byte("k"), []byte("v")))
			require.NoError(t, database.Close())

			// data survives a reopen
			database, err = openEngine(engine, dir, "shard-1")
			require.NoError(t, err)
			defer database.Close()
			v, ok, err := database.Get([]byte("k"))
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("v"), v)
		})
	}

	_, err := openEngine("bolt", "", "shard-1")
	require.Error(t, err)
	_, err = openEngine("redis", dir, "shard-1")
	require.Error(t, err)
}

func TestNewServerTransport(t *testing.T) {
	cfg := common.DefaultServerConfig()
	for _, name := range []string{common.TransportTCP, common.TransportUnix, common.TransportHTTP} {
		cfg.Transport = name
		tr, err := NewServerTransport(cfg)
		require.NoError(t, err)
		require.NotNil(t, tr)
	}
	cfg.Transport = "udp"
	_, err := NewServerTransport(cfg)
	require.Error(t, err)

	_, err = New(cfg)
	require.Error(t, err)
}
