package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/stretchr/testify/require"
)

func TestParseShards(t *testing.T) {
	tests := []struct {
		shards  string
		want    []ServerShard
		wantErr bool
	}{
		{"1", []ServerShard{{1, "maple"}}, false},
		{"100=maple,200=raft(leveldb)", []ServerShard{{100, "maple"}, {200, "raft(leveldb)"}}, false},
		{" 7 = Pebble , 8=raft ", []ServerShard{{7, "pebble"}, {8, "raft"}}, false},
		{"", nil, true},
		{"x=maple", nil, true},
		{"1=redis", nil, true},
		{"1=raft(redis)", nil, true},
		{"1=maple,1=leveldb", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.shards, func(t *testing.T) {
			got, err := ParseShards(tt.shards)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestServerShardEngines(t *testing.T) {
	engine, ok := ServerShard{ShardID: 1, Engine: "raft(pebble)"}.Replicated()
	require.True(t, ok)
	require.Equal(t, "pebble", engine)

	require.Equal(t, "leveldb", ServerShard{ShardID: 1, Engine: "raft"}.LocalEngine())
	require.Equal(t, "maple", ServerShard{ShardID: 1, Engine: "maple"}.LocalEngine())

	_, ok = ServerShard{ShardID: 1, Engine: "maple"}.Replicated()
	require.False(t, ok)
}

func TestServerConfigValidate(t *testing.T) {
	c := DefaultServerConfig()
	require.NoError(t, c.Validate())
	require.False(t, c.HasRaftShard())

	c.Shards = append(c.Shards, ServerShard{ShardID: 2, Engine: "raft(maple)"})
	require.True(t, c.HasRaftShard())
	require.NoError(t, c.Validate())
	require.Contains(t, c.String(), "RAFT PARAMETERS")

	c.ClusterMembers = map[uint64]string{2: "localhost:1"}
	require.Error(t, c.Validate(), "replica 1 is not a member")

	c = DefaultServerConfig()
	c.Serializer = "xml"
	require.Error(t, c.Validate())

	c = DefaultServerConfig()
	c.LogLevel = "loud"
	require.Error(t, c.Validate())
}

func TestClientConfig(t *testing.T) {
	c := DefaultClientConfig()
	require.NoError(t, c.Validate())
	require.Contains(t, c.String(), "localhost:8080")

	c.Transport = "carrier-pigeon"
	require.Error(t, c.Validate())

	c = DefaultClientConfig()
	c.Endpoints = nil
	require.Error(t, c.Validate())
}

func TestErrorCodes(t *testing.T) {
	require.Equal(t, RetCSuccess, CodeOf(nil))
	require.Equal(t, RetCClosed, CodeOf(fmt.Errorf("wrapped: %w", db.ErrClosed)))
	require.Equal(t, RetCInvalidOperation, CodeOf(NewError(RetCInvalidOperation, "bad")))
	require.Equal(t, RetCInternalError, CodeOf(errors.New("boom")))

	resp := NewResponse(MsgTGet, db.ErrClosed)
	err := resp.ToError()
	require.ErrorIs(t, err, db.ErrClosed)

	require.NoError(t, NewResponse(MsgTSet, nil).ToError())

	var rpcErr *Error
	require.ErrorAs(t, NewErrorResponse(RetCShardNotFound, "no shard 9").ToError(), &rpcErr)
	require.Equal(t, RetCShardNotFound, rpcErr.Code)
}
