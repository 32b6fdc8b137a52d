package server

import (
	"errors"
	"fmt"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/engines/raft"
	"github.com/ValentinKolb/evkv/rpc/common"
	"github.com/ValentinKolb/evkv/rpc/serializer"
	"github.com/ValentinKolb/evkv/rpc/transport"
	"github.com/ValentinKolb/evkv/rpc/transport/http"
	"github.com/ValentinKolb/evkv/rpc/transport/tcp"
	"github.com/ValentinKolb/evkv/rpc/transport/unix"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a shard hosted by the RPC server: the database it
// encapsulates and the adapter that handles requests for it
type serverShard struct {
	DB      db.KVDB
	Adapter IRPCServerAdapter
}

// RPCServer serves the shards of a ServerConfig over one transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]

	mu      sync.Mutex
	cluster *raft.Cluster
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		config,
//		tcp.NewTCPDefaultServerTransport(config.WorkersPerConn),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// New creates a server whose transport and serializer are picked by the names in config
func New(config common.ServerConfig) (*RPCServer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	t, err := NewServerTransport(config)
	if err != nil {
		return nil, err
	}
	s, err := serializer.New(config.Serializer)
	if err != nil {
		return nil, err
	}
	return NewRPCServer(config, t, s), nil
}

// NewServerTransport returns the server transport named in config
func NewServerTransport(config common.ServerConfig) (transport.IRPCServerTransport, error) {
	switch config.Transport {
	case common.TransportTCP:
		return tcp.NewTCPServerTransport(config.BufferSize, config.WorkersPerConn), nil
	case common.TransportUnix:
		return unix.NewUnixServerTransport(config.BufferSize, config.WorkersPerConn), nil
	case common.TransportHTTP:
		return http.NewHttpServerTransport(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", config.Transport)
	}
}

// Serve starts the RPC server
// This function will also initialize the shards and start the transport layer.
// It blocks until Close is called.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		_ = s.closeShards()
		return err
	}
	Logger.Infof("evkv server configuration:%s", s.config.String())
	return s.transport.Listen(s.config)
}

// Close stops the transport and closes all shards. Concurrent calls wait
// until the first one is done.
func (s *RPCServer) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.closeErr = multierr.Append(s.transport.Close(), s.closeShards())
	})
	return s.closeErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("server is closed")
	}

	adapter := NewKVDBServerAdapter()
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	/*
		Note: A single RPC Server can host any number of local and replicated
		shards. Local shards own their engine, replicated shards share one
		dragonboat node host and open their engine below the state machine.
	*/

	if s.config.HasRaftShard() {
		cluster, err := raft.NewCluster(s.config.Config, s.openReplica)
		if err != nil {
			return err
		}
		s.cluster = cluster
	}

	for _, shard := range s.config.Shards {
		var (
			database db.KVDB
			err      error
		)
		if _, ok := shard.Replicated(); ok {
			if err = s.cluster.StartShard(shard.ShardID); err == nil {
				database = s.cluster.Open(shard.ShardID, raft.Options{Timeout: timeout})
			}
		} else {
			database, err = openEngine(shard.Engine, s.config.DataDir, fmt.Sprintf("shard-%d", shard.ShardID))
		}
		if err != nil {
			return fmt.Errorf("failed to open shard %d (%s): %w", shard.ShardID, shard.Engine, err)
		}

		s.shards.Store(shard.ShardID, serverShard{DB: database, Adapter: adapter})
		Logger.Infof("created %s shard %d", shard.Engine, shard.ShardID)
	}

	Logger.Infof("evkv setup completed successfully")

	// Configure the transport layer
	s.transport.RegisterHandler(s.handle)

	return nil
}

// openReplica opens the local engine of a replicated shard
func (s *RPCServer) openReplica(shardID, replicaID uint64) (db.KVDB, error) {
	shard, ok := s.config.Shard(shardID)
	if !ok {
		return nil, fmt.Errorf("shard %d is not configured", shardID)
	}
	return openEngine(shard.LocalEngine(), s.config.DataDir, fmt.Sprintf("raft-%d-%d", shardID, replicaID))
}

// closeShards closes the database of every shard and the raft node host
func (s *RPCServer) closeShards() error {
	var err error
	s.shards.Range(func(id uint64, shard serverShard) bool {
		if cerr := shard.DB.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("shard %d: %w", id, cerr))
		}
		s.shards.Delete(id)
		return true
	})

	s.mu.Lock()
	cluster := s.cluster
	s.cluster = nil
	s.mu.Unlock()
	if cluster != nil {
		err = multierr.Append(err, cluster.Close())
	}
	return err
}

// handle decodes a request, lets the adapter of the shard answer it and
// encodes the response
func (s *RPCServer) handle(shardId uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	start := time.Now()

	if shard, ok := s.shards.Load(shardId); !ok {
		respMsg = common.NewErrorResponse(common.RetCShardNotFound, fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(common.RetCInvalidOperation, fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		respMsg = shard.Adapter.Handle(&msg, shard.DB)
	}

	observeRequest(msg.MsgType, respMsg, time.Since(start))

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(
			common.RetCInternalError,
			fmt.Sprintf("failed to serialize response: %s", err),
		))
	}
	return val
}

// observeRequest updates the request metrics of the server
func observeRequest(t common.MessageType, resp *common.Message, took time.Duration) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`evkv_rpc_requests_total{type=%q}`, t)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`evkv_rpc_request_duration_seconds{type=%q}`, t)).Update(took.Seconds())
	if resp.Err != "" {
		metrics.GetOrCreateCounter(fmt.Sprintf(`evkv_rpc_errors_total{type=%q,code=%q}`, t, resp.Code)).Inc()
	}
}
