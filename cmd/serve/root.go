package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/evkv/cmd/util"
	"github.com/ValentinKolb/evkv/lib/db/util"
	"github.com/ValentinKolb/evkv/rpc/common"
	"github.com/ValentinKolb/evkv/rpc/server"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

var (
	log = logger.GetLogger("cli")

	serveCmdConfig = common.DefaultServerConfig()
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the evkv server",
		Long: `Start the evkv server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is EVKV_<flag> (e.g. EVKV_TIMEOUT=15)

Shards are given as ID=ENGINE pairs, ENGINE is one of leveldb, pebble, badger, bolt, maple or raft(<engine>) for a replicated shard, e.g. --shards "100=maple,200=raft(leveldb)".`,
		Annotations: map[string]string{"log-level": "info"},
		PreRunE:     processConfig,
		RunE:        run,
	}
)

func init() {
	def := common.DefaultServerConfig()

	// add flags
	key := "shards"
	ServeCmd.PersistentFlags().String(key, "1=maple", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=ENGINE where ENGINE is one of: leveldb, pebble, badger, bolt, maple, raft(<engine>)"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Uint64(key, def.RTTMillisecond, cmdUtil.WrapString("(raft) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value/10, HeartbeatRTT=value/100) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Uint64(key, def.SnapshotEntries, cmdUtil.WrapString("(raft) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Uint64(key, def.CompactionOverhead, cmdUtil.WrapString("(raft) CompactionOverhead defines the number of log entries to keep after a snapshot. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("DataDir is the directory of the shard engines and the raft logs and snapshots (empty = in memory, not for bolt and raft)"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, def.TimeoutSecond, cmdUtil.WrapString("Timeout in seconds of writes and raft requests"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/evkv.sock, ...)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, def.WorkersPerConn, cmdUtil.WrapString("Maximum number of requests processed in parallel per connection (tcp and unix)"))

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, def.BufferSize/1024, cmdUtil.WrapString("Size of the pooled request buffers in KB (tcp and unix)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, def.TCPNoDelay, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, def.TCPKeepAliveSec, cmdUtil.WrapString("The keepalive interval (in seconds, 0 = off, only for tcp)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, def.TCPLingerSec, cmdUtil.WrapString("The linger time (in seconds, -1 = OS default, only for tcp)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the prometheus /metrics endpoint (e.g. localhost:9090, empty = off)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := common.ParseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Transport = viper.GetString("transport")
	serveCmdConfig.Serializer = viper.GetString("serializer")
	serveCmdConfig.WorkersPerConn = viper.GetInt("workers-per-conn")
	serveCmdConfig.BufferSize = viper.GetInt("buffer-size") * 1024
	serveCmdConfig.TCPNoDelay = viper.GetBool("tcp-nodelay")
	serveCmdConfig.TCPKeepAliveSec = viper.GetInt("tcp-keepalive")
	serveCmdConfig.TCPLingerSec = viper.GetInt("tcp-linger")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	if !viper.IsSet("log-level") {
		serveCmdConfig.LogLevel = cmd.Annotations["log-level"]
	}

	// parse replica id
	if id := viper.GetString("replica-id"); id != "" {
		serveCmdConfig.ReplicaID = uint64(util.HashString(id, 0))
	} else if serveCmdConfig.HasRaftShard() {
		// error only if cluster mode
		return fmt.Errorf("ReplicaId is required for raft shards")
	}

	// parse cluster members
	if clusterMembers := viper.GetString("cluster-members"); clusterMembers != "" {
		serveCmdConfig.ClusterMembers = make(map[uint64]string)
		for _, member := range strings.Split(clusterMembers, ",") {
			parts := strings.Split(member, "=")
			if len(parts) != 2 {
				return fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
			}
			idHash := util.HashString(strings.TrimSpace(parts[0]), 0)
			serveCmdConfig.ClusterMembers[uint64(idHash)] = strings.TrimSpace(parts[1])
		}
	} else if serveCmdConfig.HasRaftShard() {
		// error only if cluster mode
		return fmt.Errorf("ClusterMembers is required for raft shards")
	}

	return serveCmdConfig.Validate()
}

// run starts the evkv server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	serv, err := server.New(serveCmdConfig)
	if err != nil {
		return err
	}

	if serveCmdConfig.MetricsEndpoint != "" {
		go serveMetrics(serveCmdConfig.MetricsEndpoint)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Infof("shutting down")
		if err := serv.Close(); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	// Serve returns once Close has started, Close waits until all shards are closed
	err = serv.Serve()
	return multierr.Append(err, serv.Close())
}

// serveMetrics exposes the VictoriaMetrics default set in prometheus format
func serveMetrics(endpoint string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	log.Infof("serving metrics on %s/metrics", endpoint)
	if err := http.ListenAndServe(endpoint, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("metrics endpoint: %v", err)
	}
}
