package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ValentinKolb/evkv/lib/db/engines/raft"
)

// Names of the transports
const (
	TransportTCP  = "tcp"
	TransportUnix = "unix"
	TransportHTTP = "http"
)

// Names of the serializers
const (
	SerializerBinary = "binary"
	SerializerJSON   = "json"
	SerializerGOB    = "gob"
	SerializerCBOR   = "cbor"
)

// LocalEngines are the engines a shard can host, directly or below raft
var LocalEngines = []string{"leveldb", "pebble", "badger", "bolt", "maple"}

// --------------------------------------------------------------------------
// Socket configuration (shared by client and server)
// --------------------------------------------------------------------------

// SocketConfig holds the socket options applied to every tcp connection
type SocketConfig struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // < 0 keeps the OS default
	WriteBufferSize int
	ReadBufferSize  int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerShard is one shard hosted by the server
type ServerShard struct {
	ShardID uint64
	// Engine is a local engine ("maple") or a replicated one ("raft(leveldb)")
	Engine string
}

// Replicated returns the local engine of a raft shard
func (s ServerShard) Replicated() (engine string, ok bool) {
	if strings.HasPrefix(s.Engine, "raft(") && strings.HasSuffix(s.Engine, ")") {
		return s.Engine[len("raft(") : len(s.Engine)-1], true
	}
	if s.Engine == "raft" {
		return "leveldb", true
	}
	return "", false
}

// LocalEngine returns the engine that stores the data of the shard on this node
func (s ServerShard) LocalEngine() string {
	if engine, ok := s.Replicated(); ok {
		return engine
	}
	return s.Engine
}

func (s ServerShard) String() string {
	return fmt.Sprintf("%d=%s", s.ShardID, s.Engine)
}

// ParseShards parses a comma separated shard list like "100=maple,200=raft(leveldb)".
// An entry without an engine ("100") uses maple.
func ParseShards(list string) ([]ServerShard, error) {
	var shards []ServerShard
	seen := make(map[uint64]bool)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idStr, engine, found := strings.Cut(entry, "=")
		if !found {
			engine = "maple"
		}
		id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard id in %q: %w", entry, err)
		}
		if seen[id] {
			return nil, fmt.Errorf("shard %d configured twice", id)
		}
		seen[id] = true

		shard := ServerShard{ShardID: id, Engine: strings.ToLower(strings.TrimSpace(engine))}
		if !isLocalEngine(shard.LocalEngine()) {
			return nil, fmt.Errorf("invalid engine %q for shard %d: must be one of %s or raft(<engine>)",
				shard.Engine, id, strings.Join(LocalEngines, ", "))
		}
		shards = append(shards, shard)
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("no shards configured")
	}
	return shards, nil
}

func isLocalEngine(name string) bool {
	for _, e := range LocalEngines {
		if e == name {
			return true
		}
	}
	return false
}

// ServerConfig holds all configuration parameters of an evkv server.
type ServerConfig struct {
	// Dragonboat parameters, used if any shard is replicated
	raft.Config

	Shards []ServerShard

	// Transport settings
	Endpoint       string
	Transport      string
	Serializer     string
	TimeoutSecond  int64
	WorkersPerConn int
	BufferSize     int
	SocketConfig

	// MetricsEndpoint serves the prometheus metrics of the server ("" = off)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// DefaultServerConfig returns a single node configuration serving one maple shard over tcp
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Config: raft.Config{
			RTTMillisecond:     100,
			SnapshotEntries:    10000,
			CompactionOverhead: 5000,
			ReplicaID:          1,
			ClusterMembers:     map[uint64]string{1: "localhost:63001"},
		},
		Shards:         []ServerShard{{ShardID: 1, Engine: "maple"}},
		Endpoint:       "localhost:8080",
		Transport:      TransportTCP,
		Serializer:     SerializerBinary,
		TimeoutSecond:  5,
		WorkersPerConn: 100,
		BufferSize:     512 * 1024,
		SocketConfig: SocketConfig{
			TCPNoDelay:      true,
			TCPKeepAliveSec: 30,
			TCPLingerSec:    -1,
		},
		LogLevel: "info",
	}
}

// HasRaftShard checks if the configuration contains any replicated shards
func (c *ServerConfig) HasRaftShard() bool {
	for _, shard := range c.Shards {
		if _, ok := shard.Replicated(); ok {
			return true
		}
	}
	return false
}

// Shard returns the configuration of shardID
func (c *ServerConfig) Shard(shardID uint64) (ServerShard, bool) {
	for _, shard := range c.Shards {
		if shard.ShardID == shardID {
			return shard, true
		}
	}
	return ServerShard{}, false
}

// Validate checks the configuration for errors
func (c *ServerConfig) Validate() error {
	if len(c.Shards) == 0 {
		return fmt.Errorf("no shards configured")
	}
	for _, shard := range c.Shards {
		if !isLocalEngine(shard.LocalEngine()) {
			return fmt.Errorf("invalid engine %q for shard %d", shard.Engine, shard.ShardID)
		}
	}
	if c.Endpoint == "" {
		return fmt.Errorf("no endpoint configured")
	}
	if err := checkTransport(c.Transport); err != nil {
		return err
	}
	if err := checkSerializer(c.Serializer); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.HasRaftShard() {
		if err := c.Config.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Transport", c.Transport)
	addField("Serializer", c.Serializer)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.WorkersPerConn))
	addField("Buffer Size", strconv.Itoa(c.BufferSize))
	if c.MetricsEndpoint != "" {
		addField("Metrics", c.MetricsEndpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), shard.Engine)
	}

	if c.HasRaftShard() {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.ElectionMillisecond()))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.HeartbeatMillisecond()))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)

		addSection("Cluster")
		sb.WriteString("  Initial Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures the connection of a client to one or more servers
type ClientConfig struct {
	Endpoints              []string
	Transport              string
	Serializer             string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConfig
}

// DefaultClientConfig returns the client configuration matching DefaultServerConfig
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Endpoints:              []string{"localhost:8080"},
		Transport:              TransportTCP,
		Serializer:             SerializerBinary,
		TimeoutSecond:          5,
		RetryCount:             3,
		ConnectionsPerEndpoint: 1,
		SocketConfig: SocketConfig{
			TCPNoDelay:   true,
			TCPLingerSec: -1,
		},
	}
}

// Validate checks the configuration for errors
func (c *ClientConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}
	if err := checkTransport(c.Transport); err != nil {
		return err
	}
	return checkSerializer(c.Serializer)
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Transport", c.Transport)
	addField("Serializer", c.Serializer)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Conns Per Endpoint", strconv.Itoa(max(1, c.ConnectionsPerEndpoint)))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func checkTransport(name string) error {
	switch name {
	case TransportTCP, TransportUnix, TransportHTTP:
		return nil
	default:
		return fmt.Errorf("invalid transport %q: must be one of tcp, unix, http", name)
	}
}

func checkSerializer(name string) error {
	switch name {
	case SerializerBinary, SerializerJSON, SerializerGOB, SerializerCBOR:
		return nil
	default:
		return fmt.Errorf("invalid serializer %q: must be one of binary, json, gob, cbor", name)
	}
}
