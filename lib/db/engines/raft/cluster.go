package raft

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/config"
)

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// Config holds the parameters of the local node host and its shards
type Config struct {
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
}

// ShardConfig converts the Config to a Dragonboat shard config
func (c *Config) ShardConfig(shardID uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
	}
}

// NodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *Config) NodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// ElectionMillisecond is the election timeout derived from the RTT
func (c *Config) ElectionMillisecond() uint64 {
	return c.RTTMillisecond * electionRTTFactor
}

// HeartbeatMillisecond is the heartbeat interval derived from the RTT
func (c *Config) HeartbeatMillisecond() uint64 {
	return c.RTTMillisecond * heartbeatRTTFactor
}

// Validate checks that the local replica is a cluster member
func (c *Config) Validate() error {
	if len(c.ClusterMembers) == 0 {
		return fmt.Errorf("raft: no cluster members")
	}
	if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
		return fmt.Errorf("raft: no address found for replica ID %d in cluster members", c.ReplicaID)
	}
	if c.RTTMillisecond == 0 {
		return fmt.Errorf("raft: RTTMillisecond must be > 0")
	}
	return nil
}

// --------------------------------------------------------------------------
// Cluster
// --------------------------------------------------------------------------

// Cluster owns the node host of this process and starts shards on it
type Cluster struct {
	nh        *dragonboat.NodeHost
	cfg       Config
	dbFactory DBFactory
}

// NewCluster creates the node host. dbFactory opens the database of every
// shard started on it.
func NewCluster(cfg Config, dbFactory DBFactory) (*Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nh, err := dragonboat.NewNodeHost(cfg.NodeHostConfig())
	if err != nil {
		return nil, fmt.Errorf("raft: failed to create node host: %w", err)
	}
	return &Cluster{nh: nh, cfg: cfg, dbFactory: dbFactory}, nil
}

// StartShard starts the local replica of shardID
func (c *Cluster) StartShard(shardID uint64) error {
	err := c.nh.StartConcurrentReplica(
		c.cfg.ClusterMembers,
		false,
		CreateStateMachineFactory(c.dbFactory),
		c.cfg.ShardConfig(shardID),
	)
	if err != nil {
		return fmt.Errorf("raft: failed to start shard %d: %w", shardID, err)
	}
	log.Infof("started replica %d of shard %d", c.cfg.ReplicaID, shardID)
	return nil
}

// WaitReady blocks until shardID has a leader or ctx is done
func (c *Cluster) WaitReady(ctx context.Context, shardID uint64) error {
	ticker := time.NewTicker(time.Duration(max(c.cfg.RTTMillisecond, 1)) * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, _, valid, err := c.nh.GetLeaderID(shardID); err == nil && valid {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("raft: shard %d not ready: %w", shardID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Open returns a database for a started shard
func (c *Cluster) Open(shardID uint64, o Options) db.KVDB {
	return Open(c.nh, shardID, o)
}

// Close stops all shards and the node host, closing the replica databases
func (c *Cluster) Close() error {
	c.nh.Close()
	return nil
}
