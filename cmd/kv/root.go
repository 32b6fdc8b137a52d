package kv

import (
	"github.com/ValentinKolb/evkv/cmd/util"
	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcDB db.KVDB

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value operations on a shard of an evkv server",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	KeyValueCommands.PersistentFlags().Int("shard", 1, util.WrapString("ID of the shard to connect to"))

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(scanCmd)
	KeyValueCommands.AddCommand(countCmd)
	KeyValueCommands.AddCommand(infoCmd)
}

// setupKVClient connects to the configured shard
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcDB, err = client.Open(util.GetClientConfig(), util.GetShardID())
	return err
}

func closeKVClient(_ *cobra.Command, _ []string) error {
	if rpcDB == nil {
		return nil
	}
	return rpcDB.Close()
}
