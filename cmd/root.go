package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/evkv/cmd/events"
	"github.com/ValentinKolb/evkv/cmd/kv"
	"github.com/ValentinKolb/evkv/cmd/serve"
	"github.com/ValentinKolb/evkv/cmd/util"
	"github.com/ValentinKolb/evkv/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.4.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "evkv",
		Short: "event store over pluggable key-value backends",
		Long: fmt.Sprintf(`evkv (v%s)

A typed key-value and event store library written in Go. Events are cached
in memory and flushed in batches to one of many storage engines, which can
also be served and replicated over RPC.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: initLogging,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of evkv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("evkv v%s\n", Version)
		},
	}
)

func init() {
	// run the hooks of the root and of the sub commands
	cobra.EnableTraverseRunHooks = true

	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(events.EventCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, common.SerializerBinary, util.WrapString("serializer to use (binary, json, gob, cbor)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, common.TransportTCP, util.WrapString("transport to use (tcp, unix, http)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// initLogging binds the root flags and installs the loggers. A command can
// change the default level with the "log-level" annotation.
func initLogging(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return err
	}
	level := viper.GetString("log-level")
	if def, ok := cmd.Annotations["log-level"]; ok && !viper.IsSet("log-level") {
		level = def
	}
	return common.InitLoggers(level)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
