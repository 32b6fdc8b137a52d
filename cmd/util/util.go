package util

import (
	"strings"

	"github.com/ValentinKolb/evkv/rpc/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (EVKV_<flag>)
	EnvPrefix = "evkv"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	def := common.DefaultClientConfig()

	key := "timeout"
	cmd.PersistentFlags().Int(key, def.TimeoutSecond, WrapString("The timeout in seconds of the client"))

	key = "endpoints"
	cmd.PersistentFlags().String(key, strings.Join(def.Endpoints, ","), WrapString("The address of the evkv server. For transports that support load balancing, multiple endpoints can be specified as a comma-separated list"))

	key = "conn-per-endpoint"
	cmd.PersistentFlags().Int(key, def.ConnectionsPerEndpoint, WrapString("Simultaneous connections per endpoint - for transports that support this feature"))

	key = "retries"
	cmd.PersistentFlags().Int(key, def.RetryCount, WrapString("How many times to try a request"))

	key = "write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket write buffer (in KB, 0 = OS default, only for tcp)"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket read buffer (in KB, 0 = OS default, only for tcp)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, def.TCPNoDelay, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, def.TCPKeepAliveSec, WrapString("The keepalive interval (in seconds, 0 = off, only for tcp)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, def.TCPLingerSec, WrapString("The linger time (in seconds, -1 = OS default, only for tcp)"))
}

// InitConfig loads .env files and makes viper read EVKV_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		Endpoints:              splitList(viper.GetString("endpoints")),
		Transport:              viper.GetString("transport"),
		Serializer:             viper.GetString("serializer"),
		TimeoutSecond:          viper.GetInt("timeout"),
		RetryCount:             viper.GetInt("retries"),
		ConnectionsPerEndpoint: viper.GetInt("conn-per-endpoint"),
		SocketConfig: common.SocketConfig{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
			WriteBufferSize: viper.GetInt("write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		},
	}
}

// GetShardID retrieves the configured shard ID
func GetShardID() uint64 {
	return viper.GetUint64("shard")
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// splitList splits a comma separated list and drops empty entries
func splitList(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
