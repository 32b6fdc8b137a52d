package util

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		require.LessOrEqual(t, len(line), Wrap)
	}
	require.Equal(t, "short text", WrapString("  short   text "))
}

func TestGetClientConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("EVKV_ENDPOINTS", "a:1, b:2,")
	t.Setenv("EVKV_CONN_PER_ENDPOINT", "4")

	cmd := &cobra.Command{Use: "test"}
	SetupRPCClientFlags(cmd)
	cmd.PersistentFlags().String("transport", "tcp", "")
	cmd.PersistentFlags().String("serializer", "binary", "")
	InitConfig()
	require.NoError(t, viper.BindPFlags(cmd.PersistentFlags()))

	cfg := GetClientConfig()
	require.Equal(t, []string{"a:1", "b:2"}, cfg.Endpoints)
	require.Equal(t, 4, cfg.ConnectionsPerEndpoint)
	require.Equal(t, -1, cfg.TCPLingerSec)
	require.NoError(t, cfg.Validate())
}
