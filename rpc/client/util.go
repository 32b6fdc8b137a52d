package client

import (
	"fmt"

	"github.com/ValentinKolb/evkv/rpc/common"
	"github.com/ValentinKolb/evkv/rpc/serializer"
	"github.com/ValentinKolb/evkv/rpc/transport"
	"github.com/ValentinKolb/evkv/rpc/transport/http"
	"github.com/ValentinKolb/evkv/rpc/transport/tcp"
	"github.com/ValentinKolb/evkv/rpc/transport/unix"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter stores all data needed to send requests for one shard
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// NewClientTransport returns the (unconnected) client transport named in config
func NewClientTransport(config common.ClientConfig) (transport.IRPCClientTransport, error) {
	switch config.Transport {
	case common.TransportTCP:
		return tcp.NewTCPClientTransport(), nil
	case common.TransportUnix:
		return unix.NewUnixClientTransport(), nil
	case common.TransportHTTP:
		return http.NewHttpClientTransport(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", config.Transport)
	}
}

// invoke sends req to the shard of the adapter and returns the response.
// Error responses are returned as *common.Error, a response of another type
// than the request is an error as well.
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	respBytes, err := a.transport.Send(a.shardId, reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("rpc: invalid response: %w", err)
	}

	if err := resp.ToError(); err != nil {
		return nil, err
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("rpc: unexpected message type %s, expected %s", resp.MsgType, req.MsgType)
	}

	return resp, nil
}
