package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/evkv/rpc/common"
	"github.com/ValentinKolb/evkv/rpc/transport"
	"github.com/ValentinKolb/evkv/rpc/transport/base"
)

const (
	defaultBufferSize = 512 * 1024 // 512 KB
)

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %w", err)
	}

	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return applySocketConfig(conn, config.SocketConfig)
}

// applySocketConfig applies the socket options of cfg to a TCP connection.
// Connections of other types are left untouched.
func applySocketConfig(conn net.Conn, cfg common.SocketConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	// Disable Nagle's algorithm if configured
	if err := tcpConn.SetNoDelay(cfg.TCPNoDelay); err != nil {
		return err
	}

	if cfg.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(cfg.WriteBufferSize); err != nil {
			return err
		}
	}

	if cfg.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(cfg.ReadBufferSize); err != nil {
			return err
		}
	}

	if cfg.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(cfg.TCPKeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	// negative linger keeps the OS default
	if cfg.TCPLingerSec >= 0 {
		if err := tcpConn.SetLinger(cfg.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPDefaultServerTransport creates a new TCP server transport with the default buffer size
func NewTCPDefaultServerTransport(workersPerConn int) transport.IRPCServerTransport {
	return NewTCPServerTransport(defaultBufferSize, workersPerConn)
}

// NewTCPServerTransport creates a new TCP server transport with specified buffer size
func NewTCPServerTransport(bufferSize, workersPerConn int) transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{}, bufferSize, workersPerConn)
}
