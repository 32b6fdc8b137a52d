package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/evkv/rpc/common"
	"github.com/ValentinKolb/evkv/rpc/transport"
)

// ErrTransportClosed is returned by Send before Connect and after Close
var ErrTransportClosed = errors.New("http transport closed")

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

// httpClientState is replaced as a whole by Connect and Close, so Send never
// sees a half initialized transport
type httpClientState struct {
	endpoints  []string // base URLs without trailing slash
	client     *http.Client
	retryCount int
}

type httpClientTransport struct {
	state   atomic.Pointer[httpClientState]
	counter atomic.Uint32
}

// statusError is a non 200 answer of the server
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http error: %s", e.status)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return errors.New("no endpoints provided")
	}

	// plain host:port endpoints default to http
	endpoints := make([]string, len(config.Endpoints))
	for i, endpoint := range config.Endpoints {
		if !strings.Contains(endpoint, "://") {
			endpoint = "http://" + endpoint
		}
		u, err := url.Parse(endpoint)
		if err != nil {
			return err
		}
		endpoints[i] = strings.TrimSuffix(u.String(), "/")
	}

	s := &httpClientState{
		endpoints: endpoints,
		client: &http.Client{
			Timeout: time.Duration(config.TimeoutSecond) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: max(config.ConnectionsPerEndpoint, 10),
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryCount: max(config.RetryCount, 1),
	}
	if old := t.state.Swap(s); old != nil {
		old.client.CloseIdleConnections()
	}
	return nil
}

func (t *httpClientTransport) Send(shardId uint64, req []byte) (resp []byte, err error) {
	s := t.state.Load()
	if s == nil {
		return nil, ErrTransportClosed
	}

	for i := 0; i < s.retryCount; i++ {
		idx := t.counter.Add(1) % uint32(len(s.endpoints))
		resp, err = s.post(fmt.Sprintf("%s/%d", s.endpoints[idx], shardId), req)
		if err == nil {
			return resp, nil
		}

		// the server understood the request and refused it, another attempt gets the same answer
		var se *statusError
		if errors.As(err, &se) && se.code >= 400 && se.code < 500 {
			return nil, err
		}
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, s.retryCount, err)
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", s.retryCount, err)
}

func (t *httpClientTransport) Close() error {
	if s := t.state.Swap(nil); s != nil {
		s.client.CloseIdleConnections()
	}
	return nil
}

// post sends one request, the body is rebuilt for every attempt
func (s *httpClientState) post(requestURL string, req []byte) ([]byte, error) {
	httpResponse, err := s.client.Post(requestURL, "application/octet-stream", bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	if httpResponse.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, httpResponse.Body)
		return nil, &statusError{code: httpResponse.StatusCode, status: httpResponse.Status}
	}

	return io.ReadAll(httpResponse.Body)
}
