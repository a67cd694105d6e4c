package geth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-simulator/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-simulator/pkg/ethereum/execution/geth/services"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/state"
)

// Compile-time check that RPCNode implements execution.Node interface.
var _ execution.Node = (*RPCNode)(nil)

// headerTransport adds custom headers to requests and respects context cancellation.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}

	// Check if context is already cancelled before making request
	if req.Context().Err() != nil {
		return nil, req.Context().Err()
	}

	return t.base.RoundTrip(req)
}

// RPCNode implements execution.Node on top of an execution client's JSON-RPC API.
type RPCNode struct {
	config    *execution.Config
	log       logrus.FieldLogger
	client    *ethclient.Client
	rpcClient *rpc.Client
	metadata  *services.MetadataService

	services []services.Service

	onReadyCallbacks []func(ctx context.Context) error

	// Goroutine management
	mu     sync.RWMutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRPCNode creates a new RPC-based execution node.
func NewRPCNode(log logrus.FieldLogger, conf *execution.Config) *RPCNode {
	return &RPCNode{
		config:   conf,
		log:      log.WithFields(logrus.Fields{"type": "execution", "source": conf.Name}),
		services: []services.Service{},
	}
}

func (n *RPCNode) OnReady(_ context.Context, callback func(ctx context.Context) error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.onReadyCallbacks = append(n.onReadyCallbacks, callback)
}

func (n *RPCNode) Start(ctx context.Context) error {
	n.log.WithField("node_address", n.config.NodeAddress).Info("Starting execution node")

	// Create internal context for node lifecycle
	nodeCtx, cancel := context.WithCancel(ctx)

	httpClient := http.Client{
		Transport: &headerTransport{
			headers: n.config.NodeHeaders,
			base: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}

	rpcClient, err := rpc.DialOptions(nodeCtx, n.config.NodeAddress, rpc.WithHTTPClient(&httpClient))
	if err != nil {
		cancel()

		n.log.WithError(err).Error("Failed to create RPC client")

		return fmt.Errorf("failed to create RPC client for %s: %w", n.config.NodeAddress, err)
	}

	metadata := services.NewMetadataService(n.log, rpcClient)

	n.mu.Lock()
	n.cancel = cancel
	n.client = ethclient.NewClient(rpcClient)
	n.rpcClient = rpcClient
	n.metadata = metadata
	n.services = []services.Service{metadata}
	n.mu.Unlock()

	n.wg.Add(1)

	go func() {
		defer n.wg.Done()

		for _, service := range n.services {
			serviceName := service.Name()
			ready := make(chan struct{})

			service.OnReady(nodeCtx, func(_ context.Context) error {
				n.log.WithField("service", serviceName).Info("Service is ready")
				close(ready)

				return nil
			})

			n.log.WithField("service", serviceName).Info("Starting service")

			if err := service.Start(nodeCtx); err != nil {
				n.log.WithError(err).WithField("service", serviceName).Error("Failed to start service")

				return
			}

			select {
			case <-ready:
			case <-nodeCtx.Done():
				return
			}
		}

		n.log.WithField("client_type", n.metadata.Client()).Info("All services are ready")

		n.mu.RLock()
		callbacks := n.onReadyCallbacks
		n.mu.RUnlock()

		for _, callback := range callbacks {
			callbackCtx, callbackCancel := context.WithTimeout(nodeCtx, 10*time.Second)

			if err := callback(callbackCtx); err != nil {
				n.log.WithError(err).Error("Failed to run on ready callback")
			}

			callbackCancel()
		}

		n.log.Info("Node initialization completed")
	}()

	return nil
}

func (n *RPCNode) Stop(ctx context.Context) error {
	n.log.Info("Stopping execution node")

	n.mu.Lock()

	if n.cancel != nil {
		n.cancel()
	}

	n.mu.Unlock()

	// Wait for all goroutines to finish with timeout
	done := make(chan struct{})

	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.log.Debug("All node goroutines stopped gracefully")
	case <-ctx.Done():
		n.log.Warn("Timeout waiting for node goroutines to stop")
	}

	for _, service := range n.services {
		if err := service.Stop(ctx); err != nil {
			n.log.WithError(err).WithField("service", service.Name()).Error("Failed to stop service")
		}
	}

	if n.rpcClient != nil {
		n.rpcClient.Close()
	}

	return nil
}

// Metadata returns the metadata service for this node, or nil before Start.
func (n *RPCNode) Metadata() *services.MetadataService {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.metadata
}

// Name returns the configured name for this node.
func (n *RPCNode) Name() string {
	return n.config.Name
}

// ChainID returns the chain ID from the metadata service.
func (n *RPCNode) ChainID() uint64 {
	if meta := n.Metadata(); meta != nil {
		return meta.ChainID()
	}

	return 0
}

// ClientType returns the client type from the metadata service.
func (n *RPCNode) ClientType() string {
	if meta := n.Metadata(); meta != nil {
		return meta.ClientVersion()
	}

	return ""
}

// IsSynced returns true if the node is synced.
func (n *RPCNode) IsSynced() bool {
	if meta := n.Metadata(); meta != nil {
		return meta.IsSynced()
	}

	return false
}

// Snapshot pins the current head and returns a snapshot reading state at it.
// The snapshot issues its reads with ctx, so it must not outlive the request.
func (n *RPCNode) Snapshot(ctx context.Context) (state.Snapshot, error) {
	meta := n.Metadata()
	if meta == nil || meta.Ready(ctx) != nil {
		return nil, execution.ErrNodeNotReady
	}

	header, err := n.headerByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch head header from %s: %w", n.config.Name, err)
	}

	return newSnapshot(ctx, n, header), nil
}
