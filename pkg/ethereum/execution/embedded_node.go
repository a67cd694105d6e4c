package execution

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-simulator/pkg/simulator/state"
)

// DataSource is the interface host applications implement to provide chain
// state directly without JSON-RPC. This enables embedding the simulator as a
// library within an execution client or an indexer that already holds state.
//
// All methods must be safe for concurrent calls from multiple goroutines.
// Context cancellation should be respected for all I/O operations.
//
// Example implementation:
//
//	type MyDataSource struct {
//	    chain *MyChain
//	}
//
//	func (ds *MyDataSource) Snapshot(ctx context.Context) (state.Snapshot, error) {
//	    return ds.chain.StateAt(ds.chain.Head()), nil
//	}
type DataSource interface {
	// Snapshot returns an immutable view of state at the current head.
	Snapshot(ctx context.Context) (state.Snapshot, error)

	// ChainID returns the chain ID.
	ChainID() uint64

	// ClientType returns the client type/version string.
	ClientType() string

	// IsSynced returns true if the data source is fully synced.
	IsSynced() bool
}

// Compile-time check that EmbeddedNode implements Node interface.
var _ Node = (*EmbeddedNode)(nil)

// EmbeddedNode implements Node by delegating to a DataSource.
//
// Lifecycle:
//  1. Create with NewEmbeddedNode(log, name, dataSource)
//  2. Register OnReady callbacks (optional)
//  3. Pool calls Start() (no-op for embedded)
//  4. Host calls MarkReady() when DataSource is ready to serve state
//  5. Callbacks execute in registration order, node becomes healthy in pool
//  6. Pool calls Stop() on shutdown (no-op for embedded)
//
// Thread-safety: All methods are safe for concurrent use.
type EmbeddedNode struct {
	log              logrus.FieldLogger
	name             string
	source           DataSource
	ready            bool
	onReadyCallbacks []func(ctx context.Context) error
	mu               sync.RWMutex
}

// NewEmbeddedNode creates a new EmbeddedNode with the given DataSource.
//
// The returned node is not yet ready. Call MarkReady() when the DataSource
// is ready to serve state.
func NewEmbeddedNode(log logrus.FieldLogger, name string, source DataSource) *EmbeddedNode {
	return &EmbeddedNode{
		log:              log.WithFields(logrus.Fields{"type": "execution", "source": name, "mode": "embedded"}),
		name:             name,
		source:           source,
		onReadyCallbacks: make([]func(ctx context.Context) error, 0),
	}
}

// Start is a no-op for EmbeddedNode. The host controls readiness via MarkReady().
func (n *EmbeddedNode) Start(_ context.Context) error {
	n.log.Info("EmbeddedNode started - waiting for host to call MarkReady()")

	return nil
}

// Stop is a no-op for EmbeddedNode. The host manages the DataSource lifecycle.
func (n *EmbeddedNode) Stop(_ context.Context) error {
	n.log.Info("EmbeddedNode stopped")

	return nil
}

// MarkReady is called by the host application when the DataSource is ready.
// This triggers all registered OnReady callbacks.
func (n *EmbeddedNode) MarkReady(ctx context.Context) error {
	n.mu.Lock()
	n.ready = true
	callbacks := n.onReadyCallbacks
	n.mu.Unlock()

	n.log.WithField("callback_count", len(callbacks)).Info("EmbeddedNode marked as ready, executing callbacks")

	for i, cb := range callbacks {
		n.log.WithField("callback_index", i).Debug("Executing OnReady callback")

		if err := cb(ctx); err != nil {
			n.log.WithError(err).Error("Failed to execute OnReady callback")

			return err
		}
	}

	return nil
}

// OnReady registers a callback to be called when the node becomes ready.
func (n *EmbeddedNode) OnReady(_ context.Context, callback func(ctx context.Context) error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.onReadyCallbacks = append(n.onReadyCallbacks, callback)
}

// IsReady returns true if the node has been marked as ready.
func (n *EmbeddedNode) IsReady() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.ready
}

// Snapshot delegates to the DataSource once the node is ready.
func (n *EmbeddedNode) Snapshot(ctx context.Context) (state.Snapshot, error) {
	if !n.IsReady() {
		return nil, ErrNodeNotReady
	}

	return n.source.Snapshot(ctx)
}

// ChainID delegates to the DataSource.
func (n *EmbeddedNode) ChainID() uint64 {
	return n.source.ChainID()
}

// ClientType delegates to the DataSource.
func (n *EmbeddedNode) ClientType() string {
	return n.source.ClientType()
}

// IsSynced delegates to the DataSource.
func (n *EmbeddedNode) IsSynced() bool {
	return n.source.IsSynced()
}

// Name returns the configured name for this node.
func (n *EmbeddedNode) Name() string {
	return n.name
}
