package execution

import (
	"context"

	"github.com/ethpandaops/execution-simulator/pkg/simulator/state"
)

// Node defines the interface for chain-state providers.
//
// Implementations include:
//   - RPCNode: reads state from an execution client via JSON-RPC over HTTP
//   - EmbeddedNode: receives snapshots directly from the host application via DataSource
//
// All methods must be safe for concurrent use by multiple goroutines.
//
// Lifecycle:
//  1. Create node with appropriate constructor (NewRPCNode or NewEmbeddedNode)
//  2. Register OnReady callbacks before calling Start
//  3. Call Start to begin initialization
//  4. Node signals readiness by executing OnReady callbacks
//  5. Call Stop for graceful shutdown
type Node interface {
	// Start initializes the node and begins any background operations.
	// For RPCNode, this establishes the RPC connection and starts health monitoring.
	// For EmbeddedNode, this is a no-op as the host controls the DataSource lifecycle.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the node and releases resources.
	Stop(ctx context.Context) error

	// OnReady registers a callback to be invoked when the node becomes ready.
	// Multiple callbacks can be registered and will execute in registration order.
	OnReady(ctx context.Context, callback func(ctx context.Context) error)

	// Snapshot returns a read-only view of chain state pinned at the node's
	// current head. Every read on the returned snapshot answers for that block.
	Snapshot(ctx context.Context) (state.Snapshot, error)

	// ChainID returns the chain ID reported by the node, or 0 before it is known.
	ChainID() uint64

	// ClientType returns the client type/version string (e.g., "geth/1.10.0").
	ClientType() string

	// IsSynced returns true if the execution client is fully synced.
	IsSynced() bool

	// Name returns the configured name for this node.
	Name() string
}
