package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/execution-simulator/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/state"
)

// SnapshotCache decorates snapshots served by the pool, typically with a
// shared read cache.
type SnapshotCache interface {
	Wrap(chainID uint64, snap state.Snapshot) state.Snapshot
}

// Pool tracks the execution nodes of every configured chain and serves
// snapshots from healthy ones.
type Pool struct {
	log            logrus.FieldLogger
	executionNodes []execution.Node
	metrics        *Metrics
	config         *Config
	cache          SnapshotCache

	mu sync.RWMutex

	healthyExecutionNodes map[execution.Node]bool
	// expectedChains holds the chain id each node must report, when configured.
	expectedChains map[execution.Node]uint64

	// Goroutine management
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPoolWithNodes creates a pool with pre-created Node implementations.
// Use this when embedding the simulator as a library where the host
// provides custom Node implementations (e.g., EmbeddedNode with DataSource).
//
// Example:
//
//	dataSource := &MyDataSource{chain: myChain}
//	node := execution.NewEmbeddedNode(log, "my-node", dataSource)
//
//	pool := ethereum.NewPoolWithNodes(log, "simulator", []execution.Node{node}, nil)
//	pool.Start(ctx)
//
//	// Mark ready when data source is ready
//	node.MarkReady(ctx)
func NewPoolWithNodes(log logrus.FieldLogger, namespace string, nodes []execution.Node, config *Config) *Pool {
	namespace = fmt.Sprintf("%s_ethereum", namespace)

	if config == nil {
		config = &Config{}
	}

	return &Pool{
		log:                   log.WithField("component", "ethereum/pool"),
		executionNodes:        nodes,
		healthyExecutionNodes: make(map[execution.Node]bool, len(nodes)),
		expectedChains:        make(map[execution.Node]uint64, len(nodes)),
		metrics:               GetMetricsInstance(namespace),
		config:                config,
	}
}

// SetCache installs a snapshot decorator. It must be called before Start.
func (p *Pool) SetCache(cache SnapshotCache) {
	p.cache = cache
}

func (p *Pool) HasExecutionNodes() bool {
	return len(p.executionNodes) > 0
}

func (p *Pool) HasHealthyExecutionNodes() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, isHealthy := range p.healthyExecutionNodes {
		if isHealthy {
			return true
		}
	}

	return false
}

// GetHealthyExecutionNodes returns the healthy nodes serving chainID.
func (p *Pool) GetHealthyExecutionNodes(chainID uint64) []execution.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()

	healthyNodes := make([]execution.Node, 0, len(p.healthyExecutionNodes))

	for _, node := range p.executionNodes {
		if p.healthyExecutionNodes[node] && node.ChainID() == chainID {
			healthyNodes = append(healthyNodes, node)
		}
	}

	return healthyNodes
}

// GetHealthyExecutionNode returns a random healthy node serving chainID, or nil.
func (p *Pool) GetHealthyExecutionNode(chainID uint64) execution.Node {
	healthyNodes := p.GetHealthyExecutionNodes(chainID)
	if len(healthyNodes) == 0 {
		return nil
	}

	//nolint:gosec // doesn't matter
	return healthyNodes[rand.IntN(len(healthyNodes))]
}

// Chains returns the ids of the chains with at least one healthy node, sorted.
func (p *Pool) Chains() []uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	seen := make(map[uint64]struct{})
	chains := make([]uint64, 0)

	for node, healthy := range p.healthyExecutionNodes {
		if !healthy {
			continue
		}

		id := node.ChainID()
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		chains = append(chains, id)
	}

	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	return chains
}

// Snapshot returns a snapshot of chainID pinned at the head of a healthy
// node. Nodes are tried in random order until one answers.
func (p *Pool) Snapshot(ctx context.Context, chainID uint64) (state.Snapshot, error) {
	nodes := p.GetHealthyExecutionNodes(chainID)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w for chain %d", ErrNoHealthyNode, chainID)
	}

	//nolint:gosec // doesn't matter
	rand.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

	var errs []error

	for _, node := range nodes {
		snap, err := node.Snapshot(ctx)
		if err != nil {
			p.log.WithError(err).WithField("node", node.Name()).Warn("Failed to open snapshot")

			errs = append(errs, fmt.Errorf("%s: %w", node.Name(), err))

			if ctx.Err() != nil {
				break
			}

			continue
		}

		if p.cache != nil {
			snap = p.cache.Wrap(chainID, snap)
		}

		return snap, nil
	}

	return nil, errors.Join(errs...)
}

func (p *Pool) WaitForHealthyExecutionNode(ctx context.Context, chainID uint64) (execution.Node, error) {
	if len(p.executionNodes) == 0 {
		return nil, fmt.Errorf("no execution nodes configured")
	}

	startTime := time.Now()

	p.log.WithFields(logrus.Fields{
		"total_nodes": len(p.executionNodes),
		"chain_id":    chainID,
	}).Info("Waiting for healthy execution node")

	statusLogTicker := time.NewTicker(10 * time.Second)
	defer statusLogTicker.Stop()

	for {
		if node := p.GetHealthyExecutionNode(chainID); node != nil {
			p.log.WithFields(logrus.Fields{
				"node":     node.Name(),
				"duration": time.Since(startTime).Round(time.Millisecond),
			}).Info("Found healthy execution node")

			return node, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-statusLogTicker.C:
			p.log.WithFields(logrus.Fields{
				"chain_id":    chainID,
				"waiting_for": time.Since(startTime).Round(time.Second),
			}).Info("Waiting for healthy execution node...")
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// markHealthy is the OnReady callback of node.
func (p *Pool) markHealthy(node execution.Node) error {
	p.mu.RLock()
	expected, hasExpected := p.expectedChains[node]
	p.mu.RUnlock()

	if hasExpected && node.ChainID() != expected {
		p.log.WithFields(logrus.Fields{
			"node":     node.Name(),
			"expected": expected,
			"reported": node.ChainID(),
		}).Error("Execution node serves an unexpected chain, not marking healthy")

		return fmt.Errorf("%w: %s reports chain %d, expected %d", execution.ErrChainMismatch, node.Name(), node.ChainID(), expected)
	}

	p.mu.Lock()
	p.healthyExecutionNodes[node] = true
	p.mu.Unlock()

	p.log.WithFields(logrus.Fields{
		"node":     node.Name(),
		"chain_id": node.ChainID(),
	}).Info("Execution node is healthy")

	p.UpdateNodeMetrics()

	return nil
}

func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	// Create a new error group that doesn't propagate cancellation to children
	g := new(errgroup.Group)

	p.UpdateNodeMetrics()

	for _, node := range p.executionNodes {
		node.OnReady(ctx, func(_ context.Context) error {
			return p.markHealthy(node)
		})

		g.Go(func() error {
			return node.Start(ctx)
		})
	}

	p.wg.Add(2)

	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.log.WithField("chains", p.Chains()).Info("Pool status")
			}
		}
	}()

	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.UpdateNodeMetrics()
			}
		}
	}()

	go func() {
		if err := g.Wait(); err != nil {
			if ctx.Err() != nil {
				return
			}

			p.log.WithError(err).Error("error in pool")
		}
	}()
}

// UpdateNodeMetrics publishes the healthy and unhealthy node counts per chain.
func (p *Pool) UpdateNodeMetrics() {
	type counts struct{ healthy, unhealthy int }

	byChain := make(map[string]*counts)

	p.mu.RLock()

	for _, node := range p.executionNodes {
		chain := "unknown"
		if id := node.ChainID(); id != 0 {
			chain = strconv.FormatUint(id, 10)
		}

		c, ok := byChain[chain]
		if !ok {
			c = &counts{}
			byChain[chain] = c
		}

		if p.healthyExecutionNodes[node] {
			c.healthy++
		} else {
			c.unhealthy++
		}
	}

	p.mu.RUnlock()

	for chain, c := range byChain {
		p.metrics.SetNodesTotal(float64(c.healthy), []string{chain, "healthy"})
		p.metrics.SetNodesTotal(float64(c.unhealthy), []string{chain, "unhealthy"})
	}
}

// Stop gracefully shuts down the pool.
func (p *Pool) Stop(ctx context.Context) error {
	p.log.Info("Stopping pool")

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Debug("All pool goroutines stopped gracefully")
	case <-ctx.Done():
		p.log.Warn("Timeout waiting for pool goroutines to stop")
	}

	for _, node := range p.executionNodes {
		if err := node.Stop(ctx); err != nil {
			p.log.WithError(err).WithField("node", node.Name()).Error("Failed to stop execution node")
		}
	}

	return nil
}
