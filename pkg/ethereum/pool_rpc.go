package ethereum

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-simulator/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-simulator/pkg/ethereum/execution/geth"
)

// NewPool creates a new pool of RPC nodes from config. The config must
// have been validated.
func NewPool(log logrus.FieldLogger, namespace string, config *Config) (*Pool, error) {
	nodes := make([]execution.Node, 0, len(config.Execution))

	for _, execCfg := range config.Execution {
		nodes = append(nodes, geth.NewRPCNode(log, execCfg))
	}

	p := NewPoolWithNodes(log, namespace, nodes, config)

	for i, execCfg := range config.Execution {
		if execCfg.Chain == "" {
			continue
		}

		network, err := ResolveChain(execCfg.Chain)
		if err != nil {
			return nil, fmt.Errorf("invalid chain for execution node %s: %w", execCfg.Name, err)
		}

		p.expectedChains[nodes[i]] = network.ID
	}

	return p, nil
}
