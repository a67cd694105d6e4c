package ethereum

import (
	"fmt"

	"github.com/ethpandaops/execution-simulator/pkg/ethereum/execution"
)

type Config struct {
	// Execution nodes serving chain state. Nodes of several chains may be mixed.
	Execution []*execution.Config `yaml:"execution"`
}

func (c *Config) Validate() error {
	for i, execution := range c.Execution {
		if err := execution.Validate(); err != nil {
			return fmt.Errorf("invalid execution configuration at index %d: %w", i, err)
		}

		if execution.Chain != "" {
			if _, err := ResolveChain(execution.Chain); err != nil {
				return fmt.Errorf("invalid execution configuration at index %d: %w", i, err)
			}
		}
	}

	return nil
}
