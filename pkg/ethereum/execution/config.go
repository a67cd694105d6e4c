package execution

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Config describes a single state provider node.
type Config struct {
	// Name of the node, used in logs and metrics.
	Name string `yaml:"name"`
	// NodeAddress is the JSON-RPC endpoint of the execution client.
	NodeAddress string `yaml:"nodeAddress"`
	// NodeHeaders are added to every outgoing RPC request.
	NodeHeaders map[string]string `yaml:"nodeHeaders"`
	// Chain is the expected chain (name or id). When set, a node reporting a
	// different chain id is never marked healthy.
	Chain string `yaml:"chain"`
	// RequestTimeout bounds a single state read.
	RequestTimeout time.Duration `yaml:"requestTimeout" default:"10s"`
	// MaxRetries is the number of retries of a failed state read.
	MaxRetries uint64 `yaml:"maxRetries" default:"3"`
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}

	if c.NodeAddress == "" {
		return fmt.Errorf("node address is required for %s", c.Name)
	}

	if _, err := url.Parse(c.NodeAddress); err != nil {
		return fmt.Errorf("invalid node address for %s: %w", c.Name, err)
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative for %s", c.Name)
	}

	return nil
}

// UnmarshalYAML applies defaults before decoding, since list entries are
// not reached by defaults.Set on the parent.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	if err := defaults.Set(c); err != nil {
		return err
	}

	type plain Config

	return value.Decode((*plain)(c))
}
