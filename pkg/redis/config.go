package redis

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Address string `yaml:"address"`
	Prefix  string `yaml:"prefix" default:"execution-simulator"`
	// TTL of cached entries. Zero keeps entries until evicted.
	TTL time.Duration `yaml:"ttl" default:"1h"`
}

func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Prefix == "" {
		c.Prefix = "execution-simulator"
	}

	if c.TTL < 0 {
		return fmt.Errorf("redis ttl must not be negative")
	}

	return nil
}

// UnmarshalYAML applies defaults before decoding the optional section.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	if err := defaults.Set(c); err != nil {
		return err
	}

	type plain Config

	return value.Decode((*plain)(c))
}
