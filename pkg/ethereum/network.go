package ethereum

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Network is a chain the simulator can run against.
type Network struct {
	ID      uint64   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

var networkMap = map[uint64]Network{
	1:        {ID: 1, Name: "mainnet", Aliases: []string{"ethereum", "eth"}},
	10:       {ID: 10, Name: "optimism", Aliases: []string{"op"}},
	56:       {ID: 56, Name: "bsc", Aliases: []string{"binance"}},
	137:      {ID: 137, Name: "polygon", Aliases: []string{"matic"}},
	250:      {ID: 250, Name: "fantom", Aliases: []string{"ftm"}},
	42161:    {ID: 42161, Name: "arbitrum", Aliases: []string{"arb"}},
	42220:    {ID: 42220, Name: "celo"},
	43114:    {ID: 43114, Name: "avalanche", Aliases: []string{"avax"}},
	17000:    {ID: 17000, Name: "holesky"},
	560048:   {ID: 560048, Name: "hoodi"},
	11155111: {ID: 11155111, Name: "sepolia"},
}

var networkNames = func() map[string]uint64 {
	names := make(map[string]uint64, len(networkMap)*2)

	for id, network := range networkMap {
		names[network.Name] = id

		for _, alias := range network.Aliases {
			names[alias] = id
		}
	}

	return names
}()

// GetNetworkByChainID returns the network information for the given chain ID
func GetNetworkByChainID(chainID uint64) (*Network, error) {
	network, exists := networkMap[chainID]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChainID, chainID)
	}

	return &network, nil
}

// ResolveChain resolves a chain name, alias or decimal chain ID.
func ResolveChain(chain string) (*Network, error) {
	key := strings.ToLower(strings.TrimSpace(chain))
	if key == "" {
		return nil, fmt.Errorf("%w: empty chain", ErrUnsupportedChainID)
	}

	if id, ok := networkNames[key]; ok {
		return GetNetworkByChainID(id)
	}

	id, err := strconv.ParseUint(key, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChainID, chain)
	}

	return GetNetworkByChainID(id)
}

// Networks returns every registered network ordered by chain ID.
func Networks() []Network {
	out := make([]Network, 0, len(networkMap))
	for _, network := range networkMap {
		out = append(out, network)
	}

	slices.SortFunc(out, func(a, b Network) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	return out
}
