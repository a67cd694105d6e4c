package ethereum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveChain(t *testing.T) {
	tests := []struct {
		input string
		id    uint64
	}{
		{input: "mainnet", id: 1},
		{input: "Ethereum", id: 1},
		{input: "eth", id: 1},
		{input: "1", id: 1},
		{input: " bsc ", id: 56},
		{input: "arb", id: 42161},
		{input: "137", id: 137},
		{input: "sepolia", id: 11155111},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			network, err := ResolveChain(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.id, network.ID)
		})
	}
}

func TestResolveChainUnknown(t *testing.T) {
	for _, input := range []string{"", "dogechain", "999999", "-1"} {
		_, err := ResolveChain(input)
		assert.ErrorIs(t, err, ErrUnsupportedChainID, input)
	}
}

func TestNetworksSorted(t *testing.T) {
	networks := Networks()

	require.NotEmpty(t, networks)
	assert.Equal(t, uint64(1), networks[0].ID)

	for i := 1; i < len(networks); i++ {
		assert.Less(t, networks[i-1].ID, networks[i].ID)
	}
}
