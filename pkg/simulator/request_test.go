package simulator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestDecodeChainRef(t *testing.T) {
	for _, body := range []string{
		`{"target_contract":"0x000000000000000000000000000000000000c0de","chain_id":1}`,
		`{"target_contract":"0x000000000000000000000000000000000000c0de","chain_id":"1"}`,
		`{"target_contract":"0x000000000000000000000000000000000000c0de","chain_id":"mainnet"}`,
	} {
		var req Request
		require.NoError(t, json.Unmarshal([]byte(body), &req))

		c, err := req.parse(DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, uint64(1), c.network.ID)
	}
}

func TestRequestDefaults(t *testing.T) {
	req := &Request{Target: contract.Hex(), Chain: "eth"}

	c, err := req.parse(DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, common.Address{}, c.from)
	assert.Equal(t, contract, c.to)
	assert.Equal(t, uint64(30_000_000), c.gas)
	assert.True(t, c.value.IsZero())
	assert.Empty(t, c.input)
	assert.NotNil(t, c.input)
	assert.Equal(t, FormatStructured, c.format)
	assert.Nil(t, c.txHash)
}

func TestRequestValues(t *testing.T) {
	tests := []struct {
		value    string
		expected string
	}{
		{value: "0", expected: "0"},
		{value: "1000000000000000000", expected: "1000000000000000000"},
		{value: "0x10", expected: "16"},
		{value: "0XFF", expected: "255"},
		{value: "0x0de0b6b3a7640000", expected: "1000000000000000000"},
		{value: "007", expected: "7"},
		{value: "0x0", expected: "0"},
		{value: "0x" + strings.Repeat("f", 64), expected: new(uint256.Int).SetAllOne().Dec()},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			req := &Request{Target: contract.Hex(), Chain: "1", Value: tt.value}

			c, err := req.parse(DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, c.value.Dec())
		})
	}

	for _, value := range []string{
		"0x1" + strings.Repeat("0", 64),
		"1" + strings.Repeat("0", 78),
		"-1",
		"-0x10",
		"0x",
		"12ab",
		"0xzz",
		"1.5",
	} {
		req := &Request{Target: contract.Hex(), Chain: "1", Value: value}
		assert.ErrorIs(t, req.Validate(), ErrInvalidValue, value)
	}
}

func TestRequestCalldata(t *testing.T) {
	for _, data := range []string{"0xa9059cbb", "a9059cbb"} {
		req := &Request{Target: contract.Hex(), Chain: "1", Calldata: data}

		c, err := req.parse(DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, c.input)
	}
}

func TestRequestFormatAlias(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name     string
		format   Format
		isJSON   *bool
		expected Format
		wantErr  bool
	}{
		{name: "default", expected: FormatStructured},
		{name: "is_json true", isJSON: &yes, expected: FormatJSON},
		{name: "is_json false", isJSON: &no, expected: FormatStructured},
		{name: "explicit json", format: FormatJSON, expected: FormatJSON},
		{name: "consistent", format: FormatJSON, isJSON: &yes, expected: FormatJSON},
		{name: "conflict", format: FormatStructured, isJSON: &yes, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &Request{Target: contract.Hex(), Chain: "1", OutputFormat: tt.format, IsJSON: tt.isJSON}

			c, err := req.parse(DefaultConfig())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFormat)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, c.format)
		})
	}
}

func TestRequestBlockOverrides(t *testing.T) {
	req := &Request{
		Target: contract.Hex(),
		Chain:  "1",
		Block:  &BlockOverrides{Coinbase: "nope"},
	}

	var reqErr *RequestError
	require.ErrorAs(t, req.Validate(), &reqErr)
	assert.Equal(t, "block.coinbase", reqErr.Field)

	req.Block = &BlockOverrides{BaseFee: "7", Coinbase: vault.Hex()}

	c, err := req.parse(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, vault, *c.coinbase)
	assert.Equal(t, uint64(7), c.baseFee.Uint64())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxCallDepth = 2048
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.TimeBudget = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DefaultGas = cfg.MaxGas + 1
	assert.Error(t, cfg.Validate())
}
