package simulator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethpandaops/execution-simulator/pkg/ethereum"
	"github.com/holiman/uint256"
)

// ChainRef identifies a chain by name, alias or numeric ID. It decodes from
// both JSON strings and JSON numbers.
type ChainRef string

// UnmarshalJSON implements json.Unmarshaler.
func (c *ChainRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '"' {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}

		*c = ChainRef(n.String())

		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*c = ChainRef(s)

	return nil
}

// BlockOverrides replace fields of the block context supplied by the
// state provider.
type BlockOverrides struct {
	Number    *uint64 `json:"number,omitempty"`
	Timestamp *uint64 `json:"timestamp,omitempty"`
	Coinbase  string  `json:"coinbase,omitempty"`
	BaseFee   string  `json:"baseFee,omitempty"`
}

// Request describes a single transaction to simulate. It is never mutated
// by the engine.
type Request struct {
	// TransactionHash is an advisory correlation ID echoed in the result.
	TransactionHash string `json:"transaction_hash,omitempty"`
	// From is the sender. Defaults to the zero address.
	From string `json:"from,omitempty"`
	// Target is the called account.
	Target string `json:"target_contract"`
	// Chain is a chain name, alias or numeric chain ID.
	Chain ChainRef `json:"chain_id"`
	// Calldata is 0x-prefixed hex and may be empty.
	Calldata string `json:"calldata,omitempty"`
	// Value is a decimal or 0x-prefixed hex integer in wei.
	Value string `json:"value,omitempty"`
	// Gas is the gas limit. Zero uses the configured default.
	Gas uint64 `json:"gas,omitempty"`

	FollowCalls      bool   `json:"follow_calls"`
	InstructionTrace bool   `json:"instruction_trace"`
	OutputFormat     Format `json:"output_format,omitempty"`
	// IsJSON is accepted as an alias of OutputFormat "json".
	IsJSON *bool `json:"is_json,omitempty"`

	Block *BlockOverrides `json:"block,omitempty"`
}

// call is a validated Request.
type call struct {
	txHash  *common.Hash
	from    common.Address
	to      common.Address
	network *ethereum.Network
	input   []byte
	value   *uint256.Int
	gas     uint64
	format  Format

	followCalls      bool
	instructionTrace bool

	blockNumber *uint64
	timestamp   *uint64
	coinbase    *common.Address
	baseFee     *uint256.Int
}

// Validate checks the request without executing it. The returned error is
// a *RequestError.
func (r *Request) Validate() error {
	_, err := r.parse(DefaultConfig())

	return err
}

func (r *Request) parse(cfg *Config) (*call, error) {
	c := &call{
		followCalls:      r.FollowCalls,
		instructionTrace: r.InstructionTrace,
	}

	if r.TransactionHash != "" {
		raw, err := hexutil.Decode(r.TransactionHash)
		if err != nil || len(raw) != common.HashLength {
			return nil, &RequestError{Field: "transaction_hash", Err: ErrMalformedHex}
		}

		hash := common.BytesToHash(raw)
		c.txHash = &hash
	}

	if r.From != "" {
		addr, err := parseAddress(r.From)
		if err != nil {
			return nil, &RequestError{Field: "from", Err: err}
		}

		c.from = addr
	}

	to, err := parseAddress(r.Target)
	if err != nil {
		return nil, &RequestError{Field: "target_contract", Err: err}
	}

	c.to = to

	network, err := ethereum.ResolveChain(string(r.Chain))
	if err != nil {
		return nil, &RequestError{Field: "chain_id", Err: err}
	}

	c.network = network

	if c.input, err = parseHex(r.Calldata); err != nil {
		return nil, &RequestError{Field: "calldata", Err: err}
	}

	if c.value, err = parseAmount(r.Value); err != nil {
		return nil, &RequestError{Field: "value", Err: err}
	}

	c.gas = r.Gas
	if c.gas == 0 {
		c.gas = cfg.DefaultGas
	}

	if cfg.MaxGas != 0 && c.gas > cfg.MaxGas {
		return nil, &RequestError{Field: "gas", Err: fmt.Errorf("%w: %d exceeds %d", ErrGasLimit, c.gas, cfg.MaxGas)}
	}

	if c.format, err = r.format(); err != nil {
		return nil, &RequestError{Field: "output_format", Err: err}
	}

	if err := c.applyOverrides(r.Block); err != nil {
		return nil, err
	}

	return c, nil
}

func (r *Request) format() (Format, error) {
	format := r.OutputFormat

	switch format {
	case "", FormatStructured, FormatJSON:
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}

	if r.IsJSON != nil {
		alias := FormatStructured
		if *r.IsJSON {
			alias = FormatJSON
		}

		if format != "" && format != alias {
			return "", fmt.Errorf("%w: output_format %q conflicts with is_json", ErrInvalidFormat, format)
		}

		format = alias
	}

	if format == "" {
		format = FormatStructured
	}

	return format, nil
}

func (c *call) applyOverrides(o *BlockOverrides) error {
	if o == nil {
		return nil
	}

	c.blockNumber = o.Number
	c.timestamp = o.Timestamp

	if o.Coinbase != "" {
		addr, err := parseAddress(o.Coinbase)
		if err != nil {
			return &RequestError{Field: "block.coinbase", Err: err}
		}

		c.coinbase = &addr
	}

	if o.BaseFee != "" {
		fee, err := parseAmount(o.BaseFee)
		if err != nil {
			return &RequestError{Field: "block.baseFee", Err: err}
		}

		c.baseFee = fee
	}

	return nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}

	return common.HexToAddress(s), nil
}

func parseHex(s string) ([]byte, error) {
	if s == "" || s == "0x" || s == "0X" {
		return []byte{}, nil
	}

	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}

	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHex, err)
	}

	return data, nil
}

// parseAmount parses a non-negative decimal or 0x-prefixed hex integer that
// fits in 256 bits.
func parseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(uint256.Int), nil
	}

	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidValue, s)
	}

	var (
		amount *uint256.Int
		err    error
	)

	// uint256 rejects leading zeros, which callers commonly send.
	if rest, found := strings.CutPrefix(strings.ToLower(s), "0x"); found {
		amount, err = uint256.FromHex("0x" + trimZeros(rest))
	} else {
		amount, err = uint256.FromDecimal(trimZeros(s))
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidValue, s, err)
	}

	return amount, nil
}

func trimZeros(digits string) string {
	if trimmed := strings.TrimLeft(digits, "0"); trimmed != "" || digits == "" {
		return trimmed
	}

	return "0"
}
