package interpreter

import (
	"crypto/sha256"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required by the 0x03 precompile
)

// PrecompiledContract is a native contract at a reserved address.
type PrecompiledContract interface {
	RequiredGas(input []byte) uint64
	Run(input []byte) ([]byte, error)
}

// precompiles is the supported precompile set.
var precompiles = map[common.Address]PrecompiledContract{
	common.BytesToAddress([]byte{0x1}): &ecrecover{},
	common.BytesToAddress([]byte{0x2}): &sha256hash{},
	common.BytesToAddress([]byte{0x3}): &ripemd160hash{},
	common.BytesToAddress([]byte{0x4}): &dataCopy{},
}

// PrecompileAddresses returns the precompile addresses, which are warm from
// the start of every run.
func PrecompileAddresses() []common.Address {
	addrs := make([]common.Address, 0, len(precompiles))
	for i := byte(1); i <= byte(len(precompiles)); i++ {
		addrs = append(addrs, common.BytesToAddress([]byte{i}))
	}

	return addrs
}

func runPrecompile(p PrecompiledContract, input []byte, gas uint64) frameResult {
	gasCost := p.RequiredGas(input)
	if gas < gasCost {
		return frameResult{err: ErrOutOfGas}
	}

	output, err := p.Run(input)
	if err != nil {
		return frameResult{err: err}
	}

	return frameResult{ret: output, gasLeft: gas - gasCost}
}

type ecrecover struct{}

func (c *ecrecover) RequiredGas(_ []byte) uint64 {
	return params.EcrecoverGas
}

func (c *ecrecover) Run(input []byte) ([]byte, error) {
	const ecRecoverInputLength = 128

	input = common.RightPadBytes(input, ecRecoverInputLength)

	r := new(big.Int).SetBytes(input[64:96])
	s := new(big.Int).SetBytes(input[96:128])
	v := input[63] - 27

	// v needs to be at the end for libsecp256k1.
	if !allZero(input[32:63]) || !crypto.ValidateSignatureValues(v, r, s, false) {
		return nil, nil
	}

	sig := make([]byte, 65)
	copy(sig, input[64:128])
	sig[64] = v

	pubKey, err := crypto.Ecrecover(input[:32], sig)
	if err != nil {
		return nil, nil
	}

	return common.LeftPadBytes(crypto.Keccak256(pubKey[1:])[12:], 32), nil
}

type sha256hash struct{}

func (c *sha256hash) RequiredGas(input []byte) uint64 {
	return uint64(len(input)+31)/32*params.Sha256PerWordGas + params.Sha256BaseGas
}

func (c *sha256hash) Run(input []byte) ([]byte, error) {
	h := sha256.Sum256(input)

	return h[:], nil
}

type ripemd160hash struct{}

func (c *ripemd160hash) RequiredGas(input []byte) uint64 {
	return uint64(len(input)+31)/32*params.Ripemd160PerWordGas + params.Ripemd160BaseGas
}

func (c *ripemd160hash) Run(input []byte) ([]byte, error) {
	ripemd := ripemd160.New()
	ripemd.Write(input)

	return common.LeftPadBytes(ripemd.Sum(nil), 32), nil
}

type dataCopy struct{}

func (c *dataCopy) RequiredGas(input []byte) uint64 {
	return uint64(len(input)+31)/32*params.IdentityPerWordGas + params.IdentityBaseGas
}

func (c *dataCopy) Run(in []byte) ([]byte, error) {
	return common.CopyBytes(in), nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}

	return true
}
