package geth

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/execution-simulator/pkg/simulator/state"
)

// Compile-time check that snapshot implements state.Snapshot.
var _ state.Snapshot = (*snapshot)(nil)

type slotKey struct {
	addr common.Address
	slot common.Hash
}

// snapshot reads state from an RPC node at one pinned block. Reads are
// cached so every key answers the same for the snapshot's lifetime.
type snapshot struct {
	ctx    context.Context
	node   *RPCNode
	number *big.Int
	block  state.BlockContext

	mu       sync.RWMutex
	accounts map[common.Address]*state.Account
	storage  map[slotKey]common.Hash
}

func newSnapshot(ctx context.Context, node *RPCNode, header *types.Header) *snapshot {
	return &snapshot{
		ctx:      ctx,
		node:     node,
		number:   new(big.Int).Set(header.Number),
		block:    blockContextFromHeader(header),
		accounts: make(map[common.Address]*state.Account),
		storage:  make(map[slotKey]common.Hash),
	}
}

// blockContextFromHeader derives the execution environment from header, the
// same block eth_call runs against for the "latest" tag.
func blockContextFromHeader(header *types.Header) state.BlockContext {
	block := state.BlockContext{
		Number:     header.Number.Uint64(),
		Time:       header.Time,
		Coinbase:   header.Coinbase,
		GasLimit:   header.GasLimit,
		BaseFee:    new(uint256.Int),
		PrevRandao: header.MixDigest,
	}

	if header.BaseFee != nil {
		block.BaseFee.SetFromBig(header.BaseFee)
	}

	return block
}

func (s *snapshot) Block() state.BlockContext {
	return s.block
}

// Account reads balance, nonce and code concurrently. Accounts that are
// empty per EIP-161 are reported as missing.
func (s *snapshot) Account(addr common.Address) (*state.Account, error) {
	s.mu.RLock()
	acc, ok := s.accounts[addr]
	s.mu.RUnlock()

	if ok {
		return acc, nil
	}

	var (
		balance *big.Int
		nonce   uint64
		code    []byte
	)

	g, ctx := errgroup.WithContext(s.ctx)

	g.Go(func() error {
		var err error

		balance, err = s.node.balanceAt(ctx, addr, s.number)

		return err
	})

	g.Go(func() error {
		var err error

		nonce, err = s.node.nonceAt(ctx, addr, s.number)

		return err
	})

	g.Go(func() error {
		var err error

		code, err = s.node.codeAt(ctx, addr, s.number)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to read account %s at block %s: %w", addr.Hex(), s.number, err)
	}

	if balance == nil {
		balance = new(big.Int)
	}

	if balance.Sign() != 0 || nonce != 0 || len(code) > 0 {
		value, overflow := uint256.FromBig(balance)
		if overflow {
			return nil, fmt.Errorf("balance of %s overflows 256 bits", addr.Hex())
		}

		acc = &state.Account{Balance: value, Nonce: nonce, Code: code}
	}

	s.mu.Lock()
	s.accounts[addr] = acc
	s.mu.Unlock()

	return acc, nil
}

func (s *snapshot) Storage(addr common.Address, slot common.Hash) (common.Hash, error) {
	key := slotKey{addr: addr, slot: slot}

	s.mu.RLock()
	value, ok := s.storage[key]
	s.mu.RUnlock()

	if ok {
		return value, nil
	}

	value, err := s.node.storageAt(s.ctx, addr, slot, s.number)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read storage %s/%s at block %s: %w", addr.Hex(), slot.Hex(), s.number, err)
	}

	s.mu.Lock()
	s.storage[key] = value
	s.mu.Unlock()

	return value, nil
}
