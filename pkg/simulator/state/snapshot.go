package state

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Account is the base view of a single account as seen by a Snapshot.
type Account struct {
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
}

// BlockContext is the block-level environment a simulation executes in.
// It is supplied by the state provider (or the caller) and never re-derived.
type BlockContext struct {
	Number     uint64
	Time       uint64
	Coinbase   common.Address
	GasLimit   uint64
	BaseFee    *uint256.Int
	PrevRandao common.Hash
}

// Snapshot is a read-only, point-in-time view of chain state.
//
// Implementations must be safe for concurrent reads from multiple runs and
// must return the same answer for the same key for their whole lifetime.
// A nil Account with a nil error means the account does not exist.
type Snapshot interface {
	Account(addr common.Address) (*Account, error)
	Storage(addr common.Address, slot common.Hash) (common.Hash, error)
	Block() BlockContext
}

// Compile-time check that MemorySnapshot implements Snapshot.
var _ Snapshot = (*MemorySnapshot)(nil)

type memoryAccount struct {
	account Account
	storage map[common.Hash]common.Hash
}

// MemorySnapshot is an immutable in-memory Snapshot. It is populated with the
// With* builders before being handed to a run, then only read.
type MemorySnapshot struct {
	block    BlockContext
	accounts map[common.Address]*memoryAccount
}

// NewMemorySnapshot creates an empty snapshot at the given block.
func NewMemorySnapshot(block BlockContext) *MemorySnapshot {
	if block.BaseFee == nil {
		block.BaseFee = new(uint256.Int)
	}

	return &MemorySnapshot{
		block:    block,
		accounts: make(map[common.Address]*memoryAccount),
	}
}

func (s *MemorySnapshot) account(addr common.Address) *memoryAccount {
	acc, ok := s.accounts[addr]
	if !ok {
		acc = &memoryAccount{
			account: Account{Balance: new(uint256.Int)},
			storage: make(map[common.Hash]common.Hash),
		}
		s.accounts[addr] = acc
	}

	return acc
}

// WithBalance sets the balance of addr.
func (s *MemorySnapshot) WithBalance(addr common.Address, balance *uint256.Int) *MemorySnapshot {
	s.account(addr).account.Balance = new(uint256.Int).Set(balance)

	return s
}

// WithNonce sets the nonce of addr.
func (s *MemorySnapshot) WithNonce(addr common.Address, nonce uint64) *MemorySnapshot {
	s.account(addr).account.Nonce = nonce

	return s
}

// WithCode sets the code of addr.
func (s *MemorySnapshot) WithCode(addr common.Address, code []byte) *MemorySnapshot {
	s.account(addr).account.Code = common.CopyBytes(code)

	return s
}

// WithStorage sets a single storage slot of addr.
func (s *MemorySnapshot) WithStorage(addr common.Address, slot, value common.Hash) *MemorySnapshot {
	s.account(addr).storage[slot] = value

	return s
}

// Account implements Snapshot.
func (s *MemorySnapshot) Account(addr common.Address) (*Account, error) {
	acc, ok := s.accounts[addr]
	if !ok {
		return nil, nil
	}

	return &Account{
		Balance: new(uint256.Int).Set(acc.account.Balance),
		Nonce:   acc.account.Nonce,
		Code:    acc.account.Code,
	}, nil
}

// Storage implements Snapshot.
func (s *MemorySnapshot) Storage(addr common.Address, slot common.Hash) (common.Hash, error) {
	acc, ok := s.accounts[addr]
	if !ok {
		return common.Hash{}, nil
	}

	return acc.storage[slot], nil
}

// Block implements Snapshot.
func (s *MemorySnapshot) Block() BlockContext {
	return s.block
}

// snapshotFile is the on-disk fixture format read by LoadMemorySnapshot.
type snapshotFile struct {
	Block struct {
		Number     hexutil.Uint64 `json:"number"`
		Time       hexutil.Uint64 `json:"timestamp"`
		Coinbase   common.Address `json:"coinbase"`
		GasLimit   hexutil.Uint64 `json:"gasLimit"`
		BaseFee    *hexutil.Big   `json:"baseFee"`
		PrevRandao common.Hash    `json:"prevRandao"`
	} `json:"block"`
	Accounts map[common.Address]struct {
		Balance *hexutil.Big                `json:"balance"`
		Nonce   hexutil.Uint64              `json:"nonce"`
		Code    hexutil.Bytes               `json:"code"`
		Storage map[common.Hash]common.Hash `json:"storage"`
	} `json:"accounts"`
}

// LoadMemorySnapshot reads a JSON state fixture from disk.
func LoadMemorySnapshot(path string) (*MemorySnapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file snapshotFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to decode state file %s: %w", path, err)
	}

	block := BlockContext{
		Number:     uint64(file.Block.Number),
		Time:       uint64(file.Block.Time),
		Coinbase:   file.Block.Coinbase,
		GasLimit:   uint64(file.Block.GasLimit),
		PrevRandao: file.Block.PrevRandao,
	}

	if file.Block.BaseFee != nil {
		fee, overflow := uint256.FromBig(file.Block.BaseFee.ToInt())
		if overflow {
			return nil, fmt.Errorf("base fee overflows 256 bits")
		}

		block.BaseFee = fee
	}

	snap := NewMemorySnapshot(block)

	for addr, acc := range file.Accounts {
		if acc.Balance != nil {
			balance, overflow := uint256.FromBig(acc.Balance.ToInt())
			if overflow {
				return nil, fmt.Errorf("balance of %s overflows 256 bits", addr.Hex())
			}

			snap.WithBalance(addr, balance)
		}

		snap.WithNonce(addr, uint64(acc.Nonce)).WithCode(addr, acc.Code)

		for slot, value := range acc.Storage {
			snap.WithStorage(addr, slot, value)
		}
	}

	return snap, nil
}
