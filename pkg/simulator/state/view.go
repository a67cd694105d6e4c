package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// object is the overlay entry of a single account. The origin fields hold
// the base values at load time and are never modified.
type object struct {
	addr common.Address

	existed       bool
	originBalance uint256.Int
	originNonce   uint64
	originCode    []byte

	balance  uint256.Int
	nonce    uint64
	code     []byte
	codeHash common.Hash

	// fresh objects were created during the run; reads of missing slots
	// return zero instead of falling through to the base.
	fresh          bool
	selfDestructed bool

	committed map[common.Hash]common.Hash
	dirty     map[common.Hash]common.Hash
}

// View is the copy-on-write overlay of one simulation run. It is not safe
// for concurrent use; every run owns exactly one View.
type View struct {
	base Snapshot

	objects map[common.Address]*object
	journal journal

	refund     uint64
	logs       []*types.Log
	accessList map[common.Address]map[common.Hash]struct{}
	transient  map[common.Address]map[common.Hash]common.Hash

	err error
}

// NewView creates an empty overlay over base.
func NewView(base Snapshot) *View {
	return &View{
		base:       base,
		objects:    make(map[common.Address]*object),
		accessList: make(map[common.Address]map[common.Hash]struct{}),
		transient:  make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// Err returns the first error reported by the base snapshot, if any. Once
// set, reads return zero values and the run must be aborted.
func (v *View) Err() error {
	return v.err
}

func (v *View) setError(err error) {
	if v.err == nil {
		v.err = err
	}
}

// Block returns the block context of the underlying snapshot.
func (v *View) Block() BlockContext {
	return v.base.Block()
}

func (v *View) load(addr common.Address) *object {
	if obj, ok := v.objects[addr]; ok {
		return obj
	}

	obj := &object{
		addr:      addr,
		codeHash:  types.EmptyCodeHash,
		committed: make(map[common.Hash]common.Hash),
		dirty:     make(map[common.Hash]common.Hash),
	}

	acc, err := v.base.Account(addr)
	if err != nil {
		v.setError(fmt.Errorf("failed to read account %s: %w", addr.Hex(), err))
	}

	if err == nil && acc != nil {
		obj.existed = true
		if acc.Balance != nil {
			obj.originBalance.Set(acc.Balance)
		}

		obj.originNonce = acc.Nonce
		obj.originCode = acc.Code
		obj.balance = obj.originBalance
		obj.nonce = acc.Nonce
		obj.code = acc.Code

		if len(acc.Code) > 0 {
			obj.codeHash = crypto.Keccak256Hash(acc.Code)
		}
	}

	v.objects[addr] = obj

	return obj
}

// Read returns the current overlay view of addr.
func (v *View) Read(addr common.Address) Account {
	obj := v.load(addr)

	return Account{
		Balance: new(uint256.Int).Set(&obj.balance),
		Nonce:   obj.nonce,
		Code:    obj.code,
	}
}

// Exist reports whether the account exists in the base or was created.
func (v *View) Exist(addr common.Address) bool {
	obj := v.load(addr)

	return obj.existed || obj.fresh
}

// Empty reports whether the account is empty per EIP-161.
func (v *View) Empty(addr common.Address) bool {
	obj := v.load(addr)

	return obj.nonce == 0 && obj.balance.IsZero() && len(obj.code) == 0
}

// CreateAccount replaces addr with a fresh account, carrying over its balance.
func (v *View) CreateAccount(addr common.Address) {
	prev := v.load(addr)

	obj := &object{
		addr:          addr,
		existed:       prev.existed,
		originBalance: prev.originBalance,
		originNonce:   prev.originNonce,
		originCode:    prev.originCode,
		balance:       prev.balance,
		codeHash:      types.EmptyCodeHash,
		fresh:         true,
		committed:     prev.committed,
		dirty:         make(map[common.Hash]common.Hash),
	}

	v.journal.append(createObjectChange{addr: addr, prev: prev})
	v.objects[addr] = obj
}

// GetBalance returns the current balance of addr.
func (v *View) GetBalance(addr common.Address) *uint256.Int {
	return new(uint256.Int).Set(&v.load(addr).balance)
}

// SetBalance overwrites the balance of addr in the overlay.
func (v *View) SetBalance(addr common.Address, amount *uint256.Int) {
	obj := v.load(addr)
	v.journal.append(balanceChange{addr: addr, prev: obj.balance})
	obj.balance.Set(amount)
}

// AddBalance credits addr.
func (v *View) AddBalance(addr common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		v.load(addr)

		return
	}

	v.SetBalance(addr, new(uint256.Int).Add(v.GetBalance(addr), amount))
}

// SubBalance debits addr. The caller checks sufficiency beforehand.
func (v *View) SubBalance(addr common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}

	v.SetBalance(addr, new(uint256.Int).Sub(v.GetBalance(addr), amount))
}

// GetNonce returns the current nonce of addr.
func (v *View) GetNonce(addr common.Address) uint64 {
	return v.load(addr).nonce
}

// SetNonce overwrites the nonce of addr.
func (v *View) SetNonce(addr common.Address, nonce uint64) {
	obj := v.load(addr)
	v.journal.append(nonceChange{addr: addr, prev: obj.nonce})
	obj.nonce = nonce
}

// GetCode returns the code of addr.
func (v *View) GetCode(addr common.Address) []byte {
	return v.load(addr).code
}

// GetCodeSize returns the length of the code of addr.
func (v *View) GetCodeSize(addr common.Address) int {
	return len(v.load(addr).code)
}

// GetCodeHash returns the code hash of addr, or the zero hash for accounts
// that do not exist.
func (v *View) GetCodeHash(addr common.Address) common.Hash {
	obj := v.load(addr)
	if !obj.existed && !obj.fresh {
		return common.Hash{}
	}

	return obj.codeHash
}

// SetCode installs code at addr.
func (v *View) SetCode(addr common.Address, code []byte) {
	obj := v.load(addr)
	v.journal.append(codeChange{addr: addr, prevCode: obj.code, prevHash: obj.codeHash})
	obj.code = code
	obj.codeHash = crypto.Keccak256Hash(code)
}

// GetCommittedState returns the value of slot at the start of the run.
func (v *View) GetCommittedState(addr common.Address, slot common.Hash) common.Hash {
	obj := v.load(addr)

	return v.committedState(obj, slot)
}

func (v *View) committedState(obj *object, slot common.Hash) common.Hash {
	if value, ok := obj.committed[slot]; ok {
		return value
	}

	value, err := v.base.Storage(obj.addr, slot)
	if err != nil {
		v.setError(fmt.Errorf("failed to read storage %s/%s: %w", obj.addr.Hex(), slot.Hex(), err))

		return common.Hash{}
	}

	obj.committed[slot] = value

	return value
}

// GetState returns the current value of slot.
func (v *View) GetState(addr common.Address, slot common.Hash) common.Hash {
	obj := v.load(addr)

	if value, ok := obj.dirty[slot]; ok {
		return value
	}

	if obj.fresh {
		return common.Hash{}
	}

	return v.committedState(obj, slot)
}

// SetState writes slot in the overlay.
func (v *View) SetState(addr common.Address, slot, value common.Hash) {
	obj := v.load(addr)
	prev, hadPrev := obj.dirty[slot]
	v.journal.append(storageChange{addr: addr, slot: slot, prev: prev, hadPrev: hadPrev})
	obj.dirty[slot] = value
}

// SelfDestruct marks addr as destructed. Balance handling is done by the caller.
func (v *View) SelfDestruct(addr common.Address) {
	obj := v.load(addr)
	v.journal.append(selfDestructChange{addr: addr, prev: obj.selfDestructed})
	obj.selfDestructed = true
}

// HasSelfDestructed reports whether addr was destructed during the run.
func (v *View) HasSelfDestructed(addr common.Address) bool {
	return v.load(addr).selfDestructed
}

// IsNewContract reports whether addr was created during the run.
func (v *View) IsNewContract(addr common.Address) bool {
	return v.load(addr).fresh
}

// AddRefund increases the gas refund counter.
func (v *View) AddRefund(gas uint64) {
	v.journal.append(refundChange{prev: v.refund})
	v.refund += gas
}

// SubRefund decreases the gas refund counter.
func (v *View) SubRefund(gas uint64) {
	v.journal.append(refundChange{prev: v.refund})

	if gas > v.refund {
		v.setError(fmt.Errorf("refund counter below zero (gas: %d > refund: %d)", gas, v.refund))
		v.refund = 0

		return
	}

	v.refund -= gas
}

// GetRefund returns the gas refund counter.
func (v *View) GetRefund() uint64 {
	return v.refund
}

// AddLog records an emitted log.
func (v *View) AddLog(log *types.Log) {
	v.journal.append(addLogChange{})
	log.Index = uint(len(v.logs))
	v.logs = append(v.logs, log)
}

// Logs returns the logs emitted so far, in emission order.
func (v *View) Logs() []*types.Log {
	return v.logs
}

// AddAddressToAccessList warms addr.
func (v *View) AddAddressToAccessList(addr common.Address) {
	if _, ok := v.accessList[addr]; ok {
		return
	}

	v.journal.append(accessListAddAccountChange{addr: addr})
	v.accessList[addr] = make(map[common.Hash]struct{})
}

// AddSlotToAccessList warms (addr, slot), warming addr as well.
func (v *View) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	v.AddAddressToAccessList(addr)

	if _, ok := v.accessList[addr][slot]; ok {
		return
	}

	v.journal.append(accessListAddSlotChange{addr: addr, slot: slot})
	v.accessList[addr][slot] = struct{}{}
}

// AddressInAccessList reports whether addr is warm.
func (v *View) AddressInAccessList(addr common.Address) bool {
	_, ok := v.accessList[addr]

	return ok
}

// SlotInAccessList reports whether addr and (addr, slot) are warm.
func (v *View) SlotInAccessList(addr common.Address, slot common.Hash) (addressOk, slotOk bool) {
	slots, ok := v.accessList[addr]
	if !ok {
		return false, false
	}

	_, slotOk = slots[slot]

	return true, slotOk
}

// GetTransientState reads EIP-1153 transient storage.
func (v *View) GetTransientState(addr common.Address, slot common.Hash) common.Hash {
	return v.transient[addr][slot]
}

// SetTransientState writes EIP-1153 transient storage.
func (v *View) SetTransientState(addr common.Address, slot, value common.Hash) {
	prev := v.GetTransientState(addr, slot)
	if prev == value {
		return
	}

	v.journal.append(transientStorageChange{addr: addr, slot: slot, prev: prev})
	v.setTransient(addr, slot, value)
}

func (v *View) setTransient(addr common.Address, slot, value common.Hash) {
	slots, ok := v.transient[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		v.transient[addr] = slots
	}

	slots[slot] = value
}

// Snapshot returns a checkpoint id for RevertToSnapshot.
func (v *View) Snapshot() int {
	return v.journal.snapshot()
}

// RevertToSnapshot discards every overlay write made after checkpoint id.
// Writes made before it are kept.
func (v *View) RevertToSnapshot(id int) {
	if !v.journal.revertTo(v, id) {
		v.setError(fmt.Errorf("%w: checkpoint %d is not valid", ErrInvalidCheckpoint, id))
	}
}

// Finalise applies end-of-transaction effects: accounts destructed in the
// same run they were created in are cleared.
func (v *View) Finalise() {
	for _, obj := range v.objects {
		if !obj.selfDestructed || !obj.fresh {
			continue
		}

		obj.balance.Clear()
		obj.nonce = 0
		obj.code = nil
		obj.codeHash = types.EmptyCodeHash
		obj.dirty = make(map[common.Hash]common.Hash)
	}
}
