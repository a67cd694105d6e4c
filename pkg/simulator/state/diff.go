package state

import (
	"bytes"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// StorageChange is a single slot whose value differs from the base.
type StorageChange struct {
	Slot common.Hash
	Pre  common.Hash
	Post common.Hash
}

// AccountDiff lists the changed fields of one account. Unchanged fields are
// left nil.
type AccountDiff struct {
	Address common.Address

	BalancePre  *uint256.Int
	BalancePost *uint256.Int

	NoncePre  *uint64
	NoncePost *uint64

	CodeChanged bool
	CodePre     []byte
	CodePost    []byte

	Storage []StorageChange
}

// Diff returns every account whose post-run value differs from the base,
// sorted by address. Storage changes are sorted by slot.
func (v *View) Diff() []AccountDiff {
	diffs := make([]AccountDiff, 0, len(v.objects))

	for addr, obj := range v.objects {
		d := AccountDiff{Address: addr}
		changed := false

		if !obj.balance.Eq(&obj.originBalance) {
			d.BalancePre = new(uint256.Int).Set(&obj.originBalance)
			d.BalancePost = new(uint256.Int).Set(&obj.balance)
			changed = true
		}

		if obj.nonce != obj.originNonce {
			pre, post := obj.originNonce, obj.nonce
			d.NoncePre, d.NoncePost = &pre, &post
			changed = true
		}

		if !bytes.Equal(obj.code, obj.originCode) {
			d.CodeChanged = true
			d.CodePre = common.CopyBytes(obj.originCode)
			d.CodePost = common.CopyBytes(obj.code)
			changed = true
		}

		for slot, post := range obj.dirty {
			pre := v.committedState(obj, slot)
			if pre == post {
				continue
			}

			d.Storage = append(d.Storage, StorageChange{Slot: slot, Pre: pre, Post: post})
		}

		if len(d.Storage) > 0 {
			slices.SortFunc(d.Storage, func(a, b StorageChange) int {
				return bytes.Compare(a.Slot[:], b.Slot[:])
			})

			changed = true
		}

		if changed {
			diffs = append(diffs, d)
		}
	}

	slices.SortFunc(diffs, func(a, b AccountDiff) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})

	return diffs
}
