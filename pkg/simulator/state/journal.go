package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// journalEntry is a single reversible modification of the overlay.
type journalEntry interface {
	revert(v *View)
}

// journal records overlay modifications in order so that a checkpoint can
// be rolled back without touching writes made before it.
type journal struct {
	entries   []journalEntry
	checkouts []int // checkpoint id -> journal length
}

func (j *journal) append(e journalEntry) {
	j.entries = append(j.entries, e)
}

func (j *journal) snapshot() int {
	id := len(j.checkouts)
	j.checkouts = append(j.checkouts, len(j.entries))

	return id
}

// revertTo undoes every entry recorded after checkpoint id and invalidates
// that checkpoint and all later ones.
func (j *journal) revertTo(v *View, id int) bool {
	if id < 0 || id >= len(j.checkouts) {
		return false
	}

	length := j.checkouts[id]

	for i := len(j.entries) - 1; i >= length; i-- {
		j.entries[i].revert(v)
	}

	j.entries = j.entries[:length]
	j.checkouts = j.checkouts[:id]

	return true
}

type (
	createObjectChange struct {
		addr common.Address
		prev *object
	}
	balanceChange struct {
		addr common.Address
		prev uint256.Int
	}
	nonceChange struct {
		addr common.Address
		prev uint64
	}
	codeChange struct {
		addr     common.Address
		prevCode []byte
		prevHash common.Hash
	}
	storageChange struct {
		addr    common.Address
		slot    common.Hash
		prev    common.Hash
		hadPrev bool
	}
	selfDestructChange struct {
		addr common.Address
		prev bool
	}
	refundChange struct {
		prev uint64
	}
	addLogChange struct{}
	accessListAddAccountChange struct {
		addr common.Address
	}
	accessListAddSlotChange struct {
		addr common.Address
		slot common.Hash
	}
	transientStorageChange struct {
		addr common.Address
		slot common.Hash
		prev common.Hash
	}
)

func (c createObjectChange) revert(v *View) {
	if c.prev == nil {
		delete(v.objects, c.addr)

		return
	}

	v.objects[c.addr] = c.prev
}

func (c balanceChange) revert(v *View) {
	v.objects[c.addr].balance = c.prev
}

func (c nonceChange) revert(v *View) {
	v.objects[c.addr].nonce = c.prev
}

func (c codeChange) revert(v *View) {
	obj := v.objects[c.addr]
	obj.code = c.prevCode
	obj.codeHash = c.prevHash
}

func (c storageChange) revert(v *View) {
	obj := v.objects[c.addr]
	if !c.hadPrev {
		delete(obj.dirty, c.slot)

		return
	}

	obj.dirty[c.slot] = c.prev
}

func (c selfDestructChange) revert(v *View) {
	v.objects[c.addr].selfDestructed = c.prev
}

func (c refundChange) revert(v *View) {
	v.refund = c.prev
}

func (addLogChange) revert(v *View) {
	v.logs = v.logs[:len(v.logs)-1]
}

func (c accessListAddAccountChange) revert(v *View) {
	delete(v.accessList, c.addr)
}

func (c accessListAddSlotChange) revert(v *View) {
	delete(v.accessList[c.addr], c.slot)
}

func (c transientStorageChange) revert(v *View) {
	v.setTransient(c.addr, c.slot, c.prev)
}
