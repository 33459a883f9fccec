// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import "math/rand"

// posKey identifies a single matrix cell, used as the key type for the
// used-position index sets (spec.md §4.3 invariant 6).
type posKey struct {
	bucket int
	pos    int
}

// emptyID marks an unoccupied matrix cell.
const emptyID int64 = -1

// core is the non-reentrant address-manager state (spec.md's BucketTables
// + AddressRecord + SelectionEngine combined into one owner, following the
// teacher's single-struct convention). Every method on *core assumes the
// caller already holds whatever external lock applies -- core itself does
// no locking; Manager (manager.go) supplies the concurrency envelope.
type core struct {
	key [32]byte

	idCount int64
	mapAddr map[string]int64 // host -> id
	mapInfo map[int64]*record

	randomOrder []int64 // permutation of ids; spec.md invariant 2

	newMatrix   [NewBucketCount][BucketSize]int64
	triedMatrix [TriedBucketCount][BucketSize]int64
	usedNew     map[posKey]struct{}
	usedTried   map[posKey]struct{}

	newCount   int
	triedCount int
	lastGood   int64

	triedCollisions []int64

	allowPrivateSubnets bool

	// rng drives every non-persisted random choice (bucket sampling,
	// selection gates, stochastic suppression). Its state is never
	// serialized -- spec.md §5 only requires the 256-bit key to survive
	// persistence.
	rng *rand.Rand
}

// setNew writes value into newMatrix[bucket][pos], maintaining usedNew.
// Outside restoreCore (which fills the matrices directly and then calls
// loadUsedPositions), only this method and clearNew mutate newMatrix.
func (c *core) setNew(bucket, pos int, id int64) {
	c.newMatrix[bucket][pos] = id
	k := posKey{bucket, pos}
	if id == emptyID {
		delete(c.usedNew, k)
	} else {
		c.usedNew[k] = struct{}{}
	}
}

// setTried writes value into triedMatrix[bucket][pos], maintaining
// usedTried. Outside restoreCore, only this method mutates triedMatrix.
func (c *core) setTried(bucket, pos int, id int64) {
	c.triedMatrix[bucket][pos] = id
	k := posKey{bucket, pos}
	if id == emptyID {
		delete(c.usedTried, k)
	} else {
		c.usedTried[k] = struct{}{}
	}
}

// loadUsedPositions rebuilds usedNew/usedTried by scanning both matrices.
// Used by restoreCore, which populates the matrices from a Snapshot (of
// any on-disk format) directly rather than through setNew/setTried.
func (c *core) loadUsedPositions() {
	c.usedNew = make(map[posKey]struct{})
	c.usedTried = make(map[posKey]struct{})
	for b := 0; b < NewBucketCount; b++ {
		for p := 0; p < BucketSize; p++ {
			if c.newMatrix[b][p] != emptyID {
				c.usedNew[posKey{b, p}] = struct{}{}
			}
		}
	}
	for b := 0; b < TriedBucketCount; b++ {
		for p := 0; p < BucketSize; p++ {
			if c.triedMatrix[b][p] != emptyID {
				c.usedTried[posKey{b, p}] = struct{}{}
			}
		}
	}
}

// swapRandom exchanges the two positions of randomOrder, keeping each
// affected record's randomPos in sync (spec.md §4.3).
func (c *core) swapRandom(posA, posB int) {
	if posA == posB {
		return
	}
	idA := c.randomOrder[posA]
	idB := c.randomOrder[posB]
	c.mapInfo[idA].randomPos = posB
	c.mapInfo[idB].randomPos = posA
	c.randomOrder[posA] = idB
	c.randomOrder[posB] = idA
}

// deleteNew removes id from the manager entirely: swaps it to the tail of
// randomOrder, pops it, drops the address/info map entries, and decrements
// newCount. Called only once id's refCount has dropped to zero and it is
// not tried.
func (c *core) deleteNew(id int64) {
	info, ok := c.mapInfo[id]
	if !ok {
		return
	}
	last := len(c.randomOrder) - 1
	c.swapRandom(info.randomPos, last)
	c.randomOrder = c.randomOrder[:last]
	delete(c.mapAddr, info.peer.Host)
	delete(c.mapInfo, id)
	c.newCount--
}

// clearNew empties a New-table cell, decrementing the occupant's refCount
// and deleting it outright if that drops it to zero.
func (c *core) clearNew(bucket, pos int) {
	id := c.newMatrix[bucket][pos]
	if id == emptyID {
		return
	}
	info := c.mapInfo[id]
	info.refCount--
	c.setNew(bucket, pos, emptyID)
	if info.refCount == 0 {
		c.deleteNew(id)
	}
}
