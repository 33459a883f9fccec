// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import "github.com/driftfold/fullnode/internal/errs"

// CheckSnapshotInvariants restores snap into a scratch core and runs the
// same P1-P6 check Manager.CheckInvariants runs against a live manager.
// It lets offline tooling (cmd/peerdb's "check" subcommand) validate a
// peers file without constructing a full Manager.
func CheckSnapshotInvariants(snap *Snapshot) error {
	c, err := restoreCore(*snap)
	if err != nil {
		return err
	}
	return c.checkInvariants()
}

// checkInvariants verifies spec.md §8's P1-P6 against the current state.
// It is not run on every mutation (that would cost a full matrix scan per
// call); Manager.Start runs it automatically after restoring persisted
// state of any format, and it is available to tests for the steady-state
// checks spec.md §9 recommends.
func (c *core) checkInvariants() error {
	newSeen := 0
	triedSeen := 0
	refSum := make(map[int64]int)

	for id, info := range c.mapInfo {
		if info.isTried {
			triedSeen++
			if info.refCount != 0 {
				return errs.Errorf("P1/P4: tried record %d has nonzero refCount %d", id, info.refCount)
			}
		} else {
			newSeen++
			if info.refCount == 0 {
				return errs.Errorf("P1: new record %d has refCount 0 (should have been deleted)", id)
			}
		}
		if info.refCount < 0 || info.refCount > NewBucketsPerAddr {
			return errs.Errorf("P6: record %d refCount %d out of range", id, info.refCount)
		}
	}
	if newSeen != c.newCount {
		return errs.Errorf("P1: newCount=%d but %d live new records", c.newCount, newSeen)
	}
	if triedSeen != c.triedCount {
		return errs.Errorf("P1: triedCount=%d but %d live tried records", c.triedCount, triedSeen)
	}

	usedNew := make(map[posKey]struct{})
	for b := 0; b < NewBucketCount; b++ {
		for p := 0; p < BucketSize; p++ {
			id := c.newMatrix[b][p]
			if id == emptyID {
				continue
			}
			usedNew[posKey{b, p}] = struct{}{}
			if _, ok := c.mapInfo[id]; !ok {
				return errs.Errorf("P3: new cell (%d,%d) references missing id %d", b, p, id)
			}
			refSum[id]++
		}
	}
	if len(usedNew) != len(c.usedNew) {
		return errs.Errorf("P3: usedNew index has %d entries, matrix scan found %d", len(c.usedNew), len(usedNew))
	}
	for k := range usedNew {
		if _, ok := c.usedNew[k]; !ok {
			return errs.Errorf("P3: usedNew index missing occupied cell %+v", k)
		}
	}

	usedTried := make(map[posKey]struct{})
	for b := 0; b < TriedBucketCount; b++ {
		for p := 0; p < BucketSize; p++ {
			id := c.triedMatrix[b][p]
			if id == emptyID {
				continue
			}
			usedTried[posKey{b, p}] = struct{}{}
			info, ok := c.mapInfo[id]
			if !ok {
				return errs.Errorf("P4: tried cell (%d,%d) references missing id %d", b, p, id)
			}
			if !info.isTried {
				return errs.Errorf("P4: tried cell (%d,%d) references non-tried record %d", b, p, id)
			}
		}
	}
	if len(usedTried) != len(c.usedTried) {
		return errs.Errorf("P3: usedTried index has %d entries, matrix scan found %d", len(c.usedTried), len(usedTried))
	}

	for id, got := range refSum {
		info := c.mapInfo[id]
		if info.refCount < got {
			return errs.Errorf("P2: record %d refCount %d but %d new cells reference it", id, info.refCount, got)
		}
	}

	if len(c.randomOrder) != len(c.mapInfo) {
		return errs.Errorf("P5: randomOrder has %d entries but mapInfo has %d", len(c.randomOrder), len(c.mapInfo))
	}
	for pos, id := range c.randomOrder {
		info, ok := c.mapInfo[id]
		if !ok {
			return errs.Errorf("P5: randomOrder[%d]=%d has no mapInfo entry", pos, id)
		}
		if info.randomPos != pos {
			return errs.Errorf("P5: record %d randomPos=%d but occupies randomOrder[%d]", id, info.randomPos, pos)
		}
	}
	return nil
}
