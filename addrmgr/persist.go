// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"math/rand"

	"github.com/driftfold/fullnode/addrmgr/addrutil"
)

// RecordSnapshot is the exported, codec-friendly form of a record. It is
// the unit addrmgr/store serializes, whether to the v2 binary layout or
// read back from a legacy v1 format; Manager never exposes *record itself
// outside this package.
type RecordSnapshot struct {
	Host             string
	Port             uint16
	SourceHost       string
	SourcePort       uint16
	Timestamp        int64
	LastTry          int64
	LastSuccess      int64
	LastCountAttempt int64
	NumAttempts      int
	IsTried          bool
	RefCount         int
}

// NewTableEntry records that the record at index Record once occupied some
// cell in bucket Bucket of the New table; its position within that bucket
// is never stored -- it is a pure function of the record's own key+peer
// (record.bucketPosition), recomputed on load, exactly as spec.md §4.5's
// read protocol describes ("once we know the bucket, the position follows").
//
// Tried-table placement is not recorded at all: a tried record has exactly
// one possible (bucket, pos), both derived from the record alone, so the
// read protocol recovers it by replaying every record in sequence.
type NewTableEntry struct {
	Record int
	Bucket int
}

// Snapshot is the whole of a core's durable state needed to reconstruct
// it: the secret key, every record (New records first, then Tried, the
// ordering contract spec.md §4.5 requires), and the sparse New-table
// bucket assignments. addrmgr/store's codecs read and write this type
// directly; they never see core or record.
type Snapshot struct {
	Key             [32]byte
	Records         []RecordSnapshot
	NewTable        []NewTableEntry
	LastGood        int64
	TriedCollisions []int // indices into Records, New records only
}

// snapshotCore converts c's live state into a Snapshot. Records are
// ordered New-then-Tried (spec.md §4.5's ordering contract), each New
// record's occupied cells recorded as (index, bucket) pairs from a full
// matrix scan.
func snapshotCore(c *core) Snapshot {
	idToIdx := make(map[int64]int, len(c.mapInfo))
	var records []RecordSnapshot

	var newIDs, triedIDs []int64
	for id, info := range c.mapInfo {
		if info.isTried {
			triedIDs = append(triedIDs, id)
		} else {
			newIDs = append(newIDs, id)
		}
	}
	for _, id := range newIDs {
		idToIdx[id] = len(records)
		records = append(records, snapshotRecord(c.mapInfo[id]))
	}
	for _, id := range triedIDs {
		idToIdx[id] = len(records)
		records = append(records, snapshotRecord(c.mapInfo[id]))
	}

	var newTable []NewTableEntry
	for b := 0; b < NewBucketCount; b++ {
		for p := 0; p < BucketSize; p++ {
			if id := c.newMatrix[b][p]; id != emptyID {
				newTable = append(newTable, NewTableEntry{Record: idToIdx[id], Bucket: b})
			}
		}
	}

	collisions := make([]int, 0, len(c.triedCollisions))
	for _, id := range c.triedCollisions {
		if idx, ok := idToIdx[id]; ok {
			collisions = append(collisions, idx)
		}
	}

	return Snapshot{
		Key:             c.key,
		Records:         records,
		NewTable:        newTable,
		LastGood:        c.lastGood,
		TriedCollisions: collisions,
	}
}

func snapshotRecord(info *record) RecordSnapshot {
	return RecordSnapshot{
		Host:             info.peer.Host,
		Port:             info.peer.Port,
		SourceHost:       info.source.Host,
		SourcePort:       info.source.Port,
		Timestamp:        info.timestamp,
		LastTry:          info.lastTry,
		LastSuccess:      info.lastSuccess,
		LastCountAttempt: info.lastCountAttempt,
		NumAttempts:      info.numAttempts,
		IsTried:          info.isTried,
		RefCount:         info.refCount,
	}
}

// restoreCore rebuilds a *core from a Snapshot, replaying spec.md §4.5's
// read protocol: records index < newCount are New (id-assigned in file
// order), the rest are Tried (inserted by recomputed bucket/position,
// silently dropping key-rehash collisions); New-table entries are then
// replayed to set occupied cells and ref_count (capped at
// NewBucketsPerAddr); any New record left at ref_count 0 is deleted; the
// used-position indexes are rebuilt last.
func restoreCore(s Snapshot) (*core, error) {
	c := newCore(s.Key, rand.New(rand.NewSource(1)))
	c.lastGood = s.LastGood

	newCount := 0
	for _, rs := range s.Records {
		if !rs.IsTried {
			newCount++
		}
	}

	idxToID := make([]int64, len(s.Records))
	for i, rs := range s.Records {
		r := &record{
			peer:             addrutil.NewNetAddr(rs.Host, rs.Port),
			source:           addrutil.NewNetAddr(rs.SourceHost, rs.SourcePort),
			timestamp:        rs.Timestamp,
			lastTry:          rs.LastTry,
			lastSuccess:      rs.LastSuccess,
			lastCountAttempt: rs.LastCountAttempt,
			numAttempts:      rs.NumAttempts,
		}

		if i < newCount {
			c.idCount++
			id := c.idCount
			idxToID[i] = id
			r.randomPos = len(c.randomOrder)
			c.mapInfo[id] = r
			c.mapAddr[r.peer.Host] = id
			c.randomOrder = append(c.randomOrder, id)
			c.newCount++
			continue
		}

		// Tried candidate: bucket/position are pure functions of r and key,
		// so recompute rather than trust any stored placement.
		triedBucket := r.triedBucket(c.key[:])
		triedPos := r.bucketPosition(c.key[:], 'K', triedBucket)
		if c.triedMatrix[triedBucket][triedPos] != emptyID {
			idxToID[i] = -1 // collision: dropped, per spec.md §4.5
			continue
		}
		c.idCount++
		id := c.idCount
		idxToID[i] = id
		r.isTried = true
		r.randomPos = len(c.randomOrder)
		c.mapInfo[id] = r
		c.mapAddr[r.peer.Host] = id
		c.randomOrder = append(c.randomOrder, id)
		c.triedMatrix[triedBucket][triedPos] = id
		c.triedCount++
	}

	for _, e := range s.NewTable {
		if e.Record >= len(idxToID) {
			continue
		}
		id := idxToID[e.Record]
		if id == -1 {
			continue
		}
		info, ok := c.mapInfo[id]
		if !ok || info.isTried {
			continue
		}
		pos := info.bucketPosition(c.key[:], 'N', e.Bucket)
		if c.newMatrix[e.Bucket][pos] == emptyID && info.refCount < NewBucketsPerAddr {
			info.refCount++
			c.newMatrix[e.Bucket][pos] = id
		}
	}

	for id, info := range c.mapInfo {
		if !info.isTried && info.refCount == 0 {
			c.deleteNew(id)
		}
	}

	c.loadUsedPositions()

	for _, idx := range s.TriedCollisions {
		if idx < len(idxToID) && idxToID[idx] != -1 {
			c.triedCollisions = append(c.triedCollisions, idxToID[idx])
		}
	}
	return c, nil
}
