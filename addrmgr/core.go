// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"math"
	"math/rand"
	"time"

	"github.com/driftfold/fullnode/addrmgr/addrutil"
)

// newCore allocates an empty core with the given key and rng, and matrices
// initialized to emptyID.
func newCore(key [32]byte, rng *rand.Rand) *core {
	c := &core{
		key:       key,
		mapAddr:   make(map[string]int64),
		mapInfo:   make(map[int64]*record),
		usedNew:   make(map[posKey]struct{}),
		usedTried: make(map[posKey]struct{}),
		lastGood:  1,
		rng:       rng,
	}
	for b := range c.newMatrix {
		for p := range c.newMatrix[b] {
			c.newMatrix[b][p] = emptyID
		}
	}
	for b := range c.triedMatrix {
		for p := range c.triedMatrix[b] {
			c.triedMatrix[b][p] = emptyID
		}
	}
	return c
}

// find looks up a record by peer host. Returns (nil, -1) if unknown.
func (c *core) find(peer addrutil.NetAddr) (*record, int64) {
	id, ok := c.mapAddr[peer.Host]
	if !ok {
		return nil, -1
	}
	info, ok := c.mapInfo[id]
	if !ok {
		return nil, id
	}
	return info, id
}

// create allocates a new record for addr/source and registers it.
func (c *core) create(addr addrutil.NetAddr, ts int64, source addrutil.NetAddr) (*record, int64) {
	c.idCount++
	id := c.idCount
	info := &record{
		peer:      addr,
		source:    source,
		timestamp: ts,
	}
	c.mapInfo[id] = info
	c.mapAddr[addr.Host] = id
	info.randomPos = len(c.randomOrder)
	c.randomOrder = append(c.randomOrder, id)
	return info, id
}

// addToNewTable implements spec.md §4.4.1.
func (c *core) addToNewTable(addr addrutil.NetAddr, ts int64, source addrutil.NetAddr, penalty int64, now time.Time) bool {
	if !addr.Valid(c.allowPrivateSubnets) {
		return false
	}
	if penalty < 0 {
		penalty = 0
	}

	info, id := c.find(addr)
	if info != nil && info.peer == addr {
		penalty = 0
	}

	added := false
	if info != nil {
		currentlyOnline := now.Unix()-ts < 24*60*60
		updateInterval := int64(60 * 60)
		if !currentlyOnline {
			updateInterval = 24 * 60 * 60
		}
		if ts > 0 && (info.timestamp == 0 || info.timestamp < ts-updateInterval) {
			adjusted := ts - penalty
			if adjusted < 0 {
				adjusted = 0
			}
			if adjusted > info.timestamp {
				info.timestamp = adjusted
			}
		}

		if ts == 0 {
			return false
		}
		if info.isTried {
			return false
		}
		if info.refCount == NewBucketsPerAddr {
			return false
		}
		factor := 1 << uint(info.refCount)
		if factor > 1 && c.rng.Intn(factor) != 0 {
			return false
		}
	} else {
		adjusted := ts - penalty
		if adjusted < 0 {
			adjusted = 0
		}
		info, id = c.create(addr, adjusted, source)
		c.newCount++
		added = true
	}

	newBucket := info.newBucket(c.key[:], source)
	newPos := info.bucketPosition(c.key[:], 'N', newBucket)

	occupant := c.newMatrix[newBucket][newPos]
	if occupant != id {
		replace := occupant == emptyID
		if !replace {
			occInfo := c.mapInfo[occupant]
			if occInfo.isTerrible(now) || (occInfo.refCount > 1 && info.refCount == 0) {
				replace = true
			}
		}
		if replace {
			c.clearNew(newBucket, newPos)
			info.refCount++
			c.setNew(newBucket, newPos, id)
		} else if info.refCount == 0 {
			c.deleteNew(id)
		}
	}
	return added
}

// makeTried implements spec.md §4.4.3.
func (c *core) makeTried(info *record, id int64) {
	for bucket := 0; bucket < NewBucketCount; bucket++ {
		pos := info.bucketPosition(c.key[:], 'N', bucket)
		if c.newMatrix[bucket][pos] == id {
			c.setNew(bucket, pos, emptyID)
			info.refCount--
		}
	}
	c.newCount--

	bucket := info.triedBucket(c.key[:])
	pos := info.bucketPosition(c.key[:], 'K', bucket)

	if occupant := c.triedMatrix[bucket][pos]; occupant != emptyID {
		oldInfo := c.mapInfo[occupant]
		oldInfo.isTried = false
		c.setTried(bucket, pos, emptyID)
		c.triedCount--

		newBucket := oldInfo.newBucket(c.key[:], oldInfo.source)
		newPos := oldInfo.bucketPosition(c.key[:], 'N', newBucket)
		c.clearNew(newBucket, newPos)
		oldInfo.refCount = 1
		c.setNew(newBucket, newPos, occupant)
		c.newCount++
	}

	c.setTried(bucket, pos, id)
	c.triedCount++
	info.isTried = true
}

// markGood implements spec.md §4.4.2.
func (c *core) markGood(addr addrutil.NetAddr, testBeforeEvict bool, ts int64, now time.Time) {
	c.lastGood = ts
	if !addr.Valid(c.allowPrivateSubnets) {
		return
	}
	info, id := c.find(addr)
	if info == nil || info.peer != addr {
		return
	}

	info.lastSuccess = ts
	info.lastTry = ts
	info.numAttempts = 0

	if info.isTried {
		return
	}

	startBucket := c.rng.Intn(NewBucketCount)
	found := -1
	for n := 0; n < NewBucketCount; n++ {
		bucket := (n + startBucket) % NewBucketCount
		pos := info.bucketPosition(c.key[:], 'N', bucket)
		if c.newMatrix[bucket][pos] == id {
			found = bucket
			break
		}
	}
	if found == -1 {
		return
	}

	triedBucket := info.triedBucket(c.key[:])
	triedPos := info.bucketPosition(c.key[:], 'K', triedBucket)

	if testBeforeEvict && c.triedMatrix[triedBucket][triedPos] != emptyID {
		if len(c.triedCollisions) < TriedCollisionSize {
			dup := false
			for _, existing := range c.triedCollisions {
				if existing == id {
					dup = true
					break
				}
			}
			if !dup {
				c.triedCollisions = append(c.triedCollisions, id)
			}
		}
		return
	}
	c.makeTried(info, id)
}

// resolveTriedCollisions implements spec.md §4.4.4.
func (c *core) resolveTriedCollisions(now time.Time) {
	remaining := c.triedCollisions[:0:0]
	for _, id := range c.triedCollisions {
		resolved := false
		info, ok := c.mapInfo[id]
		if !ok {
			resolved = true
		} else {
			bucket := info.triedBucket(c.key[:])
			pos := info.bucketPosition(c.key[:], 'K', bucket)
			occupant := c.triedMatrix[bucket][pos]
			if occupant != emptyID {
				oldInfo := c.mapInfo[occupant]
				nowSec := now.Unix()
				switch {
				case nowSec-oldInfo.lastSuccess < 4*60*60:
					resolved = true
				case nowSec-oldInfo.lastTry < 4*60*60:
					if nowSec-oldInfo.lastTry > 60 {
						c.markGood(info.peer, false, nowSec, now)
						resolved = true
					}
				case nowSec-info.lastSuccess > 40*60:
					c.markGood(info.peer, false, nowSec, now)
					resolved = true
				}
			} else {
				c.markGood(info.peer, false, now.Unix(), now)
				resolved = true
			}
		}
		if !resolved {
			remaining = append(remaining, id)
		}
	}
	c.triedCollisions = remaining
}

// selectTriedCollision implements spec.md §4.4.4's companion accessor.
func (c *core) selectTriedCollision() (*record, int64) {
	if len(c.triedCollisions) == 0 {
		return nil, -1
	}
	idx := c.rng.Intn(len(c.triedCollisions))
	newID := c.triedCollisions[idx]
	newInfo, ok := c.mapInfo[newID]
	if !ok {
		c.triedCollisions = append(c.triedCollisions[:idx], c.triedCollisions[idx+1:]...)
		return nil, -1
	}
	bucket := newInfo.triedBucket(c.key[:])
	pos := newInfo.bucketPosition(c.key[:], 'K', bucket)
	oldID := c.triedMatrix[bucket][pos]
	if oldID == emptyID {
		return nil, -1
	}
	return c.mapInfo[oldID], oldID
}

// attempt implements spec.md §4.4.8.
func (c *core) attempt(addr addrutil.NetAddr, countFailures bool, ts int64) {
	info, _ := c.find(addr)
	if info == nil || info.peer != addr {
		return
	}
	info.lastTry = ts
	if countFailures && info.lastCountAttempt < c.lastGood {
		info.lastCountAttempt = ts
		info.numAttempts++
	}
}

// connect implements spec.md §4.4.9.
func (c *core) connect(addr addrutil.NetAddr, ts int64) {
	info, _ := c.find(addr)
	if info == nil || info.peer != addr {
		return
	}
	if ts-info.timestamp > 20*60 {
		info.timestamp = ts
	}
}

// cleanup implements spec.md §4.4.11.
func (c *core) cleanup(maxTSDiff int64, maxFailures int, now time.Time) {
	nowSec := now.Unix()
	for bucket := 0; bucket < NewBucketCount; bucket++ {
		for pos := 0; pos < BucketSize; pos++ {
			id := c.newMatrix[bucket][pos]
			if id == emptyID {
				continue
			}
			info := c.mapInfo[id]
			if info.timestamp < nowSec-maxTSDiff && info.numAttempts >= maxFailures {
				c.clearNew(bucket, pos)
			}
		}
	}
}

// getPeers implements spec.md §4.4.10, a Fisher-Yates partial shuffle
// over randomOrder.
func (c *core) getPeers(now time.Time) []TimestampedAddress {
	n := len(c.randomOrder)
	if n == 0 {
		return nil
	}
	numNodes := int(math.Ceil(0.23 * float64(n)))
	if numNodes > 1000 {
		numNodes = 1000
	}
	out := make([]TimestampedAddress, 0, numNodes)
	for i := 0; i < n && len(out) < numNodes; i++ {
		j := c.rng.Intn(n-i) + i
		c.swapRandom(i, j)
		info := c.mapInfo[c.randomOrder[i]]
		if !info.peer.Valid(c.allowPrivateSubnets) {
			continue
		}
		if !info.isTerrible(now) {
			out = append(out, TimestampedAddress{
				Host:      info.peer.Host,
				Port:      info.peer.Port,
				Timestamp: info.timestamp,
			})
		}
	}
	return out
}

// selectPeer implements spec.md §4.4.7.
func (c *core) selectPeer(newOnly bool, now time.Time) (*record, int64) {
	if len(c.randomOrder) == 0 {
		return nil, -1
	}
	if newOnly && c.newCount == 0 {
		return nil, -1
	}

	useTried := !newOnly && c.triedCount > 0 && (c.newCount == 0 || c.rng.Intn(2) == 0)
	if useTried {
		return c.selectFromTried(now)
	}
	return c.selectFromNew(now)
}

func (c *core) selectFromTried(now time.Time) (*record, int64) {
	chance := 1.0
	sparse := len(c.usedTried) < int(math.Sqrt(float64(TriedBucketCount*BucketSize)))
	var cached []posKey
	if sparse {
		cached = make([]posKey, 0, len(c.usedTried))
		for k := range c.usedTried {
			cached = append(cached, k)
		}
	}
	for {
		var bucket, pos int
		if sparse {
			if len(cached) == 0 {
				return nil, -1
			}
			k := cached[c.rng.Intn(len(cached))]
			bucket, pos = k.bucket, k.pos
		} else {
			bucket = c.rng.Intn(TriedBucketCount)
			pos = c.rng.Intn(BucketSize)
			for c.triedMatrix[bucket][pos] == emptyID {
				bucket = (bucket + c.rng.Intn(1<<log2TriedBucketCount)) % TriedBucketCount
				pos = (pos + c.rng.Intn(1<<log2BucketSize)) % BucketSize
			}
		}
		id := c.triedMatrix[bucket][pos]
		info := c.mapInfo[id]
		if c.rng.Float64() < chance*info.selectionChance(now) {
			return info, id
		}
		chance *= 1.2
	}
}

func (c *core) selectFromNew(now time.Time) (*record, int64) {
	chance := 1.0
	sparse := len(c.usedNew) < int(math.Sqrt(float64(NewBucketCount*BucketSize)))
	var cached []posKey
	if sparse {
		cached = make([]posKey, 0, len(c.usedNew))
		for k := range c.usedNew {
			cached = append(cached, k)
		}
	}
	for {
		var bucket, pos int
		if sparse {
			if len(cached) == 0 {
				return nil, -1
			}
			k := cached[c.rng.Intn(len(cached))]
			bucket, pos = k.bucket, k.pos
		} else {
			bucket = c.rng.Intn(NewBucketCount)
			pos = c.rng.Intn(BucketSize)
			for c.newMatrix[bucket][pos] == emptyID {
				bucket = (bucket + c.rng.Intn(1<<log2NewBucketCount)) % NewBucketCount
				pos = (pos + c.rng.Intn(1<<log2BucketSize)) % BucketSize
			}
		}
		id := c.newMatrix[bucket][pos]
		info := c.mapInfo[id]
		if c.rng.Float64() < chance*info.selectionChance(now) {
			return info, id
		}
		chance *= 1.2
	}
}
