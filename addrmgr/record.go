// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"time"

	"github.com/driftfold/fullnode/addrmgr/addrutil"
)

// record is the per-peer state tracked by the manager (spec.md's
// AddressRecord). It is unexported; callers only ever see the read-only
// PeerInfo snapshot produced by (*record).snapshot.
type record struct {
	peer   addrutil.NetAddr
	source addrutil.NetAddr

	timestamp        int64 // last-seen wall time, seconds
	lastTry          int64
	lastSuccess      int64
	lastCountAttempt int64
	numAttempts      int
	isTried          bool
	refCount         int
	randomPos        int
}

// h8 is the first 8 bytes of SHA-256, interpreted as a big-endian unsigned
// integer -- the hash primitive every bucket/position derivation in this
// file is built from (spec.md §4.2). It is part of the on-disk/bucket
// contract, not a free design choice: substituting any other hash would
// silently change every peer's bucket placement.
func h8(parts ...[]byte) uint64 {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// triedBucket computes the Tried-table bucket for this record, given the
// manager's secret key.
func (r *record) triedBucket(key []byte) int {
	h1 := h8(key, addrutil.KeyBytes(r.peer)) % TriedBucketsPerGrp
	h1b := [1]byte{byte(h1)}
	bucket := h8(key, addrutil.GroupKey(r.peer), h1b[:]) % uint64(TriedBucketCount)
	return int(bucket)
}

// newBucket computes the New-table bucket for this record with respect to
// src, the reporting source address. Callers are responsible for resolving
// an unknown source to the peer's own address before calling this --
// Manager.AddToNewTable/AddAddresses do that per spec.md's "source
// defaults to peer" contract; newBucket itself takes src as given.
func (r *record) newBucket(key []byte, src addrutil.NetAddr) int {
	h1 := h8(key, addrutil.GroupKey(r.peer), addrutil.GroupKey(src)) % NewBucketsPerSrcGr
	var h1b [1]byte
	h1b[0] = byte(h1)
	bucket := h8(key, addrutil.GroupKey(src), h1b[:]) % uint64(NewBucketCount)
	return int(bucket)
}

// bucketPosition computes the position within a bucket for either table.
// tag is 'N' for New, 'K' for Tried.
func (r *record) bucketPosition(key []byte, tag byte, bucket int) int {
	var bucketBuf [3]byte
	bucketBuf[0] = byte(bucket >> 16)
	bucketBuf[1] = byte(bucket >> 8)
	bucketBuf[2] = byte(bucket)
	pos := h8(key, []byte{tag}, bucketBuf[:], addrutil.KeyBytes(r.peer)) % uint64(BucketSize)
	return int(pos)
}

// isTerrible implements spec.md §4.4.5.
func (r *record) isTerrible(now time.Time) bool {
	nowSec := now.Unix()
	if r.lastTry > 0 && r.lastTry >= nowSec-int64(recentTry/time.Second) {
		return false
	}
	if r.timestamp > nowSec+10*60 {
		return true
	}
	if r.timestamp == 0 || nowSec-r.timestamp > int64(horizon/time.Second) {
		return true
	}
	if r.lastSuccess == 0 && r.numAttempts >= MaxRetries {
		return true
	}
	if nowSec-r.lastSuccess > int64(minFail/time.Second) && r.numAttempts >= MaxFailures {
		return true
	}
	return false
}

// selectionChance implements spec.md §4.4.6.
func (r *record) selectionChance(now time.Time) float64 {
	nowSec := now.Unix()
	chance := 1.0
	sinceLastTry := nowSec - r.lastTry
	if sinceLastTry < 0 {
		sinceLastTry = 0
	}
	if sinceLastTry < 600 {
		chance *= 0.01
	}
	attempts := r.numAttempts
	if attempts > 8 {
		attempts = 8
	}
	chance *= math.Pow(0.66, float64(attempts))
	return chance
}
