// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package addrmgr implements the peer address manager: a long-lived,
// in-memory registry of candidate peer addresses that ranks, selects, and
// persists peers for outbound connection attempts. See SPEC_FULL.md.
package addrmgr

import "time"

// These constants are part of the on-wire/on-disk contract; changing any
// of them invalidates every file a prior version wrote,
// since bucket placement is a deterministic function of them.
const (
	NewBucketCount     = 1024
	TriedBucketCount   = 256
	BucketSize         = 64
	NewBucketsPerAddr  = 8
	TriedBucketsPerGrp = 8
	NewBucketsPerSrcGr = 64
	TriedCollisionSize = 10

	HorizonDays = 30
	MinFailDays = 7
	MaxRetries  = 3
	MaxFailures = 10
)

// log2 of the dimensions above, used by the random-walk fallback in
// selectFromTried/selectFromNew when the used-position index is too dense
// to sample from directly.
const (
	log2NewBucketCount   = 10
	log2TriedBucketCount = 8
	log2BucketSize       = 6
)

const (
	horizon   = HorizonDays * 24 * time.Hour
	minFail   = MinFailDays * 24 * time.Hour
	recentTry = 60 * time.Second
)

// dumpInterval is the cadence at which Manager persists state to disk in
// the background, matching the teacher's dumpAddressInterval.
const dumpInterval = 2 * time.Minute
