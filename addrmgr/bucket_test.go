// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftfold/fullnode/addrmgr/addrutil"
)

func testKey() [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestBucketDerivationIsDeterministic(t *testing.T) {
	key := testKey()
	peer := addrutil.NewNetAddr("203.0.113.7", 8333)
	src := addrutil.NewNetAddr("198.51.100.9", 8333)
	r := &record{peer: peer, source: src}

	b1 := r.newBucket(key[:], src)
	b2 := r.newBucket(key[:], src)
	require.Equal(t, b1, b2, "newBucket must be a pure function of key+peer+source")
	require.GreaterOrEqual(t, b1, 0)
	require.Less(t, b1, NewBucketCount)

	t1 := r.triedBucket(key[:])
	t2 := r.triedBucket(key[:])
	require.Equal(t, t1, t2)
	require.GreaterOrEqual(t, t1, 0)
	require.Less(t, t1, TriedBucketCount)
}

func TestBucketDerivationVariesByKey(t *testing.T) {
	peer := addrutil.NewNetAddr("203.0.113.7", 8333)
	src := addrutil.NewNetAddr("198.51.100.9", 8333)
	r := &record{peer: peer, source: src}

	key1 := testKey()
	key2 := testKey()
	key2[0] ^= 0xff

	b1 := r.triedBucket(key1[:])
	b2 := r.triedBucket(key2[:])
	require.NotEqual(t, b1, b2, "different secret keys should (almost always) disagree on bucket placement")
}

func TestGroupKeyIPv4SharesSameSlash16(t *testing.T) {
	a := addrutil.NewNetAddr("203.0.113.7", 8333)
	b := addrutil.NewNetAddr("203.0.113.250", 9000)
	c := addrutil.NewNetAddr("203.1.113.7", 8333)

	require.Equal(t, addrutil.GroupKey(a), addrutil.GroupKey(b))
	require.NotEqual(t, addrutil.GroupKey(a), addrutil.GroupKey(c))
}

func TestGroupKeyUnwrapsTeredo(t *testing.T) {
	// 2001:0000::/32 with client ipv4 embedded XOR-obfuscated at bytes 12-16.
	teredo := addrutil.NewNetAddr("2001:0000:4136:e378:8000:63bf:3fff:fdd2", 3544)
	plain := addrutil.NewNetAddr("198.51.100.9", 3544)

	g := addrutil.GroupKey(teredo)
	require.Len(t, g, 3) // family byte + 2-byte /16
	require.NotEqual(t, addrutil.GroupKey(plain), g, "teredo unwrap shouldn't coincidentally match an unrelated literal ipv4")
}

func TestIsTerribleRejectsFutureTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := &record{timestamp: now.Unix() + 3600}
	require.True(t, r.isTerrible(now))
}

func TestIsTerribleAcceptsFreshRecord(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := &record{timestamp: now.Unix() - 60}
	require.False(t, r.isTerrible(now))
}

func TestIsTerribleAfterHorizon(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := &record{timestamp: now.Unix() - int64(horizon/time.Second) - 1}
	require.True(t, r.isTerrible(now))
}

func TestIsTerribleManyFailedAttempts(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := &record{
		timestamp:   now.Unix() - 3600,
		lastSuccess: 0,
		numAttempts: MaxRetries,
	}
	require.True(t, r.isTerrible(now))
}

func TestSelectionChanceDecaysWithAttempts(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fresh := &record{lastTry: now.Unix() - 3600, numAttempts: 0}
	hammered := &record{lastTry: now.Unix() - 3600, numAttempts: 8}

	require.Greater(t, fresh.selectionChance(now), hammered.selectionChance(now))
}

func TestSelectionChanceRecentTrySuppressed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := &record{lastTry: now.Unix() - 10}
	require.Less(t, r.selectionChance(now), 0.02)
}
