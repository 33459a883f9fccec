// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return New(Config{AllowPrivateSubnets: true})
}

func TestAddToNewTableThenMarkGoodPromotes(t *testing.T) {
	m := newTestManager()
	peer := TimestampedAddress{Host: "203.0.113.7", Port: 8333, Timestamp: time.Now().Unix()}
	src := TimestampedAddress{Host: "198.51.100.9", Port: 8333}

	added := m.AddToNewTable(peer, src, 0)
	require.True(t, added)
	require.Equal(t, 1, m.Size())
	require.NoError(t, m.CheckInvariants())

	m.MarkGood(peer, true)
	require.NoError(t, m.CheckInvariants())

	info, ok := m.SelectPeer(false)
	require.True(t, ok)
	require.True(t, info.IsTried)
	require.Equal(t, peer.Host, info.Host)
}

func TestAddToNewTableRejectsInvalidAddress(t *testing.T) {
	m := New(Config{}) // AllowPrivateSubnets defaults false
	peer := TimestampedAddress{Host: "10.0.0.5", Port: 8333, Timestamp: time.Now().Unix()}
	src := TimestampedAddress{Host: "198.51.100.9", Port: 8333}

	added := m.AddToNewTable(peer, src, 0)
	require.False(t, added)
	require.Equal(t, 0, m.Size())
}

func TestAddToNewTableDuplicateDoesNotDoubleCount(t *testing.T) {
	m := newTestManager()
	peer := TimestampedAddress{Host: "203.0.113.7", Port: 8333, Timestamp: time.Now().Unix()}
	src := TimestampedAddress{Host: "198.51.100.9", Port: 8333}

	require.True(t, m.AddToNewTable(peer, src, 0))
	added := m.AddToNewTable(peer, src, 0)
	require.False(t, added, "re-adding an already-known address reports no new addition")
	require.Equal(t, 1, m.Size())
}

func TestCleanupEvictsStaleFailedRecords(t *testing.T) {
	m := newTestManager()
	old := time.Now().Add(-48 * time.Hour).Unix()
	peer := TimestampedAddress{Host: "203.0.113.7", Port: 8333, Timestamp: old}
	src := TimestampedAddress{Host: "198.51.100.9", Port: 8333}
	require.True(t, m.AddToNewTable(peer, src, 0))

	// attempt only counts once per lastGood epoch (lastCountAttempt <
	// lastGood gates the increment), so a single failed attempt is enough
	// to exercise the maxFailures=1 cleanup path.
	m.Attempt(peer, true)

	m.Cleanup(3600, 1)
	require.Equal(t, 0, m.Size())
}

func TestGetPeersExcludesTerribleRecords(t *testing.T) {
	m := newTestManager()
	stale := TimestampedAddress{Host: "203.0.113.7", Port: 8333, Timestamp: 1}
	src := TimestampedAddress{Host: "198.51.100.9", Port: 8333}
	require.True(t, m.AddToNewTable(stale, src, 0))

	peers := m.GetPeers()
	require.Empty(t, peers, "a record with a near-zero timestamp is terrible and must not be shared")
}

func TestStatsReflectsPopulation(t *testing.T) {
	m := newTestManager()
	peer := TimestampedAddress{Host: "203.0.113.7", Port: 8333, Timestamp: time.Now().Unix()}
	src := TimestampedAddress{Host: "198.51.100.9", Port: 8333}
	require.True(t, m.AddToNewTable(peer, src, 0))

	stats := m.Stats()
	require.Equal(t, 1, stats.NewCount)
	require.Equal(t, 0, stats.TriedCount)

	m.MarkGood(peer, true)
	stats = m.Stats()
	require.Equal(t, 0, stats.NewCount)
	require.Equal(t, 1, stats.TriedCount)
}

func TestMarkGoodEmptyTriedCellPromotesWithoutCollision(t *testing.T) {
	m := newTestManager()
	peer := TimestampedAddress{Host: "203.0.113.7", Port: 8333, Timestamp: time.Now().Unix()}
	src := TimestampedAddress{Host: "198.51.100.9", Port: 8333}
	require.True(t, m.AddToNewTable(peer, src, 0))

	m.MarkGood(peer, true)
	info, ok := m.SelectPeer(false)
	require.True(t, ok)
	require.True(t, info.IsTried)

	_, ok = m.SelectTriedCollision()
	require.False(t, ok, "no collision should be pending when the tried cell was empty")
}
