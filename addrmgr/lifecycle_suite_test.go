// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/driftfold/fullnode/addrmgr/addrutil"
	"github.com/driftfold/fullnode/internal/zlog"
)

func TestLifecycleSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "addrmgr lifecycle suite")
}

// fixedKeyManager builds a Manager around a deterministic key so a test can
// search for a deliberate tried-table collision instead of hoping for one.
func fixedKeyManager(key [32]byte) *Manager {
	c := newCore(key, rand.New(rand.NewSource(1)))
	c.allowPrivateSubnets = true
	return &Manager{c: c, log: zlog.Disabled, quit: make(chan struct{})}
}

// findTriedCollision searches a small public IPv4 range for two distinct
// hosts that land on the same tried-table cell under key, so the collision
// path (spec.md §4.4.2's testBeforeEvict deferral) can be exercised without
// depending on the manager's real random key.
func findTriedCollision(key [32]byte) (occupant, challenger addrutil.NetAddr) {
	type cell struct{ bucket, pos int }
	seen := make(map[cell]addrutil.NetAddr)
	for i := 1; i < 250; i++ {
		for j := 1; j < 250; j++ {
			host := fmt.Sprintf("203.0.%d.%d", i, j)
			cand := addrutil.NewNetAddr(host, 8333)
			r := &record{peer: cand}
			bucket := r.triedBucket(key[:])
			pos := r.bucketPosition(key[:], 'K', bucket)
			k := cell{bucket, pos}
			if prior, ok := seen[k]; ok {
				return prior, cand
			}
			seen[k] = cand
		}
	}
	panic("no tried-table collision found in search space")
}

var _ = Describe("Manager lifecycle", func() {
	var key [32]byte
	var m *Manager
	var now time.Time

	BeforeEach(func() {
		for i := range key {
			key[i] = byte(i * 7)
		}
		m = fixedKeyManager(key)
		now = time.Now()
	})

	AfterEach(func() {
		if CurrentGinkgoTestDescription().Failed {
			fmt.Fprintln(GinkgoWriter, spew.Sdump(m.c))
		}
	})

	It("promotes a fresh new-table entry straight to tried when its cell is empty", func() {
		peer := TimestampedAddress{Host: "203.0.113.7", Port: 8333, Timestamp: now.Unix()}
		src := TimestampedAddress{Host: "198.51.100.9", Port: 8333}

		Expect(m.AddToNewTable(peer, src, 0)).To(BeTrue())
		Expect(m.CheckInvariants()).To(Succeed())

		m.MarkGood(peer, true)
		Expect(m.CheckInvariants()).To(Succeed())

		info, ok := m.SelectPeer(false)
		Expect(ok).To(BeTrue())
		Expect(info.IsTried).To(BeTrue())
		Expect(info.Host).To(Equal(peer.Host))
	})

	It("defers eviction through the tried-collision queue instead of evicting immediately", func() {
		occupantAddr, challengerAddr := findTriedCollision(key)
		src := TimestampedAddress{Host: "198.51.100.9", Port: 8333}

		occupant := TimestampedAddress{Host: occupantAddr.Host, Port: occupantAddr.Port, Timestamp: now.Unix()}
		challenger := TimestampedAddress{Host: challengerAddr.Host, Port: challengerAddr.Port, Timestamp: now.Unix()}

		Expect(m.AddToNewTable(occupant, src, 0)).To(BeTrue())
		m.MarkGood(occupant, true)
		Expect(m.CheckInvariants()).To(Succeed())

		Expect(m.AddToNewTable(challenger, src, 0)).To(BeTrue())
		m.MarkGood(challenger, true)
		Expect(m.CheckInvariants()).To(Succeed())

		collided, ok := m.SelectTriedCollision()
		Expect(ok).To(BeTrue(), "the occupant of the shared cell should be reported as the evictable candidate for the queued challenger")
		Expect(collided.Host).To(Equal(occupant.Host))
		Expect(collided.IsTried).To(BeTrue())

		// the challenger stays in the new table until the collision resolves
		challengerInfo, _ := m.c.find(challengerAddr)
		Expect(challengerInfo).NotTo(BeNil())
		Expect(challengerInfo.isTried).To(BeFalse())
	})

	It("resolves a stale tried collision in favor of the challenger", func() {
		occupantAddr, challengerAddr := findTriedCollision(key)
		src := TimestampedAddress{Host: "198.51.100.9", Port: 8333}

		occupant := TimestampedAddress{Host: occupantAddr.Host, Port: occupantAddr.Port, Timestamp: now.Unix()}
		challenger := TimestampedAddress{Host: challengerAddr.Host, Port: challengerAddr.Port, Timestamp: now.Unix()}

		Expect(m.AddToNewTable(occupant, src, 0)).To(BeTrue())
		m.MarkGood(occupant, true)

		// resolveTriedCollisions keeps an occupant that succeeded inside the
		// last 4h (case 1) and only re-tests one whose last attempt is
		// further back than 60s but still inside 4h (case 2) -- so push
		// lastSuccess out past the 4h window while leaving lastTry in that
		// middle band to land on the re-test/evict branch.
		occInfo, _ := m.c.find(occupantAddr)
		occInfo.lastSuccess = now.Add(-5 * time.Hour).Unix()
		occInfo.lastTry = now.Add(-90 * time.Second).Unix()

		Expect(m.AddToNewTable(challenger, src, 0)).To(BeTrue())
		m.MarkGood(challenger, true)

		_, ok := m.SelectTriedCollision()
		Expect(ok).To(BeTrue())

		m.ResolveTriedCollisions()
		Expect(m.CheckInvariants()).To(Succeed())

		challengerInfo, _ := m.c.find(challengerAddr)
		Expect(challengerInfo).NotTo(BeNil())
		Expect(challengerInfo.isTried).To(BeTrue(), "the challenger should win once the occupant looks stale")
	})

	It("cleans up terrible new-table entries and keeps invariants intact throughout", func() {
		src := TimestampedAddress{Host: "198.51.100.9", Port: 8333}
		stale := TimestampedAddress{Host: "203.0.113.99", Port: 8333, Timestamp: now.Add(-40 * 24 * time.Hour).Unix()}

		Expect(m.AddToNewTable(stale, src, 0)).To(BeTrue())
		m.Attempt(stale, true)
		Expect(m.CheckInvariants()).To(Succeed())

		m.Cleanup(3600, 1)
		Expect(m.CheckInvariants()).To(Succeed())
		Expect(m.Size()).To(Equal(0))
	})
})
