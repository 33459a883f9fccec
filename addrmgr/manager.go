// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	crand "crypto/rand"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftfold/fullnode/addrmgr/addrutil"
	"github.com/driftfold/fullnode/internal/errs"
	"github.com/driftfold/fullnode/internal/zlog"
)

// needAddressThreshold is the population below which NeedMoreAddresses
// reports true, matching the teacher's own needAddressThreshold.
const needAddressThreshold = 3000

// Persister is the storage hook Manager calls on Start (load) and on every
// dump tick / Stop (save). addrmgr/store provides the concrete v2/legacy
// codecs, and its FilePersister wires them to a file path. Tests can
// supply a no-op or an in-memory stub.
type Persister interface {
	Load() (*Snapshot, error)
	Save(*Snapshot) error
}

// Manager is the concurrency-safe address manager (spec.md §5). It owns a
// single *core and serializes all access behind one mutex, mirroring the
// teacher's AddrManager: a cooperative, single-owner critical section with
// no suspension mid-mutation, plus a background goroutine that persists
// state on a fixed interval.
type Manager struct {
	mtx sync.Mutex
	c   *core

	persist Persister
	log     zlog.Logger

	started  int32
	shutdown int32
	wg       sync.WaitGroup
	quit     chan struct{}
}

// Config carries the construction-time policy knobs spec.md §6 names.
type Config struct {
	AllowPrivateSubnets bool
	Persister           Persister
	Log                 zlog.Logger
}

// New constructs a Manager with a fresh random key. Load (via Start) may
// replace the key with one read back from persisted state.
func New(cfg Config) *Manager {
	var key [32]byte
	if _, err := crand.Read(key[:]); err != nil {
		// crypto/rand failing indicates a broken host environment; the
		// manager cannot safely operate without an unpredictable key.
		panic(errs.Wrap(err, "seeding address manager key"))
	}
	c := newCore(key, rand.New(rand.NewSource(time.Now().UnixNano())))
	c.allowPrivateSubnets = cfg.AllowPrivateSubnets

	l := cfg.Log
	if l == nil {
		l = zlog.Disabled
	}
	return &Manager{
		c:       c,
		persist: cfg.Persister,
		log:     l,
		quit:    make(chan struct{}),
	}
}

// Start loads persisted state (if a Persister is configured) and launches
// the periodic-save goroutine. Mirrors the teacher's Start.
func (m *Manager) Start() {
	if atomic.AddInt32(&m.started, 1) != 1 {
		return
	}
	m.log.Tracef("starting address manager")

	if m.persist != nil {
		if snap, err := m.persist.Load(); err != nil {
			m.log.Warnf("address manager: load failed, starting empty: %v", err)
		} else if snap != nil {
			m.mtx.Lock()
			c, restoreErr := restoreCore(*snap)
			if restoreErr != nil {
				m.log.Warnf("address manager: discarding unreadable state: %v", restoreErr)
			} else {
				c.allowPrivateSubnets = m.c.allowPrivateSubnets
				m.c = c
				if err := m.c.checkInvariants(); err != nil {
					m.log.Warnf("address manager: loaded state failed invariant check: %v", err)
				}
			}
			m.mtx.Unlock()
		}
	}

	m.wg.Add(1)
	go m.dumpHandler()
}

// Stop gracefully shuts the manager down, flushing a final save.
func (m *Manager) Stop() error {
	if atomic.AddInt32(&m.shutdown, 1) != 1 {
		m.log.Warnf("address manager is already shutting down")
		return nil
	}
	m.log.Infof("address manager shutting down")
	close(m.quit)
	m.wg.Wait()
	return nil
}

// dumpHandler ticks at dumpInterval, saving state; it must run as a
// goroutine, matching the teacher's addressHandler.
func (m *Manager) dumpHandler() {
	ticker := time.NewTicker(dumpInterval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			m.savePeers()
		case <-m.quit:
			break loop
		}
	}
	m.savePeers()
	m.wg.Done()
	m.log.Tracef("address manager dump handler done")
}

func (m *Manager) savePeers() {
	if m.persist == nil {
		return
	}
	m.mtx.Lock()
	snap := snapshotCore(m.c)
	m.mtx.Unlock()
	if err := m.persist.Save(&snap); err != nil {
		m.log.Errorf("address manager: save failed: %v", err)
	}
}

// Size returns the total number of tracked records (New + Tried).
func (m *Manager) Size() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.c.newCount + m.c.triedCount
}

// NeedMoreAddresses reports whether the manager's population is below the
// threshold at which the discovery policy loop should seek more peers.
func (m *Manager) NeedMoreAddresses() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.c.newCount+m.c.triedCount < needAddressThreshold
}

// Stats is a point-in-time population snapshot for a host to feed into its
// own metrics system (gauges, logs, whatever it uses); the manager itself
// carries no metrics client or global registry.
type Stats struct {
	NewCount       int
	TriedCount     int
	TriedCollision int
}

// Stats reports the current population breakdown.
func (m *Manager) Stats() Stats {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return Stats{
		NewCount:       m.c.newCount,
		TriedCount:     m.c.triedCount,
		TriedCollision: len(m.c.triedCollisions),
	}
}

// AddToNewTable implements spec.md §4.4.1 for a single candidate address.
// source defaults to addr itself when left as the zero value, for callers
// that don't know who reported the address.
func (m *Manager) AddToNewTable(addr, source TimestampedAddress, penalty int64) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	peer := addrutil.NewNetAddr(addr.Host, addr.Port)
	src := sourceOrSelf(peer, source)
	return m.c.addToNewTable(peer, addr.Timestamp, src, penalty, time.Now())
}

// AddAddresses adds a batch of candidates sharing one source, returning the
// count that were newly created (as opposed to merely refreshed). source
// defaults to each candidate itself when left as the zero value.
func (m *Manager) AddAddresses(batch []TimestampedAddress, source TimestampedAddress, penalty int64) int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	now := time.Now()
	added := 0
	for _, addr := range batch {
		peer := addrutil.NewNetAddr(addr.Host, addr.Port)
		src := sourceOrSelf(peer, source)
		if m.c.addToNewTable(peer, addr.Timestamp, src, penalty, now) {
			added++
		}
	}
	return added
}

// sourceOrSelf implements spec.md's "source (defaults to peer)" contract:
// a caller that doesn't know who reported an address passes the zero
// TimestampedAddress, and the record is attributed to itself.
func sourceOrSelf(peer addrutil.NetAddr, source TimestampedAddress) addrutil.NetAddr {
	if source == (TimestampedAddress{}) {
		return peer
	}
	return addrutil.NewNetAddr(source.Host, source.Port)
}

// MarkGood implements spec.md §4.4.2.
func (m *Manager) MarkGood(addr TimestampedAddress, testBeforeEvict bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	peer := addrutil.NewNetAddr(addr.Host, addr.Port)
	now := time.Now()
	m.c.markGood(peer, testBeforeEvict, now.Unix(), now)
}

// Attempt implements spec.md §4.4.8.
func (m *Manager) Attempt(addr TimestampedAddress, countFailures bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	peer := addrutil.NewNetAddr(addr.Host, addr.Port)
	m.c.attempt(peer, countFailures, time.Now().Unix())
}

// Connect implements spec.md §4.4.9.
func (m *Manager) Connect(addr TimestampedAddress) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	peer := addrutil.NewNetAddr(addr.Host, addr.Port)
	m.c.connect(peer, time.Now().Unix())
}

// ResolveTriedCollisions implements spec.md §4.4.4.
func (m *Manager) ResolveTriedCollisions() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.c.resolveTriedCollisions(time.Now())
}

// SelectTriedCollision returns a snapshot of the evictable occupant of a
// pending tried-collision slot, if any.
func (m *Manager) SelectTriedCollision() (PeerInfo, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	info, id := m.c.selectTriedCollision()
	if id == -1 {
		return PeerInfo{}, false
	}
	return info.snapshot(), true
}

// SelectPeer implements spec.md §4.4.7.
func (m *Manager) SelectPeer(newOnly bool) (PeerInfo, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	info, id := m.c.selectPeer(newOnly, time.Now())
	if id == -1 {
		return PeerInfo{}, false
	}
	return info.snapshot(), true
}

// GetPeers implements spec.md §4.4.10.
func (m *Manager) GetPeers() []TimestampedAddress {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.c.getPeers(time.Now())
}

// Cleanup implements spec.md §4.4.11.
func (m *Manager) Cleanup(maxTSDiff int64, maxFailures int) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.c.cleanup(maxTSDiff, maxFailures, time.Now())
}

// CheckInvariants runs the P1-P6 structural sanity check (spec.md §8)
// against the current state under lock.
func (m *Manager) CheckInvariants() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.c.checkInvariants()
}
