// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

// TimestampedAddress is the value type callers submit to and receive back
// from the manager: an advertised endpoint plus the wall time it was last
// seen. It is spec.md's TimestampedAddress.
type TimestampedAddress struct {
	Host      string
	Port      uint16
	Timestamp int64
}

// PeerInfo is a read-only snapshot of a tracked record, handed out by
// selection operations. Mutating it has no effect on the manager; it
// exists so the manager never leaks a pointer into its own internal
// state, mirroring the teacher's own *KnownAddress accessor methods
// (LastAttempt, NetAddress, ...).
type PeerInfo struct {
	Host        string
	Port        uint16
	SourceHost  string
	SourcePort  uint16
	Timestamp   int64
	LastTry     int64
	LastSuccess int64
	NumAttempts int
	IsTried     bool
	RefCount    int
}

func (r *record) snapshot() PeerInfo {
	return PeerInfo{
		Host:        r.peer.Host,
		Port:        r.peer.Port,
		SourceHost:  r.source.Host,
		SourcePort:  r.source.Port,
		Timestamp:   r.timestamp,
		LastTry:     r.lastTry,
		LastSuccess: r.lastSuccess,
		NumAttempts: r.numAttempts,
		IsTried:     r.isTried,
		RefCount:    r.refCount,
	}
}
