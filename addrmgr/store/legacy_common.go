// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"math/big"
	"sort"

	"github.com/driftfold/fullnode/addrmgr"
	"github.com/driftfold/fullnode/internal/errs"
)

// decodeLegacyKey parses the manager's secret key as stored by the Python
// original: a base-10 integer string (Python's AddressManager.key is a
// plain int). It is right-aligned into 32 bytes, matching the big-endian
// convention the v2 codec and the bucket-hash functions both use.
func decodeLegacyKey(s string) ([32]byte, error) {
	var key [32]byte
	if s == "" {
		return key, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return key, errs.Errorf("legacy store: malformed key %q", s)
	}
	b := n.Bytes()
	if len(b) > 32 {
		return key, errs.Errorf("legacy store: key too large (%d bytes)", len(b))
	}
	copy(key[32-len(b):], b)
	return key, nil
}

// legacyNode is one row of the legacy "peer_nodes" table (or its flat-file
// equivalent): a node_id and the five-field record it names.
type legacyNode struct {
	ID   int64
	Info RecordFields
}

// buildLegacySnapshot assembles a Snapshot from decoded v1 rows in the
// shape both legacy readers agree on (metadata, a node_id-ordered sequence
// of records, and new_table (node_id, bucket) pairs). It does not itself
// run spec.md §4.5's reconstruction algorithm -- addrmgr's restore path
// does that uniformly for every source -- it only reorders records into
// the New-then-Tried sequence the read protocol expects, splitting at the
// legacy new_count boundary since the v1 schema stores membership
// implicitly by node_id range, not by a per-record flag.
//
// nodes is sorted by ID here rather than trusted from the caller: the
// SQLite reader's own query already returns ascending node_id order, but
// the flat-file reader has no equivalent guarantee from its source format,
// and the New/Tried split below depends entirely on sequence position.
func buildLegacySnapshot(key [32]byte, newCount uint64, nodes []legacyNode, newTable []addrmgr.NewTableEntry) (*addrmgr.Snapshot, error) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	idToSeq := make(map[int64]int, len(nodes))
	records := make([]addrmgr.RecordSnapshot, 0, len(nodes))
	for i, n := range nodes {
		idToSeq[n.ID] = i
		records = append(records, addrmgr.RecordSnapshot{
			Host:       n.Info.Host,
			Port:       n.Info.Port,
			SourceHost: n.Info.SrcHost,
			SourcePort: n.Info.SrcPort,
			Timestamp:  n.Info.Timestamp,
			IsTried:    uint64(n.ID) >= newCount,
		})
	}

	remapped := make([]addrmgr.NewTableEntry, 0, len(newTable))
	for _, e := range newTable {
		seq, ok := idToSeq[int64(e.Record)]
		if !ok {
			continue
		}
		remapped = append(remapped, addrmgr.NewTableEntry{Record: seq, Bucket: e.Bucket})
	}

	return &addrmgr.Snapshot{
		Key:      key,
		Records:  records,
		NewTable: remapped,
	}, nil
}
