// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/driftfold/fullnode/addrmgr"
	"github.com/driftfold/fullnode/internal/errs"
)

// DecodeLegacySQLite reads a v1 legacy database at path: a peer_metadata
// key/value table (holding "key" and "new_count"; "tried_count" is present
// in some databases but always discarded per spec.md §9, rebuilt instead
// from successful Tried insertions), a peer_nodes table of node_id -> the
// same five-field "host port timestamp src_host src_port" string the flat
// format uses, and a peer_new_table of (node_id, bucket) pairs.
func DecodeLegacySQLite(path string) (*addrmgr.Snapshot, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(err, "legacy sqlite store: open")
	}
	defer db.Close()

	ctx := context.Background()
	metadata := make(map[string]string)
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM peer_metadata")
	if err != nil {
		return nil, errs.Wrap(err, "legacy sqlite store: read peer_metadata")
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, errs.Wrap(err, "legacy sqlite store: scan peer_metadata")
		}
		metadata[k] = v
	}
	rows.Close()

	key, err := decodeLegacyKey(metadata["key"])
	if err != nil {
		return nil, err
	}
	newCount, _ := strconv.ParseUint(metadata["new_count"], 10, 64)

	var nodes []legacyNode
	rows, err = db.QueryContext(ctx, "SELECT node_id, value FROM peer_nodes ORDER BY node_id")
	if err != nil {
		return nil, errs.Wrap(err, "legacy sqlite store: read peer_nodes")
	}
	for rows.Next() {
		var id int64
		var value string
		if err := rows.Scan(&id, &value); err != nil {
			rows.Close()
			return nil, errs.Wrap(err, "legacy sqlite store: scan peer_nodes")
		}
		fields, err := parseRecordFields(value)
		if err != nil {
			rows.Close()
			return nil, errs.Wrap(err, "legacy sqlite store: parse peer_nodes value")
		}
		nodes = append(nodes, legacyNode{ID: id, Info: fields})
	}
	rows.Close()

	var newTable []addrmgr.NewTableEntry
	rows, err = db.QueryContext(ctx, "SELECT node_id, bucket FROM peer_new_table")
	if err != nil {
		return nil, errs.Wrap(err, "legacy sqlite store: read peer_new_table")
	}
	for rows.Next() {
		var nodeID, bucket int64
		if err := rows.Scan(&nodeID, &bucket); err != nil {
			rows.Close()
			return nil, errs.Wrap(err, "legacy sqlite store: scan peer_new_table")
		}
		newTable = append(newTable, addrmgr.NewTableEntry{Record: int(nodeID), Bucket: int(bucket)})
	}
	rows.Close()

	return buildLegacySnapshot(key, newCount, nodes, newTable)
}

// RecordFields is the five-field shape shared by both legacy v1 formats'
// per-node value: host, port, timestamp, source host, source port --
// spec.md §4.5 notes only these survive into the legacy record; counters
// like num_attempts are not part of the v1 contract and start at zero.
type RecordFields struct {
	Host      string
	Port      uint16
	Timestamp int64
	SrcHost   string
	SrcPort   uint16
}

func parseRecordFields(s string) (RecordFields, error) {
	parts := strings.Fields(s)
	if len(parts) != 5 {
		return RecordFields{}, errs.Errorf("legacy store: malformed record %q", s)
	}
	port, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return RecordFields{}, errs.Wrap(err, "legacy store: parse port")
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return RecordFields{}, errs.Wrap(err, "legacy store: parse timestamp")
	}
	srcPort, err := strconv.ParseUint(parts[4], 10, 16)
	if err != nil {
		return RecordFields{}, errs.Wrap(err, "legacy store: parse source port")
	}
	return RecordFields{
		Host:      parts[0],
		Port:      uint16(port),
		Timestamp: ts,
		SrcHost:   parts[3],
		SrcPort:   uint16(srcPort),
	}, nil
}
