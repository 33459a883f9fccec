// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftfold/fullnode/addrmgr"
)

func TestDecodeLegacyKeyParsesBigIntString(t *testing.T) {
	key, err := decodeLegacyKey("256")
	require.NoError(t, err)
	require.Equal(t, byte(1), key[30])
	require.Equal(t, byte(0), key[31])
}

func TestDecodeLegacyKeyEmptyIsZero(t *testing.T) {
	key, err := decodeLegacyKey("")
	require.NoError(t, err)
	require.Equal(t, [32]byte{}, key)
}

func TestParseRecordFieldsRejectsWrongArity(t *testing.T) {
	_, err := parseRecordFields("203.0.113.7 8333 1700000000")
	require.Error(t, err)
}

func TestParseRecordFieldsParsesFiveFields(t *testing.T) {
	f, err := parseRecordFields("203.0.113.7 8333 1700000000 198.51.100.9 8333")
	require.NoError(t, err)
	require.Equal(t, "203.0.113.7", f.Host)
	require.Equal(t, uint16(8333), f.Port)
	require.Equal(t, int64(1700000000), f.Timestamp)
	require.Equal(t, "198.51.100.9", f.SrcHost)
}

// legacy seed fixture: two New records (ids 0,1) and one Tried record (id 2),
// matching the v1 convention that membership is implicit in node_id range
// relative to new_count, plus one new-table (node_id, bucket) pair per New
// record.
func legacyFixtureRows() (metadata [][2]string, nodes []flatNode, newTable [][2]int64) {
	metadata = [][2]string{
		{"key", "1000000"},
		{"new_count", "2"},
	}
	nodes = []flatNode{
		{NodeID: 0, Value: "203.0.113.7 8333 1700000000 198.51.100.9 8333"},
		{NodeID: 1, Value: "203.0.113.8 8333 1700000100 198.51.100.9 8333"},
		{NodeID: 2, Value: "203.0.113.9 8333 1699990000 198.51.100.9 8333"},
	}
	newTable = [][2]int64{{0, 17}, {1, 900}}
	return
}

func TestDecodeLegacyFlatFileReconstructsSnapshot(t *testing.T) {
	metadata, nodes, newTable := legacyFixtureRows()
	ff := flatFile{Metadata: metadata, Nodes: nodes, NewTable: newTable}
	data, err := json.Marshal(ff)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "peers.v1.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	snap, err := DecodeLegacyFlatFile(path)
	require.NoError(t, err)
	require.Len(t, snap.Records, 3)

	isTried := map[string]bool{}
	for _, r := range snap.Records {
		isTried[r.Host] = r.IsTried
	}
	require.False(t, isTried["203.0.113.7"])
	require.False(t, isTried["203.0.113.8"])
	require.True(t, isTried["203.0.113.9"])

	// the read protocol's reconstruction (bucket recompute, tried
	// collision drop) runs in addrmgr, not here; confirm the snapshot it
	// hands off is structurally sound end to end.
	require.NoError(t, addrmgr.CheckSnapshotInvariants(snap))
}

func TestDecodeLegacySQLiteReconstructsSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.v1.sqlite")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE peer_metadata (key TEXT, value TEXT);
		CREATE TABLE peer_nodes (node_id INTEGER, value TEXT);
		CREATE TABLE peer_new_table (node_id INTEGER, bucket INTEGER);
	`)
	require.NoError(t, err)

	metadata, nodes, newTable := legacyFixtureRows()
	for _, kv := range metadata {
		_, err := db.Exec(`INSERT INTO peer_metadata (key, value) VALUES (?, ?)`, kv[0], kv[1])
		require.NoError(t, err)
	}
	for _, n := range nodes {
		_, err := db.Exec(`INSERT INTO peer_nodes (node_id, value) VALUES (?, ?)`, n.NodeID, n.Value)
		require.NoError(t, err)
	}
	for _, pair := range newTable {
		_, err := db.Exec(`INSERT INTO peer_new_table (node_id, bucket) VALUES (?, ?)`, pair[0], pair[1])
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	snap, err := DecodeLegacySQLite(path)
	require.NoError(t, err)
	require.Len(t, snap.Records, 3)
	require.NoError(t, addrmgr.CheckSnapshotInvariants(snap))
}
