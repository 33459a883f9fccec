// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/driftfold/fullnode/addrmgr"
	"github.com/driftfold/fullnode/internal/errs"
)

// flatFile is the JSON shape of the legacy v1 "three table" dump: a
// metadata k/v list, a node_id -> five-field record list, and a
// new_table (node_id, bucket) pair list -- the same three tables the
// SQLite variant stores as actual tables, here flattened to one file.
type flatFile struct {
	Metadata [][2]string `json:"metadata"`
	Nodes    []flatNode  `json:"nodes"`
	NewTable [][2]int64  `json:"new_table"`
}

type flatNode struct {
	NodeID int64  `json:"node_id"`
	Value  string `json:"value"`
}

// DecodeLegacyFlatFile reads a v1 legacy flat file at path.
func DecodeLegacyFlatFile(path string) (*addrmgr.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, "legacy flat store: read file")
	}

	var ff flatFile
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &ff); err != nil {
		return nil, errs.Wrap(err, "legacy flat store: unmarshal")
	}

	metadata := make(map[string]string, len(ff.Metadata))
	for _, kv := range ff.Metadata {
		metadata[kv[0]] = kv[1]
	}
	key, err := decodeLegacyKey(metadata["key"])
	if err != nil {
		return nil, err
	}
	newCount := parseUintOrZero(metadata["new_count"])

	nodes := make([]legacyNode, 0, len(ff.Nodes))
	for _, n := range ff.Nodes {
		fields, err := parseRecordFields(n.Value)
		if err != nil {
			return nil, errs.Wrap(err, "legacy flat store: parse node value")
		}
		nodes = append(nodes, legacyNode{ID: n.NodeID, Info: fields})
	}

	newTable := make([]addrmgr.NewTableEntry, 0, len(ff.NewTable))
	for _, pair := range ff.NewTable {
		newTable = append(newTable, addrmgr.NewTableEntry{Record: int(pair[0]), Bucket: int(pair[1])})
	}

	return buildLegacySnapshot(key, newCount, nodes, newTable)
}

func parseUintOrZero(s string) uint64 {
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + uint64(c-'0')
	}
	return v
}
