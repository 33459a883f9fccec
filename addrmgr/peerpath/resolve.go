// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peerpath resolves the on-disk location of the address manager's
// persistence file, matching the config-key precedence and per-network
// filename convention spec.md §6 describes.
package peerpath

import "path/filepath"

const (
	// PeersFileKey is the config key for the current-format peers file.
	PeersFileKey = "peers_file_path"
	// LegacyPeerDBKey is the config key a pre-migration install may still
	// carry, naming the legacy peer database file; the resolver places the
	// peers file in that file's directory.
	LegacyPeerDBKey = "peer_db_path"

	// DefaultPeersFileName is the mainnet filename; other networks get a
	// "_<network>" suffix inserted before the extension.
	DefaultPeersFileName = "peers.dat"
)

// Resolve determines the peers-file path for root (the node's data
// directory) and network, preferring cfg[PeersFileKey]; absent that,
// deriving a sibling of cfg[LegacyPeerDBKey]; absent both, using
// DefaultPeersFileName under root. If it had to derive or default the
// path, it writes the result back into cfg[PeersFileKey] so subsequent
// calls are stable, matching spec.md §6's "the resolver writes back the
// resolved path... so subsequent runs are stable."
func Resolve(cfg map[string]string, network, root string) string {
	if existing, ok := cfg[PeersFileKey]; ok && existing != "" {
		return filepath.Join(root, existing)
	}

	var rel string
	if legacy, ok := cfg[LegacyPeerDBKey]; ok && legacy != "" {
		rel = filepath.Join(filepath.Dir(legacy), fileName(network))
	} else {
		rel = filepath.Join(filepath.Dir(DefaultPeersFileName), fileName(network))
	}

	if cfg != nil {
		cfg[PeersFileKey] = rel
	}
	return filepath.Join(root, rel)
}

// fileName returns the per-network peers filename: the bare default name
// on mainnet, or "<stem>_<network><ext>" otherwise.
func fileName(network string) string {
	if network == "mainnet" || network == "" {
		return DefaultPeersFileName
	}
	ext := filepath.Ext(DefaultPeersFileName)
	stem := DefaultPeersFileName[:len(DefaultPeersFileName)-len(ext)]
	return stem + "_" + network + ext
}
