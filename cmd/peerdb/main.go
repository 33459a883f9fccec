// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command peerdb is an offline inspection and migration tool for the
// address manager's persistence file: dump summary stats, convert a
// legacy v1 store to the v2 binary layout, or validate its structural
// invariants.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/driftfold/fullnode/addrmgr"
	"github.com/driftfold/fullnode/addrmgr/peerpath"
	"github.com/driftfold/fullnode/addrmgr/store"
)

type statsCmd struct {
	Args struct {
		Path string `positional-arg-name:"path" required:"true"`
	} `positional-args:"yes"`
}

func (c *statsCmd) Execute(_ []string) error {
	snap, err := store.ReadAny(c.Args.Path)
	if err != nil {
		return err
	}
	if snap == nil {
		fmt.Println("no peers file found; manager would start empty")
		return nil
	}
	newCount, triedCount := 0, 0
	for _, r := range snap.Records {
		if r.IsTried {
			triedCount++
		} else {
			newCount++
		}
	}
	fmt.Printf("records: %d (new=%d tried=%d)\n", len(snap.Records), newCount, triedCount)
	fmt.Printf("new-table entries: %d\n", len(snap.NewTable))
	fmt.Printf("tried collisions pending: %d\n", len(snap.TriedCollisions))
	return nil
}

type migrateCmd struct {
	Args struct {
		Src string `positional-arg-name:"src" required:"true"`
		Dst string `positional-arg-name:"dst" required:"true"`
	} `positional-args:"yes"`
}

func (c *migrateCmd) Execute(_ []string) error {
	snap, err := store.ReadAny(c.Args.Src)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("%s: no readable peers data", c.Args.Src)
	}
	if err := store.WriteV2(c.Args.Dst, snap); err != nil {
		return err
	}
	fmt.Printf("wrote %d records to %s in v2 format\n", len(snap.Records), c.Args.Dst)
	return nil
}

type checkCmd struct {
	Args struct {
		Path string `positional-arg-name:"path" required:"true"`
	} `positional-args:"yes"`
}

func (c *checkCmd) Execute(_ []string) error {
	snap, err := store.ReadAny(c.Args.Path)
	if err != nil {
		return err
	}
	if snap == nil {
		fmt.Println("no peers file found; nothing to check")
		return nil
	}
	if err := addrmgr.CheckSnapshotInvariants(snap); err != nil {
		return fmt.Errorf("invariant check failed: %w", err)
	}
	fmt.Println("ok")
	return nil
}

type resolveCmd struct {
	Root       string `long:"root" description:"node data directory" required:"true"`
	Network    string `long:"network" description:"network name (mainnet default)" default:"mainnet"`
	LegacyPath string `long:"legacy-peer-db" description:"pre-migration peer_db_path config value, if any"`
}

func (c *resolveCmd) Execute(_ []string) error {
	cfg := map[string]string{}
	if c.LegacyPath != "" {
		cfg[peerpath.LegacyPeerDBKey] = c.LegacyPath
	}
	path := peerpath.Resolve(cfg, c.Network, c.Root)
	fmt.Println(path)
	return nil
}

func main() {
	parser := flags.NewParser(nil, flags.Default)
	if _, err := parser.AddCommand("stats", "Summarize a peers file", "Print record and table counts from a peers file.", &statsCmd{}); err != nil {
		panic(err)
	}
	if _, err := parser.AddCommand("v1-to-v2", "Migrate a legacy store", "Read a legacy v1 peers file or database and write a v2 file.", &migrateCmd{}); err != nil {
		panic(err)
	}
	if _, err := parser.AddCommand("check", "Validate structural invariants", "Load a peers file and verify P1-P6 hold.", &checkCmd{}); err != nil {
		panic(err)
	}
	if _, err := parser.AddCommand("resolve-path", "Resolve the peers file path", "Apply the config-key precedence and per-network filename rule to locate a node's peers file.", &resolveCmd{}); err != nil {
		panic(err)
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
