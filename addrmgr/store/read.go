// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"os"

	"github.com/driftfold/fullnode/addrmgr"
	"github.com/driftfold/fullnode/internal/errs"
)

// ReadAny implements spec.md §4.5's read protocol: try v2 binary first;
// on failure, try the legacy flat file; on failure, try the legacy
// SQLite database. If the file does not exist at all, returns (nil, nil)
// -- the caller starts with an empty manager, not an error.
func ReadAny(path string) (*addrmgr.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(err, "address store: read file")
	}

	if snap, err := DecodeV2(data); err == nil {
		return snap, nil
	}
	if snap, err := DecodeLegacyFlatFile(path); err == nil {
		return snap, nil
	}
	if snap, err := DecodeLegacySQLite(path); err == nil {
		return snap, nil
	}
	return nil, errs.Errorf("address store: %s matches no known format (v2, legacy flat, legacy sqlite)", path)
}

// FilePersister adapts ReadAny/WriteV2 to the addrmgr.Persister interface
// over a fixed path.
type FilePersister struct {
	Path string
}

func (p FilePersister) Load() (*addrmgr.Snapshot, error) {
	return ReadAny(p.Path)
}

func (p FilePersister) Save(snap *addrmgr.Snapshot) error {
	return WriteV2(p.Path, snap)
}
